package triage

import "log/slog"

// Categorizer is the final validation pass before delivery. It is pure and
// deterministic: no external calls, no retries.
type Categorizer struct {
	templates Templates
	logger    *slog.Logger
}

// NewCategorizer creates the third pipeline stage.
func NewCategorizer(templates Templates, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{templates: templates, logger: logger}
}

// Finalize confirms the recommended category is one of the three terminal
// values and that a draft exists. Anything malformed forces needs_review with
// the generic fallback notice; a message is never silently dropped.
// Fallback returns the generic review notice used when a stage cannot
// produce a draft.
func (c *Categorizer) Fallback() string {
	return c.templates.Fallback()
}

func (c *Categorizer) Finalize(outcome AnalysisOutcome) (Category, string) {
	if !outcome.Recommended.Valid() {
		c.logger.Warn("invalid recommended category, forcing review",
			slog.Int("recommended", int(outcome.Recommended)),
		)
		return CategoryNeedsReview, c.templates.Fallback()
	}
	if outcome.DraftResponse == "" {
		c.logger.Warn("empty draft response, forcing review",
			slog.String("recommended", outcome.Recommended.String()),
		)
		return CategoryNeedsReview, c.templates.Fallback()
	}
	return outcome.Recommended, outcome.DraftResponse
}
