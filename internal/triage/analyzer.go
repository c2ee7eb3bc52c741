package triage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// AnalysisConfig holds the tunable constants of the analysis stage. The
// confidence threshold and keyword list are deliberately configuration, not
// code: production values are operator-owned.
type AnalysisConfig struct {
	// ConfidenceThreshold is the minimum per-parameter confidence for a
	// parameter to count as present.
	ConfidenceThreshold float64
	// RiskKeywords are the financial/legal patterns that force a high risk
	// signal when found in the message text.
	RiskKeywords []string
	// MaxParties is the largest number of coordinating parties still
	// considered low risk.
	MaxParties int
}

// DefaultRiskKeywords seeds the financial/legal scan. Generic mentions such
// as a plain "budget" do not trigger; the multi-word forms do.
var DefaultRiskKeywords = []string{
	"contract", "legal", "lawsuit", "compliance", "liability",
	"payment", "invoice", "budget approval", "nda", "non-disclosure",
	"acquisition", "salary", "settlement",
}

// DefaultConfidenceThreshold is the default τ for parameter presence.
const DefaultConfidenceThreshold = 0.6

// DefaultMaxParties is the default coordination-complexity bound.
const DefaultMaxParties = 3

// DefaultAnalysisConfig returns the stage defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RiskKeywords:        DefaultRiskKeywords,
		MaxParties:          DefaultMaxParties,
	}
}

// AnalysisStage runs the detailed model analysis and applies the local
// decision table: completeness, risk signals, category recommendation and
// tone-matched draft selection.
type AnalysisStage struct {
	model     Analyzer
	retry     RetryPolicy
	cfg       AnalysisConfig
	templates Templates
	logger    *slog.Logger
}

// NewAnalysisStage creates the second pipeline stage.
func NewAnalysisStage(model Analyzer, retry RetryPolicy, cfg AnalysisConfig, templates Templates, logger *slog.Logger) *AnalysisStage {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if len(cfg.RiskKeywords) == 0 {
		cfg.RiskKeywords = DefaultRiskKeywords
	}
	if cfg.MaxParties <= 0 {
		cfg.MaxParties = DefaultMaxParties
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisStage{model: model, retry: retry, cfg: cfg, templates: templates, logger: logger}
}

// Analyze produces the AnalysisOutcome for a meeting-related message.
//
// Model failures are retried once and then surface as ModelUnavailableError.
// A ValidationError from the model is never retried: the message escalates to
// needs_review with a generic notice instead of failing the cycle.
func (s *AnalysisStage) Analyze(ctx context.Context, msg EmailMessage) (AnalysisOutcome, error) {
	start := time.Now()
	var analysis ModelAnalysis

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		analysis, callErr = s.model.Analyze(ctx, msg)
		var verr *ValidationError
		if errors.As(callErr, &verr) {
			return Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.logger.Warn("analysis output failed validation, escalating to review",
				slog.String("message_id", msg.ID),
				slog.String("reason", verr.Reason),
			)
			return AnalysisOutcome{
				Parameters:    ExtractedParameters{},
				SenderTone:    ToneFormal,
				Risk:          RiskHigh,
				DraftResponse: s.templates.Fallback(),
				Recommended:   CategoryNeedsReview,
			}, nil
		}
		return AnalysisOutcome{}, &ModelUnavailableError{Stage: "analysis", Err: err}
	}

	outcome := s.decide(msg, analysis)

	s.logger.Debug("analyzed message",
		slog.String("message_id", msg.ID),
		slog.String("risk", outcome.Risk.String()),
		slog.String("tone", outcome.SenderTone.String()),
		slog.Int("missing", len(outcome.MissingElements)),
		slog.String("recommended", outcome.Recommended.String()),
		slog.Duration("duration", time.Since(start)),
	)
	return outcome, nil
}

// decide applies the ordered decision table. High risk dominates
// completeness; informational content exits to ignored; total extraction
// failure is the only uncertainty that escalates to review.
func (s *AnalysisStage) decide(msg EmailMessage, analysis ModelAnalysis) AnalysisOutcome {
	params := analysis.Parameters
	if params == nil {
		params = ExtractedParameters{}
	}

	missing := params.Missing(s.cfg.ConfidenceThreshold)
	risk := s.assessRisk(msg, analysis)
	tone := analysis.Tone
	name := SenderName(msg.Sender)

	outcome := AnalysisOutcome{
		Parameters:      params,
		MissingElements: missing,
		Risk:            risk,
		SenderTone:      tone,
	}

	switch {
	case risk == RiskHigh:
		outcome.Recommended = CategoryNeedsReview
		outcome.DraftResponse = s.templates.ReviewNotice(tone, name)
	case analysis.Informational:
		outcome.Recommended = CategoryIgnored
		outcome.DraftResponse = s.templates.Acknowledgment(tone, name)
	case len(missing) == 0:
		outcome.Recommended = CategoryStandardResponse
		outcome.DraftResponse = s.templates.Confirmation(tone, name, params)
	case len(missing) < len(ParameterNames):
		outcome.Recommended = CategoryStandardResponse
		outcome.DraftResponse = s.templates.MissingInfo(tone, name, missing)
	default:
		// Nothing extractable at all: total failure, defer to a human.
		outcome.Recommended = CategoryNeedsReview
		outcome.DraftResponse = s.templates.ReviewNotice(tone, name)
	}
	return outcome
}

func (s *AnalysisStage) assessRisk(msg EmailMessage, analysis ModelAnalysis) RiskLevel {
	if s.scanKeywords(msg.Subject) || s.scanKeywords(msg.Body) {
		return RiskHigh
	}
	if analysis.Parties > s.cfg.MaxParties {
		return RiskHigh
	}
	if analysis.AttachmentJudgment && msg.HasAttachments {
		return RiskHigh
	}
	if len(analysis.RiskFactors) > 0 {
		return RiskHigh
	}
	return RiskLow
}

func (s *AnalysisStage) scanKeywords(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range s.cfg.RiskKeywords {
		if kw != "" && containsToken(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// containsToken reports whether token occurs in text on word boundaries, so
// "nda" does not match inside "agenda" or "monday".
func containsToken(text, token string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], token)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isWordChar(text[i-1])
		after := i+len(token) == len(text) || !isWordChar(text[i+len(token)])
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
