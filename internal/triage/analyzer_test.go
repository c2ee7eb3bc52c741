package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivkov/inboxtriage/internal/logging"
)

func newAnalysisStage(model Analyzer) *AnalysisStage {
	return NewAnalysisStage(model, immediateRetry(), DefaultAnalysisConfig(), NewTemplates(""), logging.Discard())
}

func TestAnalyzeCompleteRequestGetsConfirmation(t *testing.T) {
	model := &fakeAnalyzer{analysis: ModelAnalysis{
		Tone:       ToneFriendly,
		Parameters: completeParams(),
	}}
	stage := newAnalysisStage(model)

	msg := EmailMessage{
		ID:      "m1",
		Sender:  "Sarah Lee <sarah@example.com>",
		Subject: "Quick sync next week?",
		Body:    "Can we meet March 5 at 2:00 PM in Room 4 to discuss the quarterly roadmap?",
	}
	outcome, err := stage.Analyze(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, CategoryStandardResponse, outcome.Recommended)
	assert.Equal(t, RiskLow, outcome.Risk)
	assert.Empty(t, outcome.MissingElements)
	assert.True(t, strings.HasPrefix(outcome.DraftResponse, "Hi Sarah Lee,"))
	assert.Contains(t, outcome.DraftResponse, "confirm our meeting")
}

func TestAnalyzePartialRequestAsksForMissingInfo(t *testing.T) {
	params := completeParams()
	delete(params, ParamLocation)
	model := &fakeAnalyzer{analysis: ModelAnalysis{Tone: ToneFormal, Parameters: params}}
	stage := newAnalysisStage(model)

	outcome, err := stage.Analyze(context.Background(), EmailMessage{
		ID:      "m1",
		Sender:  "bob@example.com",
		Subject: "Meeting request",
		Body:    "Can we meet March 5 at 2pm to discuss the roadmap?",
	})

	require.NoError(t, err)
	assert.Equal(t, CategoryStandardResponse, outcome.Recommended)
	assert.Equal(t, []string{ParamLocation}, outcome.MissingElements)
	assert.Contains(t, outcome.DraftResponse, "the exact meeting location or virtual meeting link")
}

func TestAnalyzeNothingExtractableEscalatesToReview(t *testing.T) {
	model := &fakeAnalyzer{analysis: ModelAnalysis{Tone: ToneFormal}}
	stage := newAnalysisStage(model)

	outcome, err := stage.Analyze(context.Background(), EmailMessage{
		ID:      "m1",
		Subject: "meeting",
		Body:    "we should talk sometime",
	})

	require.NoError(t, err)
	assert.Equal(t, CategoryNeedsReview, outcome.Recommended)
	assert.Len(t, outcome.MissingElements, len(ParameterNames))
	assert.Contains(t, outcome.DraftResponse, "review")
}

func TestAnalyzeConfidenceThresholdBoundary(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		missing    bool
	}{
		{name: "at threshold counts as present", confidence: 0.6, missing: false},
		{name: "just below threshold counts as missing", confidence: 0.59, missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := completeParams()
			params[ParamAgenda] = Parameter{Value: "planning", Confidence: tt.confidence}
			model := &fakeAnalyzer{analysis: ModelAnalysis{Parameters: params}}
			stage := newAnalysisStage(model)

			outcome, err := stage.Analyze(context.Background(), EmailMessage{
				ID:   "m1",
				Body: "meet friday 10am room 2 for planning",
			})

			require.NoError(t, err)
			if tt.missing {
				assert.Equal(t, []string{ParamAgenda}, outcome.MissingElements)
			} else {
				assert.Empty(t, outcome.MissingElements)
			}
		})
	}
}

func TestAnalyzeRiskSignals(t *testing.T) {
	tests := []struct {
		name     string
		msg      EmailMessage
		analysis ModelAnalysis
		want     RiskLevel
	}{
		{
			name:     "contract keyword in subject",
			msg:      EmailMessage{Subject: "Contract review meeting", Body: "Friday 10am room 2 for planning"},
			analysis: ModelAnalysis{Parameters: completeParams()},
			want:     RiskHigh,
		},
		{
			name:     "keyword match is case-insensitive",
			msg:      EmailMessage{Subject: "sync", Body: "We need to finalize the NDA before Friday 10am in room 2"},
			analysis: ModelAnalysis{Parameters: completeParams()},
			want:     RiskHigh,
		},
		{
			name:     "budget approval phrase triggers",
			msg:      EmailMessage{Subject: "sync", Body: "Meeting about the budget approval, Friday 10am room 2"},
			analysis: ModelAnalysis{Parameters: completeParams()},
			want:     RiskHigh,
		},
		{
			name:     "plain budget mention does not trigger",
			msg:      EmailMessage{Subject: "Planning sync", Body: "Let's review the team budget roughly, Friday 10am room 2 for planning"},
			analysis: ModelAnalysis{Parameters: completeParams()},
			want:     RiskLow,
		},
		{
			name:     "nda does not match inside agenda or monday",
			msg:      EmailMessage{Subject: "Monday sync", Body: "Sending the agenda for Monday 10am, room 2, planning"},
			analysis: ModelAnalysis{Parameters: completeParams()},
			want:     RiskLow,
		},
		{
			name:     "too many parties",
			msg:      EmailMessage{Subject: "sync", Body: "Friday 10am room 2 for planning"},
			analysis: ModelAnalysis{Parameters: completeParams(), Parties: 4},
			want:     RiskHigh,
		},
		{
			name:     "party count at limit stays low",
			msg:      EmailMessage{Subject: "sync", Body: "Friday 10am room 2 for planning"},
			analysis: ModelAnalysis{Parameters: completeParams(), Parties: 3},
			want:     RiskLow,
		},
		{
			name:     "attachment flagged by model",
			msg:      EmailMessage{Subject: "sync", Body: "Friday 10am room 2 for planning", HasAttachments: true},
			analysis: ModelAnalysis{Parameters: completeParams(), AttachmentJudgment: true},
			want:     RiskHigh,
		},
		{
			name:     "attachment flag without attachment stays low",
			msg:      EmailMessage{Subject: "sync", Body: "Friday 10am room 2 for planning"},
			analysis: ModelAnalysis{Parameters: completeParams(), AttachmentJudgment: true},
			want:     RiskLow,
		},
		{
			name:     "model-reported risk factors",
			msg:      EmailMessage{Subject: "sync", Body: "Friday 10am room 2 for planning"},
			analysis: ModelAnalysis{Parameters: completeParams(), RiskFactors: []string{"mentions confidential terms"}},
			want:     RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeAnalyzer{analysis: tt.analysis}
			stage := newAnalysisStage(model)

			outcome, err := stage.Analyze(context.Background(), tt.msg)

			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.Risk)
			if tt.want == RiskHigh {
				assert.Equal(t, CategoryNeedsReview, outcome.Recommended)
			}
		})
	}
}

func TestAnalyzeHighRiskDominatesCompleteness(t *testing.T) {
	// All four parameters present, but the body mentions a lawsuit: review
	// wins over the automatic confirmation.
	model := &fakeAnalyzer{analysis: ModelAnalysis{Parameters: completeParams()}}
	stage := newAnalysisStage(model)

	outcome, err := stage.Analyze(context.Background(), EmailMessage{
		ID:      "m1",
		Subject: "Settlement discussion",
		Body:    "Meet March 5 at 2pm in Room 4 to discuss the lawsuit settlement.",
	})

	require.NoError(t, err)
	assert.Equal(t, RiskHigh, outcome.Risk)
	assert.Equal(t, CategoryNeedsReview, outcome.Recommended)
	assert.NotContains(t, outcome.DraftResponse, "confirm")
}

func TestAnalyzeInformationalMessageIsAcknowledged(t *testing.T) {
	model := &fakeAnalyzer{analysis: ModelAnalysis{
		Tone:          ToneFriendly,
		Informational: true,
	}}
	stage := newAnalysisStage(model)

	outcome, err := stage.Analyze(context.Background(), EmailMessage{
		ID:     "m1",
		Sender: "Kim <kim@example.com>",
		Body:   "FYI the all-hands moved to the big room.",
	})

	require.NoError(t, err)
	assert.Equal(t, CategoryIgnored, outcome.Recommended)
	assert.Contains(t, outcome.DraftResponse, "no action needed")
}

func TestAnalyzeValidationErrorEscalatesWithoutRetry(t *testing.T) {
	model := &fakeAnalyzer{fn: func(ctx context.Context, msg EmailMessage) (ModelAnalysis, error) {
		return ModelAnalysis{}, &ValidationError{Stage: "analysis", Reason: "not valid JSON"}
	}}
	stage := newAnalysisStage(model)

	outcome, err := stage.Analyze(context.Background(), EmailMessage{ID: "m1"})

	require.NoError(t, err)
	assert.Equal(t, 1, model.calls, "validation failures must not be retried")
	assert.Equal(t, CategoryNeedsReview, outcome.Recommended)
	assert.Equal(t, RiskHigh, outcome.Risk)
	assert.Contains(t, outcome.DraftResponse, "being reviewed by our team")
}

func TestAnalyzeModelUnavailableAfterRetries(t *testing.T) {
	model := &fakeAnalyzer{err: errors.New("timeout")}
	stage := newAnalysisStage(model)

	_, err := stage.Analyze(context.Background(), EmailMessage{ID: "m1"})

	var unavailable *ModelUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "analysis", unavailable.Stage)
	assert.Equal(t, DefaultRetryAttempts, model.calls)
}
