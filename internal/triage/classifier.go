package triage

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ClassifierStage wraps the classification model with the pipeline's retry
// policy. It is the gateway for a message: a negative result exits the
// pipeline to "ignored" without invoking the analysis stage.
type ClassifierStage struct {
	model  Classifier
	retry  RetryPolicy
	logger *slog.Logger
}

// NewClassifierStage creates the first pipeline stage.
func NewClassifierStage(model Classifier, retry RetryPolicy, logger *slog.Logger) *ClassifierStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifierStage{model: model, retry: retry, logger: logger}
}

// Classify runs the binary meeting decision for msg. A model failure is
// retried once; persistent failure surfaces as ModelUnavailableError so the
// orchestrator fails the message without recording it in history. A
// ValidationError is never retried and passes through typed, so the
// orchestrator can escalate the message to review instead of failing it.
func (s *ClassifierStage) Classify(ctx context.Context, msg EmailMessage) (ClassificationResult, error) {
	start := time.Now()
	var result ClassificationResult

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = s.model.Classify(ctx, msg)
		var verr *ValidationError
		if errors.As(callErr, &verr) {
			return Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return ClassificationResult{}, err
		}
		return ClassificationResult{}, &ModelUnavailableError{Stage: "classification", Err: err}
	}

	// Clamp into the documented range rather than trusting the model.
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	s.logger.Debug("classified message",
		slog.String("message_id", msg.ID),
		slog.Bool("meeting_related", result.MeetingRelated),
		slog.Float64("confidence", result.Confidence),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}
