package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/sjson"

	"github.com/ivkov/inboxtriage/internal/instrumentation"
	"github.com/ivkov/inboxtriage/internal/logging"
)

// DefaultBatchSize bounds one processing cycle.
const DefaultBatchSize = 100

// CycleResult summarizes one processing cycle.
type CycleResult struct {
	CycleID   string           `json:"cycle_id"`
	StartedAt time.Time        `json:"started_at"`
	Fetched   int              `json:"fetched"`
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Records   []DeliveryRecord `json:"records,omitempty"`
	Errors    []string         `json:"errors,omitempty"`
}

// Orchestrator drives a batch of messages through the pipeline:
// fetch, prune history, then per message dedup-check, classify, branch,
// analyze, finalize, deliver and record history.
type Orchestrator struct {
	mailbox     Mailbox
	classifier  *ClassifierStage
	analyzer    *AnalysisStage
	categorizer *Categorizer
	delivery    *DeliveryAgent
	history     History

	batchSize int
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	now       func() time.Time
}

// OrchestratorOption configures optional orchestrator behavior.
type OrchestratorOption func(*Orchestrator)

// WithBatchSize overrides the default cycle batch size.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMetrics attaches the instrumentation recorder.
func WithMetrics(m *instrumentation.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	mailbox Mailbox,
	classifier *ClassifierStage,
	analyzer *AnalysisStage,
	categorizer *Categorizer,
	delivery *DeliveryAgent,
	history History,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		mailbox:     mailbox,
		classifier:  classifier,
		analyzer:    analyzer,
		categorizer: categorizer,
		delivery:    delivery,
		history:     history,
		batchSize:   DefaultBatchSize,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle processes one batch of unread messages. Messages are handled in
// mailbox listing order (oldest first); an unrecoverable error on one message
// never aborts the batch. The returned error is non-nil only for cycle-fatal
// conditions: the mailbox listing failing, or the history store being
// unavailable (no duplicate-send guarantee without it).
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	start := o.now()
	result := CycleResult{
		CycleID:   fmt.Sprintf("cycle-%s", start.UTC().Format("20060102150405")),
		StartedAt: start,
	}
	logger := logging.WithCycle(o.logger, result.CycleID)

	ctx, span := instrumentation.StartSpan(ctx, "triage.cycle")
	defer span.End()

	// Prune first so stale entries cannot produce false dedup positives.
	if err := o.history.Prune(ctx, start); err != nil {
		return result, fmt.Errorf("%w: prune: %v", ErrHistoryUnavailable, err)
	}

	messages, err := o.mailbox.ListUnread(ctx, o.batchSize)
	if err != nil {
		return result, fmt.Errorf("list unread messages: %w", err)
	}
	result.Fetched = len(messages)
	logger.Info("starting cycle", slog.Int("fetched", len(messages)))

	for _, msg := range messages {
		seen, err := o.history.Contains(ctx, msg.ID)
		if err != nil {
			// Without the dedup store a re-send cannot be ruled out.
			o.observeCycle(ctx, start, result)
			return result, fmt.Errorf("%w: contains: %v", ErrHistoryUnavailable, err)
		}
		if seen {
			result.Skipped++
			logger.Debug("already processed, skipping", logging.MessageID(msg.ID))
			continue
		}

		rec, err := o.processMessage(ctx, logger, msg)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", msg.ID, err))
			logger.Error("message failed, will retry next cycle",
				logging.MessageID(msg.ID),
				logging.Err(err),
			)
			continue
		}

		result.Processed++
		result.Records = append(result.Records, rec)

		if err := o.history.Record(ctx, msg.ID, o.now()); err != nil {
			o.observeCycle(ctx, start, result)
			return result, fmt.Errorf("%w: record: %v", ErrHistoryUnavailable, err)
		}
	}

	logger.Info("completed cycle",
		slog.Int("processed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", o.now().Sub(start)),
	)
	o.observeCycle(ctx, start, result)
	return result, nil
}

// processMessage runs one message through the stages. A non-nil error means
// the message failed for this cycle and must not be recorded in history.
func (o *Orchestrator) processMessage(ctx context.Context, logger *slog.Logger, msg EmailMessage) (DeliveryRecord, error) {
	ctx, span := instrumentation.StartSpan(ctx, "triage.message")
	defer span.End()

	msgStart := o.now()
	classification, err := o.classifier.Classify(ctx, msg)
	o.observeModelCall(ctx, logging.StageClassify, err, o.now().Sub(msgStart))
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return DeliveryRecord{}, err
		}
		// Unparseable classifier output is permanent; retrying cannot help,
		// so the message goes to a human instead of failing the cycle.
		logger.Warn("classification output failed validation, escalating to review",
			logging.MessageID(msg.ID),
			slog.String("reason", verr.Reason),
		)
		details, _ := sjson.Set("", "classification.error", verr.Reason)
		rec, derr := o.delivery.Deliver(ctx, msg, CategoryNeedsReview, o.categorizer.Fallback(), details)
		o.observeMessage(ctx, rec, derr, o.now().Sub(msgStart))
		return rec, derr
	}

	details, _ := sjson.Set("", "classification.meeting_related", classification.MeetingRelated)
	details, _ = sjson.Set(details, "classification.confidence", classification.Confidence)

	var category Category
	var response string

	if !classification.MeetingRelated {
		// Non-meeting traffic exits here: a neutral no-action record, the
		// message is marked read and never re-examined.
		category = CategoryIgnored
		logger.Info("non-meeting message",
			logging.MessageID(msg.ID),
			logging.Category(category.String()),
			logging.Domain(msg.Sender),
		)
	} else {
		analysisStart := o.now()
		outcome, err := o.analyzer.Analyze(ctx, msg)
		o.observeModelCall(ctx, logging.StageAnalyze, err, o.now().Sub(analysisStart))
		if err != nil {
			return DeliveryRecord{}, err
		}

		details, _ = sjson.Set(details, "risk", outcome.Risk.String())
		details, _ = sjson.Set(details, "tone", outcome.SenderTone.String())
		if len(outcome.MissingElements) > 0 {
			details, _ = sjson.Set(details, "missing_elements", outcome.MissingElements)
		}

		category, response = o.categorizer.Finalize(outcome)
		logger.Info("categorized message",
			logging.MessageID(msg.ID),
			logging.Category(category.String()),
			slog.String("risk", outcome.Risk.String()),
		)
	}

	rec, err := o.delivery.Deliver(ctx, msg, category, response, details)
	o.observeMessage(ctx, rec, err, o.now().Sub(msgStart))
	if err != nil {
		return rec, err
	}
	return rec, nil
}

func (o *Orchestrator) observeCycle(ctx context.Context, start time.Time, result CycleResult) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordCycle(ctx, o.now().Sub(start), result.Fetched, result.Failed)
}

func (o *Orchestrator) observeModelCall(ctx context.Context, stage string, err error, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordModelCall(ctx, stage, err == nil, d)
}

func (o *Orchestrator) observeMessage(ctx context.Context, rec DeliveryRecord, err error, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordMessage(ctx, rec.Category.String(), err == nil, rec.ResponseSent, d)
}
