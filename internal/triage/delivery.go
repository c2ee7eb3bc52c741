package triage

import (
	"context"
	"log/slog"
	"time"
)

// DeliveryAgent applies the per-category side effects and writes the audit
// record. Exactly one DeliveryRecord is appended per delivered message,
// failures included.
//
// Side effects per category:
//
//	standard_response  send reply, mark read
//	needs_review       star, leave unread
//	ignored            mark read, no star
type DeliveryAgent struct {
	mailbox Mailbox
	audit   AuditLog
	retry   RetryPolicy
	logger  *slog.Logger

	// DryRun skips every mailbox side effect while still producing audit
	// records. Used by the process --dry-run CLI flag.
	DryRun bool

	now func() time.Time
}

// NewDeliveryAgent creates the delivery stage.
func NewDeliveryAgent(mailbox Mailbox, audit AuditLog, retry RetryPolicy, logger *slog.Logger) *DeliveryAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryAgent{
		mailbox: mailbox,
		audit:   audit,
		retry:   retry,
		logger:  logger,
		now:     time.Now,
	}
}

// Deliver executes the side effects for category and appends the audit
// record. The returned error is non-nil only when a required send ultimately
// failed; in that case the Gmail state is left unchanged and the caller must
// not record the message in history, so a future cycle retries it.
//
// Categories that require no send always return a nil error even when the
// status update fails: the update error is captured on the record, and the
// message is still considered processed.
func (a *DeliveryAgent) Deliver(ctx context.Context, msg EmailMessage, category Category, response, details string) (DeliveryRecord, error) {
	rec := DeliveryRecord{
		MessageID: msg.ID,
		Category:  category,
		Timestamp: a.now(),
		Details:   details,
	}

	var deliveryErr error
	switch category {
	case CategoryStandardResponse:
		deliveryErr = a.deliverStandard(ctx, msg, response, &rec)
	case CategoryNeedsReview:
		a.applyStatus(ctx, msg.ID, a.mailbox.Star, "star", &rec)
	default: // CategoryIgnored
		a.applyStatus(ctx, msg.ID, a.mailbox.MarkRead, "mark read", &rec)
	}

	a.append(ctx, rec)
	return rec, deliveryErr
}

func (a *DeliveryAgent) deliverStandard(ctx context.Context, msg EmailMessage, response string, rec *DeliveryRecord) error {
	if a.DryRun {
		a.logger.Info("dry run, skipping send",
			slog.String("message_id", msg.ID),
		)
		return nil
	}

	err := a.retry.Do(ctx, func(ctx context.Context) error {
		return a.mailbox.Send(ctx, msg, response)
	})
	if err != nil {
		rec.Error = err.Error()
		a.logger.Error("send failed, leaving message for next cycle",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return &DeliveryError{MessageID: msg.ID, Err: err}
	}
	rec.ResponseSent = true

	// The response is out; a mark-read failure must not trigger a re-send
	// next cycle, so it is recorded but not returned.
	a.applyStatus(ctx, msg.ID, a.mailbox.MarkRead, "mark read", rec)
	return nil
}

func (a *DeliveryAgent) applyStatus(ctx context.Context, id string, op func(context.Context, string) error, name string, rec *DeliveryRecord) {
	if a.DryRun {
		return
	}
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		return op(ctx, id)
	})
	if err != nil {
		if rec.Error == "" {
			rec.Error = err.Error()
		}
		a.logger.Warn("mailbox status update failed",
			slog.String("message_id", id),
			slog.String("operation", name),
			slog.String("error", err.Error()),
		)
	}
}

func (a *DeliveryAgent) append(ctx context.Context, rec DeliveryRecord) {
	if err := a.audit.Append(ctx, rec); err != nil {
		// The record is lost but the mailbox state is already settled;
		// blocking the history write here would risk a duplicate send.
		a.logger.Error("audit append failed",
			slog.String("message_id", rec.MessageID),
			slog.String("category", rec.Category.String()),
			slog.String("error", err.Error()),
		)
	}
}
