package triage

import (
	"errors"
	"fmt"
)

// ErrHistoryUnavailable indicates the dedup store failed. It is fatal to the
// processing cycle: without history there is no duplicate-send guarantee.
var ErrHistoryUnavailable = errors.New("history store unavailable")

// ModelUnavailableError indicates a hosted-model call failed after the retry
// budget was exhausted. The affected message fails for this cycle only and is
// not recorded in history, so a later cycle picks it up again.
type ModelUnavailableError struct {
	Stage string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%s model unavailable: %v", e.Stage, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ValidationError indicates the model returned output the pipeline could not
// parse or that failed local validation. Not retried; the message escalates
// to needs_review with a generic notice instead of failing the cycle.
type ValidationError struct {
	Stage  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s output validation failed: %s", e.Stage, e.Reason)
}

// DeliveryError indicates the mailbox send or status update failed after the
// retry budget. The Gmail state is left unchanged so a future cycle can retry.
type DeliveryError struct {
	MessageID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for message %s: %v", e.MessageID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
