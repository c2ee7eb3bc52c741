package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrStage     = "stage"
	attrCategory  = "category"
	attrAccount   = "account"
	attrResult    = "result"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Pipeline cycle metrics
	cyclesTotal     metric.Int64Counter
	cycleDuration   metric.Float64Histogram
	messagesFetched metric.Int64Counter
	messagesFailed  metric.Int64Counter
	messagesTotal   metric.Int64Counter
	messageDuration metric.Float64Histogram
	responsesSent   metric.Int64Counter

	// Hosted model metrics
	modelCallsTotal   metric.Int64Counter
	modelCallDuration metric.Float64Histogram

	// Mailbox (Gmail API) metrics
	mailboxOperationsTotal   metric.Int64Counter
	mailboxOperationDuration metric.Float64Histogram

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Cycle metrics
	m.cyclesTotal, err = meter.Int64Counter(
		"triage_cycles_total",
		metric.WithDescription("Total number of processing cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_cycles_total counter: %w", err)
	}

	m.cycleDuration, err = meter.Float64Histogram(
		"triage_cycle_duration_seconds",
		metric.WithDescription("Processing cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0, 120.0, 300.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_cycle_duration_seconds histogram: %w", err)
	}

	m.messagesFetched, err = meter.Int64Counter(
		"triage_messages_fetched_total",
		metric.WithDescription("Total number of unread messages fetched"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_messages_fetched_total counter: %w", err)
	}

	m.messagesFailed, err = meter.Int64Counter(
		"triage_messages_failed_total",
		metric.WithDescription("Total number of messages that failed a cycle"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_messages_failed_total counter: %w", err)
	}

	m.messagesTotal, err = meter.Int64Counter(
		"triage_messages_total",
		metric.WithDescription("Total number of messages delivered, by category"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_messages_total counter: %w", err)
	}

	m.messageDuration, err = meter.Float64Histogram(
		"triage_message_duration_seconds",
		metric.WithDescription("Per-message pipeline duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_message_duration_seconds histogram: %w", err)
	}

	m.responsesSent, err = meter.Int64Counter(
		"triage_responses_sent_total",
		metric.WithDescription("Total number of automated responses sent"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_responses_sent_total counter: %w", err)
	}

	// Model metrics
	m.modelCallsTotal, err = meter.Int64Counter(
		"model_calls_total",
		metric.WithDescription("Total number of hosted model calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create model_calls_total counter: %w", err)
	}

	m.modelCallDuration, err = meter.Float64Histogram(
		"model_call_duration_seconds",
		metric.WithDescription("Hosted model call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create model_call_duration_seconds histogram: %w", err)
	}

	// Mailbox metrics
	m.mailboxOperationsTotal, err = meter.Int64Counter(
		"mailbox_operations_total",
		metric.WithDescription("Total number of mailbox API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox_operations_total counter: %w", err)
	}

	m.mailboxOperationDuration, err = meter.Float64Histogram(
		"mailbox_operation_duration_seconds",
		metric.WithDescription("Mailbox API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox_operation_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCycle records one completed processing cycle: its duration, the number
// of messages fetched and the number that failed.
func (m *Metrics) RecordCycle(ctx context.Context, duration time.Duration, fetched, failed int) {
	if m.cyclesTotal == nil {
		return // Instrumentation not initialized
	}

	m.cyclesTotal.Add(ctx, 1)
	m.cycleDuration.Record(ctx, duration.Seconds())
	m.messagesFetched.Add(ctx, int64(fetched))
	if failed > 0 {
		m.messagesFailed.Add(ctx, int64(failed))
	}
}

// RecordMessage records one message reaching the end of the pipeline.
//
// Parameters:
//   - category: terminal category (standard_response, needs_review, ignored)
//   - success: whether delivery completed without error
//   - sent: whether an automated response went out
//   - duration: full pipeline time for the message
func (m *Metrics) RecordMessage(ctx context.Context, category string, success, sent bool, duration time.Duration) {
	if m.messagesTotal == nil || m.messageDuration == nil {
		return // Instrumentation not initialized
	}

	status := StatusSuccess
	if !success {
		status = StatusError
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrCategory, category),
		attribute.String(attrStatus, status),
	}

	m.messagesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.messageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if sent {
		m.responsesSent.Add(ctx, 1)
	}
}

// RecordModelCall records a hosted model call with pipeline stage, result and
// duration. Stage is one of the logging stage names (classify, analyze).
func (m *Metrics) RecordModelCall(ctx context.Context, stage string, success bool, duration time.Duration) {
	if m.modelCallsTotal == nil || m.modelCallDuration == nil {
		return // Instrumentation not initialized
	}

	status := StatusSuccess
	if !success {
		status = StatusError
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	}

	m.modelCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.modelCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordMailboxOperation records a mailbox API operation with operation type,
// status, and duration.
//
// Parameters:
//   - operation: Operation type (list, get, send, modify)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordMailboxOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m.mailboxOperationsTotal == nil || m.mailboxOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.mailboxOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.mailboxOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordMailboxOperationWithAccount records a mailbox operation with account info.
// The account label is only included when detailedLabels is enabled.
func (m *Metrics) RecordMailboxOperationWithAccount(ctx context.Context, operation, status, account string, duration time.Duration) {
	if m.mailboxOperationsTotal == nil || m.mailboxOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.mailboxOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.mailboxOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
