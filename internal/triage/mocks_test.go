package triage

import (
	"context"
	"sync"
	"time"
)

// fakeMailbox implements Mailbox in memory and records every side effect.
type fakeMailbox struct {
	mu       sync.Mutex
	messages []EmailMessage

	listErr     error
	sendErr     error
	sendErrOnce bool
	markReadErr error
	starErr     error

	sent     []string // message ids a reply was sent for
	sentBody map[string]string
	read     []string
	starred  []string
}

func newFakeMailbox(messages ...EmailMessage) *fakeMailbox {
	return &fakeMailbox{messages: messages, sentBody: make(map[string]string)}
}

func (m *fakeMailbox) ListUnread(ctx context.Context, limit int) ([]EmailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit < len(m.messages) {
		return m.messages[:limit], nil
	}
	return m.messages, nil
}

func (m *fakeMailbox) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markReadErr != nil {
		return m.markReadErr
	}
	m.read = append(m.read, id)
	return nil
}

func (m *fakeMailbox) Star(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.starErr != nil {
		return m.starErr
	}
	m.starred = append(m.starred, id)
	return nil
}

func (m *fakeMailbox) Send(ctx context.Context, msg EmailMessage, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		err := m.sendErr
		if m.sendErrOnce {
			m.sendErr = nil
		}
		return err
	}
	m.sent = append(m.sent, msg.ID)
	m.sentBody[msg.ID] = body
	return nil
}

// fakeClassifier returns canned results per message id, or calls fn when set.
type fakeClassifier struct {
	fn      func(ctx context.Context, msg EmailMessage) (ClassificationResult, error)
	results map[string]ClassificationResult
	err     error
	calls   int
}

func (c *fakeClassifier) Classify(ctx context.Context, msg EmailMessage) (ClassificationResult, error) {
	c.calls++
	if c.fn != nil {
		return c.fn(ctx, msg)
	}
	if c.err != nil {
		return ClassificationResult{}, c.err
	}
	if r, ok := c.results[msg.ID]; ok {
		return r, nil
	}
	return ClassificationResult{MeetingRelated: true, Confidence: 0.9}, nil
}

// fakeAnalyzer returns a canned analysis, or calls fn when set.
type fakeAnalyzer struct {
	fn       func(ctx context.Context, msg EmailMessage) (ModelAnalysis, error)
	analysis ModelAnalysis
	err      error
	calls    int
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, msg EmailMessage) (ModelAnalysis, error) {
	a.calls++
	if a.fn != nil {
		return a.fn(ctx, msg)
	}
	if a.err != nil {
		return ModelAnalysis{}, a.err
	}
	return a.analysis, nil
}

// memHistory is an in-memory History with injectable failures.
type memHistory struct {
	mu      sync.Mutex
	entries map[string]time.Time

	containsErr error
	recordErr   error
	pruneErr    error
	pruned      int
}

func newMemHistory() *memHistory {
	return &memHistory{entries: make(map[string]time.Time)}
}

func (h *memHistory) Contains(ctx context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.containsErr != nil {
		return false, h.containsErr
	}
	_, ok := h.entries[id]
	return ok, nil
}

func (h *memHistory) Record(ctx context.Context, id string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recordErr != nil {
		return h.recordErr
	}
	if _, ok := h.entries[id]; !ok {
		h.entries[id] = at
	}
	return nil
}

func (h *memHistory) Prune(ctx context.Context, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pruneErr != nil {
		return h.pruneErr
	}
	h.pruned++
	for id, at := range h.entries {
		if now.Sub(at) > 7*24*time.Hour {
			delete(h.entries, id)
		}
	}
	return nil
}

// memAudit is an in-memory AuditLog.
type memAudit struct {
	mu      sync.Mutex
	records []DeliveryRecord
	err     error
}

func (a *memAudit) Append(ctx context.Context, rec DeliveryRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

// immediateRetry is the default retry budget with no real sleeping.
func immediateRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p
}

// completeParams returns all four meeting parameters at high confidence.
func completeParams() ExtractedParameters {
	return ExtractedParameters{
		ParamDate:     {Value: "March 5", Confidence: 0.95},
		ParamTime:     {Value: "2:00 PM", Confidence: 0.9},
		ParamLocation: {Value: "Room 4", Confidence: 0.85},
		ParamAgenda:   {Value: "discuss the quarterly roadmap", Confidence: 0.8},
	}
}
