package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ivkov/inboxtriage/internal/logging"
)

func newTestOrchestrator(mailbox *fakeMailbox, classifier Classifier, analyzer Analyzer, history History, audit AuditLog, opts ...OrchestratorOption) *Orchestrator {
	logger := logging.Discard()
	retry := immediateRetry()
	return NewOrchestrator(
		mailbox,
		NewClassifierStage(classifier, retry, logger),
		NewAnalysisStage(analyzer, retry, DefaultAnalysisConfig(), NewTemplates(""), logger),
		NewCategorizer(NewTemplates(""), logger),
		NewDeliveryAgent(mailbox, audit, retry, logger),
		history,
		logger,
		opts...,
	)
}

func meetingMsg(id string) EmailMessage {
	return EmailMessage{
		ID:       id,
		ThreadID: "t-" + id,
		Sender:   "Sarah Lee <sarah@example.com>",
		Subject:  "Sync next week",
		Body:     "Can we meet March 5 at 2pm in Room 4 to plan the offsite?",
	}
}

func TestRunCycleCompleteMeetingRequest(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"))
	classifier := &fakeClassifier{results: map[string]ClassificationResult{
		"m1": {MeetingRelated: true, Confidence: 0.9},
	}}
	analyzer := &fakeAnalyzer{analysis: ModelAnalysis{Tone: ToneFriendly, Parameters: completeParams()}}
	history := newMemHistory()
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{"m1"}, mailbox.sent)
	assert.Equal(t, []string{"m1"}, mailbox.read)

	seen, err := history.Contains(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, seen, "processed message goes into history")

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, CategoryStandardResponse, rec.Category)
	assert.True(t, rec.ResponseSent)
	assert.True(t, gjson.Get(rec.Details, "classification.meeting_related").Bool())
	assert.Equal(t, 0.9, gjson.Get(rec.Details, "classification.confidence").Float())
	assert.Equal(t, "low", gjson.Get(rec.Details, "risk").String())
}

func TestRunCycleNonMeetingIsIgnored(t *testing.T) {
	mailbox := newFakeMailbox(EmailMessage{ID: "m1", Sender: "news@letters.example.com", Subject: "Weekly digest"})
	classifier := &fakeClassifier{results: map[string]ClassificationResult{
		"m1": {MeetingRelated: false, Confidence: 0.97},
	}}
	analyzer := &fakeAnalyzer{}
	history := newMemHistory()
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, analyzer.calls, "analysis is skipped for non-meeting mail")
	assert.Empty(t, mailbox.sent)
	assert.Equal(t, []string{"m1"}, mailbox.read)

	require.Len(t, result.Records, 1)
	assert.Equal(t, CategoryIgnored, result.Records[0].Category)
	assert.False(t, gjson.Get(result.Records[0].Details, "classification.meeting_related").Bool())
}

func TestRunCycleIsIdempotent(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"))
	classifier := &fakeClassifier{}
	analyzer := &fakeAnalyzer{analysis: ModelAnalysis{Parameters: completeParams()}}
	history := newMemHistory()
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	_, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	// Message still listed as unread (say the mark-read raced); second cycle
	// must skip it via history.
	result, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Processed)
	assert.Len(t, mailbox.sent, 1, "no duplicate send")
	assert.Len(t, audit.records, 1)
}

func TestRunCycleFailedMessageNotRecorded(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"), meetingMsg("m2"))
	classifier := &fakeClassifier{fn: func(ctx context.Context, msg EmailMessage) (ClassificationResult, error) {
		if msg.ID == "m1" {
			return ClassificationResult{}, errors.New("model down")
		}
		return ClassificationResult{MeetingRelated: true, Confidence: 0.8}, nil
	}}
	analyzer := &fakeAnalyzer{analysis: ModelAnalysis{Parameters: completeParams()}}
	history := newMemHistory()
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err, "one bad message never fails the cycle")
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "m1")

	seen, _ := history.Contains(context.Background(), "m1")
	assert.False(t, seen, "failed message stays out of history for retry")
	seen, _ = history.Contains(context.Background(), "m2")
	assert.True(t, seen)
}

func TestRunCycleSendFailureLeavesMessageForRetry(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"))
	mailbox.sendErr = errors.New("gmail 500")
	classifier := &fakeClassifier{}
	analyzer := &fakeAnalyzer{analysis: ModelAnalysis{Parameters: completeParams()}}
	history := newMemHistory()
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	seen, _ := history.Contains(context.Background(), "m1")
	assert.False(t, seen)
	assert.Empty(t, mailbox.read, "mailbox state unchanged on failed send")
}

func TestRunCycleHistoryUnavailableAbortsCycle(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"))
	classifier := &fakeClassifier{}
	analyzer := &fakeAnalyzer{analysis: ModelAnalysis{Parameters: completeParams()}}
	history := newMemHistory()
	history.containsErr = errors.New("db locked")
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	_, err := o.RunCycle(context.Background())

	require.ErrorIs(t, err, ErrHistoryUnavailable)
	assert.Empty(t, mailbox.sent, "no message processed without the dedup store")
}

func TestRunCyclePruneFailureAbortsBeforeListing(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"))
	classifier := &fakeClassifier{}
	history := newMemHistory()
	history.pruneErr = errors.New("db locked")
	o := newTestOrchestrator(mailbox, classifier, &fakeAnalyzer{}, history, &memAudit{})

	_, err := o.RunCycle(context.Background())

	require.ErrorIs(t, err, ErrHistoryUnavailable)
	assert.Zero(t, classifier.calls)
}

func TestRunCycleListFailure(t *testing.T) {
	mailbox := newFakeMailbox()
	mailbox.listErr = errors.New("network")
	o := newTestOrchestrator(mailbox, &fakeClassifier{}, &fakeAnalyzer{}, newMemHistory(), &memAudit{})

	_, err := o.RunCycle(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHistoryUnavailable)
}

func TestRunCycleRespectsBatchSize(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"), meetingMsg("m2"), meetingMsg("m3"))
	classifier := &fakeClassifier{results: map[string]ClassificationResult{
		"m1": {MeetingRelated: false, Confidence: 0.9},
		"m2": {MeetingRelated: false, Confidence: 0.9},
		"m3": {MeetingRelated: false, Confidence: 0.9},
	}}
	o := newTestOrchestrator(mailbox, classifier, &fakeAnalyzer{}, newMemHistory(), &memAudit{}, WithBatchSize(2))

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Processed)
}

func TestRunCyclePrunesOldHistoryFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	history := newMemHistory()
	require.NoError(t, history.Record(context.Background(), "old", now.Add(-8*24*time.Hour)))

	mailbox := newFakeMailbox()
	o := newTestOrchestrator(mailbox, &fakeClassifier{}, &fakeAnalyzer{}, history, &memAudit{},
		WithClock(func() time.Time { return now }))

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "cycle-20260310090000", result.CycleID)
	seen, _ := history.Contains(context.Background(), "old")
	assert.False(t, seen, "entries past the window are pruned at cycle start")
}

func TestRunCycleClassifierValidationEscalatesToReview(t *testing.T) {
	mailbox := newFakeMailbox(meetingMsg("m1"))
	classifier := &fakeClassifier{err: &ValidationError{Stage: "classification", Reason: "malformed verdict"}}
	analyzer := &fakeAnalyzer{}
	history := newMemHistory()
	audit := &memAudit{}
	o := newTestOrchestrator(mailbox, classifier, analyzer, history, audit)

	result, err := o.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Failed)
	assert.Zero(t, analyzer.calls, "analysis never runs without a classification")
	assert.Empty(t, mailbox.sent)
	assert.Empty(t, mailbox.read)
	assert.Equal(t, []string{"m1"}, mailbox.starred, "escalated message is starred for review")

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, CategoryNeedsReview, rec.Category)
	assert.Equal(t, "malformed verdict", gjson.Get(rec.Details, "classification.error").String())

	seen, err := history.Contains(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, seen, "escalated message is processed, not retried")
}
