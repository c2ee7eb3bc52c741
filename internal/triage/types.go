package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EmailMessage is one inbox message as fetched from the mailbox. Immutable
// once fetched; the orchestrator owns it for the duration of one cycle.
type EmailMessage struct {
	ID             string
	ThreadID       string
	Sender         string
	Subject        string
	Body           string
	ReceivedAt     time.Time
	HasAttachments bool
}

// ClassificationResult is the outcome of the binary meeting/non-meeting
// decision over one message.
type ClassificationResult struct {
	MeetingRelated bool
	Confidence     float64
}

// Parameter names extracted from meeting emails, in canonical order.
const (
	ParamDate     = "date"
	ParamTime     = "time"
	ParamLocation = "location"
	ParamAgenda   = "agenda"
)

// ParameterNames lists the four required meeting parameters in the order they
// appear in generated responses.
var ParameterNames = []string{ParamDate, ParamTime, ParamLocation, ParamAgenda}

// Parameter is one extracted meeting parameter with the model's confidence.
type Parameter struct {
	Value      string
	Confidence float64
}

// ExtractedParameters maps a parameter name to its extracted value.
type ExtractedParameters map[string]Parameter

// Present reports whether the named parameter was extracted with a non-empty
// value and confidence at or above the threshold.
func (p ExtractedParameters) Present(name string, threshold float64) bool {
	param, ok := p[name]
	return ok && param.Value != "" && param.Confidence >= threshold
}

// Missing returns the names of parameters that are absent or below the
// confidence threshold, in canonical order.
func (p ExtractedParameters) Missing(threshold float64) []string {
	var missing []string
	for _, name := range ParameterNames {
		if !p.Present(name, threshold) {
			missing = append(missing, name)
		}
	}
	return missing
}

// RiskLevel is the coarse risk signal gating automatic responses.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskHigh
)

func (r RiskLevel) String() string {
	if r == RiskHigh {
		return "high"
	}
	return "low"
}

// Tone is the detected sender tone, used to select response phrasing.
type Tone int

const (
	ToneFormal Tone = iota
	ToneFriendly
)

func (t Tone) String() string {
	if t == ToneFriendly {
		return "friendly"
	}
	return "formal"
}

// Category is the terminal triage category for one message.
type Category int

const (
	CategoryStandardResponse Category = iota
	CategoryNeedsReview
	CategoryIgnored
)

func (c Category) String() string {
	switch c {
	case CategoryStandardResponse:
		return "standard_response"
	case CategoryNeedsReview:
		return "needs_review"
	case CategoryIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the three terminal categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStandardResponse, CategoryNeedsReview, CategoryIgnored:
		return true
	}
	return false
}

// MarshalJSON encodes the category by its wire name.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a category from its wire name.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseCategory(s)
	if !ok {
		return fmt.Errorf("unknown category %q", s)
	}
	*c = parsed
	return nil
}

// ParseCategory maps a wire name back to its category. The second return is
// false for anything that is not one of the three terminal names.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "standard_response":
		return CategoryStandardResponse, true
	case "needs_review":
		return CategoryNeedsReview, true
	case "ignored":
		return CategoryIgnored, true
	}
	return 0, false
}

// ModelAnalysis is the structured result the analysis model returns for one
// meeting-related message, before the local decision table is applied.
type ModelAnalysis struct {
	Tone          Tone
	Parameters    ExtractedParameters
	RiskFactors   []string
	Parties       int
	Informational bool
	// AttachmentJudgment is set when the model decides an attachment needs a
	// human to look at it. Attachment presence alone is a signal, not a flag.
	AttachmentJudgment bool
}

// AnalysisOutcome is the immutable result of the analysis stage for one
// message: extracted parameters, derived signals and the drafted response.
type AnalysisOutcome struct {
	Parameters      ExtractedParameters
	MissingElements []string
	Risk            RiskLevel
	SenderTone      Tone
	DraftResponse   string
	Recommended     Category
}

// DeliveryRecord is the append-only audit entry written for every message
// that reaches the delivery stage. Never mutated after creation.
type DeliveryRecord struct {
	MessageID    string    `json:"message_id"`
	Category     Category  `json:"category"`
	ResponseSent bool      `json:"response_sent"`
	Timestamp    time.Time `json:"timestamp"`
	Error        string    `json:"error,omitempty"`
	// Details is an optional JSON blob with stage signals for the dashboard.
	Details string `json:"details,omitempty"`
}

// Mailbox is the mailbox capability the pipeline consumes. Backed by the
// Gmail API in production.
type Mailbox interface {
	// ListUnread returns up to limit unread inbox messages, oldest first.
	ListUnread(ctx context.Context, limit int) ([]EmailMessage, error)
	// MarkRead removes the unread marker from the message.
	MarkRead(ctx context.Context, id string) error
	// Star flags the message for human attention, leaving it unread.
	Star(ctx context.Context, id string) error
	// Send delivers body as a threaded reply to msg.
	Send(ctx context.Context, msg EmailMessage, body string) error
}

// Classifier is the hosted-model capability for the binary meeting decision.
type Classifier interface {
	Classify(ctx context.Context, msg EmailMessage) (ClassificationResult, error)
}

// Analyzer is the hosted-model capability for detailed meeting analysis.
type Analyzer interface {
	Analyze(ctx context.Context, msg EmailMessage) (ModelAnalysis, error)
}

// History is the rolling-window dedup store for processed message ids.
type History interface {
	Contains(ctx context.Context, id string) (bool, error)
	// Record is an idempotent insert; a no-op if id is already present.
	Record(ctx context.Context, id string, at time.Time) error
	// Prune removes entries older than now minus the retention window. Must
	// run before any Contains check in a cycle.
	Prune(ctx context.Context, now time.Time) error
}

// AuditLog is the append-only sink for delivery records.
type AuditLog interface {
	Append(ctx context.Context, rec DeliveryRecord) error
}
