package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	"github.com/ivkov/inboxtriage/internal/triage"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 60 * time.Second

// maxBodyChars truncates very long email bodies before prompting. Meeting
// details are almost always near the top.
const maxBodyChars = 4000

// Config describes one hosted model endpoint.
type Config struct {
	// BaseURL is the OpenAI-compatible API base, e.g.
	// "https://api.groq.com/openai/v1".
	BaseURL string
	// APIKey authenticates against the endpoint.
	APIKey string
	// Model is the model identifier to request.
	Model string
	// Timeout bounds one call including retries inside the SDK.
	Timeout time.Duration
}

// Client calls one OpenAI-compatible chat-completion endpoint. The same type
// backs both pipeline models: the classifier endpoint serves Classify and the
// analyzer endpoint serves Analyze.
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client for one hosted model endpoint.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// The pipeline owns the retry budget; the SDK must not retry underneath it.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:     openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
}

const classifySystemPrompt = `You are an email classifier. Decide whether an email is related to scheduling, confirming, changing or cancelling a meeting.
Respond with only a JSON object, no prose:
{"meeting_related": true or false, "confidence": number between 0 and 1}`

// Classify runs the binary meeting decision. Implements triage.Classifier.
func (c *Client) Classify(ctx context.Context, msg triage.EmailMessage) (triage.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user := fmt.Sprintf("Subject: %s\n\n%s", msg.Subject, truncate(msg.Body, maxBodyChars))
	raw, err := c.complete(ctx, classifySystemPrompt, user, 64)
	if err != nil {
		return triage.ClassificationResult{}, err
	}

	parsed := gjson.Parse(stripFences(raw))
	meeting := parsed.Get("meeting_related")
	if !parsed.IsObject() || !meeting.Exists() {
		return triage.ClassificationResult{}, &triage.ValidationError{
			Stage:  "classification",
			Reason: fmt.Sprintf("missing meeting_related in model output %q", clip(raw)),
		}
	}

	confidence := parsed.Get("confidence").Float()
	return triage.ClassificationResult{
		MeetingRelated: meeting.Bool(),
		Confidence:     confidence,
	}, nil
}

const analyzeSystemPrompt = `You are an assistant that analyzes meeting-related emails. Extract the meeting parameters and assess the message.
Respond with only a JSON object, no prose:
{
  "tone": "friendly" or "formal",
  "parameters": {
    "date": {"value": "...", "confidence": 0.0},
    "time": {"value": "...", "confidence": 0.0},
    "location": {"value": "...", "confidence": 0.0},
    "agenda": {"value": "...", "confidence": 0.0}
  },
  "risk_factors": ["..."],
  "parties": 2,
  "informational": false,
  "attachment_needs_review": false
}
Omit a parameter entirely when the email does not mention it. List a risk factor only for financial or legal subject matter. Set informational to true when the email shares meeting information without requesting anything. Set attachment_needs_review to true only when an attachment appears central to the request.`

// Analyze runs the detailed meeting analysis. Implements triage.Analyzer.
func (c *Client) Analyze(ctx context.Context, msg triage.EmailMessage) (triage.ModelAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user := fmt.Sprintf("From: %s\nSubject: %s\nHas attachments: %t\n\n%s",
		msg.Sender, msg.Subject, msg.HasAttachments, truncate(msg.Body, maxBodyChars))
	raw, err := c.complete(ctx, analyzeSystemPrompt, user, 1024)
	if err != nil {
		return triage.ModelAnalysis{}, err
	}

	return parseAnalysis(raw)
}

// complete issues one chat completion and returns the first choice's content.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	start := time.Now()
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:               openai.ChatModel(c.model),
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("model call completed",
		slog.String("model", c.model),
		slog.Duration("duration", time.Since(start)),
	)
	return completion.Choices[0].Message.Content, nil
}

// parseAnalysis validates and decodes the analyzer's JSON output.
func parseAnalysis(raw string) (triage.ModelAnalysis, error) {
	parsed := gjson.Parse(stripFences(raw))
	if !parsed.IsObject() {
		return triage.ModelAnalysis{}, &triage.ValidationError{
			Stage:  "analysis",
			Reason: fmt.Sprintf("output is not a JSON object: %q", clip(raw)),
		}
	}

	analysis := triage.ModelAnalysis{
		Parameters:         triage.ExtractedParameters{},
		Parties:            int(parsed.Get("parties").Int()),
		Informational:      parsed.Get("informational").Bool(),
		AttachmentJudgment: parsed.Get("attachment_needs_review").Bool(),
	}

	switch parsed.Get("tone").String() {
	case "friendly":
		analysis.Tone = triage.ToneFriendly
	case "formal", "":
		analysis.Tone = triage.ToneFormal
	default:
		// Unexpected tones degrade to formal rather than failing the message.
		analysis.Tone = triage.ToneFormal
	}

	params := parsed.Get("parameters")
	if params.Exists() && !params.IsObject() {
		return triage.ModelAnalysis{}, &triage.ValidationError{
			Stage:  "analysis",
			Reason: "parameters is not an object",
		}
	}
	for _, name := range triage.ParameterNames {
		p := params.Get(name)
		if !p.Exists() {
			continue
		}
		value := strings.TrimSpace(p.Get("value").String())
		if value == "" {
			continue
		}
		confidence := p.Get("confidence").Float()
		if confidence < 0 || confidence > 1 {
			return triage.ModelAnalysis{}, &triage.ValidationError{
				Stage:  "analysis",
				Reason: fmt.Sprintf("parameter %s confidence %v out of range", name, confidence),
			}
		}
		analysis.Parameters[name] = triage.Parameter{Value: value, Confidence: confidence}
	}

	for _, f := range parsed.Get("risk_factors").Array() {
		if s := strings.TrimSpace(f.String()); s != "" {
			analysis.RiskFactors = append(analysis.RiskFactors, s)
		}
	}

	return analysis, nil
}

// stripFences removes a surrounding markdown code fence from model output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// clip shortens raw model output for error messages.
func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
