package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"sort"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/ivkov/inboxtriage/internal/google"
	"github.com/ivkov/inboxtriage/internal/instrumentation"
	"github.com/ivkov/inboxtriage/internal/logging"
	"github.com/ivkov/inboxtriage/internal/triage"
)

// unreadQuery selects the messages one processing cycle looks at.
const unreadQuery = "is:unread in:inbox"

// Client implements triage.Mailbox over the Gmail API.
type Client struct {
	svc     *gmail.UsersService
	account string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithMetrics attaches the instrumentation recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClientForAccount creates a Gmail client authenticated with the cached
// OAuth token for the given account. Run `inboxtriage auth` first to obtain
// one.
func NewClientForAccount(ctx context.Context, account string, logger *slog.Logger, opts ...Option) (*Client, error) {
	httpClient, err := google.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token for account %s: %w (run `inboxtriage auth` to authenticate)", account, err)
	}

	svc, err := gmail.New(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		svc:     svc.Users,
		account: account,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Account returns the account name this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// HasTokenForAccount checks if a valid OAuth token exists for the account.
func HasTokenForAccount(account string) bool {
	return google.HasTokenForAccount(account)
}

// ListUnread fetches up to limit unread inbox messages in full format,
// oldest first.
func (c *Client) ListUnread(ctx context.Context, limit int) ([]triage.EmailMessage, error) {
	start := time.Now()
	ids, err := c.listUnreadIDs(ctx, limit)
	c.observe(ctx, instrumentation.OperationList, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list unread messages: %w", err)
	}

	messages := make([]triage.EmailMessage, 0, len(ids))
	for _, id := range ids {
		getStart := time.Now()
		full, err := c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
		c.observe(ctx, instrumentation.OperationGet, err, time.Since(getStart))
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", id, err)
		}
		messages = append(messages, parseMessage(full))
	}

	// Gmail lists newest first; the pipeline processes oldest first.
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})

	c.logger.Debug("fetched unread messages",
		logging.Account(c.account),
		slog.Int("count", len(messages)),
	)
	return messages, nil
}

func (c *Client) listUnreadIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		remaining := int64(limit - len(ids))
		if remaining <= 0 {
			break
		}
		pageSize := remaining
		if pageSize > 100 {
			pageSize = 100
		}

		req := c.svc.Messages.List("me").Q(unreadQuery).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		res, err := req.Do()
		if err != nil {
			return nil, err
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		if res.NextPageToken == "" || len(ids) >= limit {
			break
		}
		pageToken = res.NextPageToken
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// MarkRead removes the UNREAD label from the message.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	start := time.Now()
	_, err := c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	c.observe(ctx, instrumentation.OperationModify, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", id, err)
	}
	return nil
}

// Star adds the STARRED label, flagging the message for human attention. The
// UNREAD label is left in place.
func (c *Client) Star(ctx context.Context, id string) error {
	start := time.Now()
	_, err := c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{"STARRED"},
	}).Context(ctx).Do()
	c.observe(ctx, instrumentation.OperationModify, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("star message %s: %w", id, err)
	}
	return nil
}

// Send delivers body as a threaded reply to msg: same thread, In-Reply-To and
// References headers, and the subject prefixed with "Re: ".
func (c *Client) Send(ctx context.Context, msg triage.EmailMessage, body string) error {
	original, err := c.svc.Messages.Get("me", msg.ID).Format("metadata").
		MetadataHeaders("From", "Subject", "Message-ID", "References").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get original message %s: %w", msg.ID, err)
	}

	from := headerValue(original, "From")
	if from == "" {
		return fmt.Errorf("original message %s has no From header", msg.ID)
	}
	subject := headerValue(original, "Subject")
	messageID := headerValue(original, "Message-ID")
	references := headerValue(original, "References")

	raw := buildReply(from, subject, messageID, references, body)
	gmailMsg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: msg.ThreadID,
	}

	start := time.Now()
	sent, err := c.svc.Messages.Send("me", gmailMsg).Context(ctx).Do()
	c.observe(ctx, instrumentation.OperationSend, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("send reply to message %s: %w", msg.ID, err)
	}

	c.logger.Info("sent reply",
		logging.MessageID(msg.ID),
		slog.String("reply_id", sent.Id),
		logging.SenderHash(msg.Sender),
	)
	return nil
}

// buildReply assembles the RFC 2822 reply message.
func buildReply(to, subject, inReplyTo, references, body string) string {
	replySubject := subject
	if !strings.HasPrefix(strings.ToLower(replySubject), "re:") {
		replySubject = "Re: " + replySubject
	}

	allReferences := references
	if inReplyTo != "" {
		if allReferences != "" {
			allReferences += " " + inReplyTo
		} else {
			allReferences = inReplyTo
		}
	}

	var b strings.Builder
	b.WriteString("To: ")
	b.WriteString(to)
	b.WriteString("\r\n")
	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(replySubject))
	b.WriteString("\r\n")
	if inReplyTo != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(inReplyTo)
		b.WriteString("\r\n")
	}
	if allReferences != "" {
		b.WriteString("References: ")
		b.WriteString(allReferences)
		b.WriteString("\r\n")
	}
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// encodeRFC2047 encodes a header value containing non-ASCII characters.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

func (c *Client) observe(ctx context.Context, operation string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordMailboxOperation(ctx, operation, status, d)
}
