package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/ivkov/inboxtriage/internal/triage"
)

// parseMessage converts a full-format Gmail message into the pipeline's
// representation.
func parseMessage(msg *gmail.Message) triage.EmailMessage {
	return triage.EmailMessage{
		ID:             msg.Id,
		ThreadID:       msg.ThreadId,
		Sender:         headerValue(msg, "From"),
		Subject:        headerValue(msg, "Subject"),
		Body:           messageBody(msg),
		ReceivedAt:     time.UnixMilli(msg.InternalDate).UTC(),
		HasAttachments: hasAttachments(msg),
	}
}

// headerValue returns the first header with the given name, case-insensitive.
func headerValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// messageBody extracts the text/plain body, falling back to text/html when no
// plain part exists.
func messageBody(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	if body := findBody(msg.Payload, "text/plain"); body != "" {
		return body
	}
	return findBody(msg.Payload, "text/html")
}

func findBody(part *gmail.MessagePart, mimeType string) string {
	var encoded string
	walkParts(part, func(p *gmail.MessagePart) {
		if encoded == "" && p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
			encoded = p.Body.Data
		}
	})
	if encoded == "" {
		return ""
	}
	return decodeBody(encoded)
}

// decodeBody decodes Gmail's base64url body data, falling back to standard
// base64 for non-conforming senders.
func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// hasAttachments reports whether any part carries a real attachment.
func hasAttachments(msg *gmail.Message) bool {
	if msg == nil || msg.Payload == nil {
		return false
	}
	found := false
	walkParts(msg.Payload, func(p *gmail.MessagePart) {
		if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
			found = true
		}
	})
	return found
}

// walkParts recursively visits part and all nested parts.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, p := range part.Parts {
		walkParts(p, fn)
	}
}
