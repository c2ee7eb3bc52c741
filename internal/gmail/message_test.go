package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		InternalDate: time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Sarah Lee <sarah@example.com>"},
				{Name: "Subject", Value: "Sync next week"},
			},
			Body: &gmail.MessagePartBody{Data: b64url("Can we meet Tuesday at 2pm?")},
		},
	}

	parsed := parseMessage(msg)

	assert.Equal(t, "m1", parsed.ID)
	assert.Equal(t, "t1", parsed.ThreadID)
	assert.Equal(t, "Sarah Lee <sarah@example.com>", parsed.Sender)
	assert.Equal(t, "Sync next week", parsed.Subject)
	assert.Equal(t, "Can we meet Tuesday at 2pm?", parsed.Body)
	assert.Equal(t, time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC), parsed.ReceivedAt)
	assert.False(t, parsed.HasAttachments)
}

func TestHeaderValueCaseInsensitive(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "subject", Value: "lower"},
				{Name: "MESSAGE-ID", Value: "<abc@mail>"},
			},
		},
	}

	assert.Equal(t, "lower", headerValue(msg, "Subject"))
	assert.Equal(t, "<abc@mail>", headerValue(msg, "Message-ID"))
	assert.Empty(t, headerValue(msg, "References"))
	assert.Empty(t, headerValue(nil, "Subject"))
}

func TestMessageBodyMultipart(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64url("<p>hello</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("hello")}},
			},
		},
	}

	assert.Equal(t, "hello", messageBody(msg), "plain part wins over html")
}

func TestMessageBodyFallsBackToHTML(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64url("<p>only html</p>")}},
			},
		},
	}

	assert.Equal(t, "<p>only html</p>", messageBody(msg))
}

func TestMessageBodyNestedParts(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("nested body")}},
					},
				},
			},
		},
	}

	assert.Equal(t, "nested body", messageBody(msg))
}

func TestDecodeBodyStandardBase64Fallback(t *testing.T) {
	// Standard base64 with "+" is invalid base64url; the decoder must fall
	// back rather than dropping the body.
	std := base64.StdEncoding.EncodeToString([]byte{0xfb, 0xff})
	assert.NotEmpty(t, decodeBody(std))
	assert.Empty(t, decodeBody("not base64 at all!!!"))
}

func TestHasAttachments(t *testing.T) {
	withAttachment := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("see attached")}},
				{
					MimeType: "application/pdf",
					Filename: "agenda.pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 1024},
				},
			},
		},
	}
	assert.True(t, hasAttachments(withAttachment))

	inlineOnly := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: b64url("no files here")},
		},
	}
	assert.False(t, hasAttachments(inlineOnly))
}

func TestBuildReply(t *testing.T) {
	raw := buildReply("Sarah <sarah@example.com>", "Sync next week", "<orig@mail>", "<first@mail>", "Confirmed.")

	assert.Contains(t, raw, "To: Sarah <sarah@example.com>\r\n")
	assert.Contains(t, raw, "Subject: Re: Sync next week\r\n")
	assert.Contains(t, raw, "In-Reply-To: <orig@mail>\r\n")
	assert.Contains(t, raw, "References: <first@mail> <orig@mail>\r\n")
	assert.Contains(t, raw, "\r\n\r\nConfirmed.")
}

func TestBuildReplyKeepsExistingRePrefix(t *testing.T) {
	raw := buildReply("a@b.c", "RE: Sync", "<m@id>", "", "ok")

	assert.Contains(t, raw, "Subject: RE: Sync\r\n")
	assert.NotContains(t, raw, "Re: RE:")
	assert.Contains(t, raw, "References: <m@id>\r\n")
}

func TestEncodeRFC2047(t *testing.T) {
	assert.Equal(t, "plain ascii", encodeRFC2047("plain ascii"))
	assert.Contains(t, encodeRFC2047("Grüße"), "=?UTF-8?")
}
