package triage

import (
	"fmt"
	"strings"
)

// paramDescriptions phrases parameter names for information requests.
var paramDescriptions = map[string]string{
	ParamDate:     "the meeting date",
	ParamTime:     "the specific time (including AM/PM)",
	ParamLocation: "the exact meeting location or virtual meeting link",
	ParamAgenda:   "the meeting purpose or agenda",
}

// Templates renders the four response drafts in the two supported tones.
// Phrasing follows two parallel tables so each draft kind has a friendly and
// a formal variant.
type Templates struct {
	// Signature closes every generated response.
	Signature string
}

// NewTemplates returns a template set signing responses with signature.
func NewTemplates(signature string) Templates {
	if signature == "" {
		signature = "Inbox Triage Assistant"
	}
	return Templates{Signature: signature}
}

// Confirmation drafts a meeting confirmation filled with the extracted
// parameter values. All four parameters are expected to be present.
func (t Templates) Confirmation(tone Tone, senderName string, params ExtractedParameters) string {
	var body string
	details := fmt.Sprintf("on %s at %s, %s, to %s",
		params[ParamDate].Value,
		params[ParamTime].Value,
		params[ParamLocation].Value,
		params[ParamAgenda].Value)

	if tone == ToneFriendly {
		body = fmt.Sprintf("Thanks for your meeting request! I'm happy to confirm our meeting %s. Looking forward to it!", details)
	} else {
		body = fmt.Sprintf("Thank you for your meeting request. I am pleased to confirm our meeting %s. I look forward to our discussion.", details)
	}
	return t.assemble(tone, senderName, body)
}

// MissingInfo drafts a request naming the specific missing parameters.
func (t Templates) MissingInfo(tone Tone, senderName string, missing []string) string {
	paramText := describeParams(missing)

	var body string
	if tone == ToneFriendly {
		body = fmt.Sprintf("Thanks for your meeting request! Could you share %s? This will help us prepare better.", paramText)
	} else {
		body = fmt.Sprintf("Thank you for your meeting request. To facilitate scheduling, please provide %s.", paramText)
	}
	return t.assemble(tone, senderName, body)
}

// ReviewNotice drafts the 24-hour human-review notice.
func (t Templates) ReviewNotice(tone Tone, senderName string) string {
	var body string
	if tone == ToneFriendly {
		body = "Thanks for your message! Our team will review your request and get back to you within 24 hours. We appreciate your patience!"
	} else {
		body = "Your request has been received and is undergoing review. A response will be provided within 24 business hours."
	}
	return t.assemble(tone, senderName, body)
}

// Acknowledgment drafts a brief acknowledgment for informational messages.
func (t Templates) Acknowledgment(tone Tone, senderName string) string {
	var body string
	if tone == ToneFriendly {
		body = "Thanks for the update! I've noted the information, no action needed on your side."
	} else {
		body = "Thank you for the information. It has been noted; no further action is required."
	}
	return t.assemble(tone, senderName, body)
}

// Fallback is the generic notice used when analysis output fails validation.
func (t Templates) Fallback() string {
	return t.assemble(ToneFormal, "",
		"Thank you for your message. Your request is being reviewed by our team and we will respond within 24 hours.")
}

func (t Templates) assemble(tone Tone, senderName, body string) string {
	var greeting, closing string
	if tone == ToneFriendly {
		if senderName != "" {
			greeting = fmt.Sprintf("Hi %s,", senderName)
		} else {
			greeting = "Hi there,"
		}
		closing = "Thanks!"
	} else {
		if senderName != "" {
			greeting = fmt.Sprintf("Dear %s,", senderName)
		} else {
			greeting = "Dear Sender,"
		}
		closing = "Best regards,"
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", greeting, body, closing, t.Signature)
}

// describeParams joins parameter descriptions in natural language:
// "a", "a and b", "a, b, and c".
func describeParams(names []string) string {
	described := make([]string, 0, len(names))
	for _, name := range names {
		if d, ok := paramDescriptions[name]; ok {
			described = append(described, d)
		}
	}
	if len(described) == 0 {
		described = append(described, "additional details about the proposed meeting")
	}

	switch len(described) {
	case 1:
		return described[0]
	case 2:
		return described[0] + " and " + described[1]
	default:
		return strings.Join(described[:len(described)-1], ", ") + ", and " + described[len(described)-1]
	}
}

// SenderName extracts a display name from a From header value like
// "Jane Doe <jane@example.com>". Returns empty when only an address is known.
func SenderName(sender string) string {
	if i := strings.Index(sender, "<"); i > 0 {
		name := strings.TrimSpace(sender[:i])
		name = strings.Trim(name, `"`)
		return name
	}
	if strings.Contains(sender, "@") {
		return ""
	}
	return strings.TrimSpace(sender)
}
