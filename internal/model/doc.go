// Package model talks to the hosted language models over the OpenAI
// chat-completion API. Two endpoints are configured in production: a fast
// model for the binary meeting classification and a stronger model for the
// detailed analysis. Both are prompted for strict JSON; anything that fails
// to parse or validate surfaces as a validation error so the pipeline can
// escalate the message instead of retrying.
package model
