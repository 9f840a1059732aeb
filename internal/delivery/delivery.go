// Package delivery holds the transports a due schedule can be dispatched
// over. Senders report success as a bool; retry and backoff policy is theirs,
// not the scheduler's.
package delivery

import "context"

// EmailSender delivers a rendered message to a mailbox.
type EmailSender interface {
	SendMessage(ctx context.Context, toAddress, recipientName, body string) bool
}

// WebhookSender delivers a rendered message to an HTTP endpoint.
// A non-empty secret adds an HMAC-SHA256 signature header over the exact
// JSON body.
type WebhookSender interface {
	SendMessage(ctx context.Context, url string, payload Payload, secret string) bool
}

// Payload is the JSON body posted to webhook endpoints.
type Payload struct {
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	Endpoint    string `json:"endpoint"`
	MessageType string `json:"messageType,omitempty"`
	From        string `json:"from,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}
