package delivery

import (
	"context"

	"courier/pkg/logx"
)

// Console senders stand in for the network transports when no SMTP or
// webhook configuration is present. They log the would-be delivery and
// report success, which keeps schedules advancing in development setups.

type ConsoleEmailSender struct {
	log logx.Logger
}

func NewConsoleEmailSender(log logx.Logger) *ConsoleEmailSender {
	return &ConsoleEmailSender{log: log}
}

func (s *ConsoleEmailSender) SendMessage(ctx context.Context, toAddress, recipientName, body string) bool {
	s.log.Info("console email delivery",
		logx.String("to", toAddress),
		logx.String("recipient", recipientName),
		logx.String("body", body),
	)
	return true
}

type ConsoleWebhookSender struct {
	log logx.Logger
}

func NewConsoleWebhookSender(log logx.Logger) *ConsoleWebhookSender {
	return &ConsoleWebhookSender{log: log}
}

func (s *ConsoleWebhookSender) SendMessage(ctx context.Context, url string, payload Payload, secret string) bool {
	s.log.Info("console webhook delivery",
		logx.String("url", url),
		logx.String("recipient", payload.Recipient),
		logx.Bool("signed", secret != ""),
	)
	return true
}
