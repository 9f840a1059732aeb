package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"courier/pkg/logx"
)

// SMTPEmailSender delivers over plain SMTP with optional AUTH.
type SMTPEmailSender struct {
	cfg SMTPConfig
	log logx.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // envelope and header sender
}

func NewSMTPEmailSender(cfg SMTPConfig, log logx.Logger) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg, log: log, send: smtp.SendMail}
}

func (s *SMTPEmailSender) SendMessage(ctx context.Context, toAddress, recipientName, body string) bool {
	if toAddress == "" {
		s.log.Warn("email delivery skipped: empty recipient address")
		return false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", recipientName, toAddress)
	fmt.Fprintf(&b, "Subject: Message for %s\r\n", recipientName)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if err := s.send(addr, auth, s.cfg.From, []string{toAddress}, []byte(b.String())); err != nil {
		s.log.Warn("email delivery failed", logx.String("to", toAddress), logx.Err(err))
		return false
	}
	return true
}
