package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"courier/pkg/logx"
)

// SignatureHeader carries "sha256=<hex HMAC-SHA256 of the JSON body>".
const SignatureHeader = "X-Courier-Signature"

const defaultWebhookTimeout = 10 * time.Second

// HTTPWebhookSender posts JSON payloads. Outbound calls share a client-side
// rate limiter so a burst of due schedules cannot hammer receivers.
type HTTPWebhookSender struct {
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

type WebhookConfig struct {
	Timeout    time.Duration // per-request; 0 means 10s
	RatePerSec int           // outbound request budget; 0 means 5
}

func NewHTTPWebhookSender(cfg WebhookConfig, log logx.Logger) *HTTPWebhookSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &HTTPWebhookSender{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

func (s *HTTPWebhookSender) SendMessage(ctx context.Context, url string, payload Payload, secret string) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("webhook payload marshal failed", logx.Err(err))
		return false
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.log.Warn("webhook rate wait aborted", logx.Err(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.log.Error("webhook request build failed", logx.Err(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("webhook delivery failed", logx.Err(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn("webhook delivery rejected", logx.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// Sign computes the signature header value for a request body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
