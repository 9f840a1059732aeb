package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a schedule id is unknown.
	ErrNotFound = errors.New("schedule not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Delivery methods.
const (
	DeliveryEmail   = "email"
	DeliveryWebhook = "webhook"
)

// Message endpoints.
const (
	EndpointPlain = "plain"
	EndpointTyped = "typed"
)

// Schedule is a persisted recurring delivery job. Sensitive fields
// (RecipientEmail, WebhookURL, WebhookSecret) are ciphertext on disk and
// plaintext here; the store handles the translation on every read and write.
type Schedule struct {
	ID             string `db:"id"`
	Recipient      string `db:"recipient"`
	RecipientEmail string `db:"recipient_email"`
	Endpoint       string `db:"endpoint"`
	MessageType    string `db:"message_type"`
	FromName       string `db:"from_name"`
	Cron           string `db:"cron"`
	NextRun        int64  `db:"next_run"`
	DeliveryMethod string `db:"delivery_method"`
	WebhookURL     string `db:"webhook_url"`
	WebhookSecret  string `db:"webhook_secret"`
	CreatedBy      string `db:"created_by"`
	CreatedAt      int64  `db:"created_at"`
}

// NewSchedule carries the caller-supplied fields of a schedule.
// ID and CreatedAt are assigned by the store, NextRun by the caller
// (normally the first occurrence computed from Cron).
type NewSchedule struct {
	Recipient      string
	RecipientEmail string
	Endpoint       string
	MessageType    string
	FromName       string
	Cron           string
	NextRun        int64
	DeliveryMethod string
	WebhookURL     string
	WebhookSecret  string
	CreatedBy      string
}

// CronValidator reports whether a cron expression parses.
// Satisfied by cronx.Evaluator.
type CronValidator interface {
	Valid(expr string) bool
}

// ValidateNewSchedule checks the field combinations a schedule must satisfy
// before it is persisted. Violations are reported to the constructing caller
// and never cross the scheduler/store boundary.
func ValidateNewSchedule(s NewSchedule, crons CronValidator) error {
	if strings.TrimSpace(s.Recipient) == "" {
		return errors.New("recipient is required")
	}
	if crons != nil && !crons.Valid(s.Cron) {
		return fmt.Errorf("invalid cron expression %q", s.Cron)
	}
	switch s.DeliveryMethod {
	case DeliveryEmail:
		if strings.TrimSpace(s.RecipientEmail) == "" {
			return errors.New("recipient_email is required for email delivery")
		}
	case DeliveryWebhook:
		if strings.TrimSpace(s.WebhookURL) == "" {
			return errors.New("webhook_url is required for webhook delivery")
		}
	default:
		return fmt.Errorf("unknown delivery method %q", s.DeliveryMethod)
	}
	switch s.Endpoint {
	case EndpointPlain:
	case EndpointTyped:
		if strings.TrimSpace(s.MessageType) == "" {
			return errors.New("message_type is required for the typed endpoint")
		}
	default:
		return fmt.Errorf("unknown endpoint %q", s.Endpoint)
	}
	return nil
}

// Store is the persistence contract consumed by the scheduler and by the
// auth layer (revocation checks). All operations are safe for concurrent use.
type Store interface {
	CreateSchedule(ctx context.Context, s NewSchedule) (*Schedule, error)
	GetSchedule(ctx context.Context, id string) (*Schedule, error)

	// GetSchedulesDue returns every schedule with next_run <= before.
	// The postgres backend atomically claims the rows it returns so that
	// concurrent pollers never see the same due schedule in the same
	// instant; the sqlite backend assumes a single active poller.
	GetSchedulesDue(ctx context.Context, before int64) ([]Schedule, error)

	UpdateScheduleNextRun(ctx context.Context, id string, nextRun int64) error
	DeleteSchedule(ctx context.Context, id string) (bool, error)

	// ListSchedules returns all schedules ordered by created_at descending.
	// A non-empty createdBy restricts the result to that owner.
	ListSchedules(ctx context.Context, createdBy string) ([]Schedule, error)

	// Revocation ledger. RevokeToken is an idempotent upsert; duplicate
	// revokes refresh revoked_at. CleanupRevokedTokens deletes entries with
	// revoked_at < olderThan and returns the count removed.
	RevokeToken(ctx context.Context, jti string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	CleanupRevokedTokens(ctx context.Context, olderThan int64) (int64, error)

	Close() error
}

// Config configures storage.
//
// DSN selects the backend:
//   - "postgres://..." (or "postgresql://..."): pooled postgres backend,
//     safe for multiple concurrent pollers
//   - anything else is treated as a sqlite file path (single poller only)
//
// EncryptionKey is the passphrase the data key is derived from. If empty,
// sensitive columns are stored in plaintext (explicit degraded mode; the
// store logs a warning at open).
type Config struct {
	DSN           string
	EncryptionKey string

	BusyTimeout    time.Duration // sqlite only; 0 means default
	AcquireTimeout time.Duration // postgres connect/acquire bound; 0 means 5s
}
