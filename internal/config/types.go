package config

import "time"

// Config is the daemon's configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects and tunes the backend.
//
// DSN: "postgres://..." for the pooled backend, otherwise a sqlite file path.
// EncryptionKey: passphrase for at-rest field encryption; empty means
// plaintext storage (a warning is logged at open).
type StorageConfig struct {
	DSN            string `json:"dsn"`
	EncryptionKey  string `json:"encryption_key,omitempty"` // do not log
	BusyTimeout    string `json:"busy_timeout,omitempty"`   // sqlite
	AcquireTimeout string `json:"acquire_timeout,omitempty"`
}

// SchedulerConfig controls the poll loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "1m"
//   - revocation_retention: "720h"
//   - cleanup_cadence: "1h"
type SchedulerConfig struct {
	PollInterval        string `json:"poll_interval,omitempty"`
	RevocationRetention string `json:"revocation_retention,omitempty"`
	CleanupCadence      string `json:"cleanup_cadence,omitempty"`
}

type DeliveryConfig struct {
	SMTP    *SMTPConfig    `json:"smtp,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
}

// SMTPConfig enables real email delivery. When the section is omitted or
// disabled, the console stand-in sender is used instead.
type SMTPConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	From     string `json:"from"`
}

type WebhookConfig struct {
	Enabled    bool   `json:"enabled"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SchedulerDurations resolves the scheduler duration strings with defaults.
func (c *Config) SchedulerDurations() (poll, retention, cadence time.Duration, err error) {
	poll, err = ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, time.Minute)
	if err != nil {
		return
	}
	retention, err = ParseDurationOrDefault("scheduler.revocation_retention", c.Scheduler.RevocationRetention, 720*time.Hour)
	if err != nil {
		return
	}
	cadence, err = ParseDurationOrDefault("scheduler.cleanup_cadence", c.Scheduler.CleanupCadence, time.Hour)
	return
}
