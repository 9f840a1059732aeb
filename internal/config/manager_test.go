package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "courier.json", `{
		"logging": {"level": "debug", "console": true},
		"storage": {"dsn": "./courier.db", "encryption_key": "k"},
		"scheduler": {"poll_interval": "30s"}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q", cfg.Logging.Level)
	}
	if cfg.Storage.DSN != "./courier.db" {
		t.Fatalf("DSN = %q", cfg.Storage.DSN)
	}

	poll, retention, cadence, err := cfg.SchedulerDurations()
	if err != nil {
		t.Fatalf("SchedulerDurations error: %v", err)
	}
	if poll != 30*time.Second {
		t.Fatalf("poll = %v", poll)
	}
	if retention != 720*time.Hour {
		t.Fatalf("retention default = %v", retention)
	}
	if cadence != time.Hour {
		t.Fatalf("cadence default = %v", cadence)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "courier.yaml", `
logging:
  level: info
  console: true
storage:
  dsn: postgres://courier@localhost/courier
scheduler:
  poll_interval: 2m
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Storage.DSN != "postgres://courier@localhost/courier" {
		t.Fatalf("DSN = %q", cfg.Storage.DSN)
	}
	poll, _, _, err := cfg.SchedulerDurations()
	if err != nil {
		t.Fatal(err)
	}
	if poll != 2*time.Minute {
		t.Fatalf("poll = %v", poll)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "courier.json", `{"storage": {"dsn": "x"}, "mystery": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "courier.json", `{"storage": {"dsn": "x"}, "scheduler": {"poll_interval": "soon"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := cfg.SchedulerDurations(); err == nil {
		t.Fatal("expected duration parse error")
	}
}
