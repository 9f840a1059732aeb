package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"courier/pkg/logx"
)

//go:embed migrations_sqlite.sql
var sqliteMigrationsFS embed.FS

// sqliteStore is the embedded single-connection backend. It serializes all
// access through one connection and therefore omits row claiming in
// GetSchedulesDue: run exactly one poller against it.
type sqliteStore struct {
	db     *sql.DB
	codec  *fieldCodec
	log    logx.Logger
	closed atomic.Bool
}

func (s *sqliteStore) guard() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func openSQLite(cfg Config, codec *fieldCodec, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.DSN)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, codec: codec, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrationsFS.ReadFile("migrations_sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

const sqliteScheduleColumns = `id, recipient, recipient_email, endpoint, message_type, from_name,
	cron, next_run, delivery_method, webhook_url, webhook_secret, created_by, created_at`

func (s *sqliteStore) CreateSchedule(ctx context.Context, n NewSchedule) (*Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	sch := &Schedule{
		ID:             uuid.NewString(),
		Recipient:      n.Recipient,
		RecipientEmail: n.RecipientEmail,
		Endpoint:       n.Endpoint,
		MessageType:    n.MessageType,
		FromName:       n.FromName,
		Cron:           n.Cron,
		NextRun:        n.NextRun,
		DeliveryMethod: n.DeliveryMethod,
		WebhookURL:     n.WebhookURL,
		WebhookSecret:  n.WebhookSecret,
		CreatedBy:      n.CreatedBy,
		CreatedAt:      time.Now().Unix(),
	}

	row := *sch
	if err := s.codec.sealSchedule(&row); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(`+sqliteScheduleColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.ID, row.Recipient, row.RecipientEmail, row.Endpoint,
		nullStr(row.MessageType), nullStr(row.FromName), row.Cron, row.NextRun,
		row.DeliveryMethod, nullStr(row.WebhookURL), nullStr(row.WebhookSecret),
		row.CreatedBy, row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sch, nil
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteScheduleColumns+` FROM schedules WHERE id = ?`, id)
	sch, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.codec.openSchedule(sch)
	return sch, nil
}

func (s *sqliteStore) GetSchedulesDue(ctx context.Context, before int64) ([]Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteScheduleColumns+` FROM schedules WHERE next_run <= ?`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *sqliteStore) UpdateScheduleNextRun(ctx context.Context, id string, nextRun int64) error {
	if err := s.guard(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_run = ? WHERE id = ?`, nextRun, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListSchedules(ctx context.Context, createdBy string) ([]Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if createdBy == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+sqliteScheduleColumns+` FROM schedules ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+sqliteScheduleColumns+` FROM schedules WHERE created_by = ? ORDER BY created_at DESC`,
			createdBy)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *sqliteStore) RevokeToken(ctx context.Context, jti string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens(jti, revoked_at) VALUES(?,?)
		 ON CONFLICT(jti) DO UPDATE SET revoked_at=excluded.revoked_at`,
		jti, time.Now().Unix(),
	)
	return err
}

func (s *sqliteStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM revoked_tokens WHERE jti = ?`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) CleanupRevokedTokens(ctx context.Context, olderThan int64) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE revoked_at < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) collect(rows *sql.Rows) ([]Schedule, error) {
	var out []Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		s.codec.openSchedule(sch)
		out = append(out, *sch)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (*Schedule, error) {
	var (
		sch           Schedule
		messageType   sql.NullString
		fromName      sql.NullString
		webhookURL    sql.NullString
		webhookSecret sql.NullString
	)
	err := r.Scan(
		&sch.ID, &sch.Recipient, &sch.RecipientEmail, &sch.Endpoint,
		&messageType, &fromName, &sch.Cron, &sch.NextRun,
		&sch.DeliveryMethod, &webhookURL, &webhookSecret,
		&sch.CreatedBy, &sch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sch.MessageType = messageType.String
	sch.FromName = fromName.String
	sch.WebhookURL = webhookURL.String
	sch.WebhookSecret = webhookSecret.String
	return &sch, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
