package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"courier/pkg/logx"
)

//go:embed migrations_postgres.sql
var pgMigrationsFS embed.FS

const defaultAcquireTimeout = 5 * time.Second

// pgStore is the pooled, multi-writer backend. GetSchedulesDue claims the
// rows it returns with FOR UPDATE SKIP LOCKED so that any number of poller
// processes can share one database without double-dispatching. Row locks are
// transaction-scoped: a poller that crashes mid-claim releases them on
// disconnect and its rows become visible to the next poll.
type pgStore struct {
	db      *sqlx.DB
	codec   *fieldCodec
	log     logx.Logger
	acquire time.Duration
	closed  atomic.Bool
}

func (s *pgStore) guard() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func openPostgres(cfg Config, codec *fieldCodec, log logx.Logger) (Store, error) {
	acquire := cfg.AcquireTimeout
	if acquire <= 0 {
		acquire = defaultAcquireTimeout
	}

	// Fail fast on an unreachable database rather than hang.
	ctx, cancel := context.WithTimeout(context.Background(), acquire)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	st := &pgStore{db: db, codec: codec, log: log, acquire: acquire}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("postgres store opened")
	return st, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	b, err := pgMigrationsFS.ReadFile("migrations_postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *pgStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

const pgScheduleColumns = `id, recipient, recipient_email, endpoint, message_type, from_name,
	cron, next_run, delivery_method, webhook_url, webhook_secret, created_by, created_at`

func (s *pgStore) CreateSchedule(ctx context.Context, n NewSchedule) (*Schedule, error) {
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
		`INSERT INTO schedules(`+pgScheduleColumns+`)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
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

func (s *pgStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgScheduleColumns+` FROM schedules WHERE id = $1`, id)
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

// GetSchedulesDue claims due rows inside a short transaction. SKIP LOCKED
// keeps concurrent pollers from receiving the same rows; the claim is
// released at commit, before dispatch starts, so a slow delivery never
// pins database locks.
func (s *pgStore) GetSchedulesDue(ctx context.Context, before int64) ([]Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	qctx, cancel := context.WithTimeout(ctx, s.acquire)
	defer cancel()

	tx, err := s.db.BeginTxx(qctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(qctx,
		`SELECT `+pgScheduleColumns+` FROM schedules
		 WHERE next_run <= $1
		 FOR UPDATE SKIP LOCKED`, before)
	if err != nil {
		return nil, err
	}

	var out []Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		s.codec.openSchedule(sch)
		out = append(out, *sch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *pgStore) UpdateScheduleNextRun(ctx context.Context, id string, nextRun int64) error {
	if err := s.guard(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_run = $1 WHERE id = $2`, nextRun, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *pgStore) ListSchedules(ctx context.Context, createdBy string) ([]Schedule, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if createdBy == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+pgScheduleColumns+` FROM schedules ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+pgScheduleColumns+` FROM schedules WHERE created_by = $1 ORDER BY created_at DESC`,
			createdBy)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *pgStore) RevokeToken(ctx context.Context, jti string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens(jti, revoked_at) VALUES($1,$2)
		 ON CONFLICT(jti) DO UPDATE SET revoked_at=EXCLUDED.revoked_at`,
		jti, time.Now().Unix(),
	)
	return err
}

func (s *pgStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	var revoked bool
	err := s.db.GetContext(ctx, &revoked,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *pgStore) CleanupRevokedTokens(ctx context.Context, olderThan int64) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE revoked_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
