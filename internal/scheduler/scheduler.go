// Package scheduler runs the poll loop: fetch due schedules, render and
// dispatch each one once, persist the next occurrence, and periodically
// prune the token revocation ledger.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"courier/internal/delivery"
	"courier/internal/message"
	"courier/internal/store"
	"courier/pkg/logx"
)

// CronNext computes the next occurrence of a cron expression.
// Satisfied by cronx.Evaluator.
type CronNext interface {
	NextRun(expr string, now time.Time) (int64, bool)
}

type Config struct {
	PollInterval        time.Duration // default 1m
	RevocationRetention time.Duration // default 720h
	CleanupCadence      time.Duration // default 1h
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.RevocationRetention <= 0 {
		c.RevocationRetention = 30 * 24 * time.Hour
	}
	if c.CleanupCadence <= 0 {
		c.CleanupCadence = time.Hour
	}
	return c
}

type Service struct {
	cfg      Config
	st       store.Store
	producer message.Producer
	email    delivery.EmailSender
	webhook  delivery.WebhookSender
	crons    CronNext
	log      logx.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}

	// lastCleanup is the time of the last successful ledger cleanup.
	// A failed attempt leaves it untouched so the next poll retries
	// instead of waiting out a full cadence.
	lastCleanup time.Time

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config, st store.Store, producer message.Producer, email delivery.EmailSender, webhook delivery.WebhookSender, crons CronNext, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		st:       st,
		producer: producer,
		email:    email,
		webhook:  webhook,
		crons:    crons,
		log:      log,
		now:      time.Now,
	}
}

// Start launches the poll loop: one poll immediately, then one per
// PollInterval. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh = stopCh
	s.doneCh = doneCh
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	go func() {
		defer close(doneCh)

		// Polls run sequentially on this goroutine, so a tick can never
		// overlap an in-flight poll.
		s.poll(ctx)

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				s.poll(ctx)
			}
		}
	}()

	s.log.Info("scheduler started", logx.Duration("poll_interval", interval))
}

// Stop halts the recurring timer and waits for an in-flight poll to finish.
// It is idempotent and safe to call at any time.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.stopCh = nil
	s.doneCh = nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)

	select {
	case <-doneCh:
	case <-ctx.Done():
		// poll finishes in background
	}
	s.log.Info("scheduler stopped")
}

// Apply swaps in a new configuration. If the service is running and the
// effective settings changed, the poll loop is restarted so the new
// interval and cadence take effect without a process restart.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	if cfg == s.cfg {
		s.mu.Unlock()
		return
	}
	s.cfg = cfg
	running := s.stopCh != nil
	s.mu.Unlock()

	if running {
		s.Stop(ctx)
		s.Start(ctx)
	}
	s.log.Info("scheduler config applied",
		logx.Duration("poll_interval", cfg.PollInterval),
		logx.Duration("cleanup_cadence", cfg.CleanupCadence))
}

func (s *Service) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in poll cycle", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	now := s.now()

	s.maybeCleanupLedger(ctx, now)

	due, err := s.st.GetSchedulesDue(ctx, now.Unix())
	if err != nil {
		s.log.Error("due-schedule query failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Debug("processing due schedules", logx.Int("count", len(due)))

	for i := range due {
		s.process(ctx, &due[i], now)
	}
}

// maybeCleanupLedger prunes revoked tokens once per cadence. Failures are
// logged and retried on the very next poll.
func (s *Service) maybeCleanupLedger(ctx context.Context, now time.Time) {
	if now.Sub(s.lastCleanup) < s.cfg.CleanupCadence {
		return
	}
	olderThan := now.Add(-s.cfg.RevocationRetention).Unix()
	removed, err := s.st.CleanupRevokedTokens(ctx, olderThan)
	if err != nil {
		s.log.Warn("revoked-token cleanup failed", logx.Err(err))
		return
	}
	s.lastCleanup = now
	if removed > 0 {
		s.log.Info("revoked tokens pruned", logx.Int64("removed", removed))
	}
}

// process handles one due schedule: render, dispatch, reschedule. Every
// failure is contained here; sibling schedules in the same cycle always run.
// The next occurrence is persisted regardless of delivery success, so a
// failed delivery is never retried for that occurrence.
func (s *Service) process(ctx context.Context, sch *store.Schedule, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic dispatching schedule",
				logx.String("schedule_id", sch.ID), logx.Any("panic", r))
		}
	}()

	body, err := s.producer.Produce(sch.Endpoint, sch.MessageType, sch.Recipient, sch.FromName)
	if err != nil {
		s.log.Error("message render failed",
			logx.String("schedule_id", sch.ID), logx.Err(err))
	} else if !s.dispatch(ctx, sch, body, now) {
		s.log.Warn("delivery failed",
			logx.String("schedule_id", sch.ID),
			logx.String("method", sch.DeliveryMethod))
	}

	next, ok := s.crons.NextRun(sch.Cron, now)
	if !ok {
		// The schedule keeps its stale next_run and will be reported due on
		// every poll until the expression is fixed or the schedule deleted.
		s.log.Warn("cron expression no longer parses; schedule stays due",
			logx.String("schedule_id", sch.ID), logx.String("cron", sch.Cron))
		return
	}
	if err := s.st.UpdateScheduleNextRun(ctx, sch.ID, next); err != nil {
		s.log.Error("failed to persist next run",
			logx.String("schedule_id", sch.ID), logx.Err(err))
	}
}

func (s *Service) dispatch(ctx context.Context, sch *store.Schedule, body string, now time.Time) bool {
	switch sch.DeliveryMethod {
	case store.DeliveryWebhook:
		payload := delivery.Payload{
			Recipient:   sch.Recipient,
			Message:     body,
			Endpoint:    sch.Endpoint,
			MessageType: sch.MessageType,
			From:        sch.FromName,
			Timestamp:   now.Unix(),
		}
		return s.webhook.SendMessage(ctx, sch.WebhookURL, payload, sch.WebhookSecret)
	case store.DeliveryEmail:
		return s.email.SendMessage(ctx, sch.RecipientEmail, sch.Recipient, body)
	default:
		s.log.Error("unknown delivery method",
			logx.String("schedule_id", sch.ID),
			logx.String("method", sch.DeliveryMethod))
		return false
	}
}
