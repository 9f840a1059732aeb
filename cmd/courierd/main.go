package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"courier/internal/config"
	"courier/internal/cronx"
	"courier/internal/delivery"
	"courier/internal/message"
	"courier/internal/scheduler"
	"courier/internal/store"
	"courier/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./courier.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	acquire, err := config.ParseDurationField("storage.acquire_timeout", cfg.Storage.AcquireTimeout)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{
		DSN:            cfg.Storage.DSN,
		EncryptionKey:  cfg.Storage.EncryptionKey,
		BusyTimeout:    busy,
		AcquireTimeout: acquire,
	}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	poll, retention, cadence, err := cfg.SchedulerDurations()
	if err != nil {
		return err
	}

	email, webhook := buildSenders(cfg, log)
	svc := scheduler.New(scheduler.Config{
		PollInterval:        poll,
		RevocationRetention: retention,
		CleanupCadence:      cadence,
	}, st, message.NewTemplateProducer(), email, webhook, cronx.New(), log)

	svc.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		svc.Stop(stopCtx)
	}()

	// Re-apply logging and scheduler settings on config file changes.
	// Storage settings require a restart.
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() { _ = mgr.Watch(ctx) }()
	go func() {
		for next := range updates {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File: logx.FileConfig{
					Enabled: next.Logging.File.Enabled,
					Path:    next.Logging.File.Path,
				},
			})
			poll, retention, cadence, err := next.SchedulerDurations()
			if err != nil {
				log.Warn("scheduler config not applied", logx.Err(err))
				continue
			}
			svc.Apply(ctx, scheduler.Config{
				PollInterval:        poll,
				RevocationRetention: retention,
				CleanupCadence:      cadence,
			})
			log.Info("config re-applied")
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("courierd running", logx.String("config", cfgPath))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

func buildSenders(cfg *config.Config, log logx.Logger) (delivery.EmailSender, delivery.WebhookSender) {
	var email delivery.EmailSender
	if smtp := cfg.Delivery.SMTP; smtp != nil && smtp.Enabled {
		email = delivery.NewSMTPEmailSender(delivery.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
		}, log)
	} else {
		log.Warn("smtp not configured; email deliveries go to the console")
		email = delivery.NewConsoleEmailSender(log)
	}

	var webhook delivery.WebhookSender
	if wh := cfg.Delivery.Webhook; wh != nil && wh.Enabled {
		timeout, err := config.ParseDurationField("delivery.webhook.timeout", wh.Timeout)
		if err != nil {
			log.Warn("invalid webhook timeout; using default", logx.Err(err))
			timeout = 0
		}
		webhook = delivery.NewHTTPWebhookSender(delivery.WebhookConfig{
			Timeout:    timeout,
			RatePerSec: wh.RatePerSec,
		}, log)
	} else {
		log.Warn("webhook sender not configured; webhook deliveries go to the console")
		webhook = delivery.NewConsoleWebhookSender(log)
	}
	return email, webhook
}
