package outboxworker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paul-bouzian/saycal/internal/config"
	"github.com/paul-bouzian/saycal/internal/logger"
	"github.com/paul-bouzian/saycal/internal/notify"
	"github.com/paul-bouzian/saycal/internal/outbox"
	"github.com/paul-bouzian/saycal/internal/store/postgres"
)

// Run starts the outbox worker and blocks until shutdown or error.
func Run() error {
	log := logger.New("outbox-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("config")
		return err
	}
	if cfg.DBDriver != "postgres" {
		return fmt.Errorf("outbox worker requires postgres, got DB_DRIVER=%s", cfg.DBDriver)
	}
	if cfg.ResendAPIKey == "" {
		return errors.New("SAYCAL_RESEND_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenWithRetry(ctx, cfg.PostgresDSN, 30*time.Second)
	if err != nil {
		log.Error().Err(err).Msg("postgres open")
		return err
	}
	defer db.Close()

	mailer := notify.NewMailer(cfg.ResendAPIKey, cfg.EmailFrom, log)
	w := outbox.NewWorker(db, mailer, outbox.Config{
		BatchSize: 20,
		Interval:  time.Duration(cfg.OutboxIntervalSeconds) * time.Second,
	}, log)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("outbox worker exit")
		return err
	}
	return nil
}
