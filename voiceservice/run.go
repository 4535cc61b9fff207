package voiceservice

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/api"
	"github.com/paul-bouzian/saycal/internal/assistant"
	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/billing"
	"github.com/paul-bouzian/saycal/internal/calendar"
	"github.com/paul-bouzian/saycal/internal/config"
	"github.com/paul-bouzian/saycal/internal/health"
	"github.com/paul-bouzian/saycal/internal/logger"
	"github.com/paul-bouzian/saycal/internal/metrics"
	"github.com/paul-bouzian/saycal/internal/notify"
	"github.com/paul-bouzian/saycal/internal/outbox"
	"github.com/paul-bouzian/saycal/internal/quota"
	"github.com/paul-bouzian/saycal/internal/services"
	"github.com/paul-bouzian/saycal/internal/store"
	"github.com/paul-bouzian/saycal/internal/store/postgres"
	"github.com/paul-bouzian/saycal/internal/store/sqlite"
	"github.com/paul-bouzian/saycal/internal/transcribe"
	"github.com/paul-bouzian/saycal/internal/voice"
)

// Run starts the SayCal HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("saycal-server")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("deepgram_model", cfg.DeepgramModel).
		Str("gemini_model", cfg.GeminiModel).
		Msg("SayCal server starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	db, st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()
	deps, err := initDependencies(ctx, cfg, log, db, st, m)
	if err != nil {
		return err
	}

	svcHealth := startHealthCheckers(ctx, cfg, log, st)
	deps.Health = svcHealth
	router := api.NewRouter(*deps)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := svcHealth.WaitHealthy(ctx, startupHealthTimeout(cfg)); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// openStore connects the configured driver and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.OpenWithRetry(ctx, cfg.PostgresDSN, 30*time.Second)
		if err != nil {
			log.Error().Stack().Err(err).Msg("Postgres unavailable")
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return db, postgres.NewWithDB(db), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Error().Stack().Err(err).Str("path", cfg.SQLitePath).Msg("SQLite unavailable")
			return nil, nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("sqlite migrate: %w", err)
		}
		return db, sqlite.New(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// initDependencies constructs the providers and the voice pipeline; missing
// provider keys fail the startup.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger, db *sql.DB, st store.Store, m *metrics.Metrics) (*api.Deps, error) {
	authn, err := auth.New(cfg.AuthJWTSecret, cfg.AuthDevMode)
	if err != nil {
		return nil, err
	}
	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("SAYCAL_DEEPGRAM_API_KEY is required")
	}
	dg := transcribe.NewDeepgram(transcribe.DeepgramOptions{
		APIKey:   cfg.DeepgramAPIKey,
		BaseURL:  cfg.DeepgramBaseURL,
		Model:    cfg.DeepgramModel,
		Language: cfg.DeepgramLanguage,
	})
	transcriber := transcribe.NewAdapter(dg, int(cfg.MaxAudioBytes), log, m)

	llm, err := assistant.NewGemini(ctx, assistant.GeminiOptions{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	if err != nil {
		log.Error().Stack().Err(err).Msg("Language model unavailable")
		return nil, err
	}
	executor := calendar.NewExecutor(st.Events(), log, calendar.WithRecorder(m))
	orchestrator := assistant.New(llm, executor, assistant.Config{
		MaxSteps:   cfg.MaxToolSteps,
		MaxHistory: cfg.MaxHistoryTurns,
	}, log)

	gate := quota.NewGate(st.Subscriptions(), cfg.FreeMonthlyVoiceLimit, log, quota.WithRecorder(m))

	return &api.Deps{
		Auth:          authn,
		Events:        services.NewEventService(st),
		Subscriptions: services.NewSubscriptionService(st),
		Voice:         voice.NewService(gate, transcriber, orchestrator, m, log),
		Quota:         gate,
		Webhook:       newWebhook(cfg, log, db, st),
		Metrics:       m.Handler(),
		MaxAudioBytes: cfg.MaxAudioBytes,
		Location:      cfg.Location(),
		Log:           log,
	}, nil
}

// newWebhook returns nil when no webhook secret is configured, which leaves
// the route unregistered.
func newWebhook(cfg *config.Config, log zerolog.Logger, db *sql.DB, st store.Store) http.Handler {
	if cfg.StripeWebhookSecret == "" {
		log.Warn().Msg("SAYCAL_STRIPE_WEBHOOK_SECRET not set; billing webhook disabled")
		return nil
	}
	var customers billing.CustomerLookup
	if cfg.StripeSecretKey != "" {
		customers = billing.NewStripeCustomers(cfg.StripeSecretKey)
	}
	var notifier billing.Notifier
	switch {
	case cfg.DBDriver == "postgres":
		// Delivered by the outbox worker.
		notifier = outbox.NewEnqueuer(db)
	case cfg.ResendAPIKey != "":
		notifier = notify.NewMailer(cfg.ResendAPIKey, cfg.EmailFrom, log)
	}
	svc := billing.NewService(st.Subscriptions(), customers, notifier, log)
	return billing.NewWebhook(svc, cfg.StripeWebhookSecret, log)
}

func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store) *health.Service {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewHealthChecker(st, probeTimeout, log)
	go storeChecker.Start(ctx, interval)

	svcHealth := health.NewService(log, storeChecker)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

// newHTTPServer sizes WriteTimeout for a full voice round-trip: transcription
// plus several tool-calling steps.
func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is twice the probe interval, at least one minute.
func startupHealthTimeout(cfg *config.Config) time.Duration {
	d := 2 * time.Duration(cfg.HealthIntervalSeconds) * time.Second
	if d < time.Minute {
		return time.Minute
	}
	return d
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
