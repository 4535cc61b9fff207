package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the SayCal service.
// Environment variables are parsed with the SAYCAL_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"cloud"`

	// Derived or override driver
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	// Default IANA zone used to resolve dates when the client sends none.
	TimeZone string `envconfig:"TIMEZONE" default:"Europe/Paris"`

	// Voice policy
	FreeMonthlyVoiceLimit int   `envconfig:"FREE_MONTHLY_VOICE_LIMIT" default:"100"`
	MaxAudioBytes         int64 `envconfig:"MAX_AUDIO_BYTES" default:"5242880"`
	MaxToolSteps          int   `envconfig:"MAX_TOOL_STEPS" default:"8"`
	MaxHistoryTurns       int   `envconfig:"MAX_HISTORY_TURNS" default:"20"`

	// Speech-to-text
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramBaseURL  string `envconfig:"DEEPGRAM_BASE_URL" default:"https://api.deepgram.com"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"fr"`

	// Language model
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	// Billing and email
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" default:""`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" default:""`
	ResendAPIKey        string `envconfig:"RESEND_API_KEY" default:""`
	EmailFrom           string `envconfig:"EMAIL_FROM" default:"SayCal <billing@saycal.app>"`

	// Auth
	AuthJWTSecret string `envconfig:"AUTH_JWT_SECRET" default:""`
	AuthDevMode   bool   `envconfig:"AUTH_DEV_MODE" default:"false"`

	// Background loops
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	OutboxIntervalSeconds     int `envconfig:"OUTBOX_INTERVAL_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "cloud":
		defaultDB = "postgres"
	case "local":
		defaultDB = "sqlite"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.DBDriver == "sqlite" && c.SQLitePath == "" {
		c.SQLitePath = "saycal.db"
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}
	if c.FreeMonthlyVoiceLimit < 0 {
		return fmt.Errorf("FREE_MONTHLY_VOICE_LIMIT must be >= 0")
	}
	if c.MaxToolSteps <= 0 {
		return fmt.Errorf("MAX_TOOL_STEPS must be > 0")
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: SAYCAL_POSTGRES_DSN, SAYCAL_HTTP_PORT
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SAYCAL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("timezone", cfg.TimeZone).
		Int("free_monthly_voice_limit", cfg.FreeMonthlyVoiceLimit).
		Str("postgres_dsn_present", present(cfg.PostgresDSN)).
		Str("deepgram_key_present", present(cfg.DeepgramAPIKey)).
		Str("gemini_key_present", present(cfg.GeminiAPIKey)).
		Str("stripe_key_present", present(cfg.StripeSecretKey)).
		Bool("auth_dev_mode", cfg.AuthDevMode).
		Msg("Configuration loaded")

	return &cfg, nil
}

func present(s string) string {
	if s != "" {
		return "true"
	}
	return "false"
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		BuildTarget: "local",
		DBDriver:    "sqlite",
		SQLitePath:  ":memory:",
		HTTPPort:    8080,
		TimeZone:    "Europe/Paris",
	}

	cfg.FreeMonthlyVoiceLimit = 100
	cfg.MaxAudioBytes = 5 << 20
	cfg.MaxToolSteps = 8
	cfg.MaxHistoryTurns = 20

	cfg.DeepgramBaseURL = "http://localhost:0"
	cfg.DeepgramModel = "nova-2"
	cfg.DeepgramLanguage = "fr"
	cfg.GeminiModel = "gemini-2.0-flash"

	cfg.AuthDevMode = true
	cfg.HealthIntervalSeconds = 1
	cfg.HealthProbeTimeoutSeconds = 1
	cfg.OutboxIntervalSeconds = 1

	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Location returns the default time zone. ResolveDefaults has validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
