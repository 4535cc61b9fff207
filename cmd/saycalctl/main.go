package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/store"
	"github.com/paul-bouzian/saycal/internal/store/postgres"
	"github.com/paul-bouzian/saycal/internal/store/sqlite"
)

var (
	apiFlag    string
	tokenFlag  string
	driverFlag string
	dsnFlag    string
	rootCmd    = &cobra.Command{
		Use:   "saycalctl",
		Short: "Operate a SayCal deployment and talk to it",
	}
)

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", envOr("SAYCAL_API_URL", "http://localhost:8080"), "SayCal service base URL")
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", envOr("SAYCAL_TOKEN", auth.LocalDevAPIKey), "Bearer token (defaults to the dev key)")
	rootCmd.PersistentFlags().StringVar(&driverFlag, "db-driver", envOr("SAYCAL_DB_DRIVER", "sqlite"), "Database driver: sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Postgres DSN or SQLite path (defaults to SAYCAL_POSTGRES_DSN / SAYCAL_SQLITE_PATH)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// database is an opened store plus its migration provider.
type database struct {
	db       *sql.DB
	store    store.Store
	migrator *goose.Provider
}

func openDatabase(ctx context.Context, driver, dsn string) (*database, error) {
	var (
		db  *sql.DB
		st  store.Store
		err error
	)
	newMigrator := sqlite.NewMigrator
	switch driver {
	case "postgres":
		if dsn == "" {
			dsn = os.Getenv("SAYCAL_POSTGRES_DSN")
		}
		if db, err = postgres.OpenWithRetry(ctx, dsn, 10*time.Second); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st = postgres.NewWithDB(db)
		newMigrator = postgres.NewMigrator
	case "sqlite":
		if dsn == "" {
			dsn = envOr("SAYCAL_SQLITE_PATH", "saycal.db")
		}
		if db, err = sqlite.Open(dsn); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		st = sqlite.New(db)
	default:
		return nil, fmt.Errorf("unsupported --db-driver %q", driver)
	}
	p, err := newMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{db: db, store: st, migrator: p}, nil
}

func (d *database) Close() error { return d.db.Close() }

// withDatabase opens the configured database for the duration of fn.
func withDatabase(ctx context.Context, fn func(*database) error) error {
	d, err := openDatabase(ctx, driverFlag, dsnFlag)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}
