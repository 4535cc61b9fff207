package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenWithRetry keeps pinging until the database answers or ctx ends.
// Compose and container starts routinely race the service.
func OpenWithRetry(ctx context.Context, dsn string, maxElapsed time.Duration) (*sql.DB, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	var db *sql.DB
	op := func() error {
		var err error
		db, err = Open(dsn)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Events() store.Events               { return &events{db: s.db} }
func (s *pgStore) Subscriptions() store.Subscriptions { return &subscriptions{db: s.db} }

// HealthPing implements health.Pinger for Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Events ---
type events struct{ db *sql.DB }

const eventColumns = `id, user_id, title, description, start_at, end_at, color, created_via, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanEvent(r scanner) (*model.Event, error) {
	var e model.Event
	var via string
	if err := r.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &e.StartAt, &e.EndAt, &e.Color, &via, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.CreatedVia = model.Provenance(via)
	return &e, nil
}

func (ev *events) Create(ctx context.Context, m *model.Event) (*model.Event, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	via := m.CreatedVia
	if via == "" {
		via = model.CreatedViaManual
	}
	row := ev.db.QueryRowContext(ctx, `
        INSERT INTO events (id, user_id, title, description, start_at, end_at, color, created_via)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING `+eventColumns,
		id, m.UserID, m.Title, m.Description, m.StartAt, m.EndAt, m.Color, string(via))
	return scanEvent(row)
}

func (ev *events) Get(ctx context.Context, userID, eventID string) (*model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, model.ErrNotFound
	}
	row := ev.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1 AND user_id=$2`, eventID, userID)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (ev *events) ListByUser(ctx context.Context, userID string) ([]*model.Event, error) {
	rows, err := ev.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE user_id=$1 ORDER BY start_at`, userID)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (ev *events) ListRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Event, error) {
	rows, err := ev.db.QueryContext(ctx, `
        SELECT `+eventColumns+` FROM events
        WHERE user_id=$1 AND start_at <= $3 AND end_at >= $2
        ORDER BY start_at`, userID, from, to)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*model.Event, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (ev *events) Update(ctx context.Context, userID, eventID string, p model.EventPatch, now time.Time) (*model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, model.ErrNotFound
	}
	row := ev.db.QueryRowContext(ctx, `
        UPDATE events SET
            title       = COALESCE($3, title),
            description = CASE WHEN $4 THEN NULL ELSE COALESCE($5, description) END,
            start_at    = COALESCE($6, start_at),
            end_at      = COALESCE($7, end_at),
            color       = CASE WHEN $8 THEN NULL ELSE COALESCE($9, color) END,
            updated_at  = $10
        WHERE id=$1 AND user_id=$2
        RETURNING `+eventColumns,
		eventID, userID, p.Title, p.ClearDescription, p.Description, p.StartAt, p.EndAt, p.ClearColor, p.Color, now)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (ev *events) Delete(ctx context.Context, userID, eventID string) error {
	if _, err := uuid.Parse(eventID); err != nil {
		return model.ErrNotFound
	}
	res, err := ev.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1 AND user_id=$2`, eventID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Subscriptions ---
type subscriptions struct{ db *sql.DB }

const subscriptionColumns = `user_id, plan, stripe_customer_id, stripe_subscription_id, voice_usage_month, voice_usage_count, updated_at`

func scanSubscription(r scanner) (*model.Subscription, error) {
	var s model.Subscription
	var plan string
	if err := r.Scan(&s.UserID, &plan, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.VoiceUsagePeriod, &s.VoiceUsageCount, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Plan = model.Plan(plan)
	return &s, nil
}

const ensureSubscriptionSQL = `
    INSERT INTO user_subscriptions (user_id, plan, voice_usage_count)
    VALUES ($1, 'free', 0)
    ON CONFLICT (user_id) DO NOTHING`

func (sb *subscriptions) Ensure(ctx context.Context, userID string) (*model.Subscription, error) {
	if _, err := sb.db.ExecContext(ctx, ensureSubscriptionSQL, userID); err != nil {
		return nil, err
	}
	return sb.Get(ctx, userID)
}

func (sb *subscriptions) Get(ctx context.Context, userID string) (*model.Subscription, error) {
	row := sb.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id=$1`, userID)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (sb *subscriptions) FindByCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	row := sb.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE stripe_customer_id=$1`, customerID)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// consumeVoiceCallSQL is the whole admission decision: a single statement,
// so two concurrent requests can never both take the last unit. Under READ
// COMMITTED the second UPDATE re-evaluates the WHERE clause against the row
// the first one committed.
const consumeVoiceCallSQL = `
    UPDATE user_subscriptions SET
        voice_usage_count = CASE WHEN voice_usage_month IS DISTINCT FROM $2 THEN 1 ELSE voice_usage_count + 1 END,
        voice_usage_month = $2,
        updated_at        = now()
    WHERE user_id = $1
      AND plan <> 'premium'
      AND $3::int > 0
      AND (voice_usage_month IS DISTINCT FROM $2 OR voice_usage_count < $3::int)
    RETURNING voice_usage_count`

func (sb *subscriptions) ConsumeVoiceCall(ctx context.Context, userID, period string, limit int) (model.UsageResult, error) {
	if _, err := sb.db.ExecContext(ctx, ensureSubscriptionSQL, userID); err != nil {
		return model.UsageResult{}, err
	}
	var count int
	err := sb.db.QueryRowContext(ctx, consumeVoiceCallSQL, userID, period, limit).Scan(&count)
	switch {
	case err == nil:
		return model.UsageResult{Plan: model.PlanFree, Admitted: true, Count: count}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return model.UsageResult{}, err
	}
	// Zero rows: either premium or the allowance is spent.
	s, err := sb.Get(ctx, userID)
	if err != nil {
		return model.UsageResult{}, err
	}
	if s.Plan == model.PlanPremium {
		return model.UsageResult{Plan: model.PlanPremium, Admitted: true, Count: s.VoiceUsageCount}, nil
	}
	return model.UsageResult{Plan: s.Plan, Admitted: false, Count: s.VoiceUsageCount}, nil
}

func (sb *subscriptions) AttachCustomer(ctx context.Context, userID, customerID string) error {
	_, err := sb.db.ExecContext(ctx, `
        INSERT INTO user_subscriptions (user_id, stripe_customer_id, plan, voice_usage_count)
        VALUES ($1, $2, 'free', 0)
        ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = now()`,
		userID, customerID)
	return err
}

func (sb *subscriptions) UpdateByCustomer(ctx context.Context, customerID string, u store.SubscriptionUpdate) (int64, error) {
	res, err := sb.db.ExecContext(ctx, `
        UPDATE user_subscriptions SET
            plan = $2,
            stripe_subscription_id = CASE WHEN $3 THEN NULL ELSE COALESCE($4, stripe_subscription_id) END,
            updated_at = now()
        WHERE stripe_customer_id = $1`,
		customerID, string(u.Plan), u.ClearSubscriptionID, u.StripeSubscriptionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
