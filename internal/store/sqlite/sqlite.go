package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// New returns a store over an opened and migrated SQLite database.
// Timestamps are stored as unix milliseconds.
func New(db *sql.DB) store.Store { return &liteStore{db: db, now: time.Now} }

type liteStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *liteStore) Events() store.Events { return &events{db: s.db, now: s.now} }
func (s *liteStore) Subscriptions() store.Subscriptions {
	return &subscriptions{db: s.db, now: s.now}
}

func (s *liteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func ms(t time.Time) int64 { return t.UnixMilli() }

func msPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

type scanner interface{ Scan(dest ...any) error }

// --- Events ---
type events struct {
	db  *sql.DB
	now func() time.Time
}

const eventColumns = `id, user_id, title, description, start_at, end_at, color, created_via, created_at, updated_at`

func scanEvent(r scanner) (*model.Event, error) {
	var e model.Event
	var via string
	var start, end, created, updated int64
	if err := r.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &start, &end, &e.Color, &via, &created, &updated); err != nil {
		return nil, err
	}
	e.StartAt, e.EndAt = fromMS(start), fromMS(end)
	e.CreatedAt, e.UpdatedAt = fromMS(created), fromMS(updated)
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
	now := ms(ev.now())
	row := ev.db.QueryRowContext(ctx, `
        INSERT INTO events (id, user_id, title, description, start_at, end_at, color, created_via, created_at, updated_at)
        VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?9)
        RETURNING `+eventColumns,
		id, m.UserID, m.Title, m.Description, ms(m.StartAt), ms(m.EndAt), m.Color, string(via), now)
	return scanEvent(row)
}

func (ev *events) Get(ctx context.Context, userID, eventID string) (*model.Event, error) {
	row := ev.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=?1 AND user_id=?2`, eventID, userID)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (ev *events) ListByUser(ctx context.Context, userID string) ([]*model.Event, error) {
	rows, err := ev.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE user_id=?1 ORDER BY start_at`, userID)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (ev *events) ListRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Event, error) {
	rows, err := ev.db.QueryContext(ctx, `
        SELECT `+eventColumns+` FROM events
        WHERE user_id=?1 AND start_at <= ?3 AND end_at >= ?2
        ORDER BY start_at`, userID, ms(from), ms(to))
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
	row := ev.db.QueryRowContext(ctx, `
        UPDATE events SET
            title       = COALESCE(?3, title),
            description = CASE WHEN ?4 THEN NULL ELSE COALESCE(?5, description) END,
            start_at    = COALESCE(?6, start_at),
            end_at      = COALESCE(?7, end_at),
            color       = CASE WHEN ?8 THEN NULL ELSE COALESCE(?9, color) END,
            updated_at  = ?10
        WHERE id=?1 AND user_id=?2
        RETURNING `+eventColumns,
		eventID, userID, p.Title, p.ClearDescription, p.Description, msPtr(p.StartAt), msPtr(p.EndAt), p.ClearColor, p.Color, ms(now))
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (ev *events) Delete(ctx context.Context, userID, eventID string) error {
	res, err := ev.db.ExecContext(ctx, `DELETE FROM events WHERE id=?1 AND user_id=?2`, eventID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Subscriptions ---
type subscriptions struct {
	db  *sql.DB
	now func() time.Time
}

const subscriptionColumns = `user_id, plan, stripe_customer_id, stripe_subscription_id, voice_usage_month, voice_usage_count, updated_at`

func scanSubscription(r scanner) (*model.Subscription, error) {
	var s model.Subscription
	var plan string
	var updated int64
	if err := r.Scan(&s.UserID, &plan, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.VoiceUsagePeriod, &s.VoiceUsageCount, &updated); err != nil {
		return nil, err
	}
	s.Plan = model.Plan(plan)
	s.UpdatedAt = fromMS(updated)
	return &s, nil
}

const ensureSubscriptionSQL = `
    INSERT INTO user_subscriptions (user_id, plan, voice_usage_count, updated_at)
    VALUES (?1, 'free', 0, ?2)
    ON CONFLICT (user_id) DO NOTHING`

func (sb *subscriptions) Ensure(ctx context.Context, userID string) (*model.Subscription, error) {
	if _, err := sb.db.ExecContext(ctx, ensureSubscriptionSQL, userID, ms(sb.now())); err != nil {
		return nil, err
	}
	return sb.Get(ctx, userID)
}

func (sb *subscriptions) Get(ctx context.Context, userID string) (*model.Subscription, error) {
	row := sb.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id=?1`, userID)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (sb *subscriptions) FindByCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	row := sb.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE stripe_customer_id=?1`, customerID)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Same single-statement admission as the Postgres store; SQLite spells
// IS DISTINCT FROM as IS NOT.
const consumeVoiceCallSQL = `
    UPDATE user_subscriptions SET
        voice_usage_count = CASE WHEN voice_usage_month IS NOT ?2 THEN 1 ELSE voice_usage_count + 1 END,
        voice_usage_month = ?2,
        updated_at        = ?4
    WHERE user_id = ?1
      AND plan <> 'premium'
      AND ?3 > 0
      AND (voice_usage_month IS NOT ?2 OR voice_usage_count < ?3)
    RETURNING voice_usage_count`

func (sb *subscriptions) ConsumeVoiceCall(ctx context.Context, userID, period string, limit int) (model.UsageResult, error) {
	now := ms(sb.now())
	if _, err := sb.db.ExecContext(ctx, ensureSubscriptionSQL, userID, now); err != nil {
		return model.UsageResult{}, err
	}
	var count int
	err := sb.db.QueryRowContext(ctx, consumeVoiceCallSQL, userID, period, limit, now).Scan(&count)
	switch {
	case err == nil:
		return model.UsageResult{Plan: model.PlanFree, Admitted: true, Count: count}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return model.UsageResult{}, err
	}
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
        INSERT INTO user_subscriptions (user_id, stripe_customer_id, plan, voice_usage_count, updated_at)
        VALUES (?1, ?2, 'free', 0, ?3)
        ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = excluded.stripe_customer_id, updated_at = excluded.updated_at`,
		userID, customerID, ms(sb.now()))
	return err
}

func (sb *subscriptions) UpdateByCustomer(ctx context.Context, customerID string, u store.SubscriptionUpdate) (int64, error) {
	res, err := sb.db.ExecContext(ctx, `
        UPDATE user_subscriptions SET
            plan = ?2,
            stripe_subscription_id = CASE WHEN ?3 THEN NULL ELSE COALESCE(?4, stripe_subscription_id) END,
            updated_at = ?5
        WHERE stripe_customer_id = ?1`,
		customerID, string(u.Plan), u.ClearSubscriptionID, u.StripeSubscriptionID, ms(sb.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
