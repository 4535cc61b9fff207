package quota

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
	"github.com/paul-bouzian/saycal/internal/store/sqlite"
)

func newSubs(t *testing.T) store.Subscriptions {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db))
	return sqlite.New(db).Subscriptions()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type countingRecorder struct{ allowed, denied int }

func (r *countingRecorder) QuotaDecision(_ model.Plan, allowed bool) {
	if allowed {
		r.allowed++
	} else {
		r.denied++
	}
}

func TestPeriod(t *testing.T) {
	paris, _ := time.LoadLocation("Europe/Paris")
	// 00:30 in Paris on Feb 1st is still January in UTC.
	assert.Equal(t, "2026-01", Period(time.Date(2026, 2, 1, 0, 30, 0, 0, paris)))
	assert.Equal(t, "2026-02", Period(time.Date(2026, 2, 1, 1, 30, 0, 0, time.UTC)))
}

func TestGate_AdmitsUntilLimitThenDenies(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	rec := &countingRecorder{}
	g := NewGate(newSubs(t), 2, zerolog.Nop(), WithClock(c.now), WithRecorder(rec))

	d, err := g.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 1, Limit: 2, Plan: model.PlanFree}, d)

	d, err = g.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Remaining)

	d, err = g.CheckAndIncrement(ctx, "u1")
	require.Error(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, model.ReasonQuotaExhausted, model.ReasonOf(err))
	assert.Equal(t, 2, rec.allowed)
	assert.Equal(t, 1, rec.denied)
}

func TestGate_RollsOverOnNewMonth(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)}
	g := NewGate(newSubs(t), 1, zerolog.Nop(), WithClock(c.now))

	_, err := g.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	_, err = g.CheckAndIncrement(ctx, "u1")
	require.Error(t, err)

	c.t = time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC)
	d, err := g.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestGate_PeekNeverMutates(t *testing.T) {
	ctx := context.Background()
	subs := newSubs(t)
	c := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	g := NewGate(subs, 5, zerolog.Nop(), WithClock(c.now))

	// Missing row: full allowance, and still no row afterwards.
	q, err := g.Peek(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 5, q.Remaining)
	_, err = subs.Get(ctx, "fresh")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = g.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		q, err = g.Peek(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, q.Used)
		assert.Equal(t, 4, q.Remaining)
	}
	sub, err := subs.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.VoiceUsageCount)

	// A stale period is shown as a full allowance without resetting the row.
	c.t = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	q, err = g.Peek(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, q.Remaining)
	sub, _ = subs.Get(ctx, "u1")
	assert.Equal(t, "2026-01", *sub.VoiceUsagePeriod)
}

func TestGate_PremiumUnlimited(t *testing.T) {
	ctx := context.Background()
	subs := newSubs(t)
	require.NoError(t, subs.AttachCustomer(ctx, "vip", "cus_vip"))
	_, err := subs.UpdateByCustomer(ctx, "cus_vip", store.SubscriptionUpdate{Plan: model.PlanPremium})
	require.NoError(t, err)

	g := NewGate(subs, 0, zerolog.Nop())
	d, err := g.CheckAndIncrement(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: Unlimited, Limit: Unlimited, Plan: model.PlanPremium}, d)

	q, err := g.Peek(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, Unlimited, q.Remaining)
}
