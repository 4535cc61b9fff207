// Package quota admits voice requests against the caller's plan allowance.
//
// Policy: free plans get a fixed number of voice calls per calendar month
// (UTC); premium plans are unlimited. Admission and consumption happen in one
// conditional store statement.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// Unlimited is reported as Remaining for premium plans.
const Unlimited = -1

// Decision is the outcome of CheckAndIncrement.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Remaining int        `json:"remaining"`
	Limit     int        `json:"limit"`
	Plan      model.Plan `json:"plan"`
}

// Quota is the display-only view returned by Peek.
type Quota struct {
	Plan      model.Plan `json:"plan"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	Period    string     `json:"period"`
}

// Recorder observes gate decisions (metrics).
type Recorder interface {
	QuotaDecision(plan model.Plan, allowed bool)
}

type Gate struct {
	subs  store.Subscriptions
	limit int
	now   func() time.Time
	rec   Recorder
	log   zerolog.Logger
}

type Option func(*Gate)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

// WithRecorder attaches a decision observer.
func WithRecorder(r Recorder) Option { return func(g *Gate) { g.rec = r } }

func NewGate(subs store.Subscriptions, monthlyLimit int, log zerolog.Logger, opts ...Option) *Gate {
	g := &Gate{subs: subs, limit: monthlyLimit, now: time.Now, log: log}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Period returns the usage period key for t.
func Period(t time.Time) string { return t.UTC().Format("2006-01") }

// CheckAndIncrement consumes one voice call for userID or denies with
// quota_exhausted.
func (g *Gate) CheckAndIncrement(ctx context.Context, userID string) (Decision, error) {
	res, err := g.subs.ConsumeVoiceCall(ctx, userID, Period(g.now()), g.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("consume voice call: %w", err)
	}
	d := Decision{Allowed: res.Admitted, Limit: g.limit, Plan: res.Plan}
	switch {
	case res.Plan == model.PlanPremium:
		d.Remaining, d.Limit = Unlimited, Unlimited
	default:
		d.Remaining = max(g.limit-res.Count, 0)
	}
	if g.rec != nil {
		g.rec.QuotaDecision(d.Plan, d.Allowed)
	}
	g.log.Debug().
		Str("stage", "quota").
		Str("user_id", userID).
		Bool("allowed", d.Allowed).
		Int("remaining", d.Remaining).
		Msg("quota decision")
	if !d.Allowed {
		return d, model.NewVoiceError(model.ReasonQuotaExhausted, errors.New("monthly voice allowance used up"))
	}
	return d, nil
}

// Peek reports the caller's allowance without consuming or creating anything.
func (g *Gate) Peek(ctx context.Context, userID string) (Quota, error) {
	period := Period(g.now())
	q := Quota{Plan: model.PlanFree, Limit: g.limit, Remaining: g.limit, Period: period}
	sub, err := g.subs.Get(ctx, userID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return q, nil
	case err != nil:
		return Quota{}, fmt.Errorf("get subscription: %w", err)
	}
	q.Plan = sub.Plan
	if sub.Plan == model.PlanPremium {
		q.Limit, q.Remaining = Unlimited, Unlimited
		return q, nil
	}
	if sub.VoiceUsagePeriod != nil && *sub.VoiceUsagePeriod == period {
		q.Used = sub.VoiceUsageCount
		q.Remaining = max(g.limit-sub.VoiceUsageCount, 0)
	}
	return q, nil
}
