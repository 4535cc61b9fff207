package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, migrated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("EventsCRUD", func(t *testing.T) { testEventsCRUD(t, makeStore(t)) })
	t.Run("EventsOwnership", func(t *testing.T) { testEventsOwnership(t, makeStore(t)) })
	t.Run("EventsRange", func(t *testing.T) { testEventsRange(t, makeStore(t)) })
	t.Run("QuotaLimit", func(t *testing.T) { testQuotaLimit(t, makeStore(t)) })
	t.Run("QuotaConcurrent", func(t *testing.T) { testQuotaConcurrent(t, makeStore(t)) })
	t.Run("QuotaRollover", func(t *testing.T) { testQuotaRollover(t, makeStore(t)) })
	t.Run("QuotaPremium", func(t *testing.T) { testQuotaPremium(t, makeStore(t)) })
	t.Run("BillingTransitions", func(t *testing.T) { testBillingTransitions(t, makeStore(t)) })
}

func newUser() string { return "u-" + uuid.New().String() }

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }

func testEventsCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()

	e, err := s.Events().Create(ctx, &model.Event{
		UserID:     userID,
		Title:      "Dentist",
		StartAt:    at("2026-01-16T17:00:00Z"),
		EndAt:      at("2026-01-16T18:00:00Z"),
		Color:      strPtr("#B552D9"),
		CreatedVia: model.CreatedViaVoice,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if e.ID == "" || e.CreatedVia != model.CreatedViaVoice {
		t.Fatalf("CreateEvent: unexpected %+v", e)
	}
	if !e.StartAt.Equal(at("2026-01-16T17:00:00Z")) || !e.EndAt.Equal(at("2026-01-16T18:00:00Z")) {
		t.Fatalf("CreateEvent: times not preserved: %v %v", e.StartAt, e.EndAt)
	}

	got, err := s.Events().Get(ctx, userID, e.ID)
	if err != nil || got.Title != "Dentist" || got.Color == nil || *got.Color != "#B552D9" {
		t.Fatalf("GetEvent: got=%+v err=%v", got, err)
	}

	later := e.UpdatedAt.Add(time.Minute)
	newStart := at("2026-01-17T09:00:00Z")
	newEnd := at("2026-01-17T10:00:00Z")
	up, err := s.Events().Update(ctx, userID, e.ID, model.EventPatch{
		Title:      strPtr("Dentist (moved)"),
		StartAt:    &newStart,
		EndAt:      &newEnd,
		ClearColor: true,
	}, later)
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if up.Title != "Dentist (moved)" || !up.StartAt.Equal(newStart) || up.Color != nil {
		t.Fatalf("UpdateEvent: unexpected %+v", up)
	}
	if !up.UpdatedAt.Equal(later.Truncate(time.Millisecond)) && !up.UpdatedAt.Equal(later) {
		t.Fatalf("UpdateEvent: updated_at not bumped: %v", up.UpdatedAt)
	}

	// Untouched fields survive an empty patch.
	same, err := s.Events().Update(ctx, userID, e.ID, model.EventPatch{}, later)
	if err != nil || same.Title != "Dentist (moved)" || !same.EndAt.Equal(newEnd) {
		t.Fatalf("UpdateEvent(empty): got=%+v err=%v", same, err)
	}

	lst, err := s.Events().ListByUser(ctx, userID)
	if err != nil || len(lst) != 1 {
		t.Fatalf("ListByUser: n=%d err=%v", len(lst), err)
	}

	if err := s.Events().Delete(ctx, userID, e.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, err := s.Events().Get(ctx, userID, e.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetEvent after delete: want ErrNotFound, got %v", err)
	}
	if err := s.Events().Delete(ctx, userID, e.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteEvent twice: want ErrNotFound, got %v", err)
	}
}

func testEventsOwnership(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, bob := newUser(), newUser()

	e, err := s.Events().Create(ctx, &model.Event{
		UserID: alice, Title: "Standup",
		StartAt: at("2026-01-16T09:00:00Z"), EndAt: at("2026-01-16T09:15:00Z"),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if _, err := s.Events().Get(ctx, bob, e.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user Get: want ErrNotFound, got %v", err)
	}
	if _, err := s.Events().Update(ctx, bob, e.ID, model.EventPatch{Title: strPtr("hijacked")}, time.Now()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user Update: want ErrNotFound, got %v", err)
	}
	if err := s.Events().Delete(ctx, bob, e.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user Delete: want ErrNotFound, got %v", err)
	}
	if lst, _ := s.Events().ListByUser(ctx, bob); len(lst) != 0 {
		t.Fatalf("cross-user List leaked %d events", len(lst))
	}
	got, err := s.Events().Get(ctx, alice, e.ID)
	if err != nil || got.Title != "Standup" {
		t.Fatalf("owner Get after foreign writes: got=%+v err=%v", got, err)
	}
}

func testEventsRange(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	mk := func(title, start, end string) {
		if _, err := s.Events().Create(ctx, &model.Event{UserID: userID, Title: title, StartAt: at(start), EndAt: at(end)}); err != nil {
			t.Fatalf("CreateEvent %s: %v", title, err)
		}
	}
	mk("before", "2026-01-14T08:00:00Z", "2026-01-14T09:00:00Z")
	mk("overnight", "2026-01-14T23:00:00Z", "2026-01-15T01:00:00Z")
	mk("inside", "2026-01-15T12:00:00Z", "2026-01-15T13:00:00Z")
	mk("after", "2026-01-16T08:00:00Z", "2026-01-16T09:00:00Z")

	lst, err := s.Events().ListRange(ctx, userID, at("2026-01-15T00:00:00Z"), at("2026-01-15T23:59:59Z"))
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(lst) != 2 || lst[0].Title != "overnight" || lst[1].Title != "inside" {
		titles := make([]string, 0, len(lst))
		for _, e := range lst {
			titles = append(titles, e.Title)
		}
		t.Fatalf("ListRange: got %v", titles)
	}
}

func testQuotaLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()

	for i := 1; i <= 3; i++ {
		res, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2026-01", 3)
		if err != nil || !res.Admitted || res.Count != i {
			t.Fatalf("ConsumeVoiceCall #%d: res=%+v err=%v", i, res, err)
		}
	}
	res, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2026-01", 3)
	if err != nil || res.Admitted {
		t.Fatalf("ConsumeVoiceCall over limit: res=%+v err=%v", res, err)
	}
	sub, err := s.Subscriptions().Get(ctx, userID)
	if err != nil || sub.VoiceUsageCount != 3 {
		t.Fatalf("denied call must not count: sub=%+v err=%v", sub, err)
	}

	// A zero allowance admits nothing, even in a fresh period.
	other := newUser()
	if res, err := s.Subscriptions().ConsumeVoiceCall(ctx, other, "2026-01", 0); err != nil || res.Admitted {
		t.Fatalf("zero limit admitted: res=%+v err=%v", res, err)
	}
}

func testQuotaConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	const limit, used, callers = 10, 7, 12 // 3 remaining

	for i := 0; i < used; i++ {
		if _, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2026-01", limit); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, denied := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2026-01", limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("concurrent ConsumeVoiceCall: %v", err)
				return
			}
			if res.Admitted {
				admitted++
			} else {
				denied++
			}
		}()
	}
	wg.Wait()

	if admitted != limit-used || denied != callers-(limit-used) {
		t.Fatalf("admitted=%d denied=%d, want %d/%d", admitted, denied, limit-used, callers-(limit-used))
	}
	sub, err := s.Subscriptions().Get(ctx, userID)
	if err != nil || sub.VoiceUsageCount != limit {
		t.Fatalf("final count: sub=%+v err=%v", sub, err)
	}
}

func testQuotaRollover(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()

	for i := 0; i < 5; i++ {
		if _, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2025-12", 5); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if res, _ := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2025-12", 5); res.Admitted {
		t.Fatalf("exhausted period admitted")
	}

	res, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2026-01", 5)
	if err != nil || !res.Admitted || res.Count != 1 {
		t.Fatalf("rollover: res=%+v err=%v", res, err)
	}
	sub, err := s.Subscriptions().Get(ctx, userID)
	if err != nil || sub.VoiceUsagePeriod == nil || *sub.VoiceUsagePeriod != "2026-01" || sub.VoiceUsageCount != 1 {
		t.Fatalf("rollover row: sub=%+v err=%v", sub, err)
	}
}

func testQuotaPremium(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()

	if err := s.Subscriptions().AttachCustomer(ctx, userID, "cus_"+userID); err != nil {
		t.Fatalf("AttachCustomer: %v", err)
	}
	if _, err := s.Subscriptions().UpdateByCustomer(ctx, "cus_"+userID, store.SubscriptionUpdate{Plan: model.PlanPremium, StripeSubscriptionID: strPtr("sub_1")}); err != nil {
		t.Fatalf("UpdateByCustomer: %v", err)
	}
	for i := 0; i < 3; i++ {
		res, err := s.Subscriptions().ConsumeVoiceCall(ctx, userID, "2026-01", 1)
		if err != nil || !res.Admitted || res.Plan != model.PlanPremium {
			t.Fatalf("premium call #%d: res=%+v err=%v", i, res, err)
		}
	}
	sub, _ := s.Subscriptions().Get(ctx, userID)
	if sub.VoiceUsageCount != 0 {
		t.Fatalf("premium calls must not touch the counter, got %d", sub.VoiceUsageCount)
	}
}

func testBillingTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	cus := "cus_" + userID

	created, err := s.Subscriptions().Ensure(ctx, userID)
	if err != nil || created.Plan != model.PlanFree || created.StripeCustomerID != nil {
		t.Fatalf("Ensure: sub=%+v err=%v", created, err)
	}
	if _, err := s.Subscriptions().Ensure(ctx, userID); err != nil {
		t.Fatalf("Ensure twice: %v", err)
	}
	if err := s.Subscriptions().AttachCustomer(ctx, userID, cus); err != nil {
		t.Fatalf("AttachCustomer: %v", err)
	}
	if got, err := s.Subscriptions().FindByCustomer(ctx, cus); err != nil || got.UserID != userID {
		t.Fatalf("FindByCustomer: got=%+v err=%v", got, err)
	}

	n, err := s.Subscriptions().UpdateByCustomer(ctx, cus, store.SubscriptionUpdate{Plan: model.PlanPremium, StripeSubscriptionID: strPtr("sub_1")})
	if err != nil || n != 1 {
		t.Fatalf("UpdateByCustomer premium: n=%d err=%v", n, err)
	}
	// A status update without id keeps the stored subscription id.
	if _, err := s.Subscriptions().UpdateByCustomer(ctx, cus, store.SubscriptionUpdate{Plan: model.PlanPremium}); err != nil {
		t.Fatalf("UpdateByCustomer keep id: %v", err)
	}
	sub, _ := s.Subscriptions().Get(ctx, userID)
	if sub.Plan != model.PlanPremium || sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != "sub_1" {
		t.Fatalf("after premium: %+v", sub)
	}

	if _, err := s.Subscriptions().UpdateByCustomer(ctx, cus, store.SubscriptionUpdate{Plan: model.PlanFree, ClearSubscriptionID: true}); err != nil {
		t.Fatalf("UpdateByCustomer free: %v", err)
	}
	sub, _ = s.Subscriptions().Get(ctx, userID)
	if sub.Plan != model.PlanFree || sub.StripeSubscriptionID != nil {
		t.Fatalf("after cancel: %+v", sub)
	}

	if n, err := s.Subscriptions().UpdateByCustomer(ctx, "cus_unknown", store.SubscriptionUpdate{Plan: model.PlanPremium}); err != nil || n != 0 {
		t.Fatalf("unknown customer: n=%d err=%v", n, err)
	}
	if _, err := s.Subscriptions().Get(ctx, newUser()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}
}
