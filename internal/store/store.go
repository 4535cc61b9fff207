package store

import (
	"context"
	"time"

	"github.com/paul-bouzian/saycal/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Events() Events
	Subscriptions() Subscriptions
}

// Events is scoped by owner on every call; an event id alone never
// addresses a row.
type Events interface {
	Create(ctx context.Context, e *model.Event) (*model.Event, error)
	Get(ctx context.Context, userID, eventID string) (*model.Event, error)
	// ListByUser returns all events of the user ordered by start.
	ListByUser(ctx context.Context, userID string) ([]*model.Event, error)
	// ListRange returns events overlapping [from, to] ordered by start.
	ListRange(ctx context.Context, userID string, from, to time.Time) ([]*model.Event, error)
	Update(ctx context.Context, userID, eventID string, p model.EventPatch, now time.Time) (*model.Event, error)
	Delete(ctx context.Context, userID, eventID string) error
}

type Subscriptions interface {
	// Ensure inserts a free row when absent (conflicts ignored) and returns the row.
	Ensure(ctx context.Context, userID string) (*model.Subscription, error)
	Get(ctx context.Context, userID string) (*model.Subscription, error)
	// ConsumeVoiceCall atomically admits one call for period under limit.
	// Premium rows are admitted without touching the counter.
	ConsumeVoiceCall(ctx context.Context, userID, period string, limit int) (model.UsageResult, error)
	AttachCustomer(ctx context.Context, userID, customerID string) error
	// UpdateByCustomer applies a billing transition and reports affected rows.
	UpdateByCustomer(ctx context.Context, customerID string, u SubscriptionUpdate) (int64, error)
	// FindByCustomer resolves the user owning a billing customer.
	FindByCustomer(ctx context.Context, customerID string) (*model.Subscription, error)
}

// SubscriptionUpdate is a billing-driven plan transition.
type SubscriptionUpdate struct {
	Plan                 model.Plan
	StripeSubscriptionID *string
	ClearSubscriptionID  bool
}
