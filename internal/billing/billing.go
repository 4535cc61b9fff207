// Package billing applies payment-provider events to user entitlements.
package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// Notifier delivers billing notices to the customer.
type Notifier interface {
	PaymentFailed(ctx context.Context, email string) error
}

// CustomerLookup resolves the contact address of a billing customer.
// An empty email with a nil error means the customer is gone or has none.
type CustomerLookup interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// Service maps checkout and subscription lifecycle events to plan changes.
// Rows are matched by billing customer id; an unknown customer changes nothing.
type Service struct {
	subs      store.Subscriptions
	customers CustomerLookup
	notifier  Notifier
	log       zerolog.Logger
}

func NewService(subs store.Subscriptions, customers CustomerLookup, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{subs: subs, customers: customers, notifier: notifier, log: log}
}

// AttachCustomer links a billing customer to the user, creating the row if needed.
func (s *Service) AttachCustomer(ctx context.Context, userID, customerID string) error {
	if userID == "" || customerID == "" {
		return fmt.Errorf("%w: user and customer ids are required", model.ErrValidation)
	}
	return s.subs.AttachCustomer(ctx, userID, customerID)
}

func (s *Service) CheckoutCompleted(ctx context.Context, customerID, subscriptionID string) error {
	if customerID == "" || subscriptionID == "" {
		s.log.Warn().Str("customer_id", customerID).Msg("checkout completed without customer or subscription")
		return nil
	}
	return s.apply(ctx, "checkout.completed", customerID, store.SubscriptionUpdate{
		Plan:                 model.PlanPremium,
		StripeSubscriptionID: &subscriptionID,
	})
}

// SubscriptionUpdated grants premium only while the subscription is active or trialing.
func (s *Service) SubscriptionUpdated(ctx context.Context, customerID, subscriptionID, status string) error {
	plan := model.PlanFree
	if status == "active" || status == "trialing" {
		plan = model.PlanPremium
	}
	return s.apply(ctx, "subscription.updated", customerID, store.SubscriptionUpdate{
		Plan:                 plan,
		StripeSubscriptionID: &subscriptionID,
	})
}

func (s *Service) SubscriptionDeleted(ctx context.Context, customerID string) error {
	return s.apply(ctx, "subscription.deleted", customerID, store.SubscriptionUpdate{
		Plan:                model.PlanFree,
		ClearSubscriptionID: true,
	})
}

// PaymentFailed notifies the customer by email. Delivery problems are logged,
// never returned, so the provider does not redeliver the event for them.
func (s *Service) PaymentFailed(ctx context.Context, customerID string) error {
	if customerID == "" || s.customers == nil || s.notifier == nil {
		return nil
	}
	email, err := s.customers.CustomerEmail(ctx, customerID)
	if err != nil {
		s.log.Error().Err(err).Str("customer_id", customerID).Msg("payment failed: customer lookup")
		return nil
	}
	if email == "" {
		s.log.Info().Str("customer_id", customerID).Msg("payment failed: no email on customer")
		return nil
	}
	if err := s.notifier.PaymentFailed(ctx, email); err != nil {
		s.log.Error().Err(err).Str("customer_id", customerID).Msg("payment failed: notify")
	}
	return nil
}

func (s *Service) apply(ctx context.Context, transition, customerID string, u store.SubscriptionUpdate) error {
	if customerID == "" {
		return nil
	}
	n, err := s.subs.UpdateByCustomer(ctx, customerID, u)
	if err != nil {
		return fmt.Errorf("%s: %w", transition, err)
	}
	if n == 0 {
		s.log.Warn().Str("transition", transition).Str("customer_id", customerID).Msg("no entitlement row for customer")
		return nil
	}
	s.log.Info().Str("transition", transition).Str("customer_id", customerID).Str("plan", string(u.Plan)).Msg("entitlement updated")
	return nil
}
