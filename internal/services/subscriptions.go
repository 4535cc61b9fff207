package services

import (
	"context"
	"errors"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

type SubscriptionService struct {
	store store.Store
}

func NewSubscriptionService(s store.Store) *SubscriptionService {
	return &SubscriptionService{store: s}
}

type SubscriptionInfo struct {
	Plan                 model.Plan `json:"plan"`
	StripeCustomerID     *string    `json:"stripeCustomerId"`
	StripeSubscriptionID *string    `json:"stripeSubscriptionId"`
}

// Plan reports free for users without an entitlement row.
func (s *SubscriptionService) Plan(ctx context.Context, userID string) (model.Plan, error) {
	info, err := s.Info(ctx, userID)
	if err != nil {
		return "", err
	}
	return info.Plan, nil
}

func (s *SubscriptionService) Info(ctx context.Context, userID string) (SubscriptionInfo, error) {
	sub, err := s.store.Subscriptions().Get(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return SubscriptionInfo{Plan: model.PlanFree}, nil
	}
	if err != nil {
		return SubscriptionInfo{}, err
	}
	return SubscriptionInfo{
		Plan:                 sub.Plan,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
	}, nil
}
