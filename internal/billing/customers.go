package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// StripeCustomers looks customers up through the Stripe API.
type StripeCustomers struct {
	client *stripe.Client
}

func NewStripeCustomers(secretKey string) *StripeCustomers {
	return &StripeCustomers{client: stripe.NewClient(secretKey)}
}

func (c *StripeCustomers) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	cust, err := c.client.V1Customers.Retrieve(ctx, customerID, nil)
	if err != nil {
		return "", fmt.Errorf("retrieve customer %s: %w", customerID, err)
	}
	if cust.Deleted {
		return "", nil
	}
	return cust.Email, nil
}
