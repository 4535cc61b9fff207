package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const maxWebhookBody = 64 << 10

// Webhook verifies Stripe-signed deliveries and dispatches them to a Service.
type Webhook struct {
	svc    *Service
	secret string
	log    zerolog.Logger
}

func NewWebhook(svc *Service, secret string, log zerolog.Logger) *Webhook {
	return &Webhook{svc: svc, secret: secret, log: log}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing signature"})
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook signature verification failed")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
		return
	}

	if err := h.dispatch(r, event); err != nil {
		h.log.Error().Stack().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("webhook handler failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook handler failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Webhook) dispatch(r *http.Request, event stripe.Event) error {
	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := decodeObject(event, &cs); err != nil {
			return err
		}
		return h.svc.CheckoutCompleted(ctx, customerID(cs.Customer), subscriptionID(cs.Subscription))
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := decodeObject(event, &sub); err != nil {
			return err
		}
		return h.svc.SubscriptionUpdated(ctx, customerID(sub.Customer), sub.ID, string(sub.Status))
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := decodeObject(event, &sub); err != nil {
			return err
		}
		return h.svc.SubscriptionDeleted(ctx, customerID(sub.Customer))
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := decodeObject(event, &inv); err != nil {
			return err
		}
		return h.svc.PaymentFailed(ctx, customerID(inv.Customer))
	default:
		h.log.Debug().Str("type", string(event.Type)).Msg("unhandled webhook event")
		return nil
	}
}

func decodeObject(event stripe.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%s: empty event data", event.Type)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%s: decode object: %w", event.Type, err)
	}
	return nil
}

// Expandable references decode from a bare id or a full object; both set ID.
func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
