package api

import (
	"net/http"

	"github.com/paul-bouzian/saycal/internal/api/respond"
	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/services"
)

type BillingHandler struct {
	svc *services.SubscriptionService
}

func NewBillingHandler(svc *services.SubscriptionService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

// GetPlan GET /api/billing/plan
func (h *BillingHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	plan, err := h.svc.Plan(r.Context(), userID)
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"plan": string(plan)})
}

// GetSubscription GET /api/billing/subscription
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	info, err := h.svc.Info(r.Context(), userID)
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, info)
}
