package api

import (
	"net/http"
	"time"

	"github.com/paul-bouzian/saycal/internal/api/respond"
)

// HealthReporter is satisfied by health.Service.
type HealthReporter interface {
	Healthy() bool
	Components() map[string]bool
}

type HealthHandler struct {
	svc HealthReporter
	now func() time.Time
}

func NewHealthHandler(svc HealthReporter) *HealthHandler {
	return &HealthHandler{svc: svc, now: time.Now}
}

type healthResponse struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
	Timestamp  string          `json:"timestamp"`
}

// CheckHealth GET /api/health
//
// The status code is always 200; the body carries healthy or unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "unhealthy", Timestamp: h.now().UTC().Format(time.RFC3339)}
	if h.svc != nil {
		if h.svc.Healthy() {
			resp.Status = "healthy"
		}
		resp.Components = h.svc.Components()
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}
