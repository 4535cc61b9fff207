package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/paul-bouzian/saycal/internal/api/respond"
	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/services"
)

// EventHandler is a thin HTTP transport over EventService. Every route acts
// on the authenticated caller's events only.
type EventHandler struct {
	svc *services.EventService
}

func NewEventHandler(svc *services.EventService) *EventHandler { return &EventHandler{svc: svc} }

type eventRequest struct {
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	Color       *string   `json:"color"`
}

// nullable distinguishes an absent field from an explicit null.
type nullable struct {
	Set   bool
	Value *string
}

func (n *nullable) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		n.Value = nil
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

type eventPatchRequest struct {
	Title       *string    `json:"title"`
	Description nullable   `json:"description"`
	StartAt     *time.Time `json:"startAt"`
	EndAt       *time.Time `json:"endAt"`
	Color       nullable   `json:"color"`
}

func (p eventPatchRequest) patch() model.EventPatch {
	out := model.EventPatch{Title: p.Title, StartAt: p.StartAt, EndAt: p.EndAt}
	if p.Description.Set {
		out.Description = p.Description.Value
		out.ClearDescription = p.Description.Value == nil
	}
	if p.Color.Set {
		out.Color = p.Color.Value
		out.ClearColor = p.Color.Value == nil
	}
	return out
}

// parseRange reads the required start and end query parameters (RFC 3339).
func parseRange(r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err1 := time.Parse(time.RFC3339, q.Get("start"))
	to, err2 := time.Parse(time.RFC3339, q.Get("end"))
	return from, to, err1 == nil && err2 == nil
}

// ListEvents GET /api/events?start=&end=
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	from, to, ok := parseRange(r)
	if !ok {
		respond.WriteBadRequest(w, "start and end must be RFC 3339 timestamps")
		return
	}
	evs, err := h.svc.ListEvents(r.Context(), userID, from, to)
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": evs, "count": len(evs)})
}

// GetEvent GET /api/events/{eventId}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	ev, err := h.svc.GetEvent(r.Context(), userID, mux.Vars(r)["eventId"])
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// CreateEvent POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	ev, err := h.svc.CreateEvent(r.Context(), userID, services.CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Color:       req.Color,
	})
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, ev)
}

// UpdateEvent PATCH /api/events/{eventId}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	var req eventPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	ev, err := h.svc.UpdateEvent(r.Context(), userID, mux.Vars(r)["eventId"], req.patch())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// DeleteEvent DELETE /api/events/{eventId}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	if err := h.svc.DeleteEvent(r.Context(), userID, mux.Vars(r)["eventId"]); err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportICS GET /api/events.ics?start=&end=
func (h *EventHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	from, to, ok := parseRange(r)
	if !ok {
		respond.WriteBadRequest(w, "start and end must be RFC 3339 timestamps")
		return
	}
	evs, err := h.svc.ListEvents(r.Context(), userID, from, to)
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := EncodeICS(&buf, evs, time.Now()); err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="saycal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
