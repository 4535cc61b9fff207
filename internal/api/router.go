package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/api/recovery"
	"github.com/paul-bouzian/saycal/internal/api/respond"
	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/services"
)

// Deps holds everything the router wires to routes. Nil optional handlers
// (Webhook, Metrics) leave their route unregistered.
type Deps struct {
	Auth          auth.Authenticator
	Events        *services.EventService
	Subscriptions *services.SubscriptionService
	Voice         VoiceProcessor
	Quota         QuotaPeeker
	Webhook       http.Handler
	Metrics       http.Handler
	Health        HealthReporter
	MaxAudioBytes int64
	Location      *time.Location
	Log           zerolog.Logger
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.New(d.Log))

	// Unauthenticated
	healthHandler := NewHealthHandler(d.Health)
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	if d.Webhook != nil {
		root.Handle("/api/stripe/webhook", d.Webhook).Methods("POST")
	}
	if d.Metrics != nil {
		root.Handle("/metrics", d.Metrics).Methods("GET")
	}

	api := root.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(d.Auth, respond.WriteErr))

	// Voice
	voice := NewVoiceHandler(d.Voice, d.Quota, d.MaxAudioBytes, d.Location, d.Log)
	api.HandleFunc("/voice/commands", voice.SubmitCommand).Methods("POST")
	api.HandleFunc("/voice/quota", voice.GetQuota).Methods("GET")

	// Events
	events := NewEventHandler(d.Events)
	api.HandleFunc("/events", events.ListEvents).Methods("GET")
	api.HandleFunc("/events", events.CreateEvent).Methods("POST")
	api.HandleFunc("/events.ics", events.ExportICS).Methods("GET")
	api.HandleFunc("/events/{eventId}", events.GetEvent).Methods("GET")
	api.HandleFunc("/events/{eventId}", events.UpdateEvent).Methods("PATCH")
	api.HandleFunc("/events/{eventId}", events.DeleteEvent).Methods("DELETE")

	// Billing
	billing := NewBillingHandler(d.Subscriptions)
	api.HandleFunc("/billing/plan", billing.GetPlan).Methods("GET")
	api.HandleFunc("/billing/subscription", billing.GetSubscription).Methods("GET")

	return root
}
