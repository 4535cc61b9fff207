package model

import "time"

// Plan is the billing plan attached to a user.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Provenance records how an event was created.
type Provenance string

const (
	CreatedViaVoice  Provenance = "voice"
	CreatedViaManual Provenance = "manual"
)

// Event is a calendar entry owned by exactly one user.
type Event struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	StartAt     time.Time  `json:"startAt"`
	EndAt       time.Time  `json:"endAt"`
	Color       *string    `json:"color,omitempty"`
	CreatedVia  Provenance `json:"createdVia"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// EventPatch carries the fields of a partial update. Nil means untouched.
// ClearDescription and ClearColor null the column explicitly.
type EventPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	StartAt          *time.Time
	EndAt            *time.Time
	Color            *string
	ClearColor       bool
}

// Subscription is the entitlement record of a user (one row per user).
type Subscription struct {
	UserID               string    `json:"userId"`
	Plan                 Plan      `json:"plan"`
	StripeCustomerID     *string   `json:"stripeCustomerId"`
	StripeSubscriptionID *string   `json:"stripeSubscriptionId"`
	VoiceUsagePeriod     *string   `json:"voiceUsagePeriod,omitempty"`
	VoiceUsageCount      int       `json:"voiceUsageCount"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// UsageResult is the outcome of one atomic consume attempt against the quota row.
type UsageResult struct {
	Plan     Plan
	Admitted bool
	Count    int
}

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one exchange held by the client and replayed each round-trip.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Action is the semantic outcome of the last successful tool execution.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionListed  Action = "listed"
)

// EventSummary is the compact projection returned to the model and the UI.
type EventSummary struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Time  string `json:"time"`
}

// VoiceResponse is the assistant answer rendered by the voice panel.
type VoiceResponse struct {
	Type   string         `json:"type"`
	Text   string         `json:"text"`
	Action Action         `json:"action,omitempty"`
	Events []EventSummary `json:"events,omitempty"`
}

// VoiceResult is the payload returned for one voice round-trip.
type VoiceResult struct {
	Transcript string        `json:"transcript"`
	Result     VoiceResponse `json:"result"`
	Remaining  int           `json:"remaining"`
}

// Stage is the processing step of a voice round-trip reported to the client.
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageThinking     Stage = "thinking"
	StageExecuting    Stage = "executing"
)
