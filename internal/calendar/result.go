package calendar

import (
	"encoding/json"
	"fmt"

	"github.com/paul-bouzian/saycal/internal/model"
)

// Result is the uniform {success, ...} payload fed back to the model.
type Result struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error,omitempty"`
	Event   *CreatedEvent        `json:"event,omitempty"`
	Count   *int                 `json:"count,omitempty"`
	Events  []model.EventSummary `json:"events,omitempty"`
	Updated *model.EventSummary  `json:"updated,omitempty"`
	Deleted *DeletedEvent        `json:"deleted,omitempty"`
}

type CreatedEvent struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type DeletedEvent struct {
	Title string `json:"title"`
}

func failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Map renders the result as the generic object a function response carries.
func (r Result) Map() map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	if r.Count != nil && out["events"] == nil {
		// keep an explicit empty list next to count=0
		out["events"] = []any{}
	}
	return out
}
