// Package calendar implements the tool vocabulary the assistant uses to read
// and change a user's calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// VoiceColor tags events created by voice.
const VoiceColor = "#B552D9"

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
	dateTimeLayout = dateLayout + " " + timeLayout
)

// Recorder observes tool executions (metrics).
type Recorder interface {
	ToolExecuted(name string, success bool)
}

// Executor runs decoded tool calls against one user's events. Expected
// failures (bad arguments, unknown titles) are Results; only data-layer
// failures are errors.
type Executor struct {
	events store.Events
	now    func() time.Time
	rec    Recorder
	log    zerolog.Logger
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }
func WithRecorder(r Recorder) Option        { return func(e *Executor) { e.rec = r } }

func NewExecutor(events store.Events, log zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{events: events, now: time.Now, log: log}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute decodes and runs one function call for userID. Dates and times are
// interpreted in loc.
func (e *Executor) Execute(ctx context.Context, userID string, loc *time.Location, name string, args map[string]any) (Result, error) {
	call, bad := Decode(name, args)
	if bad != nil {
		e.observe(name, *bad)
		return *bad, nil
	}
	res, err := call.Accept(&run{ctx: ctx, userID: userID, loc: loc, e: e})
	if err != nil {
		e.log.Error().Stack().Err(err).Str("tool", name).Str("user_id", userID).Msg("tool execution failed")
		if e.rec != nil {
			e.rec.ToolExecuted(name, false)
		}
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}
	e.observe(name, res)
	return res, nil
}

func (e *Executor) observe(name string, r Result) {
	if e.rec != nil {
		e.rec.ToolExecuted(name, r.Success)
	}
	e.log.Debug().Str("tool", name).Bool("success", r.Success).Str("error", r.Error).Msg("tool executed")
}

// run is the Visitor bound to one call.
type run struct {
	ctx    context.Context
	userID string
	loc    *time.Location
	e      *Executor
}

func (r *run) CreateEvent(c CreateEvent) (Result, error) {
	start, err := time.ParseInLocation(dateTimeLayout, c.Date+" "+c.StartTime, r.loc)
	if err != nil {
		return *failure("Invalid date/time format: date=%s, startTime=%s", c.Date, c.StartTime), nil
	}
	end := start.Add(time.Hour)
	if c.EndTime != "" {
		end, err = time.ParseInLocation(dateTimeLayout, c.Date+" "+c.EndTime, r.loc)
		if err != nil {
			return *failure("Invalid date/time format: date=%s, endTime=%s", c.Date, c.EndTime), nil
		}
	}
	if !end.After(start) {
		return *failure("End time must be after start time: startTime=%s, endTime=%s", c.StartTime, end.Format(timeLayout)), nil
	}
	title := strings.TrimSpace(c.Title)
	if len([]rune(title)) > 200 {
		return *failure("Title too long: %d characters (max 200)", len([]rune(title))), nil
	}

	color := VoiceColor
	ev, err := r.e.events.Create(r.ctx, &model.Event{
		UserID:     r.userID,
		Title:      title,
		StartAt:    start,
		EndAt:      end,
		Color:      &color,
		CreatedVia: model.CreatedViaVoice,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success: true,
		Event: &CreatedEvent{
			ID:        ev.ID,
			Title:     ev.Title,
			Date:      c.Date,
			StartTime: start.Format(timeLayout),
			EndTime:   end.Format(timeLayout),
		},
	}, nil
}

func (r *run) GetEvents(c GetEvents) (Result, error) {
	from, err1 := time.ParseInLocation(dateLayout, c.StartDate, r.loc)
	to, err2 := time.ParseInLocation(dateLayout, c.EndDate, r.loc)
	if err1 != nil || err2 != nil {
		return *failure("Invalid date format: startDate=%s, endDate=%s", c.StartDate, c.EndDate), nil
	}
	// [startOfDay(startDate), endOfDay(endDate)]
	to = to.AddDate(0, 0, 1).Add(-time.Millisecond)

	all, err := r.e.events.ListByUser(r.ctx, r.userID)
	if err != nil {
		return Result{}, err
	}
	summaries := make([]model.EventSummary, 0, len(all))
	for _, ev := range all {
		if ev.StartAt.After(to) || ev.EndAt.Before(from) {
			continue
		}
		summaries = append(summaries, summarize(ev, r.loc))
	}
	n := len(summaries)
	return Result{Success: true, Count: &n, Events: summaries}, nil
}

func (r *run) UpdateEvent(c UpdateEvent) (Result, error) {
	ev, bad, err := r.resolve(c.EventTitle)
	if err != nil || bad != nil {
		return deref(bad), err
	}

	var patch model.EventPatch
	if t := strings.TrimSpace(c.NewTitle); t != "" {
		if len([]rune(t)) > 200 {
			return *failure("Title too long: %d characters (max 200)", len([]rune(t))), nil
		}
		patch.Title = &t
	}
	if c.NewDate != "" || c.NewStartTime != "" {
		start := ev.StartAt.In(r.loc)
		dateStr := firstNonEmpty(c.NewDate, start.Format(dateLayout))
		timeStr := firstNonEmpty(c.NewStartTime, start.Format(timeLayout))
		newStart, err := time.ParseInLocation(dateTimeLayout, dateStr+" "+timeStr, r.loc)
		if err != nil {
			return *failure("Invalid date/time format: date=%s, startTime=%s", dateStr, timeStr), nil
		}
		// Moving an event keeps its duration.
		newEnd := newStart.Add(ev.EndAt.Sub(ev.StartAt))
		patch.StartAt, patch.EndAt = &newStart, &newEnd
	}

	updated, err := r.e.events.Update(r.ctx, r.userID, ev.ID, patch, r.e.now())
	if errors.Is(err, model.ErrNotFound) {
		return *failure("Event \"%s\" not found", c.EventTitle), nil
	}
	if err != nil {
		return Result{}, err
	}
	sum := summarize(updated, r.loc)
	return Result{Success: true, Updated: &sum}, nil
}

func (r *run) DeleteEvent(c DeleteEvent) (Result, error) {
	ev, bad, err := r.resolve(c.EventTitle)
	if err != nil || bad != nil {
		return deref(bad), err
	}
	err = r.e.events.Delete(r.ctx, r.userID, ev.ID)
	if errors.Is(err, model.ErrNotFound) {
		return *failure("Event \"%s\" not found", c.EventTitle), nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Deleted: &DeletedEvent{Title: ev.Title}}, nil
}

// resolve finds the caller's event whose title contains query, ignoring case.
// Several candidates resolve only when exactly one title equals query.
func (r *run) resolve(query string) (*model.Event, *Result, error) {
	all, err := r.e.events.ListByUser(r.ctx, r.userID)
	if err != nil {
		return nil, nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var matches []*model.Event
	for _, ev := range all {
		if strings.Contains(strings.ToLower(ev.Title), needle) {
			matches = append(matches, ev)
		}
	}
	switch len(matches) {
	case 0:
		return nil, failure("Event \"%s\" not found", query), nil
	case 1:
		return matches[0], nil, nil
	}
	var exact []*model.Event
	titles := make([]string, 0, len(matches))
	for _, ev := range matches {
		if strings.EqualFold(strings.TrimSpace(ev.Title), strings.TrimSpace(query)) {
			exact = append(exact, ev)
		}
		titles = append(titles, ev.Title)
	}
	if len(exact) == 1 {
		return exact[0], nil, nil
	}
	return nil, failure("Several events match \"%s\": %s", query, strings.Join(titles, ", ")), nil
}

func summarize(ev *model.Event, loc *time.Location) model.EventSummary {
	start := ev.StartAt.In(loc)
	return model.EventSummary{Title: ev.Title, Date: start.Format(dateLayout), Time: start.Format(timeLayout)}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func deref(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}
