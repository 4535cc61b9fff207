package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paul-bouzian/saycal/internal/calendar"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store/sqlite"
)

// scriptedModel replays canned replies and records every request.
type scriptedModel struct {
	replies  []*Reply
	requests []Request
	err      error
}

func (m *scriptedModel) Generate(_ context.Context, req *Request) (*Reply, error) {
	cp := *req
	cp.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, cp)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &Reply{Text: "done"}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

// loopingModel never stops calling tools.
type loopingModel struct{ calls int }

func (m *loopingModel) Generate(context.Context, *Request) (*Reply, error) {
	m.calls++
	return &Reply{ToolCalls: []ToolCall{{Name: calendar.ToolGetEvents, Args: map[string]any{"startDate": "2026-01-15", "endDate": "2026-01-15"}}}}, nil
}

type fakeTools struct {
	calls   []string
	results map[string]calendar.Result
	err     error
}

func (f *fakeTools) Execute(_ context.Context, _ string, _ *time.Location, name string, _ map[string]any) (calendar.Result, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return calendar.Result{}, f.err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return calendar.Result{Success: true}, nil
}

func fixedNow() time.Time {
	loc, _ := time.LoadLocation("Europe/Paris")
	return time.Date(2026, 1, 15, 10, 0, 0, 0, loc)
}

func TestRun_SingleCreateCall(t *testing.T) {
	m := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{ID: "c1", Name: calendar.ToolCreateEvent, Args: map[string]any{"title": "X", "date": "2026-01-16", "startTime": "18:00"}}}},
		{Text: "  Done! X is booked for tomorrow at 6pm. "},
	}}
	tools := &fakeTools{}
	var stages []model.Stage
	o := New(m, tools, Config{}, zerolog.Nop()).WithClock(fixedNow)

	resp, err := o.Run(context.Background(), Input{
		UserID:    "u1",
		Utterance: "X tomorrow at six pm",
		Progress:  func(s model.Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{calendar.ToolCreateEvent}, tools.calls)
	assert.Equal(t, model.VoiceResponse{Type: "success", Text: "Done! X is booked for tomorrow at 6pm.", Action: model.ActionCreated}, resp)
	assert.Equal(t, []model.Stage{model.StageThinking, model.StageExecuting, model.StageThinking}, stages)

	// Second request carries the model turn and the tool result.
	require.Len(t, m.requests, 2)
	second := m.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, RoleModel, second[1].Role)
	assert.Equal(t, RoleTool, second[2].Role)
	assert.Equal(t, "c1", second[2].ToolResults[0].CallID)
	assert.Equal(t, true, second[2].ToolResults[0].Response["success"])
	assert.Len(t, m.requests[0].Tools, 4)
}

func TestRun_PlainAnswerIsInfo(t *testing.T) {
	m := &scriptedModel{replies: []*Reply{{Text: "When and at what time?"}}}
	tools := &fakeTools{}
	o := New(m, tools, Config{}, zerolog.Nop())

	resp, err := o.Run(context.Background(), Input{UserID: "u1", Utterance: "add an appointment"})
	require.NoError(t, err)
	assert.Empty(t, tools.calls)
	assert.Equal(t, model.VoiceResponse{Type: "info", Text: "When and at what time?"}, resp)
}

func TestRun_FailedToolKeepsInfoAndListedEvents(t *testing.T) {
	listed := []model.EventSummary{{Title: "Lunch", Date: "2026-01-16", Time: "12:00"}}
	m := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{Name: calendar.ToolDeleteEvent, Args: map[string]any{"eventTitle": "Nope"}}}},
		{ToolCalls: []ToolCall{{Name: calendar.ToolGetEvents, Args: map[string]any{"startDate": "2026-01-16", "endDate": "2026-01-16"}}}},
		{Text: "I couldn't find it. Tomorrow you have Lunch."},
	}}
	n := 1
	tools := &fakeTools{results: map[string]calendar.Result{
		calendar.ToolDeleteEvent: {Success: false, Error: `Event "Nope" not found`},
		calendar.ToolGetEvents:   {Success: true, Count: &n, Events: listed},
	}}
	o := New(m, tools, Config{}, zerolog.Nop())

	resp, err := o.Run(context.Background(), Input{UserID: "u1", Utterance: "delete nope"})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Type)
	assert.Equal(t, model.ActionListed, resp.Action)
	assert.Equal(t, listed, resp.Events)
	// The failure went back to the model as a result, not an abort.
	assert.Equal(t, `Event "Nope" not found`, m.requests[1].Messages[2].ToolResults[0].Response["error"])
}

func TestRun_StepLimit(t *testing.T) {
	m := &loopingModel{}
	tools := &fakeTools{}
	o := New(m, tools, Config{MaxSteps: 3}, zerolog.Nop())

	_, err := o.Run(context.Background(), Input{UserID: "u1", Utterance: "loop"})
	require.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 3, m.calls)
	assert.Len(t, tools.calls, 2)
}

func TestRun_ErrorsPropagate(t *testing.T) {
	boom := errors.New("upstream 503")
	_, err := New(&scriptedModel{err: boom}, &fakeTools{}, Config{}, zerolog.Nop()).
		Run(context.Background(), Input{UserID: "u1", Utterance: "hi"})
	require.ErrorIs(t, err, boom)

	dbErr := errors.New("db down")
	m := &scriptedModel{replies: []*Reply{{ToolCalls: []ToolCall{{Name: calendar.ToolGetEvents}}}}}
	_, err = New(m, &fakeTools{err: dbErr}, Config{}, zerolog.Nop()).
		Run(context.Background(), Input{UserID: "u1", Utterance: "hi"})
	require.ErrorIs(t, err, dbErr)
}

func TestRun_HistoryIsBoundedAndStartsWithUser(t *testing.T) {
	var history []model.ConversationTurn
	for i := 0; i < 30; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		history = append(history, model.ConversationTurn{Role: role, Content: "turn"})
	}
	m := &scriptedModel{}
	o := New(m, &fakeTools{}, Config{MaxHistory: 5}, zerolog.Nop())

	_, err := o.Run(context.Background(), Input{UserID: "u1", Utterance: "now", History: history})
	require.NoError(t, err)
	msgs := m.requests[0].Messages
	// last 5 turns start with an assistant turn, which is dropped
	require.Len(t, msgs, 5)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleModel, msgs[1].Role)
	assert.Equal(t, "now", msgs[4].Text)
}

func TestSystemPrompt_ListsComingWeek(t *testing.T) {
	now := fixedNow()
	p := SystemPrompt(now, now.Location())
	assert.Contains(t, p, "Current date and time: 2026-01-15 10:00 (Europe/Paris)")
	assert.Contains(t, p, `"tomorrow" / "demain" = 2026-01-16`)
	assert.Contains(t, p, "- 2026-01-16 Friday / vendredi (tomorrow / demain)")
	assert.Contains(t, p, "- 2026-01-21 Wednesday / mercredi")
	assert.False(t, strings.Contains(p, "2026-01-22"))
}

// End to end against the real executor: "tomorrow at 18:00" lands at
// 18:00-19:00 on 2026-01-16 in the caller's zone.
func TestRun_CreatesEventWithRealExecutor(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "assistant.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db))
	events := sqlite.New(db).Events()

	now := fixedNow()
	m := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{Name: calendar.ToolCreateEvent, Args: map[string]any{"title": "X", "date": "2026-01-16", "startTime": "18:00"}}}},
		{Text: "Done."},
	}}
	o := New(m, calendar.NewExecutor(events, zerolog.Nop(), calendar.WithClock(fixedNow)), Config{}, zerolog.Nop()).WithClock(fixedNow)

	resp, err := o.Run(context.Background(), Input{UserID: "u1", Utterance: "X demain à 18h", Location: now.Location()})
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreated, resp.Action)

	all, err := events.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].StartAt.Equal(time.Date(2026, 1, 16, 18, 0, 0, 0, now.Location())))
	assert.True(t, all[0].EndAt.Equal(time.Date(2026, 1, 16, 19, 0, 0, 0, now.Location())))
}
