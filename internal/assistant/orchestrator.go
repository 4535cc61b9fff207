// Package assistant turns an utterance into calendar operations through a
// tool-calling language model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/calendar"
	"github.com/paul-bouzian/saycal/internal/model"
)

// ErrStepLimit is returned when the model keeps calling tools past the step cap.
var ErrStepLimit = errors.New("assistant: tool step limit reached")

// ToolExecutor runs one named tool call for a user.
type ToolExecutor interface {
	Execute(ctx context.Context, userID string, loc *time.Location, name string, args map[string]any) (calendar.Result, error)
}

type Config struct {
	MaxSteps   int
	MaxHistory int
}

type Orchestrator struct {
	model Model
	tools ToolExecutor
	cfg   Config
	now   func() time.Time
	log   zerolog.Logger
}

func New(m Model, tools ToolExecutor, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 8
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	return &Orchestrator{model: m, tools: tools, cfg: cfg, now: time.Now, log: log}
}

// WithClock returns a copy of o reading time from now.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	cp := *o
	cp.now = now
	return &cp
}

type Input struct {
	UserID    string
	Utterance string
	History   []model.ConversationTurn
	Location  *time.Location
	Progress  func(model.Stage)
}

// Run drives the model/tool loop until the model answers in plain text.
// A model turn counts as one step; tool calls requested in the last allowed
// step are not executed.
func (o *Orchestrator) Run(ctx context.Context, in Input) (model.VoiceResponse, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	progress := in.Progress
	if progress == nil {
		progress = func(model.Stage) {}
	}

	req := &Request{
		System:   SystemPrompt(o.now(), loc),
		Messages: append(replay(in.History, o.cfg.MaxHistory), Message{Role: RoleUser, Text: in.Utterance}),
		Tools:    calendar.Definitions(),
	}

	var (
		lastAction model.Action
		listed     []model.EventSummary
		toolNames  []string
	)
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return model.VoiceResponse{}, err
		}
		progress(model.StageThinking)
		reply, err := o.model.Generate(ctx, req)
		if err != nil {
			return model.VoiceResponse{}, fmt.Errorf("generate step %d: %w", step, err)
		}
		if len(reply.ToolCalls) == 0 {
			o.log.Debug().
				Str("stage", "assistant").
				Str("user_id", in.UserID).
				Int("steps", step).
				Strs("tools", toolNames).
				Msg("assistant finished")
			resp := model.VoiceResponse{Type: "info", Text: strings.TrimSpace(reply.Text), Action: lastAction}
			if lastAction != "" {
				resp.Type = "success"
			}
			if lastAction == model.ActionListed {
				resp.Events = listed
			}
			return resp, nil
		}
		if step >= o.cfg.MaxSteps {
			o.log.Warn().Str("user_id", in.UserID).Int("steps", step).Strs("tools", toolNames).Msg("tool step limit reached")
			return model.VoiceResponse{}, ErrStepLimit
		}

		req.Messages = append(req.Messages, Message{Role: RoleModel, Text: reply.Text, ToolCalls: reply.ToolCalls, Raw: reply.Raw})
		progress(model.StageExecuting)
		results := make([]ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			toolNames = append(toolNames, call.Name)
			res, err := o.tools.Execute(ctx, in.UserID, loc, call.Name, call.Args)
			if err != nil {
				return model.VoiceResponse{}, err
			}
			if res.Success {
				if a, ok := actionFor(call.Name); ok {
					lastAction = a
				}
				if call.Name == calendar.ToolGetEvents {
					listed = res.Events
				}
			}
			results = append(results, ToolResult{CallID: call.ID, Name: call.Name, Response: res.Map()})
		}
		req.Messages = append(req.Messages, Message{Role: RoleTool, ToolResults: results})
	}
}

func actionFor(tool string) (model.Action, bool) {
	switch tool {
	case calendar.ToolCreateEvent:
		return model.ActionCreated, true
	case calendar.ToolUpdateEvent:
		return model.ActionUpdated, true
	case calendar.ToolDeleteEvent:
		return model.ActionDeleted, true
	case calendar.ToolGetEvents:
		return model.ActionListed, true
	}
	return "", false
}

// replay keeps the last limit turns, dropping blank turns and any leading
// assistant turn so the conversation opens with the user.
func replay(history []model.ConversationTurn, limit int) []Message {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Message, 0, len(history)+1)
	for _, t := range history {
		text := strings.TrimSpace(t.Content)
		if text == "" {
			continue
		}
		role := RoleUser
		if t.Role == model.RoleAssistant {
			role = RoleModel
		}
		if len(out) == 0 && role == RoleModel {
			continue
		}
		out = append(out, Message{Role: role, Text: text})
	}
	return out
}
