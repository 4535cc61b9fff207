package assistant

import (
	"context"

	"github.com/paul-bouzian/saycal/internal/calendar"
)

// Role of a message in the provider-neutral conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleTool carries tool results back to the model.
	RoleTool Role = "tool"
)

type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	CallID   string
	Name     string
	Response map[string]any
}

// Message is one turn of the conversation sent to a Model.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	// Raw is the provider's own representation of a model turn, replayed
	// verbatim when present.
	Raw any
}

type Request struct {
	System   string
	Messages []Message
	Tools    []calendar.Definition
}

// Reply is one model turn: either tool calls or plain text.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
	Raw       any
}

// Model is a tool-calling language model.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Reply, error)
}
