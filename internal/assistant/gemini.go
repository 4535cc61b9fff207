package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/paul-bouzian/saycal/internal/calendar"
)

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature *float32
}

type GeminiOptions struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (tests).
	BaseURL    string
	HTTPClient *http.Client
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	temp := float32(0.2)
	return &Gemini{client: client, model: opts.Model, temperature: &temp}, nil
}

func (g *Gemini) Generate(ctx context.Context, req *Request) (*Reply, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: g.temperature,
		Tools:       []*genai.Tool{{FunctionDeclarations: declarations(req.Tools)}},
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents(req.Messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini generate: empty candidate")
	}

	reply := &Reply{Raw: resp.Candidates[0].Content}
	for _, fc := range resp.FunctionCalls() {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	reply.Text = resp.Text()
	return reply, nil
}

func declarations(defs []calendar.Definition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		props := make(map[string]*genai.Schema, len(d.Properties))
		for name, p := range d.Properties {
			props[name] = &genai.Schema{Type: genai.Type(strings.ToUpper(p.Type)), Description: p.Description}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:             genai.TypeObject,
				Properties:       props,
				Required:         d.Required,
				PropertyOrdering: d.Order,
			},
		})
	}
	return out
}

func contents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleModel:
			if raw, ok := m.Raw.(*genai.Content); ok && raw != nil {
				out = append(out, raw)
				continue
			}
			c := &genai.Content{Role: "model"}
			if m.Text != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Text})
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}})
			}
			out = append(out, c)
		case RoleTool:
			c := &genai.Content{Role: "user"}
			for _, r := range m.ToolResults {
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: r.CallID, Name: r.Name, Response: r.Response}})
			}
			out = append(out, c)
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Text}}})
		}
	}
	return out
}
