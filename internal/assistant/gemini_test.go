package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/paul-bouzian/saycal/internal/calendar"
)

func TestGemini_ParsesFunctionCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[
			{"functionCall":{"name":"createEvent","args":{"title":"X","date":"2026-01-16","startTime":"18:00"}}}
		]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiOptions{APIKey: "test", Model: "gemini-2.0-flash", BaseURL: srv.URL})
	require.NoError(t, err)

	reply, err := g.Generate(context.Background(), &Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Text: "X tomorrow at 6pm"}},
		Tools:    calendar.Definitions(),
	})
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "createEvent", reply.ToolCalls[0].Name)
	assert.Equal(t, "18:00", reply.ToolCalls[0].Args["startTime"])
	assert.NotNil(t, reply.Raw)

	require.NotNil(t, body)
	assert.Contains(t, body, "tools")
	assert.Contains(t, body, "systemInstruction")
}

func TestContents_MapsRoles(t *testing.T) {
	out := contents([]Message{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleModel, ToolCalls: []ToolCall{{ID: "1", Name: "getEvents", Args: map[string]any{}}}},
		{Role: RoleTool, ToolResults: []ToolResult{{CallID: "1", Name: "getEvents", Response: map[string]any{"success": true}}}},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "model", out[1].Role)
	assert.Equal(t, "getEvents", out[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "user", out[2].Role)
	assert.Equal(t, map[string]any{"success": true}, out[2].Parts[0].FunctionResponse.Response)

	decls := declarations(calendar.Definitions())
	require.Len(t, decls, 4)
	assert.Equal(t, genai.TypeObject, decls[0].Parameters.Type)
	assert.Equal(t, genai.TypeString, decls[0].Parameters.Properties["title"].Type)
	assert.Equal(t, []string{"title", "date", "startTime"}, decls[0].Parameters.Required)
}
