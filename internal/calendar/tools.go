package calendar

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool names exposed to the language model.
const (
	ToolCreateEvent = "createEvent"
	ToolGetEvents   = "getEvents"
	ToolUpdateEvent = "updateEvent"
	ToolDeleteEvent = "deleteEvent"
)

// Call is one decoded tool invocation. The set of implementations is closed:
// only this package can add a variant, and every Visitor must handle all of them.
type Call interface {
	Name() string
	Accept(v Visitor) (Result, error)
	sealed()
}

// Visitor dispatches over the tool variants.
type Visitor interface {
	CreateEvent(CreateEvent) (Result, error)
	GetEvents(GetEvents) (Result, error)
	UpdateEvent(UpdateEvent) (Result, error)
	DeleteEvent(DeleteEvent) (Result, error)
}

type CreateEvent struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`
}

type GetEvents struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type UpdateEvent struct {
	EventTitle   string `json:"eventTitle"`
	NewTitle     string `json:"newTitle,omitempty"`
	NewDate      string `json:"newDate,omitempty"`
	NewStartTime string `json:"newStartTime,omitempty"`
}

type DeleteEvent struct {
	EventTitle string `json:"eventTitle"`
}

func (CreateEvent) Name() string { return ToolCreateEvent }
func (GetEvents) Name() string   { return ToolGetEvents }
func (UpdateEvent) Name() string { return ToolUpdateEvent }
func (DeleteEvent) Name() string { return ToolDeleteEvent }

func (c CreateEvent) Accept(v Visitor) (Result, error) { return v.CreateEvent(c) }
func (c GetEvents) Accept(v Visitor) (Result, error)   { return v.GetEvents(c) }
func (c UpdateEvent) Accept(v Visitor) (Result, error) { return v.UpdateEvent(c) }
func (c DeleteEvent) Accept(v Visitor) (Result, error) { return v.DeleteEvent(c) }

func (CreateEvent) sealed() {}
func (GetEvents) sealed()   {}
func (UpdateEvent) sealed() {}
func (DeleteEvent) sealed() {}

//go:embed schemas/*.json
var schemaFS embed.FS

// Property is one scalar argument of a tool.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Definition describes a tool to the model: name, description and argument contract.
type Definition struct {
	Name        string
	Description string
	Properties  map[string]Property
	// Order lists property names in declaration order.
	Order    []string
	Required []string
	// Schema is the raw JSON schema document.
	Schema json.RawMessage

	compiled *jsonschema.Schema
	decode   func(raw []byte) (Call, error)
}

var registry = mustLoadRegistry()

// Definitions returns the tool vocabulary in a stable order.
func Definitions() []Definition {
	out := make([]Definition, 0, len(toolOrder))
	for _, n := range toolOrder {
		out = append(out, *registry[n])
	}
	return out
}

var toolOrder = []string{ToolCreateEvent, ToolGetEvents, ToolUpdateEvent, ToolDeleteEvent}

func decodeInto[T Call](raw []byte) (Call, error) {
	var c T
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func mustLoadRegistry() map[string]*Definition {
	decoders := map[string]func([]byte) (Call, error){
		ToolCreateEvent: decodeInto[CreateEvent],
		ToolGetEvents:   decodeInto[GetEvents],
		ToolUpdateEvent: decodeInto[UpdateEvent],
		ToolDeleteEvent: decodeInto[DeleteEvent],
	}
	reg := make(map[string]*Definition, len(decoders))
	for _, name := range toolOrder {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			panic(fmt.Sprintf("calendar: missing schema for %s: %v", name, err))
		}
		def, err := parseDefinition(name, raw)
		if err != nil {
			panic(fmt.Sprintf("calendar: schema %s: %v", name, err))
		}
		def.decode = decoders[name]
		reg[name] = def
	}
	return reg
}

func parseDefinition(name string, raw []byte) (*Definition, error) {
	var doc struct {
		Description string              `json:"description"`
		Properties  map[string]Property `json:"properties"`
		Required    []string            `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString(name+".json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	order, err := propertyOrder(raw)
	if err != nil {
		return nil, err
	}
	return &Definition{
		Name:        name,
		Description: doc.Description,
		Properties:  doc.Properties,
		Order:       order,
		Required:    doc.Required,
		Schema:      json.RawMessage(raw),
		compiled:    compiled,
	}, nil
}

// propertyOrder reads the keys of "properties" as written in the document.
func propertyOrder(raw []byte) ([]string, error) {
	var doc struct {
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(doc.Properties))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Decode turns a model function call into a tool variant. Argument problems
// come back as a failure Result, never as an error.
func Decode(name string, args map[string]any) (Call, *Result) {
	def, ok := registry[name]
	if !ok {
		return nil, failure("Unknown function: %s", name)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, failure("Invalid arguments for %s: %v", name, err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, failure("Invalid arguments for %s: %v", name, err)
	}
	if normalized == nil {
		normalized = map[string]any{}
	}
	if msg := missingParameters(def, normalized); msg != "" {
		return nil, failure("%s", msg)
	}
	if err := def.compiled.Validate(normalized); err != nil {
		return nil, failure("Invalid arguments for %s: %v", name, err)
	}
	call, err := def.decode(raw)
	if err != nil {
		return nil, failure("Invalid arguments for %s: %v", name, err)
	}
	return call, nil
}

// missingParameters reports every required argument when one of them is
// absent or blank, e.g. "Missing parameters: title=, date=2026-01-16, startTime=18:00".
func missingParameters(def *Definition, args any) string {
	m, _ := args.(map[string]any)
	missing := false
	parts := make([]string, 0, len(def.Required))
	for _, k := range def.Required {
		v, present := m[k]
		if s, ok := v.(string); !present || v == nil || (ok && strings.TrimSpace(s) == "") {
			missing = true
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, display(v)))
	}
	if !missing {
		return ""
	}
	return "Missing parameters: " + strings.Join(parts, ", ")
}

func display(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
