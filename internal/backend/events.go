package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Wire event types delivered on the agent stream.
const (
	eventChunk         = "chunk"
	eventMeta          = "meta"
	eventToolStart     = "tool_start"
	eventToolEnd       = "tool_end"
	eventAgentSpawn    = "agent_spawn"
	eventAgentProgress = "agent_progress"
	eventAgentEnd      = "agent_end"
	eventTasks         = "tasks"
	eventAsk           = "ask"
	eventDone          = "done"
)

// wireEvent is the union payload carried by one SSE data frame. Which fields
// are meaningful depends on Type; the schema below enforces the per-type
// required set before dispatch.
type wireEvent struct {
	Type string `json:"type"`

	// chunk
	Text string `json:"text,omitempty"`

	// meta
	Model        string `json:"model,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ThinkingMs   int64  `json:"thinking_ms,omitempty"`
	ThinkingText string `json:"thinking_text,omitempty"`

	// tool_* / agent_*
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	OK     bool   `json:"ok,omitempty"`

	// agent_*
	Task        string `json:"task,omitempty"`
	Background  bool   `json:"background,omitempty"`
	CurrentTool string `json:"current_tool,omitempty"`
	Result      string `json:"result,omitempty"`

	// tasks
	Tasks []wireTask `json:"tasks,omitempty"`

	// ask
	Prompt string `json:"prompt,omitempty"`
}

type wireTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
}

var (
	eventSchemaLoader gojsonschema.JSONLoader
	eventSchemaErr    error
	eventSchemaOnce   sync.Once
)

// eventSchema builds the JSON schema every inbound stream event must satisfy.
// Tool and agent events require an id so lifecycle transitions stay pairable.
func eventSchema() map[string]any {
	requireID := []any{
		eventToolStart, eventToolEnd, eventAgentSpawn, eventAgentProgress, eventAgentEnd,
	}
	return map[string]any{
		"type":     "object",
		"required": []any{"type"},
		"properties": map[string]any{
			"type": map[string]any{
				"type": "string",
				"enum": []any{
					eventChunk, eventMeta, eventToolStart, eventToolEnd,
					eventAgentSpawn, eventAgentProgress, eventAgentEnd,
					eventTasks, eventAsk, eventDone,
				},
			},
			"text":          map[string]any{"type": "string"},
			"model":         map[string]any{"type": "string"},
			"output_tokens": map[string]any{"type": "integer", "minimum": 0},
			"thinking_ms":   map[string]any{"type": "integer", "minimum": 0},
			"thinking_text": map[string]any{"type": "string"},
			"id":            map[string]any{"type": "string"},
			"name":          map[string]any{"type": "string"},
			"input":         map[string]any{"type": "string"},
			"output":        map[string]any{"type": "string"},
			"error":         map[string]any{"type": "string"},
			"ok":            map[string]any{"type": "boolean"},
			"task":          map[string]any{"type": "string"},
			"background":    map[string]any{"type": "boolean"},
			"current_tool":  map[string]any{"type": "string"},
			"result":        map[string]any{"type": "string"},
			"prompt":        map[string]any{"type": "string"},
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"id", "title"},
					"properties": map[string]any{
						"id":     map[string]any{"type": "string"},
						"title":  map[string]any{"type": "string"},
						"status": map[string]any{"type": "string"},
					},
				},
			},
		},
		"allOf": []any{
			map[string]any{
				"if": map[string]any{
					"properties": map[string]any{
						"type": map[string]any{"enum": requireID},
					},
				},
				"then": map[string]any{
					"required": []any{"id"},
					"properties": map[string]any{
						"id": map[string]any{"minLength": 1},
					},
				},
			},
			map[string]any{
				"if": map[string]any{
					"properties": map[string]any{
						"type": map[string]any{"const": eventChunk},
					},
				},
				"then": map[string]any{
					"required": []any{"text"},
				},
			},
		},
	}
}

func loadEventSchema() (gojsonschema.JSONLoader, error) {
	eventSchemaOnce.Do(func() {
		eventSchemaLoader = gojsonschema.NewGoLoader(eventSchema())
	})
	return eventSchemaLoader, eventSchemaErr
}

type eventValidationError struct {
	issues []string
}

func (e eventValidationError) Error() string {
	if len(e.issues) == 0 {
		return "stream event failed schema validation"
	}
	return strings.Join(e.issues, "; ")
}

// decodeEvent parses and validates one SSE data frame.
func decodeEvent(raw string) (wireEvent, error) {
	loader, err := loadEventSchema()
	if err != nil {
		return wireEvent{}, fmt.Errorf("backend: load event schema: %w", err)
	}

	result, err := gojsonschema.Validate(loader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return wireEvent{}, fmt.Errorf("backend: decode event: %w", err)
	}
	if !result.Valid() {
		verr := eventValidationError{}
		for _, issue := range result.Errors() {
			verr.issues = append(verr.issues, issue.String())
		}
		return wireEvent{}, verr
	}

	var evt wireEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return wireEvent{}, fmt.Errorf("backend: unmarshal event: %w", err)
	}
	return evt, nil
}
