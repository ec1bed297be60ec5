package gwmodel

import (
	"encoding/json"
	"strconv"
)

// ToolKind distinguishes tools executed in-process from tools proxied to an
// MCP server.
type ToolKind string

const (
	ToolKindLocal ToolKind = "local"
	ToolKindMCP   ToolKind = "mcp"
)

// ToolSpec describes one tool made available to the model for a request.
// Names must be unique within a request (spec §3 invariant).
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Kind        ToolKind        `json:"kind,omitempty"`
	MCPServer   string          `json:"mcp_server,omitempty"`
}

// ToolChoiceMode selects how the model may use the tools offered to it.
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

// ToolChoice configures optional tool-use behavior for a request. When Mode
// is ToolChoiceNamed, Name identifies the single tool the model must call.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// MarshalJSON renders ToolChoice using the OpenAI-compatible wire shapes:
// a bare string for none/auto/required, or {"type":"function","function":
// {"name":...}} for a named choice.
func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Mode == ToolChoiceNamed {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.Name},
		})
	}
	return json.Marshal(string(t.Mode))
}

// UnmarshalJSON accepts either a bare mode string or the named-tool object
// shape.
func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Mode = ToolChoiceMode(s)
		t.Name = ""
		return nil
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Mode = ToolChoiceNamed
	t.Name = obj.Function.Name
	return nil
}

// ToolCallTypeFunction is the sole value ToolCall.Type takes on the wire
// today; kept as a named constant so adapters don't repeat the literal.
const ToolCallTypeFunction = "function"

// ToolCallFunction carries the function-call payload of a ToolCall.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a tool invocation requested by the model. Streaming adapters
// deliver Arguments incrementally; BuildResponse concatenates fragments by
// Key() (the ID, or the Index when the ID is empty) (spec §3).
type ToolCall struct {
	ID       string           `json:"id"`
	Index    *int             `json:"index,omitempty"`
	Type     string           `json:"type,omitempty"` // always "function" on the wire
	Function ToolCallFunction `json:"function"`
}

// Key returns the identity used to correlate streaming deltas for this call:
// prefer the provider-issued ID, falling back to Index when the provider
// does not assign IDs until the call closes.
func (c ToolCall) Key() string {
	if c.ID != "" {
		return c.ID
	}
	if c.Index != nil {
		return "idx:" + strconv.Itoa(*c.Index)
	}
	return ""
}
