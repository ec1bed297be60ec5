// Package gwmodel defines the provider-agnostic request, response, message,
// tool, usage, and cost types shared by every component of the gateway. It is
// the wire-stable contract described in spec §3 and §6: JSON encoding of
// these types is the gateway's public surface and must remain stable across
// provider adapters.
package gwmodel

import (
	"encoding/json"
	"fmt"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartType discriminates the concrete shape of a ContentPart.
type ContentPartType string

const (
	ContentPartText       ContentPartType = "text"
	ContentPartImageURL   ContentPartType = "image_url"
	ContentPartInputAudio ContentPartType = "input_audio"
)

// ContentPart is one block of a multi-part message content array. Exactly
// one of Text, ImageURL, or InputAudio is populated, matching Type.
type ContentPart struct {
	Type       ContentPartType `json:"type"`
	Text       string          `json:"text,omitempty"`
	ImageURL   *ImageURLPart   `json:"image_url,omitempty"`
	InputAudio *InputAudioPart `json:"input_audio,omitempty"`
}

// ImageURLPart carries an image reference, either a remote URL or a data URI.
type ImageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// InputAudioPart carries inline base64-encoded audio content.
type InputAudioPart struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// CacheControl is an ephemeral prompt-caching hint attached to a message.
// Provider adapters translate it into provider-specific caching directives
// (Anthropic cache_control blocks, Bedrock cachePoint markers); providers
// without caching support ignore it.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// Message is a single chat message. Content is either a plain string or an
// ordered ContentPart array; exactly one of Content/ContentParts is set on
// the wire, enforced by MarshalJSON/UnmarshalJSON below.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"-"`
	ContentParts []ContentPart `json:"-"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
	Name         string        `json:"name,omitempty"`
}

// IsTextOnly reports whether the message carries a single plain-text content
// value rather than a content-part array.
func (m Message) IsTextOnly() bool {
	return m.ContentParts == nil
}

// Valid checks the invariant from spec §4.A: a message with no ContentParts
// and no Content string is invalid unless it only carries tool calls.
func (m Message) Valid() bool {
	if len(m.ContentParts) > 0 {
		return true
	}
	if m.Content != "" {
		return true
	}
	// Assistant messages that only carry tool_calls have no content.
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

type messageWire struct {
	Role         Role            `json:"role"`
	Content      json.RawMessage `json:"content,omitempty"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
	Name         string          `json:"name,omitempty"`
}

// MarshalJSON renders Content as a bare string when the message is
// text-only, or as a JSON array of ContentPart otherwise, matching the
// OpenAI-compatible wire format documented in spec §6.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		Role:         m.Role,
		ToolCalls:    m.ToolCalls,
		ToolCallID:   m.ToolCallID,
		CacheControl: m.CacheControl,
		Name:         m.Name,
	}
	switch {
	case m.ContentParts != nil:
		raw, err := json.Marshal(m.ContentParts)
		if err != nil {
			return nil, fmt.Errorf("marshal content parts: %w", err)
		}
		w.Content = raw
	case m.Content != "" || m.Role != RoleAssistant || len(m.ToolCalls) == 0:
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, fmt.Errorf("marshal content: %w", err)
		}
		w.Content = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts either a string or an array for "content", matching
// the OpenAI-compatible wire format.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.ToolCalls = w.ToolCalls
	m.ToolCallID = w.ToolCallID
	m.CacheControl = w.CacheControl
	m.Name = w.Name
	m.Content = ""
	m.ContentParts = nil
	if len(w.Content) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(w.Content, &asString); err == nil {
		m.Content = asString
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}
	m.ContentParts = parts
	return nil
}
