package gwmodel

import "encoding/json"

// EmbeddingRequest is a unified embeddings call carrying no message history,
// served by an adapter implementing providers.EmbeddingAdapter. It does not
// pass through the router, the admission gate or the executor.
type EmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     *int     `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	User           string   `json:"user,omitempty"`
	RequestID      string   `json:"-"`
}

// Validate enforces non-empty input, mirroring ChatCompletionRequest.Validate.
func (r EmbeddingRequest) Validate() error {
	if len(r.Input) == 0 {
		return errEmptyMessages
	}
	return nil
}

// Embedding is one vector produced for the corresponding Input entry.
type Embedding struct {
	Index     int       `json:"index"`
	Vector    []float64 `json:"embedding"`
}

// EmbeddingResponse is the gateway's unified embeddings response.
type EmbeddingResponse struct {
	Model      string      `json:"model"`
	Embeddings []Embedding `json:"embeddings"`
	Usage      Usage       `json:"usage"`
	Cost       *Cost       `json:"cost,omitempty"`
}

// ImageSize is a closed set of supported output dimensions.
type ImageSize string

const (
	ImageSize256  ImageSize = "256x256"
	ImageSize512  ImageSize = "512x512"
	ImageSize1024 ImageSize = "1024x1024"
)

// ImageGenerationRequest is a unified text-to-image call.
type ImageGenerationRequest struct {
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	N         int       `json:"n,omitempty"`
	Size      ImageSize `json:"size,omitempty"`
	User      string    `json:"user,omitempty"`
	RequestID string    `json:"-"`
}

// Validate enforces a non-empty prompt.
func (r ImageGenerationRequest) Validate() error {
	if r.Prompt == "" {
		return errEmptyMessages
	}
	return nil
}

// GeneratedImage is one produced image, either a hosted URL or inline
// base64-encoded bytes depending on what the provider returned.
type GeneratedImage struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ImageGenerationResponse is the gateway's unified image-generation response.
type ImageGenerationResponse struct {
	Model   string           `json:"model"`
	Created int64            `json:"created"`
	Images  []GeneratedImage `json:"images"`
	Cost    *Cost            `json:"cost,omitempty"`
}

// ResponseTurnItemType discriminates one item in a Responses-API-shaped
// turn: a stateful alternative to the chat-completion shape that some
// providers (OpenAI's Responses API) expose natively, supported here as a
// thin overlay on the same Message/ToolCall primitives.
type ResponseTurnItemType string

const (
	ResponseTurnItemMessage  ResponseTurnItemType = "message"
	ResponseTurnItemToolCall ResponseTurnItemType = "tool_call"
	ResponseTurnItemReasoning ResponseTurnItemType = "reasoning"
)

// ResponseTurnItem is one entry in a ResponseTurn's ordered Output list.
type ResponseTurnItem struct {
	Type     ResponseTurnItemType `json:"type"`
	Message  *Message             `json:"message,omitempty"`
	ToolCall *ToolCall            `json:"tool_call,omitempty"`
	Summary  string               `json:"summary,omitempty"`
}

// ResponseTurn is a Responses-API-style turn record, linked to an earlier
// turn by PreviousResponseID. Nothing in the gateway builds one, and a
// previous_response_id on an incoming request is not resolved into earlier
// history (responses.ToChatCompletion ignores it).
type ResponseTurn struct {
	ID                 string             `json:"id"`
	Model              string             `json:"model"`
	PreviousResponseID string             `json:"previous_response_id,omitempty"`
	Output             []ResponseTurnItem `json:"output"`
	Usage              Usage              `json:"usage"`
	Cost               *Cost              `json:"cost,omitempty"`
	FinishReason       FinishReason       `json:"finish_reason"`
	Metadata           json.RawMessage    `json:"metadata,omitempty"`
}
