// Package gemini adapts gwmodel requests to the Google Gemini API using
// github.com/google/generative-ai-go/genai. Gemini differs from the
// OpenAI-compatible shape in several ways this adapter must bridge: the
// system prompt is a distinct SystemInstruction rather than a message, the
// assistant role is named "model", and JSON Schema tool parameters must be
// normalized per spec (no $ref, no unions beyond anyOf of concrete types)
// before being handed to genai.Schema.
package gemini

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/providers"
)

func init() {
	providers.Register(gwmodel.ProviderGemini, func(meta gwmodel.ModelMetadata) (providers.Adapter, error) {
		return &Client{meta: meta}, nil
	})
}

// Client implements providers.Adapter on top of the Gemini API.
type Client struct {
	meta gwmodel.ModelMetadata
}

func (c *Client) model(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials) (*genai.Client, *genai.GenerativeModel, error) {
	gc, err := genai.NewClient(ctx, option.WithAPIKey(creds.APIKey))
	if err != nil {
		return nil, nil, gwerrors.Wrap(gwerrors.KindProviderAuth, "gemini: new client", err)
	}
	modelID := req.Model
	if c.meta.InferenceModelName != "" {
		modelID = c.meta.InferenceModelName
	}
	m := gc.GenerativeModel(modelID)
	if req.Temperature != nil {
		t := clampTemperature(*req.Temperature)
		m.Temperature = &t
	}
	if req.MaxTokens != nil {
		mt := int32(*req.MaxTokens)
		m.MaxOutputTokens = &mt
	}
	var system string
	for _, msg := range req.Messages {
		if msg.Role == gwmodel.RoleSystem {
			system += msg.Content + "\n"
		}
	}
	if system != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if len(req.Tools) > 0 {
		tool, err := mapTools(req.Tools)
		if err != nil {
			return nil, nil, err
		}
		m.Tools = []*genai.Tool{tool}
	}
	return gc, m, nil
}

func clampTemperature(t float64) float32 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return float32(t)
}

func mapTools(tools []gwmodel.ToolSpec) (*genai.Tool, error) {
	tool := &genai.Tool{}
	for _, t := range tools {
		schema, err := normalizeSchema(t.Parameters)
		if err != nil {
			return nil, err
		}
		tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return tool, nil
}

// normalizeSchema converts a tool's JSON Schema to an object genai.Schema.
// Only the top-level property names (each declared as a string) and the
// required list are carried over; $ref, $defs, unions and nested types are
// dropped. Input that does not decode as a JSON object fails with
// KindBadRequest.
func normalizeSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadRequest, "gemini: decode tool schema", err)
	}
	delete(doc, "$ref")
	delete(doc, "$defs")
	delete(doc, "definitions")
	schema := &genai.Schema{Type: genai.TypeObject}
	if props, ok := doc["properties"].(map[string]any); ok {
		schema.Properties = map[string]*genai.Schema{}
		for name := range props {
			schema.Properties[name] = &genai.Schema{Type: genai.TypeString}
		}
	}
	if required, ok := doc["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema, nil
}

func convertMessages(msgs []gwmodel.Message) []genai.Part {
	var parts []genai.Part
	for _, m := range msgs {
		if m.Role == gwmodel.RoleSystem {
			continue
		}
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
	}
	return parts
}

func (c *Client) Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error) {
	gc, m, err := c.model(ctx, req, creds)
	if err != nil {
		return nil, err
	}
	defer gc.Close()
	resp, err := m.GenerateContent(ctx, convertMessages(req.Messages)...)
	if err != nil {
		return nil, translateError(err)
	}
	out := translateResponse(resp, req.Model)
	return &out, nil
}

func (c *Client) Stream(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (providers.Streamer, error) {
	gc, m, err := c.model(ctx, req, creds)
	if err != nil {
		return nil, err
	}
	iter := m.GenerateContentStream(ctx, convertMessages(req.Messages)...)
	return &streamer{client: gc, iter: iter, model: req.Model}, nil
}

func translateResponse(resp *genai.GenerateContentResponse, modelID string) gwmodel.ChatCompletionResponse {
	msg := gwmodel.Message{Role: gwmodel.RoleAssistant}
	var finish gwmodel.FinishReason = gwmodel.FinishStop
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				msg.Content += string(p)
			case genai.FunctionCall:
				args, _ := json.Marshal(p.Args)
				msg.ToolCalls = append(msg.ToolCalls, gwmodel.ToolCall{
					Type: gwmodel.ToolCallTypeFunction,
					Function: gwmodel.ToolCallFunction{
						Name:      p.Name,
						Arguments: string(args),
					},
				})
			}
		}
		if cand.FinishReason == genai.FinishReasonMaxTokens {
			finish = gwmodel.FinishLength
		} else if len(msg.ToolCalls) > 0 {
			finish = gwmodel.FinishToolCalls
		}
	}
	var usage gwmodel.Usage
	if resp.UsageMetadata != nil {
		usage = gwmodel.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}.Normalize()
	}
	return gwmodel.ChatCompletionResponse{
		Model: modelID,
		Choices: []gwmodel.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: usage,
	}
}

func translateError(err error) error {
	return gwerrors.Wrap(gwerrors.KindProviderServer, "gemini", err)
}

type streamer struct {
	client  *genai.Client
	iter    *genai.GenerateContentResponseIterator
	model   string
	closed  bool
}

func (s *streamer) Recv() (gwmodel.ChatCompletionChunk, error) {
	resp, err := s.iter.Next()
	if err == iterator.Done {
		return gwmodel.ChatCompletionChunk{}, io.EOF
	}
	if err != nil {
		return gwmodel.ChatCompletionChunk{}, translateError(err)
	}
	if len(resp.Candidates) == 0 {
		return gwmodel.ChatCompletionChunk{Type: gwmodel.ChunkContentDelta, Model: s.model}, nil
	}
	var delta string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			delta += string(t)
		}
	}
	return gwmodel.ChatCompletionChunk{
		Type:         gwmodel.ChunkContentDelta,
		Model:        s.model,
		ContentDelta: delta,
	}, nil
}

func (s *streamer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
