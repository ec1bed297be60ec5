// Package openaicompat adapts gwmodel requests to any OpenAI-compatible Chat
// Completions endpoint using github.com/openai/openai-go. Because many
// providers (OpenAI itself, Azure OpenAI, Groq, Together, local vLLM/Ollama
// gateways) expose the same wire shape, this single adapter is reused by
// pointing it at different base URLs via gwmodel.ModelMetadata.Endpoint.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/providers"
)

func init() {
	providers.Register(gwmodel.ProviderOpenAICompatible, func(meta gwmodel.ModelMetadata) (providers.Adapter, error) {
		return &Client{meta: meta}, nil
	})
}

// Client implements providers.Adapter on top of the Chat Completions API.
type Client struct {
	meta gwmodel.ModelMetadata
}

func (c *Client) client(creds gwmodel.Credentials) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if c.meta.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(c.meta.Endpoint))
	}
	cl := openai.NewClient(opts...)
	return &cl
}

func (c *Client) Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error) {
	params, err := mapRequest(req, meta)
	if err != nil {
		return nil, err
	}
	resp, err := c.client(creds).Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	out := translateResponse(resp)
	return &out, nil
}

func (c *Client) Stream(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (providers.Streamer, error) {
	params, err := mapRequest(req, meta)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := c.client(creds).Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return &streamer{stream: stream, model: req.Model}, nil
}

// Embed implements providers.EmbeddingAdapter over the OpenAI-compatible
// Embeddings API. Grounded on taipm-go-deep-agent's
// agent/embedding_openai.go: OfArrayOfStrings input union, one request per
// call (no per-text batching split here since EmbeddingRequest.Input is
// already batched by the caller).
func (c *Client) Embed(ctx context.Context, req *gwmodel.EmbeddingRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.EmbeddingResponse, error) {
	modelID := req.Model
	if meta.InferenceModelName != "" {
		modelID = meta.InferenceModelName
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(modelID),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Input},
	}
	if req.EncodingFormat != "" {
		params.EncodingFormat = openai.EmbeddingNewParamsEncodingFormat(req.EncodingFormat)
	}
	if req.Dimensions != nil {
		params.Dimensions = openai.Int(int64(*req.Dimensions))
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}
	resp, err := c.client(creds).Embeddings.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	out := &gwmodel.EmbeddingResponse{
		Model:      resp.Model,
		Embeddings: make([]gwmodel.Embedding, 0, len(resp.Data)),
		Usage: gwmodel.Usage{
			InputTokens: int(resp.Usage.PromptTokens),
		}.Normalize(),
	}
	for _, d := range resp.Data {
		out.Embeddings = append(out.Embeddings, gwmodel.Embedding{Index: int(d.Index), Vector: d.Embedding})
	}
	return out, nil
}

// GenerateImage implements providers.ImageAdapter over the OpenAI-compatible
// Images API.
func (c *Client) GenerateImage(ctx context.Context, req *gwmodel.ImageGenerationRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ImageGenerationResponse, error) {
	modelID := req.Model
	if meta.InferenceModelName != "" {
		modelID = meta.InferenceModelName
	}
	params := openai.ImageGenerateParams{
		Model:  openai.ImageModel(modelID),
		Prompt: req.Prompt,
	}
	if req.N > 0 {
		params.N = openai.Int(int64(req.N))
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}
	resp, err := c.client(creds).Images.Generate(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	out := &gwmodel.ImageGenerationResponse{
		Model:   modelID,
		Created: resp.Created,
		Images:  make([]gwmodel.GeneratedImage, 0, len(resp.Data)),
	}
	for _, d := range resp.Data {
		out.Images = append(out.Images, gwmodel.GeneratedImage{URL: d.URL, B64JSON: d.B64JSON})
	}
	return out, nil
}

func mapRequest(req *gwmodel.ChatCompletionRequest, meta gwmodel.ModelMetadata) (openai.ChatCompletionNewParams, error) {
	modelID := req.Model
	if meta.InferenceModelName != "" {
		modelID = meta.InferenceModelName
	}
	params := openai.ChatCompletionNewParams{
		Model: modelID,
	}
	for _, m := range req.Messages {
		msg, err := mapMessage(m)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, msg)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.Stop,
		}
	}
	for _, t := range req.Tools {
		var schema map[string]any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return params, gwerrors.Wrap(gwerrors.KindBadRequest, "tool "+t.Name+" schema", err)
			}
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(schema),
			},
		})
	}
	return params, nil
}

func mapMessage(m gwmodel.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case gwmodel.RoleSystem:
		return openai.SystemMessage(m.Content), nil
	case gwmodel.RoleUser:
		return openai.UserMessage(m.Content), nil
	case gwmodel.RoleAssistant:
		return openai.AssistantMessage(m.Content), nil
	case gwmodel.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, gwerrors.New(gwerrors.KindBadRequest, "unsupported message role: "+string(m.Role))
	}
}

func translateResponse(resp *openai.ChatCompletionResponse) gwmodel.ChatCompletionResponse {
	choices := make([]gwmodel.Choice, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		msg := gwmodel.Message{Role: gwmodel.RoleAssistant, Content: ch.Message.Content}
		for _, tc := range ch.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, gwmodel.ToolCall{
				ID:   tc.ID,
				Type: gwmodel.ToolCallTypeFunction,
				Function: gwmodel.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		choices = append(choices, gwmodel.Choice{
			Index:        int(ch.Index),
			Message:      msg,
			FinishReason: mapFinishReason(string(ch.FinishReason)),
		})
	}
	usage := gwmodel.Usage{
		InputTokens:       int(resp.Usage.PromptTokens),
		OutputTokens:      int(resp.Usage.CompletionTokens),
		CachedInputTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
		ReasoningTokens:   int(resp.Usage.CompletionTokensDetails.ReasoningTokens),
	}.Normalize()
	return gwmodel.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
		Choices: choices,
		Usage:   usage,
	}
}

func mapFinishReason(s string) gwmodel.FinishReason {
	switch s {
	case "length":
		return gwmodel.FinishLength
	case "tool_calls":
		return gwmodel.FinishToolCalls
	case "content_filter":
		return gwmodel.FinishContentFilter
	default:
		return gwmodel.FinishStop
	}
}

func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return gwerrors.Wrap(gwerrors.KindProviderAuth, "openai", err)
		case 404:
			return gwerrors.Wrap(gwerrors.KindModelNotFound, "openai", err)
		case 429:
			return gwerrors.Wrap(gwerrors.KindRateLimitExceeded, "openai", err)
		case 400:
			return gwerrors.Wrap(gwerrors.KindProviderInvalid, "openai", err)
		}
		if apiErr.StatusCode >= 500 {
			return gwerrors.Wrap(gwerrors.KindProviderServer, "openai", err)
		}
	}
	return gwerrors.Wrap(gwerrors.KindNetwork, "openai", err)
}

type streamer struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	model  string
}

func (s *streamer) Recv() (gwmodel.ChatCompletionChunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return gwmodel.ChatCompletionChunk{}, translateError(err)
		}
		return gwmodel.ChatCompletionChunk{}, io.EOF
	}
	chunk := s.stream.Current()
	if chunk.Usage.TotalTokens > 0 {
		usage := gwmodel.Usage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
		}.Normalize()
		return gwmodel.ChatCompletionChunk{Type: gwmodel.ChunkUsage, ID: chunk.ID, Model: s.model, Usage: &usage}, nil
	}
	if len(chunk.Choices) == 0 {
		return s.Recv()
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		return gwmodel.ChatCompletionChunk{
			Type:         gwmodel.ChunkFinish,
			ID:           chunk.ID,
			Model:        s.model,
			ChoiceIndex:  int(choice.Index),
			FinishReason: mapFinishReason(string(choice.FinishReason)),
		}, nil
	}
	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		idx := int(tc.Index)
		return gwmodel.ChatCompletionChunk{
			Type:        gwmodel.ChunkToolCallDelta,
			ID:          chunk.ID,
			Model:       s.model,
			ChoiceIndex: int(choice.Index),
			ToolCall: &gwmodel.ToolCall{
				ID:    tc.ID,
				Type:  gwmodel.ToolCallTypeFunction,
				Index: &idx,
				Function: gwmodel.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			},
		}, nil
	}
	return gwmodel.ChatCompletionChunk{
		Type:         gwmodel.ChunkContentDelta,
		ID:           chunk.ID,
		Model:        s.model,
		ChoiceIndex:  int(choice.Index),
		ContentDelta: choice.Delta.Content,
	}, nil
}

func (s *streamer) Close() error {
	return s.stream.Close()
}
