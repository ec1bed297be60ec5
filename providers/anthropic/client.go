// Package anthropic adapts gwmodel requests to the Anthropic Claude Messages
// API using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/providers"
)

func init() {
	providers.Register(gwmodel.ProviderAnthropic, func(meta gwmodel.ModelMetadata) (providers.Adapter, error) {
		return &Client{meta: meta}, nil
	})
}

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements providers.Adapter on top of the Claude Messages API.
type Client struct {
	meta gwmodel.ModelMetadata
	msg  MessagesClient
}

func (c *Client) messages(creds gwmodel.Credentials) MessagesClient {
	if c.msg != nil {
		return c.msg
	}
	ac := sdk.NewClient(option.WithAPIKey(creds.APIKey))
	return &ac.Messages
}

// Complete issues a non-streaming Messages.New call and translates the
// response into the gateway's unified response shape.
func (c *Client) Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error) {
	params, err := mapRequest(req, meta)
	if err != nil {
		return nil, err
	}
	msg, err := c.messages(creds).New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	resp := translateMessage(msg, req.Model)
	return &resp, nil
}

// Stream issues Messages.NewStreaming and adapts incremental events into
// gwmodel chunks.
func (c *Client) Stream(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (providers.Streamer, error) {
	params, err := mapRequest(req, meta)
	if err != nil {
		return nil, err
	}
	stream := c.messages(creds).NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return &streamer{stream: stream, model: req.Model}, nil
}

func mapRequest(req *gwmodel.ChatCompletionRequest, meta gwmodel.ModelMetadata) (sdk.MessageNewParams, error) {
	modelID := req.Model
	if meta.InferenceModelName != "" {
		modelID = meta.InferenceModelName
	}
	maxTokens := int64(1024)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	var system string
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case gwmodel.RoleSystem:
			system += m.Content + "\n"
		case gwmodel.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case gwmodel.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case gwmodel.RoleTool:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	for _, t := range req.Tools {
		schema, err := toolInputSchema(t)
		if err != nil {
			return params, err
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParamOfTool(schema, t.Name))
	}
	return params, nil
}

func toolInputSchema(t gwmodel.ToolSpec) (sdk.ToolInputSchemaParam, error) {
	var props map[string]any
	if len(t.Parameters) > 0 {
		if err := json.Unmarshal(t.Parameters, &props); err != nil {
			return sdk.ToolInputSchemaParam{}, gwerrors.Wrap(gwerrors.KindBadRequest, fmt.Sprintf("tool %s schema", t.Name), err)
		}
	}
	return sdk.ToolInputSchemaParam{Properties: props}, nil
}

func translateMessage(msg *sdk.Message, modelID string) gwmodel.ChatCompletionResponse {
	out := gwmodel.Message{Role: gwmodel.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, gwmodel.ToolCall{
				ID:   block.ID,
				Type: gwmodel.ToolCallTypeFunction,
				Function: gwmodel.ToolCallFunction{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}
	finish := gwmodel.FinishStop
	switch msg.StopReason {
	case "max_tokens":
		finish = gwmodel.FinishLength
	case "tool_use":
		finish = gwmodel.FinishToolCalls
	}
	usage := gwmodel.Usage{
		InputTokens:            int(msg.Usage.InputTokens),
		OutputTokens:           int(msg.Usage.OutputTokens),
		CachedInputTokens:      int(msg.Usage.CacheReadInputTokens),
		CachedInputWriteTokens: int(msg.Usage.CacheCreationInputTokens),
	}.Normalize()
	return gwmodel.ChatCompletionResponse{
		ID:    msg.ID,
		Model: modelID,
		Choices: []gwmodel.Choice{{
			Index:        0,
			Message:      out,
			FinishReason: finish,
		}},
		Usage: usage,
	}
}

func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		switch {
		case status == 401:
			return gwerrors.Wrap(gwerrors.KindProviderAuth, "anthropic", err)
		case status == 429:
			return gwerrors.Wrap(gwerrors.KindRateLimitExceeded, "anthropic", err)
		case status == 400:
			return gwerrors.Wrap(gwerrors.KindProviderInvalid, "anthropic", err)
		case status >= 500:
			return gwerrors.Wrap(gwerrors.KindProviderServer, "anthropic", err)
		}
	}
	return gwerrors.Wrap(gwerrors.KindNetwork, "anthropic", err)
}

// streamer adapts an Anthropic SSE event stream into gwmodel chunks.
type streamer struct {
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
	model      string
	msgID      string
	sentFinish bool
}

func (s *streamer) Recv() (gwmodel.ChatCompletionChunk, error) {
	for s.stream.Next() {
		ev := s.stream.Current()
		switch variant := ev.AsAny().(type) {
		case sdk.MessageStartEvent:
			s.msgID = variant.Message.ID
			continue
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := variant.Delta.AsAny().(sdk.TextDelta); ok {
				return gwmodel.ChatCompletionChunk{
					Type:         gwmodel.ChunkContentDelta,
					ID:           s.msgID,
					Model:        s.model,
					ContentDelta: delta.Text,
				}, nil
			}
			continue
		case sdk.MessageDeltaEvent:
			usage := gwmodel.Usage{OutputTokens: int(variant.Usage.OutputTokens)}.Normalize()
			return gwmodel.ChatCompletionChunk{
				Type:  gwmodel.ChunkUsage,
				ID:    s.msgID,
				Model: s.model,
				Usage: &usage,
			}, nil
		case sdk.MessageStopEvent:
			s.sentFinish = true
			return gwmodel.ChatCompletionChunk{
				Type:         gwmodel.ChunkFinish,
				ID:           s.msgID,
				Model:        s.model,
				FinishReason: gwmodel.FinishStop,
			}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return gwmodel.ChatCompletionChunk{}, translateError(err)
	}
	return gwmodel.ChatCompletionChunk{}, io.EOF
}

func (s *streamer) Close() error {
	return s.stream.Close()
}
