// Package bedrock adapts gwmodel requests to the AWS Bedrock Converse API
// using github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/providers"
)

func init() {
	providers.Register(gwmodel.ProviderBedrock, func(meta gwmodel.ModelMetadata) (providers.Adapter, error) {
		return &Client{meta: meta}, nil
	})
}

// RuntimeClient mirrors the subset of the Bedrock runtime client the
// adapter needs, matching *bedrockruntime.Client so tests can substitute a
// fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements providers.Adapter on top of Bedrock Converse.
type Client struct {
	meta    gwmodel.ModelMetadata
	runtime RuntimeClient
}

func (c *Client) client(ctx context.Context, creds gwmodel.Credentials) (RuntimeClient, error) {
	if c.runtime != nil {
		return c.runtime, nil
	}
	region := creds.AWSRegion
	if region == "" {
		return nil, gwerrors.New(gwerrors.KindProviderAuth, "bedrock: aws region is required")
	}
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(region))
	if creds.AWSAccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, creds.AWSSessionToken),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindProviderAuth, "bedrock: load aws config", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func (c *Client) Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error) {
	rt, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	input, err := mapRequest(req, meta)
	if err != nil {
		return nil, err
	}
	out, err := rt.Converse(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	resp := translateOutput(out, req.Model)
	return &resp, nil
}

func (c *Client) Stream(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (providers.Streamer, error) {
	rt, err := c.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	converseIn, err := mapRequest(req, meta)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:    converseIn.ModelId,
		Messages:   converseIn.Messages,
		System:     converseIn.System,
		ToolConfig: converseIn.ToolConfig,
	}
	out, err := rt.ConverseStream(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	return &streamer{stream: out.GetStream(), model: req.Model}, nil
}

func mapRequest(req *gwmodel.ChatCompletionRequest, meta gwmodel.ModelMetadata) (*bedrockruntime.ConverseInput, error) {
	modelID := req.Model
	if meta.InferenceModelName != "" {
		modelID = meta.InferenceModelName
	}
	var system []brtypes.SystemContentBlock
	var msgs []brtypes.Message
	for _, m := range req.Messages {
		block := brtypes.ContentBlockMemberText{Value: m.Content}
		switch m.Role {
		case gwmodel.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case gwmodel.RoleUser, gwmodel.RoleTool:
			msgs = append(msgs, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{&block}})
		case gwmodel.RoleAssistant:
			msgs = append(msgs, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: []brtypes.ContentBlock{&block}})
		}
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: msgs,
		System:   system,
	}
	inference := &brtypes.InferenceConfiguration{}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		inference.Temperature = &t
	}
	if req.MaxTokens != nil {
		m := int32(*req.MaxTokens)
		inference.MaxTokens = &m
	}
	input.InferenceConfig = inference

	if len(req.Tools) > 0 {
		toolConfig := &brtypes.ToolConfiguration{}
		for _, t := range req.Tools {
			var schema document.Interface
			if len(t.Parameters) > 0 {
				var props map[string]any
				if err := json.Unmarshal(t.Parameters, &props); err != nil {
					return nil, gwerrors.Wrap(gwerrors.KindBadRequest, "tool "+t.Name+" schema", err)
				}
				schema = document.NewLazyDocument(props)
			}
			toolConfig.Tools = append(toolConfig.Tools, &brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(t.Name),
					Description: aws.String(t.Description),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: schema},
				},
			})
		}
		input.ToolConfig = toolConfig
	}
	return input, nil
}

func translateOutput(out *bedrockruntime.ConverseOutput, modelID string) gwmodel.ChatCompletionResponse {
	msg := gwmodel.Message{Role: gwmodel.RoleAssistant}
	if member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range member.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				msg.Content += b.Value
			case *brtypes.ContentBlockMemberToolUse:
				raw, _ := json.Marshal(b.Value.Input)
				msg.ToolCalls = append(msg.ToolCalls, gwmodel.ToolCall{
					ID:   aws.ToString(b.Value.ToolUseId),
					Type: gwmodel.ToolCallTypeFunction,
					Function: gwmodel.ToolCallFunction{
						Name:      aws.ToString(b.Value.Name),
						Arguments: string(raw),
					},
				})
			}
		}
	}
	finish := gwmodel.FinishStop
	switch out.StopReason {
	case brtypes.StopReasonMaxTokens:
		finish = gwmodel.FinishLength
	case brtypes.StopReasonToolUse:
		finish = gwmodel.FinishToolCalls
	}
	var usage gwmodel.Usage
	if out.Usage != nil {
		usage = gwmodel.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
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
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException":
			return gwerrors.Wrap(gwerrors.KindRateLimitExceeded, "bedrock", err)
		case "ValidationException":
			return gwerrors.Wrap(gwerrors.KindProviderInvalid, "bedrock", err)
		case "AccessDeniedException", "UnrecognizedClientException":
			return gwerrors.Wrap(gwerrors.KindProviderAuth, "bedrock", err)
		case "ModelTimeoutException":
			return gwerrors.Wrap(gwerrors.KindTimeout, "bedrock", err)
		}
	}
	return gwerrors.Wrap(gwerrors.KindProviderServer, "bedrock", err)
}

type streamer struct {
	stream *bedrockruntime.ConverseStreamEventStream
	model  string
}

func (s *streamer) Recv() (gwmodel.ChatCompletionChunk, error) {
	for ev := range s.stream.Events() {
		switch v := ev.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			if d, ok := v.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
				return gwmodel.ChatCompletionChunk{
					Type:         gwmodel.ChunkContentDelta,
					Model:        s.model,
					ContentDelta: d.Value,
				}, nil
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			finish := gwmodel.FinishStop
			if v.Value.StopReason == brtypes.StopReasonToolUse {
				finish = gwmodel.FinishToolCalls
			}
			return gwmodel.ChatCompletionChunk{Type: gwmodel.ChunkFinish, Model: s.model, FinishReason: finish}, nil
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if v.Value.Usage != nil {
				usage := gwmodel.Usage{
					InputTokens:  int(aws.ToInt32(v.Value.Usage.InputTokens)),
					OutputTokens: int(aws.ToInt32(v.Value.Usage.OutputTokens)),
				}.Normalize()
				return gwmodel.ChatCompletionChunk{Type: gwmodel.ChunkUsage, Model: s.model, Usage: &usage}, nil
			}
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
