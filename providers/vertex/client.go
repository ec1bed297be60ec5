// Package vertex adapts gwmodel requests to Gemini models served through
// Google Cloud Vertex AI. It uses the genai client library like
// providers/gemini but with its own, smaller mapping: temperature, the
// system instruction (the last system message) and message text; tools and
// max_tokens are not mapped. It authenticates with a service-account JSON
// key when one is given and targets the location's Vertex AI endpoint; the
// project ID must be set but is not sent.
package vertex

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/providers"
)

func init() {
	providers.Register(gwmodel.ProviderVertex, func(meta gwmodel.ModelMetadata) (providers.Adapter, error) {
		return &Client{meta: meta}, nil
	})
}

// Client implements providers.Adapter on top of Vertex AI's Gemini endpoint.
type Client struct {
	meta gwmodel.ModelMetadata
}

func (c *Client) newGenaiClient(ctx context.Context, creds gwmodel.Credentials) (*genai.Client, error) {
	if creds.VertexProjectID == "" || creds.VertexLocation == "" {
		return nil, gwerrors.New(gwerrors.KindProviderAuth, "vertex: project and location are required")
	}
	endpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", creds.VertexLocation)
	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if len(creds.VertexSAJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(creds.VertexSAJSON))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindProviderAuth, "vertex: new client", err)
	}
	return client, nil
}

func (c *Client) Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error) {
	gc, err := c.newGenaiClient(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer gc.Close()
	modelID := req.Model
	if meta.InferenceModelName != "" {
		modelID = meta.InferenceModelName
	}
	m := gc.GenerativeModel(modelID)
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		m.Temperature = &t
	}
	parts := make([]genai.Part, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == gwmodel.RoleSystem {
			m.SystemInstruction = genai.NewUserContent(genai.Text(msg.Content))
			continue
		}
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindProviderServer, "vertex", err)
	}
	out := translateResponse(resp, modelID)
	return &out, nil
}

func (c *Client) Stream(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (providers.Streamer, error) {
	return nil, gwerrors.New(gwerrors.KindBadRequest, "vertex: streaming is not yet supported by this adapter")
}

func translateResponse(resp *genai.GenerateContentResponse, modelID string) gwmodel.ChatCompletionResponse {
	msg := gwmodel.Message{Role: gwmodel.RoleAssistant}
	finish := gwmodel.FinishStop
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				msg.Content += string(t)
			}
		}
		if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
			finish = gwmodel.FinishLength
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
