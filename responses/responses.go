// Package responses translates between the turn-based Responses API shape
// (spec §6's `POST /v1/responses`) and gwmodel.ChatCompletionRequest, so
// the gateway's single set of provider adapters serves both wire formats
// without a second executor or routing path.
package responses

import (
	"fmt"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
)

// ItemType discriminates the concrete shape of a TurnItem.
type ItemType string

const (
	ItemMessage           ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
)

// TurnItem is one entry of a Responses API input or output array. Exactly
// the fields matching Type are populated.
type TurnItem struct {
	Type ItemType `json:"type"`

	// Message fields.
	Role    gwmodel.Role `json:"role,omitempty"`
	Content string       `json:"content,omitempty"`

	// FunctionCall fields: the model requesting a tool invocation.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// FunctionCallOutput fields: the caller supplying a tool result back.
	Output string `json:"output,omitempty"`
}

// Request is the gateway's unified representation of a Responses API call.
type Request struct {
	Model               string            `json:"model"`
	Instructions        string            `json:"instructions,omitempty"`
	Input               []TurnItem        `json:"input"`
	Tools               []gwmodel.ToolSpec `json:"tools,omitempty"`
	ToolChoice          *gwmodel.ToolChoice `json:"tool_choice,omitempty"`
	Temperature         *float64          `json:"temperature,omitempty"`
	TopP                *float64          `json:"top_p,omitempty"`
	MaxOutputTokens     *int              `json:"max_output_tokens,omitempty"`
	Stream              bool              `json:"stream,omitempty"`
	PreviousResponseID  string            `json:"previous_response_id,omitempty"`
}

// Response is the gateway's unified Responses API result.
type Response struct {
	ID     string       `json:"id"`
	Model  string       `json:"model"`
	Output []TurnItem   `json:"output"`
	Usage  gwmodel.Usage `json:"usage"`
	Cost   *gwmodel.Cost `json:"cost,omitempty"`
}

// ToChatCompletion converts req into the request shape every provider
// adapter understands: instructions become a leading system message, and
// each input item becomes a user/assistant/tool message in order.
func ToChatCompletion(req Request) (*gwmodel.ChatCompletionRequest, error) {
	var messages []gwmodel.Message
	if req.Instructions != "" {
		messages = append(messages, gwmodel.Message{Role: gwmodel.RoleSystem, Content: req.Instructions})
	}

	pendingCalls := map[string]gwmodel.ToolCall{}
	for i, item := range req.Input {
		switch item.Type {
		case ItemMessage:
			if item.Content == "" && item.Role != gwmodel.RoleAssistant {
				return nil, gwerrors.New(gwerrors.KindBadRequest, fmt.Sprintf("responses: input[%d] message has empty content", i))
			}
			role := item.Role
			if role == "" {
				role = gwmodel.RoleUser
			}
			messages = append(messages, gwmodel.Message{Role: role, Content: item.Content})

		case ItemFunctionCall:
			call := gwmodel.ToolCall{
				ID:   item.CallID,
				Type: gwmodel.ToolCallTypeFunction,
				Function: gwmodel.ToolCallFunction{
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			}
			pendingCalls[item.CallID] = call
			messages = append(messages, gwmodel.Message{
				Role:      gwmodel.RoleAssistant,
				ToolCalls: []gwmodel.ToolCall{call},
			})

		case ItemFunctionCallOutput:
			if _, ok := pendingCalls[item.CallID]; !ok {
				return nil, gwerrors.New(gwerrors.KindBadRequest, fmt.Sprintf("responses: input[%d] function_call_output references unknown call_id %q", i, item.CallID))
			}
			messages = append(messages, gwmodel.Message{
				Role:       gwmodel.RoleTool,
				Content:    item.Output,
				ToolCallID: item.CallID,
			})

		default:
			return nil, gwerrors.New(gwerrors.KindBadRequest, fmt.Sprintf("responses: input[%d] has unknown type %q", i, item.Type))
		}
	}

	return &gwmodel.ChatCompletionRequest{
		Model:          req.Model,
		Messages:       messages,
		Tools:          req.Tools,
		ToolChoice:     req.ToolChoice,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		MaxTokens:      req.MaxOutputTokens,
		Stream:         req.Stream,
	}, nil
}

// FromChatCompletion projects a ChatCompletionResponse back into the
// turn-based output shape: the first choice's assistant message becomes a
// message item plus one function_call item per requested tool call.
func FromChatCompletion(resp *gwmodel.ChatCompletionResponse) Response {
	out := Response{ID: resp.ID, Model: resp.Model, Usage: resp.Usage, Cost: resp.Cost}
	if len(resp.Choices) == 0 {
		return out
	}

	msg := resp.Choices[0].Message
	if msg.Content != "" {
		out.Output = append(out.Output, TurnItem{Type: ItemMessage, Role: gwmodel.RoleAssistant, Content: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		out.Output = append(out.Output, TurnItem{
			Type:      ItemFunctionCall,
			CallID:    call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}
