package responses

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
)

func TestToChatCompletionPrependsInstructionsAsSystemMessage(t *testing.T) {
	req := Request{
		Model:        "gpt-4o",
		Instructions: "be concise",
		Input:        []TurnItem{{Type: ItemMessage, Role: gwmodel.RoleUser, Content: "hi"}},
	}
	out, err := ToChatCompletion(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	require.Equal(t, gwmodel.RoleSystem, out.Messages[0].Role)
	require.Equal(t, "be concise", out.Messages[0].Content)
	require.Equal(t, gwmodel.RoleUser, out.Messages[1].Role)
}

func TestToChatCompletionDefaultsMissingRoleToUser(t *testing.T) {
	req := Request{Model: "gpt-4o", Input: []TurnItem{{Type: ItemMessage, Content: "hi"}}}
	out, err := ToChatCompletion(req)
	require.NoError(t, err)
	require.Equal(t, gwmodel.RoleUser, out.Messages[0].Role)
}

func TestToChatCompletionRejectsEmptyUserMessage(t *testing.T) {
	req := Request{Model: "gpt-4o", Input: []TurnItem{{Type: ItemMessage, Role: gwmodel.RoleUser, Content: ""}}}
	_, err := ToChatCompletion(req)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindBadRequest, gwErr.Kind)
}

func TestToChatCompletionAllowsEmptyAssistantMessage(t *testing.T) {
	req := Request{Model: "gpt-4o", Input: []TurnItem{{Type: ItemMessage, Role: gwmodel.RoleAssistant, Content: ""}}}
	out, err := ToChatCompletion(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
}

func TestToChatCompletionRoundTripsFunctionCallAndOutput(t *testing.T) {
	req := Request{
		Model: "gpt-4o",
		Input: []TurnItem{
			{Type: ItemMessage, Role: gwmodel.RoleUser, Content: "what's the weather"},
			{Type: ItemFunctionCall, CallID: "call_1", Name: "get_weather", Arguments: `{"city":"nyc"}`},
			{Type: ItemFunctionCallOutput, CallID: "call_1", Output: `{"temp_f":72}`},
		},
	}
	out, err := ToChatCompletion(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 3)
	require.Equal(t, gwmodel.RoleAssistant, out.Messages[1].Role)
	require.Equal(t, "get_weather", out.Messages[1].ToolCalls[0].Function.Name)
	require.Equal(t, gwmodel.RoleTool, out.Messages[2].Role)
	require.Equal(t, "call_1", out.Messages[2].ToolCallID)
}

func TestToChatCompletionRejectsFunctionCallOutputWithUnknownCallID(t *testing.T) {
	req := Request{
		Model: "gpt-4o",
		Input: []TurnItem{{Type: ItemFunctionCallOutput, CallID: "never-called", Output: "{}"}},
	}
	_, err := ToChatCompletion(req)
	require.Error(t, err)
}

func TestToChatCompletionRejectsUnknownItemType(t *testing.T) {
	req := Request{Model: "gpt-4o", Input: []TurnItem{{Type: "bogus"}}}
	_, err := ToChatCompletion(req)
	require.Error(t, err)
}

func TestFromChatCompletionEmptyChoicesReturnsBareResponse(t *testing.T) {
	resp := &gwmodel.ChatCompletionResponse{ID: "resp_1", Model: "gpt-4o"}
	out := FromChatCompletion(resp)
	require.Equal(t, "resp_1", out.ID)
	require.Empty(t, out.Output)
}

func TestFromChatCompletionProjectsMessageAndToolCalls(t *testing.T) {
	resp := &gwmodel.ChatCompletionResponse{
		ID:    "resp_2",
		Model: "gpt-4o",
		Choices: []gwmodel.Choice{{Message: gwmodel.Message{
			Role:    gwmodel.RoleAssistant,
			Content: "let me check",
			ToolCalls: []gwmodel.ToolCall{{
				ID:       "call_1",
				Function: gwmodel.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"nyc"}`},
			}},
		}}},
		Usage: gwmodel.Usage{TotalTokens: 20},
	}
	out := FromChatCompletion(resp)
	require.Len(t, out.Output, 2)
	require.Equal(t, ItemMessage, out.Output[0].Type)
	require.Equal(t, "let me check", out.Output[0].Content)
	require.Equal(t, ItemFunctionCall, out.Output[1].Type)
	require.Equal(t, "get_weather", out.Output[1].Name)
	require.Equal(t, 20, out.Usage.TotalTokens)
}
