package gwmodel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwerrors"
)

func TestValidateRejectsEmptyMessages(t *testing.T) {
	req := ChatCompletionRequest{Model: "gpt-4o"}
	err := req.Validate()
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindBadRequest, gwErr.Kind)
}

func TestValidateRejectsDuplicateToolNames(t *testing.T) {
	req := ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools: []ToolSpec{
			{Name: "lookup"},
			{Name: "lookup"},
		},
	}
	err := req.Validate()
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindBadRequest, gwErr.Kind)
}

func TestValidateAcceptsDistinctToolNames(t *testing.T) {
	req := ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools: []ToolSpec{
			{Name: "lookup"},
			{Name: "search"},
		},
	}
	require.NoError(t, req.Validate())
}

func TestValidateRejectsToolChoiceRequiredWithoutTools(t *testing.T) {
	req := ChatCompletionRequest{
		Model:      "gpt-4o",
		Messages:   []Message{{Role: RoleUser, Content: "hi"}},
		ToolChoice: &ToolChoice{Mode: ToolChoiceRequired},
	}
	err := req.Validate()
	require.Error(t, err)
}
