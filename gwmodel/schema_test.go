package gwmodel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwerrors"
)

func TestValidateToolCallArgumentsNoSchemaAlwaysPasses(t *testing.T) {
	spec := ToolSpec{Name: "lookup"}
	require.NoError(t, ValidateToolCallArguments(spec, json.RawMessage(`{"anything":true}`)))
}

func TestValidateToolCallArgumentsMatchingSchema(t *testing.T) {
	spec := ToolSpec{
		Name: "lookup",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"q": {"type": "string"}},
			"required": ["q"]
		}`),
	}
	require.NoError(t, ValidateToolCallArguments(spec, json.RawMessage(`{"q":"x"}`)))
}

func TestValidateToolCallArgumentsRejectsMismatch(t *testing.T) {
	spec := ToolSpec{
		Name: "lookup",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"q": {"type": "string"}},
			"required": ["q"]
		}`),
	}
	err := ValidateToolCallArguments(spec, json.RawMessage(`{"q": 5}`))
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindToolArgumentParse, gwErr.Kind)
}

func TestValidateToolCallArgumentsRejectsMissingRequired(t *testing.T) {
	spec := ToolSpec{
		Name: "lookup",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"q": {"type": "string"}},
			"required": ["q"]
		}`),
	}
	err := ValidateToolCallArguments(spec, json.RawMessage(`{}`))
	require.Error(t, err)
}
