package gwmodel

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/vllora/gateway/gwerrors"
)

// ValidateToolCallArguments checks a tool call's (already JSON-valid)
// arguments against the tool's declared JSON Schema. A ToolSpec without
// Parameters set is treated as schema-free and always passes. Grounded on
// goa-ai's registry.validatePayloadJSONAgainstSchema, which compiles the
// schema with jsonschema.NewCompiler on every call rather than caching a
// compiled *jsonschema.Schema, since tool specs vary per request and the
// tool loop's call volume doesn't warrant a compilation cache.
func ValidateToolCallArguments(spec ToolSpec, arguments json.RawMessage) error {
	if len(spec.Parameters) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(spec.Parameters, &schemaDoc); err != nil {
		return gwerrors.Wrap(gwerrors.KindToolArgumentParse, "tool "+spec.Name+" has an invalid parameters schema", err)
	}
	var argsDoc any
	if err := json.Unmarshal(arguments, &argsDoc); err != nil {
		return gwerrors.Wrap(gwerrors.KindToolArgumentParse, "unmarshal tool call arguments", err)
	}

	c := jsonschema.NewCompiler()
	resource := "tool:" + spec.Name
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return gwerrors.Wrap(gwerrors.KindToolArgumentParse, "add schema resource for tool "+spec.Name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindToolArgumentParse, "compile parameters schema for tool "+spec.Name, err)
	}
	if err := schema.Validate(argsDoc); err != nil {
		return gwerrors.Wrap(gwerrors.KindToolArgumentParse, fmt.Sprintf("arguments for tool %s do not match its schema", spec.Name), err)
	}
	return nil
}
