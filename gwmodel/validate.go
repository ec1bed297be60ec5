package gwmodel

import (
	"fmt"

	"github.com/vllora/gateway/gwerrors"
)

var (
	errEmptyMessages            = gwerrors.New(gwerrors.KindBadRequest, "messages must not be empty")
	errToolChoiceRequiredNoTools = gwerrors.New(gwerrors.KindBadRequest, "tool_choice=required but no tools were supplied")
)

func newInvalidMessageErr(index int) error {
	return gwerrors.New(gwerrors.KindBadRequest, fmt.Sprintf("messages[%d] has neither content nor tool_calls", index))
}

func newDuplicateToolNameErr(name string) error {
	return gwerrors.New(gwerrors.KindBadRequest, fmt.Sprintf("tool name %q is declared more than once", name))
}
