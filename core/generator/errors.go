package generator

import (
	"errors"
	"fmt"

	"github.com/irusland/pyroto/core/schema"
)

// ErrUnhandledElement is wrapped by every StructureError.
var ErrUnhandledElement = errors.New("unhandled schema element")

// StructureError reports a schema element the generator has no rendering
// for. Scope names where it was found ("module demo/echo.proto",
// "service Echo").
type StructureError struct {
	Scope string
	Kind  schema.ElementKind
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: unhandled %s element", e.Scope, e.Kind)
}

// Unwrap lets errors.Is match ErrUnhandledElement.
func (e *StructureError) Unwrap() error {
	return ErrUnhandledElement
}
