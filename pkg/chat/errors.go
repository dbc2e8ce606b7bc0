package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when an operation references a conversation id
// that is no longer present. It is always recoverable.
var ErrNotFound = errors.New("conversation not found")

// GenerationError wraps a failure of the generative backend. The core
// treats the provider failure as opaque and only presents its message.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func NewGenerationError(err error) *GenerationError {
	return &GenerationError{Err: err}
}
