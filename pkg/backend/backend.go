// Package backend defines the boundary to the generative model. The
// core hands over a prompt plus an optional context prefix and
// attachment reference, and treats any failure as a single opaque
// generation failure.
package backend

import (
	"context"

	"github.com/go-go-golems/grillo/pkg/chat"
)

// Request carries everything a generation call needs. Context is the
// already-rendered conversation prefix (may be empty).
type Request struct {
	Prompt     string
	Context    string
	Attachment *chat.Attachment
}

// FullPrompt is the context prefix followed by the prompt, the form most
// text-completion providers consume.
func (r Request) FullPrompt() string {
	if r.Context == "" {
		return r.Prompt
	}
	return r.Context + "\n" + r.Prompt
}

// Generator produces text from a prompt. Implementations own their
// transport, retries and timeouts; a timeout surfaces as an ordinary
// error.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
