// Package prompt assembles the bounded context window that prefixes a
// generation request. The builder is a pure function of the message
// window it is given; it performs no I/O.
package prompt

import (
	"strings"

	"github.com/go-go-golems/grillo/pkg/chat"
)

// DefaultMaxContextMessages is the number of most recent messages
// included in the context window.
const DefaultMaxContextMessages = 10

const (
	contextHeader  = "Previous conversation context:\n"
	contextTrailer = "\nCurrent conversation continues...\n"
)

type Builder struct {
	maxMessages int
}

type BuilderOption func(*Builder)

func WithMaxMessages(n int) BuilderOption {
	return func(b *Builder) {
		b.maxMessages = n
	}
}

func NewBuilder(options ...BuilderOption) *Builder {
	ret := &Builder{
		maxMessages: DefaultMaxContextMessages,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// MaxMessages is the window size callers should request from the store.
func (b *Builder) MaxMessages() int {
	return b.maxMessages
}

// Build renders the window into a prompt prefix. An empty window yields
// an empty string so that no context block is emitted at all.
func (b *Builder) Build(messages []*chat.Message) string {
	if len(messages) == 0 {
		return ""
	}

	if len(messages) > b.maxMessages {
		messages = messages[len(messages)-b.maxMessages:]
	}

	var sb strings.Builder
	sb.WriteString(contextHeader)

	for _, msg := range messages {
		sb.WriteString(roleLabel(msg.Sender))
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}

	sb.WriteString(contextTrailer)
	return sb.String()
}

func roleLabel(sender chat.Sender) string {
	if sender == chat.SenderUser {
		return "User"
	}
	return "Assistant"
}
