package prompt

import (
	"strings"
	"testing"

	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmptyWindow(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, "", b.Build(nil))
	assert.Equal(t, "", b.Build([]*chat.Message{}))
}

func TestBuildThreeMessageWindow(t *testing.T) {
	b := NewBuilder()
	messages := []*chat.Message{
		chat.NewUserMessage(1, "hello"),
		chat.NewAssistantMessage(1, "hi there"),
		chat.NewUserMessage(1, "how are you"),
	}

	out := b.Build(messages)
	lines := strings.Split(out, "\n")

	require.Equal(t, "Previous conversation context:", lines[0])
	assert.Equal(t, "User: hello", lines[1])
	assert.Equal(t, "Assistant: hi there", lines[2])
	assert.Equal(t, "User: how are you", lines[3])
	assert.True(t, strings.HasSuffix(out, "\nCurrent conversation continues...\n"))
}

func TestBuildBoundsWindowToMaxMessages(t *testing.T) {
	b := NewBuilder(WithMaxMessages(2))
	messages := []*chat.Message{
		chat.NewUserMessage(1, "one"),
		chat.NewAssistantMessage(1, "two"),
		chat.NewUserMessage(1, "three"),
	}

	out := b.Build(messages)
	assert.NotContains(t, out, "User: one")
	assert.Contains(t, out, "Assistant: two")
	assert.Contains(t, out, "User: three")
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder()
	messages := []*chat.Message{
		chat.NewUserMessage(1, "same input"),
	}
	assert.Equal(t, b.Build(messages), b.Build(messages))
}
