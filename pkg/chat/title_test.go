package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTitleShortMessageUnchanged(t *testing.T) {
	assert.Equal(t, "Hi", DeriveTitle("Hi"))
	assert.Equal(t, "What is 2+2?", DeriveTitle("What is 2+2?"))
}

func TestDeriveTitleLongMessageTruncated(t *testing.T) {
	msg := strings.Repeat("a", 50)
	title := DeriveTitle(msg)
	require.Equal(t, strings.Repeat("a", 30)+"...", title)
}

func TestDeriveTitleQuestionCutAtQuestionMark(t *testing.T) {
	msg := "Is this even real? I cannot tell anymore, honestly"
	title := DeriveTitle(msg)
	assert.Equal(t, "Is this even real...", title)
}

func TestDeriveTitleQuestionMarkBeyondLimit(t *testing.T) {
	msg := strings.Repeat("b", 45) + "?tail"
	title := DeriveTitle(msg)
	assert.Equal(t, strings.Repeat("b", 30)+"...", title)
}

func TestDeriveTitleFirstSentence(t *testing.T) {
	msg := "Short opening sentence. And then a much longer remainder follows here"
	assert.Equal(t, "Short opening sentence", DeriveTitle(msg))
}

func TestDeriveTitleLongFirstSentenceTruncated(t *testing.T) {
	msg := strings.Repeat("c", 40) + ". rest"
	assert.Equal(t, strings.Repeat("c", 27)+"...", DeriveTitle(msg))
}

func TestDeriveTitleTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "Hi", DeriveTitle("  Hi  "))
}

func TestDeriveTitleIsPure(t *testing.T) {
	msg := "Tell me about the history of computing and its pioneers"
	first := DeriveTitle(msg)
	second := DeriveTitle(msg)
	assert.Equal(t, first, second)
}
