package chat

import (
	"fmt"
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// AttachmentKind discriminates the attachment variant carried on a message.
// A message carries at most one attachment; the kind decides which of the
// URI-bearing fields is meaningful.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a reference to external content (an image or a file).
// Only the locator travels with the message; decoding the content is the
// backend's business.
type Attachment struct {
	Kind      AttachmentKind `json:"kind"`
	URI       string         `json:"uri"`
	Name      string         `json:"name,omitempty"`
	MediaType string         `json:"mediaType,omitempty"`
}

func (a *Attachment) String() string {
	if a == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.URI)
}

// Message is one turn in a conversation. Messages are immutable once
// stored; they are only ever removed through a cascading conversation
// delete.
type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID int64       `json:"conversationId" db:"conversationId"`
	Sender         Sender      `json:"sender" db:"sender"`
	Text           string      `json:"text" db:"text"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

type MessageOption func(*Message)

func WithAttachment(a *Attachment) MessageOption {
	return func(m *Message) {
		m.Attachment = a
	}
}

func WithTimestamp(t time.Time) MessageOption {
	return func(m *Message) {
		m.Timestamp = t
	}
}

func NewMessage(conversationID int64, sender Sender, text string, options ...MessageOption) *Message {
	ret := &Message{
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		Timestamp:      time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewUserMessage(conversationID int64, text string, options ...MessageOption) *Message {
	return NewMessage(conversationID, SenderUser, text, options...)
}

func NewAssistantMessage(conversationID int64, text string, options ...MessageOption) *Message {
	return NewMessage(conversationID, SenderAssistant, text, options...)
}

// IsFromUser reports whether the message was authored by the user.
func (m *Message) IsFromUser() bool {
	return m.Sender == SenderUser
}

func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Sender, strings.TrimRight(m.Text, "\n"))
}
