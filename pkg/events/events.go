// Package events distributes store and session change notifications to
// observers over an in-process watermill pub/sub. Subscribers are
// expected to re-read the store on change, which gives every observer an
// eventually consistent view of committed state.
package events

import "encoding/json"

const (
	// TopicConversations carries ConversationsChanged events whenever the
	// conversation list (membership, titles, ordering) changes.
	TopicConversations = "chat.conversations"
	// TopicMessages carries MessagesChanged events after every committed
	// message append or cascade delete.
	TopicMessages = "chat.messages"
	// TopicState carries PendingChanged events around a generation call.
	TopicState = "chat.state"
	// TopicErrors carries GenerationFailed events.
	TopicErrors = "chat.errors"
)

type ConversationsChanged struct{}

type MessagesChanged struct {
	ConversationID int64 `json:"conversationId"`
}

type PendingChanged struct {
	Pending bool `json:"pending"`
}

type GenerationFailed struct {
	// ID correlates the notification with the failure it reports, so
	// observers can dismiss each failure exactly once.
	ID             string `json:"id"`
	ConversationID int64  `json:"conversationId"`
	Message        string `json:"message"`
}

// Decode unmarshals an event payload into the given event struct.
func Decode(payload []byte, v interface{}) error {
	return json.Unmarshal(payload, v)
}
