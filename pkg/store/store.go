// Package store defines the persistence contract for conversations and
// messages. Implementations must make every write durable before its
// result is observable to other readers, and must make the cascading
// conversation delete appear atomic.
package store

import (
	"context"
	"time"

	"github.com/go-go-golems/grillo/pkg/chat"
)

// Store is the persistence boundary of the engine. Readers may call it
// concurrently; the session manager is the single writer path.
type Store interface {
	// CreateConversation inserts a new conversation with a generated id.
	CreateConversation(ctx context.Context, title string) (*chat.Conversation, error)
	// GetConversation returns chat.ErrNotFound when the id is absent.
	GetConversation(ctx context.Context, id int64) (*chat.Conversation, error)
	// ListConversations returns all conversations, descending by
	// LastMessageAt.
	ListConversations(ctx context.Context) ([]*chat.Conversation, error)
	// UpdateConversation replaces the stored row by id. It is a no-op
	// when the id is absent; callers fetch-then-update.
	UpdateConversation(ctx context.Context, conversation *chat.Conversation) error
	// UpdateLastMessageTime bumps the conversation's LastMessageAt.
	UpdateLastMessageTime(ctx context.Context, id int64, timestamp time.Time) error
	// DeleteConversation removes the conversation and all of its messages
	// atomically.
	DeleteConversation(ctx context.Context, id int64) error

	// AppendMessage inserts a message and returns its generated id. The
	// stored timestamp is never earlier than the conversation's latest
	// message, so per-conversation order is insertion order.
	AppendMessage(ctx context.Context, msg *chat.Message) (int64, error)
	// ListMessages returns all messages of a conversation, ascending by
	// timestamp.
	ListMessages(ctx context.Context, conversationID int64) ([]*chat.Message, error)
	// ListRecentMessages returns at most limit of the most recent
	// messages, still in ascending order. Point-in-time read.
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*chat.Message, error)
	// CountMessages returns the number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	// CountMessagesBySender counts messages from one sender. The session
	// manager uses this as the authoritative first-user-message check.
	CountMessagesBySender(ctx context.Context, conversationID int64, sender chat.Sender) (int, error)

	Close() error
}
