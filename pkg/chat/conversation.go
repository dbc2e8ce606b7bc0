package chat

import "time"

// DefaultTitle is given to a conversation at creation, before the first
// user message has been seen.
const DefaultTitle = "New Chat"

// Conversation is a titled, timestamped container of an ordered message
// history. LastMessageAt is bumped on every appended message and is never
// earlier than CreatedAt.
type Conversation struct {
	ID            int64     `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}
