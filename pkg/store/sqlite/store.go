// Package sqlite provides the SQLite-backed store implementation. The
// layout is two related tables, messages owned by conversations through
// an ON DELETE CASCADE foreign key.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	createdAt INTEGER NOT NULL,
	lastMessageAt INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversationId INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender TEXT NOT NULL CHECK (sender IN ('user', 'assistant')),
	text TEXT NOT NULL,
	imageUri TEXT,
	fileUri TEXT,
	fileName TEXT,
	fileType TEXT,
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversationId ON messages(conversationId);
`

type Store struct {
	db       *sqlx.DB
	notifier *events.Notifier
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

type StoreOption func(*Store)

// WithNotifier makes the store publish change events after each
// committed write.
func WithNotifier(n *events.Notifier) StoreOption {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithClock overrides the timestamp source. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// New opens (or creates) the database at dsn and applies the schema.
// Use ":memory:" for an ephemeral store.
func New(dsn string, options ...StoreOption) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", dsn)
	}

	// A single connection keeps :memory: databases coherent and lets
	// SQLite serialize the writer path on its own.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	ret := &Store{
		db:  db,
		now: time.Now,
	}
	for _, option := range options {
		option(ret)
	}

	return ret, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type conversationRow struct {
	ID            int64  `db:"id"`
	Title         string `db:"title"`
	CreatedAt     int64  `db:"createdAt"`
	LastMessageAt int64  `db:"lastMessageAt"`
}

func (r *conversationRow) toConversation() *chat.Conversation {
	return &chat.Conversation{
		ID:            r.ID,
		Title:         r.Title,
		CreatedAt:     time.UnixMilli(r.CreatedAt),
		LastMessageAt: time.UnixMilli(r.LastMessageAt),
	}
}

type messageRow struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversationId"`
	Sender         string         `db:"sender"`
	Text           string         `db:"text"`
	ImageURI       sql.NullString `db:"imageUri"`
	FileURI        sql.NullString `db:"fileUri"`
	FileName       sql.NullString `db:"fileName"`
	FileType       sql.NullString `db:"fileType"`
	Timestamp      int64          `db:"timestamp"`
}

func (r *messageRow) toMessage() *chat.Message {
	msg := &chat.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Sender:         chat.Sender(r.Sender),
		Text:           r.Text,
		Timestamp:      time.UnixMilli(r.Timestamp),
	}

	switch {
	case r.ImageURI.Valid:
		msg.Attachment = &chat.Attachment{
			Kind: chat.AttachmentImage,
			URI:  r.ImageURI.String,
		}
	case r.FileURI.Valid:
		msg.Attachment = &chat.Attachment{
			Kind:      chat.AttachmentFile,
			URI:       r.FileURI.String,
			Name:      r.FileName.String,
			MediaType: r.FileType.String,
		}
	}

	return msg
}

func (s *Store) CreateConversation(ctx context.Context, title string) (*chat.Conversation, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (title, createdAt, lastMessageAt) VALUES (?, ?, ?)",
		title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert conversation")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation id")
	}

	log.Debug().Int64("conversation_id", id).Str("title", title).Msg("created conversation")
	s.publishBlind(events.TopicConversations, &events.ConversationsChanged{})

	return &chat.Conversation{
		ID:            id,
		Title:         title,
		CreatedAt:     time.UnixMilli(now.UnixMilli()),
		LastMessageAt: time.UnixMilli(now.UnixMilli()),
	}, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, title, createdAt, lastMessageAt FROM conversations WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get conversation %d", id)
	}

	return row.toConversation(), nil
}

func (s *Store) ListConversations(ctx context.Context) ([]*chat.Conversation, error) {
	var rows []conversationRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, title, createdAt, lastMessageAt FROM conversations ORDER BY lastMessageAt DESC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}

	ret := make([]*chat.Conversation, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].toConversation())
	}
	return ret, nil
}

func (s *Store) UpdateConversation(ctx context.Context, conversation *chat.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, createdAt = ?, lastMessageAt = ? WHERE id = ?",
		conversation.Title,
		conversation.CreatedAt.UnixMilli(),
		conversation.LastMessageAt.UnixMilli(),
		conversation.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update conversation %d", conversation.ID)
	}

	s.publishBlind(events.TopicConversations, &events.ConversationsChanged{})
	return nil
}

func (s *Store) UpdateLastMessageTime(ctx context.Context, id int64, timestamp time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET lastMessageAt = ? WHERE id = ?",
		timestamp.UnixMilli(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to update last message time for conversation %d", id)
	}

	s.publishBlind(events.TopicConversations, &events.ConversationsChanged{})
	return nil
}

// DeleteConversation removes the conversation and its messages in one
// transaction, so readers never observe a partially deleted state.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin delete transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversationId = ?", id); err != nil {
		return errors.Wrapf(err, "failed to delete messages for conversation %d", id)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete conversation %d", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get delete row count")
	}
	if affected == 0 {
		return chat.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit delete transaction")
	}

	log.Debug().Int64("conversation_id", id).Msg("deleted conversation")
	s.publishBlind(events.TopicConversations, &events.ConversationsChanged{})
	s.publishBlind(events.TopicMessages, &events.MessagesChanged{ConversationID: id})
	return nil
}

// AppendMessage inserts the message, clamping its timestamp so it never
// sorts before the conversation's latest message even if the wall clock
// stepped backwards.
func (s *Store) AppendMessage(ctx context.Context, msg *chat.Message) (int64, error) {
	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin append transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var latest sql.NullInt64
	err = tx.GetContext(ctx, &latest,
		"SELECT MAX(timestamp) FROM messages WHERE conversationId = ?", msg.ConversationID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read latest timestamp for conversation %d", msg.ConversationID)
	}
	if latest.Valid && timestamp.UnixMilli() < latest.Int64 {
		timestamp = time.UnixMilli(latest.Int64)
	}

	var imageURI, fileURI, fileName, fileType sql.NullString
	if att := msg.Attachment; att != nil {
		switch att.Kind {
		case chat.AttachmentImage:
			imageURI = sql.NullString{String: att.URI, Valid: true}
		case chat.AttachmentFile:
			fileURI = sql.NullString{String: att.URI, Valid: true}
			if att.Name != "" {
				fileName = sql.NullString{String: att.Name, Valid: true}
			}
			if att.MediaType != "" {
				fileType = sql.NullString{String: att.MediaType, Valid: true}
			}
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversationId, sender, text, imageUri, fileUri, fileName, fileType, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, string(msg.Sender), msg.Text,
		imageURI, fileURI, fileName, fileType, timestamp.UnixMilli())
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert message into conversation %d", msg.ConversationID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get message id")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit append transaction")
	}

	msg.ID = id
	msg.Timestamp = time.UnixMilli(timestamp.UnixMilli())

	log.Trace().
		Int64("message_id", id).
		Int64("conversation_id", msg.ConversationID).
		Str("sender", string(msg.Sender)).
		Msg("appended message")
	s.publishBlind(events.TopicMessages, &events.MessagesChanged{ConversationID: msg.ConversationID})

	return id, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]*chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, conversationId, sender, text, imageUri, fileUri, fileName, fileType, timestamp
		 FROM messages WHERE conversationId = ? ORDER BY timestamp ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages for conversation %d", conversationID)
	}

	ret := make([]*chat.Message, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].toMessage())
	}
	return ret, nil
}

func (s *Store) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, conversationId, sender, text, imageUri, fileUri, fileName, fileType, timestamp
		 FROM (
			SELECT * FROM messages WHERE conversationId = ? ORDER BY timestamp DESC, id DESC LIMIT ?
		 ) ORDER BY timestamp ASC, id ASC`,
		conversationID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list recent messages for conversation %d", conversationID)
	}

	ret := make([]*chat.Message, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].toMessage())
	}
	return ret, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM messages WHERE conversationId = ?", conversationID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count messages for conversation %d", conversationID)
	}
	return count, nil
}

func (s *Store) CountMessagesBySender(ctx context.Context, conversationID int64, sender chat.Sender) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM messages WHERE conversationId = ? AND sender = ?",
		conversationID, string(sender))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count %s messages for conversation %d", sender, conversationID)
	}
	return count, nil
}

func (s *Store) publishBlind(topic string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishBlind(topic, payload)
}
