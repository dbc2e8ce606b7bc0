package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/go-go-golems/grillo/pkg/events"
)

func newTestStore(t *testing.T, options ...StoreOption) *Store {
	t.Helper()
	s, err := New(":memory:", options...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "first")
	require.NoError(t, err)
	require.NotZero(t, conv.ID)
	assert.Equal(t, "first", conv.Title)
	assert.False(t, conv.LastMessageAt.Before(conv.CreatedAt))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "first", got.Title)
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), 999)
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestListConversationsOrderedByLastMessage(t *testing.T) {
	now := time.Now()
	clock := now
	s := newTestStore(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	older, err := s.CreateConversation(ctx, "older")
	require.NoError(t, err)
	clock = now.Add(time.Minute)
	newer, err := s.CreateConversation(ctx, "newer")
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, newer.ID, convs[0].ID)
	assert.Equal(t, older.ID, convs[1].ID)

	// Bumping the older conversation moves it to the front.
	require.NoError(t, s.UpdateLastMessageTime(ctx, older.ID, now.Add(time.Hour)))
	convs, err = s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, convs[0].ID)
}

func TestUpdateConversationAbsentIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateConversation(ctx, &chat.Conversation{
		ID:            12345,
		Title:         "ghost",
		CreatedAt:     time.Now(),
		LastMessageAt: time.Now(),
	})
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestAppendAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "hello"))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewAssistantMessage(conv.ID, "hi"))
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, chat.SenderAssistant, msgs[1].Sender)
	assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
}

func TestAppendMessageClampsTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "first", chat.WithTimestamp(later)))
	require.NoError(t, err)

	// A message stamped earlier than the latest one is clamped forward.
	earlier := time.Now().Add(-time.Hour)
	msg := chat.NewUserMessage(conv.ID, "second", chat.WithTimestamp(earlier))
	_, err = s.AppendMessage(ctx, msg)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
}

func TestAppendMessageWithAttachmentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "Image", chat.WithAttachment(&chat.Attachment{
		Kind: chat.AttachmentImage,
		URI:  "content://photos/42",
	})))
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "File", chat.WithAttachment(&chat.Attachment{
		Kind:      chat.AttachmentFile,
		URI:       "content://docs/7",
		Name:      "report.pdf",
		MediaType: "application/pdf",
	})))
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, chat.AttachmentImage, msgs[0].Attachment.Kind)
	assert.Equal(t, "content://photos/42", msgs[0].Attachment.URI)

	require.NotNil(t, msgs[1].Attachment)
	assert.Equal(t, chat.AttachmentFile, msgs[1].Attachment.Kind)
	assert.Equal(t, "report.pdf", msgs[1].Attachment.Name)
	assert.Equal(t, "application/pdf", msgs[1].Attachment.MediaType)
}

func TestListRecentMessagesReturnsLatestAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	base := time.Now()
	for i, text := range []string{"one", "two", "three", "four"} {
		_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, text,
			chat.WithTimestamp(base.Add(time.Duration(i)*time.Second))))
		require.NoError(t, err)
	}

	msgs, err := s.ListRecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Text)
	assert.Equal(t, "four", msgs[1].Text)
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "doomed")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "hello"))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewAssistantMessage(conv.ID, "hi"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	require.ErrorIs(t, err, chat.ErrNotFound)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	count, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteConversationNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteConversation(context.Background(), 999)
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestCountMessagesBySender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "hello"))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewAssistantMessage(conv.ID, "hi"))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "more"))
	require.NoError(t, err)

	users, err := s.CountMessagesBySender(ctx, conv.ID, chat.SenderUser)
	require.NoError(t, err)
	assert.Equal(t, 2, users)

	assistants, err := s.CountMessagesBySender(ctx, conv.ID, chat.SenderAssistant)
	require.NoError(t, err)
	assert.Equal(t, 1, assistants)
}

func TestLastMessageAtNeverBeforeCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "hello"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateLastMessageTime(ctx, conv.ID, time.Now()))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.LastMessageAt.Before(got.CreatedAt))
}

func TestAppendPublishesChangeEvent(t *testing.T) {
	notifier := events.NewNotifier()
	t.Cleanup(func() {
		_ = notifier.Close()
	})

	s := newTestStore(t, WithNotifier(notifier))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := notifier.Subscribe(ctx, events.TopicMessages)
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.NewUserMessage(conv.ID, "hello"))
	require.NoError(t, err)

	select {
	case msg := <-ch:
		var ev events.MessagesChanged
		require.NoError(t, events.Decode(msg.Payload, &ev))
		assert.Equal(t, conv.ID, ev.ConversationID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("expected a messages-changed event")
	}
}
