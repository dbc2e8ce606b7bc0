// Package session owns the single active conversation and orchestrates
// the send pipeline: append the user message, assemble the context
// window, call the generative backend, append the assistant response and
// derive the conversation title on the first user message.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/backend"
	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/prompt"
	"github.com/go-go-golems/grillo/pkg/store"
)

const (
	imagePlaceholderText = "Image"
	filePlaceholderText  = "File"

	// generationApology is appended as an assistant message when the
	// backend fails, so the conversation stays usable.
	generationApology = "Sorry, I couldn't generate a response. Please try again."
)

// Manager serializes all state transitions of the active conversation.
// Store reads may happen concurrently from observers; the send pipeline
// is the single writer path.
type Manager struct {
	store     store.Store
	generator backend.Generator
	notifier  *events.Notifier
	builder   *prompt.Builder

	// mu serializes sendMessage and the other state transitions.
	mu sync.Mutex

	// stateMu guards the observable state below, so observers can read
	// it while a send is in flight.
	stateMu  sync.RWMutex
	activeID int64
	pending  bool
	lastErr  string
}

type ManagerOption func(*Manager)

func WithNotifier(n *events.Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

func WithPromptBuilder(b *prompt.Builder) ManagerOption {
	return func(m *Manager) {
		m.builder = b
	}
}

func NewManager(s store.Store, generator backend.Generator, options ...ManagerOption) *Manager {
	ret := &Manager{
		store:     s,
		generator: generator,
		builder:   prompt.NewBuilder(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// StartNewConversation creates a conversation and makes it active. An
// empty title falls back to the default.
func (m *Manager) StartNewConversation(ctx context.Context, title string) (*chat.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startNewConversation(ctx, title)
}

func (m *Manager) startNewConversation(ctx context.Context, title string) (*chat.Conversation, error) {
	if title == "" {
		title = chat.DefaultTitle
	}

	conv, err := m.store.CreateConversation(ctx, title)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start new conversation")
	}

	m.setActive(conv.ID)
	log.Debug().Int64("conversation_id", conv.ID).Msg("started new conversation")
	return conv, nil
}

// LoadConversation makes an existing conversation active.
func (m *Manager) LoadConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	m.setActive(conv.ID)
	m.publishMessagesChanged(conv.ID)
	return conv, nil
}

// ActiveConversationID returns the active conversation id, and false
// when no conversation is active.
func (m *Manager) ActiveConversationID() (int64, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.activeID, m.activeID != 0
}

// SendMessage runs one send/response cycle against the active
// conversation, auto-starting one when none is active. Blank text is a
// silent no-op. A backend failure does not surface as an error here; it
// is recorded on the error observable and substituted with an apology
// assistant message. Store failures are returned.
func (m *Manager) SendMessage(ctx context.Context, text string, attachment *chat.Attachment) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conversationID, ok := m.active()
	if !ok {
		conv, err := m.startNewConversation(ctx, "")
		if err != nil {
			return err
		}
		conversationID = conv.ID
	}

	// The first-user-message check consults the store, not a possibly
	// stale observer snapshot, so the title is derived exactly once.
	priorUserMessages, err := m.store.CountMessagesBySender(ctx, conversationID, chat.SenderUser)
	if err != nil {
		return errors.Wrap(err, "failed to check for prior user messages")
	}
	isFirstUserMessage := priorUserMessages == 0

	if attachment != nil {
		placeholder := imagePlaceholderText
		if attachment.Kind == chat.AttachmentFile {
			placeholder = filePlaceholderText
		}
		if err := m.appendMessage(ctx, chat.NewUserMessage(conversationID, placeholder, chat.WithAttachment(attachment))); err != nil {
			return err
		}
	}

	if err := m.appendMessage(ctx, chat.NewUserMessage(conversationID, text)); err != nil {
		return err
	}

	if isFirstUserMessage {
		if err := m.deriveTitle(ctx, conversationID, text); err != nil {
			return err
		}
	}

	m.setPending(true)
	defer m.setPending(false)

	recent, err := m.store.ListRecentMessages(ctx, conversationID, m.builder.MaxMessages())
	if err != nil {
		return errors.Wrap(err, "failed to load context window")
	}

	response, err := m.generator.Generate(ctx, backend.Request{
		Prompt:     text,
		Context:    m.builder.Build(recent),
		Attachment: attachment,
	})
	if err != nil {
		m.recordGenerationFailure(conversationID, err)
		if appendErr := m.appendMessage(ctx, chat.NewAssistantMessage(conversationID, generationApology)); appendErr != nil {
			log.Warn().Err(appendErr).
				Int64("conversation_id", conversationID).
				Msg("failed to append generation failure placeholder")
		}
		return nil
	}

	return m.appendMessage(ctx, chat.NewAssistantMessage(conversationID, response))
}

func (m *Manager) appendMessage(ctx context.Context, msg *chat.Message) error {
	if _, err := m.store.AppendMessage(ctx, msg); err != nil {
		return errors.Wrap(err, "failed to append message")
	}
	if err := m.store.UpdateLastMessageTime(ctx, msg.ConversationID, time.Now()); err != nil {
		return errors.Wrap(err, "failed to update last message time")
	}
	return nil
}

// deriveTitle overwrites the default title from the first user message.
// Later renames go through UpdateConversationTitle and never re-derive.
func (m *Manager) deriveTitle(ctx context.Context, conversationID int64, firstMessage string) error {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	conv.Title = chat.DeriveTitle(firstMessage)
	if err := m.store.UpdateConversation(ctx, conv); err != nil {
		return errors.Wrap(err, "failed to persist derived title")
	}

	log.Debug().Int64("conversation_id", conversationID).Str("title", conv.Title).Msg("derived conversation title")
	return nil
}

// DeleteConversation removes a conversation; deleting the active one
// clears the active pointer and the observed message stream.
func (m *Manager) DeleteConversation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	m.stateMu.Lock()
	if m.activeID == id {
		m.activeID = 0
	}
	m.stateMu.Unlock()

	return nil
}

// UpdateConversationTitle is an explicit user rename, a passthrough
// fetch-then-update.
func (m *Manager) UpdateConversationTitle(ctx context.Context, id int64, title string) error {
	conv, err := m.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	conv.Title = title
	return m.store.UpdateConversation(ctx, conv)
}

// Messages is a point-in-time snapshot of the active conversation's
// message list; empty when no conversation is active.
func (m *Manager) Messages(ctx context.Context) ([]*chat.Message, error) {
	id, ok := m.ActiveConversationID()
	if !ok {
		return []*chat.Message{}, nil
	}
	return m.store.ListMessages(ctx, id)
}

// Conversations lists all conversations, most recently active first.
func (m *Manager) Conversations(ctx context.Context) ([]*chat.Conversation, error) {
	return m.store.ListConversations(ctx)
}

// Pending reports whether a generation call is in flight.
func (m *Manager) Pending() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.pending
}

// LastError returns the last recorded failure message, or "" when none
// is set (or it has been cleared).
func (m *Manager) LastError() string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.lastErr
}

func (m *Manager) ClearError() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.lastErr = ""
}

// WatchMessages streams snapshots of the active conversation's message
// list: one initial snapshot, then one per committed change, until ctx
// is cancelled.
func (m *Manager) WatchMessages(ctx context.Context) (<-chan []*chat.Message, error) {
	if m.notifier == nil {
		return nil, errors.New("manager has no notifier")
	}

	sub, err := m.notifier.Subscribe(ctx, events.TopicMessages)
	if err != nil {
		return nil, err
	}

	ch := make(chan []*chat.Message, 1)
	go func() {
		defer close(ch)

		snapshot := func() {
			msgs, err := m.Messages(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to read message snapshot")
				return
			}
			select {
			case ch <- msgs:
			case <-ctx.Done():
			}
		}

		snapshot()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				msg.Ack()
				snapshot()
			}
		}
	}()

	return ch, nil
}

// WatchConversations streams snapshots of the conversation list, one
// initial snapshot and one per change.
func (m *Manager) WatchConversations(ctx context.Context) (<-chan []*chat.Conversation, error) {
	if m.notifier == nil {
		return nil, errors.New("manager has no notifier")
	}

	sub, err := m.notifier.Subscribe(ctx, events.TopicConversations)
	if err != nil {
		return nil, err
	}

	ch := make(chan []*chat.Conversation, 1)
	go func() {
		defer close(ch)

		snapshot := func() {
			convs, err := m.store.ListConversations(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to read conversation snapshot")
				return
			}
			select {
			case ch <- convs:
			case <-ctx.Done():
			}
		}

		snapshot()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				msg.Ack()
				snapshot()
			}
		}
	}()

	return ch, nil
}

func (m *Manager) active() (int64, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.activeID, m.activeID != 0
}

func (m *Manager) setActive(id int64) {
	m.stateMu.Lock()
	m.activeID = id
	m.stateMu.Unlock()
}

func (m *Manager) setPending(pending bool) {
	m.stateMu.Lock()
	m.pending = pending
	m.stateMu.Unlock()

	if m.notifier != nil {
		m.notifier.PublishBlind(events.TopicState, &events.PendingChanged{Pending: pending})
	}
}

func (m *Manager) recordGenerationFailure(conversationID int64, err error) {
	genErr := chat.NewGenerationError(err)
	failureID := uuid.NewString()

	m.stateMu.Lock()
	m.lastErr = genErr.Error()
	m.stateMu.Unlock()

	log.Warn().Err(err).
		Str("failure_id", failureID).
		Int64("conversation_id", conversationID).
		Msg("generation failed")
	if m.notifier != nil {
		m.notifier.PublishBlind(events.TopicErrors, &events.GenerationFailed{
			ID:             failureID,
			ConversationID: conversationID,
			Message:        genErr.Error(),
		})
	}
}

func (m *Manager) publishMessagesChanged(conversationID int64) {
	if m.notifier != nil {
		m.notifier.PublishBlind(events.TopicMessages, &events.MessagesChanged{ConversationID: conversationID})
	}
}
