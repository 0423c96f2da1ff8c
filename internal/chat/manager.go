// Package chat holds the client-side conversation state: the conversation
// list, the active conversation and its messages, and the send flow that
// ties the persistence API to the chat function.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gemchat/internal/models"
)

var (
	ErrNoIdentity     = errors.New("no signed-in user")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrResponseFailed = errors.New("failed to get AI response")
)

const (
	msgLoadConversationsFailed = "Failed to load conversations"
	msgLoadMessagesFailed      = "Failed to load messages"
	msgCreateFailed            = "Failed to create conversation"
	msgSaveFailed              = "Failed to save message"
	msgNewChat                 = "New chat started"
	msgResponseFailed          = "Failed to get response. Please check your API configuration."
)

// Store is the persistence API as seen by one signed-in user.
type Store interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	TouchConversation(ctx context.Context, conversationID string) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AddMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Message, error)
}

// Reply is what the chat function returns for one prompt.
type Reply = models.ChatResponse

// Responder calls the chat function.
type Responder interface {
	Respond(ctx context.Context, prompt string, generateImage bool) (*Reply, error)
}

// AppendResult reports where a message went and whether it was stored.
type AppendResult struct {
	MessageID      string
	ConversationID string
	Status         models.MessageStatus
}

// Manager is safe for concurrent use. Network calls happen outside the lock.
type Manager struct {
	store     Store
	responder Responder
	userID    string
	notify    Notifier
	log       *zap.Logger
	now       func() time.Time

	mu            sync.Mutex
	conversations []models.Conversation
	activeID      string
	messages      []models.Message
	loading       int
	// epoch changes whenever the view is reset. It only guards message
	// loads and the unsaved new-chat view; saved messages are placed by
	// conversation id.
	epoch uint64
}

type Option func(*Manager)

// WithUserID sets the identity the store was opened for.
func WithUserID(id string) Option {
	return func(m *Manager) { m.userID = id }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notify = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func New(store Store, responder Responder, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		responder: responder,
		notify:    NopNotifier{},
		log:       zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Messages returns a copy of the active conversation's messages.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.messages...)
}

// Conversations returns a copy of the conversation list.
func (m *Manager) Conversations() []models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Conversation(nil), m.conversations...)
}

// ActiveConversationID returns "" when no conversation is selected.
func (m *Manager) ActiveConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Loading reports whether a response is being generated.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading > 0
}

// LoadConversations replaces the conversation list with the stored one.
func (m *Manager) LoadConversations(ctx context.Context) error {
	if m.userID == "" {
		return ErrNoIdentity
	}
	convs, err := m.store.ListConversations(ctx)
	if err != nil {
		m.log.Error("load conversations", zap.Error(err))
		m.notify.Notify(Notification{Level: LevelError, Message: msgLoadConversationsFailed})
		return fmt.Errorf("load conversations: %w", err)
	}
	m.mu.Lock()
	m.conversations = append([]models.Conversation(nil), convs...)
	m.mu.Unlock()
	return nil
}

// LoadMessages fetches a conversation's messages. The result is applied only
// if that conversation is still active when the fetch returns.
func (m *Manager) LoadMessages(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	msgs, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		m.log.Error("load messages", zap.String("conversation_id", conversationID), zap.Error(err))
		m.notify.Notify(Notification{Level: LevelError, Message: msgLoadMessagesFailed})
		return fmt.Errorf("load messages: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.activeID != conversationID {
		m.log.Debug("dropping stale message load", zap.String("conversation_id", conversationID))
		return nil
	}
	loaded := make([]models.Message, 0, len(msgs)+len(m.messages))
	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		msg.Status = models.StatusConfirmed
		loaded = append(loaded, msg)
		seen[msg.ID] = struct{}{}
	}
	// m.messages only holds this conversation's messages here; keep the
	// ones that were added or saved after the fetch was taken.
	for _, msg := range m.messages {
		if _, ok := seen[msg.ID]; !ok {
			loaded = append(loaded, msg)
		}
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].CreatedAt.Before(loaded[j].CreatedAt) })
	m.messages = loaded
	return nil
}

// CreateNewConversation inserts a conversation and makes it active. An empty
// title becomes the default title.
func (m *Manager) CreateNewConversation(ctx context.Context, title string) (string, error) {
	conv, err := m.createConversation(ctx, title)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.activeID = conv.ID
	m.messages = nil
	m.epoch++
	m.mu.Unlock()
	_ = m.LoadConversations(ctx)
	return conv.ID, nil
}

func (m *Manager) createConversation(ctx context.Context, title string) (*models.Conversation, error) {
	if m.userID == "" {
		return nil, ErrNoIdentity
	}
	if strings.TrimSpace(title) == "" {
		title = models.DefaultConversationTitle
	}
	conv, err := m.store.CreateConversation(ctx, title)
	if err != nil {
		m.log.Error("create conversation", zap.Error(err))
		m.notify.Notify(Notification{Level: LevelError, Message: msgCreateFailed})
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// StartNewChat clears the active conversation. Nothing is persisted until the
// first message is added.
func (m *Manager) StartNewChat() {
	m.mu.Lock()
	m.activeID = ""
	m.messages = nil
	m.epoch++
	m.mu.Unlock()
	m.notify.Notify(Notification{Level: LevelSuccess, Message: msgNewChat})
}

// SwitchConversation activates a conversation and loads its messages.
func (m *Manager) SwitchConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	m.activeID = conversationID
	m.messages = nil
	m.epoch++
	m.mu.Unlock()
	if conversationID == "" {
		return nil
	}
	return m.LoadMessages(ctx, conversationID)
}

// AddMessage appends msg to the active conversation right away with status
// pending, then persists it, creating a conversation first if none is
// active. The returned status is confirmed or unconfirmed.
func (m *Manager) AddMessage(ctx context.Context, msg models.Message) (AppendResult, error) {
	m.mu.Lock()
	convID, epoch := m.activeID, m.epoch
	m.mu.Unlock()
	return m.addMessage(ctx, msg, convID, epoch)
}

func (m *Manager) addMessage(ctx context.Context, msg models.Message, convID string, epoch uint64) (AppendResult, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	msg.ConversationID = convID
	msg.UserID = m.userID
	msg.Status = models.StatusPending

	m.mu.Lock()
	// a draft (no conversation yet) is only shown in the view it was typed in
	if m.activeID == convID && (convID != "" || m.epoch == epoch) {
		m.insertLocked(msg)
	}
	m.mu.Unlock()

	res := AppendResult{MessageID: msg.ID, ConversationID: convID, Status: models.StatusPending}
	if m.userID == "" {
		m.settle(msg, models.StatusUnconfirmed)
		res.Status = models.StatusUnconfirmed
		return res, ErrNoIdentity
	}

	if convID == "" {
		conv, err := m.createConversation(ctx, "")
		if err != nil {
			m.settle(msg, models.StatusUnconfirmed)
			res.Status = models.StatusUnconfirmed
			return res, err
		}
		convID = conv.ID
		msg.ConversationID = convID
		res.ConversationID = convID
		m.mu.Lock()
		if m.epoch == epoch && m.activeID == "" {
			m.activeID = convID
		}
		m.settleLocked(msg, models.StatusPending)
		m.mu.Unlock()
	}

	if _, err := m.store.AddMessage(ctx, convID, msg); err != nil {
		m.log.Error("save message", zap.String("conversation_id", convID), zap.Error(err))
		m.settle(msg, models.StatusUnconfirmed)
		m.notify.Notify(Notification{Level: LevelError, Message: msgSaveFailed})
		res.Status = models.StatusUnconfirmed
		return res, fmt.Errorf("save message: %w", err)
	}
	m.settle(msg, models.StatusConfirmed)
	res.Status = models.StatusConfirmed

	if err := m.store.TouchConversation(ctx, convID); err != nil {
		m.log.Warn("touch conversation", zap.String("conversation_id", convID), zap.Error(err))
	}
	_ = m.LoadConversations(ctx)
	return res, nil
}

func (m *Manager) settle(msg models.Message, status models.MessageStatus) {
	m.mu.Lock()
	m.settleLocked(msg, status)
	m.mu.Unlock()
}

// settleLocked updates the message's status in the view. A message that fell
// out of the view (the user switched away and back while it was in flight) is
// put back when its conversation is active again.
func (m *Manager) settleLocked(msg models.Message, status models.MessageStatus) {
	for i := range m.messages {
		if m.messages[i].ID == msg.ID {
			m.messages[i].Status = status
			m.messages[i].ConversationID = msg.ConversationID
			return
		}
	}
	if msg.ConversationID == "" || m.activeID != msg.ConversationID {
		return
	}
	msg.Status = status
	m.insertLocked(msg)
}

// insertLocked keeps m.messages ordered by creation time.
func (m *Manager) insertLocked(msg models.Message) {
	i := sort.Search(len(m.messages), func(i int) bool {
		return m.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	m.messages = slices.Insert(m.messages, i, msg)
}

// GenerateResponse asks the chat function for a reply. Any failure is
// reported as ErrResponseFailed wrapping the cause.
func (m *Manager) GenerateResponse(ctx context.Context, prompt string, generateImage bool) (*Reply, error) {
	m.mu.Lock()
	m.loading++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loading--
		m.mu.Unlock()
	}()

	reply, err := m.responder.Respond(ctx, prompt, generateImage)
	if err != nil {
		m.log.Error("generate response", zap.Bool("image", generateImage), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrResponseFailed, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrResponseFailed)
	}
	return reply, nil
}

// Send runs one chat turn: store the user's message, ask for a reply and
// store the reply in the same conversation. Whitespace-only content is
// rejected without touching state.
func (m *Manager) Send(ctx context.Context, content string, generateImage bool) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	convID, epoch := m.activeID, m.epoch
	m.mu.Unlock()

	res, err := m.addMessage(ctx, models.Message{Role: models.RoleUser, Content: content}, convID, epoch)
	if err != nil {
		m.log.Warn("user message not stored", zap.String("message_id", res.MessageID), zap.Error(err))
	}

	reply, err := m.GenerateResponse(ctx, content, generateImage)
	if err != nil {
		m.notify.Notify(Notification{Level: LevelError, Message: msgResponseFailed})
		return err
	}

	_, err = m.addMessage(ctx, models.Message{
		Role:     models.RoleAssistant,
		Content:  reply.Response,
		ImageURL: reply.ImageURL,
	}, res.ConversationID, epoch)
	return err
}
