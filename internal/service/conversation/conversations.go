package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gemchat/internal/models"
)

const maxTitleLen = 255

// CreateConversation inserts a new conversation for the user and returns it.
func (s *Service) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	if userID == "" {
		return nil, invalidf("user_id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultConversationTitle
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.cache.invalidate(ctx, userID)
	return conv, nil
}

// ListConversations returns all conversations for a user, most recently
// updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	version, cacheable := s.cache.version(ctx, userID)
	if cacheable {
		if cached, ok := s.cache.get(ctx, userID, version); ok {
			return cached, nil
		}
	}
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, created_at DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	if cacheable {
		s.cache.put(ctx, userID, version, convs)
	}
	return convs, nil
}

// GetConversation returns one conversation owned by the user, or sql.ErrNoRows.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, sql.ErrNoRows
	}
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?`),
		conversationID, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// TouchConversation refreshes updated_at and returns the updated row.
func (s *Service) TouchConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, sql.ErrNoRows
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE conversations SET updated_at = ? WHERE id = ? AND user_id = ?`),
		now, conversationID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("conversation rows affected: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}
	s.cache.invalidate(ctx, userID)
	return s.GetConversation(ctx, userID, conversationID)
}
