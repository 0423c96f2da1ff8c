package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gemchat/internal/models"
)

// ListMessages returns a conversation's messages in creation order. A
// conversation the user does not own is reported as sql.ErrNoRows.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT id, conversation_id, user_id, content, role, image_url, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`),
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			m        models.Message
			imageURL sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Content, &m.Role, &imageURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ImageURL = imageURL.String
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// AddMessage stores a message in a conversation owned by the user. It does
// not touch the conversation's updated_at; callers do that as a second write.
func (s *Service) AddMessage(ctx context.Context, userID, conversationID string, msg models.Message) (*models.Message, error) {
	if userID == "" {
		return nil, invalidf("user_id is required")
	}
	if !msg.Role.Valid() {
		return nil, invalidf("unknown role %q", msg.Role)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, invalidf("content cannot be empty")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	} else if _, err := uuid.Parse(msg.ID); err != nil {
		return nil, invalidf("message id must be a uuid")
	}
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	msg.ConversationID = conversationID
	msg.UserID = userID
	msg.CreatedAt = time.Now().UTC()
	msg.Status = ""
	imageURL := sql.NullString{String: msg.ImageURL, Valid: msg.ImageURL != ""}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO messages (id, conversation_id, user_id, content, role, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.ConversationID, msg.UserID, msg.Content, string(msg.Role), imageURL, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}
