package service

import (
	"context"
	"strings"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

// SendMessage appends body to the conversation, refreshes its last-message
// summary and bumps every other member's unread counter in one transaction.
// A body that is blank after trimming is ignored and yields (nil, nil).
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil, nil
	}

	var (
		msg     *domain.Message
		members []string
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, senderID); err != nil {
			return err
		}
		now := s.now()
		msg = &domain.Message{
			ID:             newID(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           text,
			CreatedAt:      now,
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := tx.SetLastMessage(ctx, conversationID, senderID, text, now); err != nil {
			return notFound(err, "conversation %s", conversationID)
		}
		if err := tx.IncrementUnread(ctx, conversationID, senderID); err != nil {
			return err
		}
		var err error
		members, err = memberIDs(ctx, tx, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	topics := append([]string{events.MessagesTopic(conversationID)}, events.UserTopics(members...)...)
	s.publish(ctx, events.MessageSent, topics...)
	return msg, nil
}

// ListMessages returns the full history in send order.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string) ([]*domain.Message, error) {
	var out []*domain.Message
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListMessages(ctx, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
