package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

func requireMembership(ctx context.Context, tx repository.Tx, conversationID, userID string) (*domain.Membership, error) {
	m, err := tx.GetMembership(ctx, conversationID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("user %s in conversation %s: %w", userID, conversationID, domain.ErrForbidden)
	}
	return m, err
}

// membersOf returns member profiles in join order. Memberships whose user
// record is missing are skipped.
func membersOf(ctx context.Context, tx repository.Tx, conversationID string) ([]domain.MemberProfile, error) {
	ms, err := tx.ListMembershipsByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MemberProfile, 0, len(ms))
	for _, m := range ms {
		u, err := tx.GetUser(ctx, m.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u.Profile())
	}
	return out, nil
}

func memberIDs(ctx context.Context, tx repository.Tx, conversationID string) ([]string, error) {
	ms, err := tx.ListMembershipsByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// ListMembers returns the members of a conversation the viewer belongs to.
func (s *Service) ListMembers(ctx context.Context, conversationID, viewerID string) ([]domain.MemberProfile, error) {
	var out []domain.MemberProfile
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, viewerID); err != nil {
			return err
		}
		var err error
		out, err = membersOf(ctx, tx, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead zeroes the caller's unread counter and moves the read cursor to now.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, userID); err != nil {
			return err
		}
		return tx.ResetUnread(ctx, conversationID, userID, s.now())
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.ConversationRead, events.UserTopic(userID))
	return nil
}
