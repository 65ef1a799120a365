package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"go.uber.org/zap"
)

const selfTitle = "You"

// PairKey identifies the direct conversation between two users regardless
// of argument order.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// OpenOrCreateDirect returns the direct conversation between me and other,
// creating it and any missing membership on the way.
func (s *Service) OpenOrCreateDirect(ctx context.Context, meID, otherID string) (string, error) {
	if meID == otherID {
		return "", fmt.Errorf("conversation with self: %w", domain.ErrInvalidTarget)
	}

	var (
		convID  string
		created bool
	)
	attempt := func() error {
		created = false
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			convID, created, err = s.openOrCreateDirect(ctx, tx, meID, otherID)
			return err
		})
	}

	err := attempt()
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a creation race; the winner's conversation is visible now
		s.log.Debug("direct conversation race, retrying", zap.String("pair_key", PairKey(meID, otherID)))
		err = attempt()
	}
	if err != nil {
		return "", err
	}
	if created {
		s.publish(ctx, events.ConversationCreated, events.UserTopics(meID, otherID)...)
	}
	return convID, nil
}

func (s *Service) openOrCreateDirect(ctx context.Context, tx repository.Tx, meID, otherID string) (string, bool, error) {
	if _, err := tx.GetUser(ctx, otherID); err != nil {
		return "", false, notFound(err, "user %s", otherID)
	}

	now := s.now()
	key := PairKey(meID, otherID)
	conv, err := tx.GetConversationByPairKey(ctx, key)
	switch {
	case err == nil:
		healed := false
		for _, uid := range []string{meID, otherID} {
			_, err := tx.GetMembership(ctx, conv.ID, uid)
			if err == nil {
				continue
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return "", false, err
			}
			if err := tx.InsertMembership(ctx, newMembership(conv.ID, uid, now)); err != nil {
				return "", false, err
			}
			healed = true
		}
		return conv.ID, healed, nil
	case !errors.Is(err, repository.ErrNotFound):
		return "", false, err
	}

	conv = &domain.Conversation{
		ID:              newID(),
		Kind:            domain.KindDirect,
		PairKey:         key,
		CreatedBy:       meID,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastMessageText: "",
	}
	if err := tx.InsertConversation(ctx, conv); err != nil {
		return "", false, err
	}
	for _, uid := range []string{meID, otherID} {
		if err := tx.InsertMembership(ctx, newMembership(conv.ID, uid, now)); err != nil {
			return "", false, err
		}
	}
	return conv.ID, true, nil
}

func newMembership(conversationID, userID string, at time.Time) *domain.Membership {
	return &domain.Membership{
		ID:             newID(),
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       at,
		LastReadAt:     at,
		UnreadCount:    0,
	}
}

// ListConversations returns the user's conversations, most recent activity
// first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]domain.ConversationView, error) {
	out := []domain.ConversationView{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ms, err := tx.ListMembershipsByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, m := range ms {
			conv, err := tx.GetConversation(ctx, m.ConversationID)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			view, err := buildView(ctx, tx, conv, m, userID)
			if err != nil {
				return err
			}
			out = append(out, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activityAt(out[i]).After(activityAt(out[j]))
	})
	return out, nil
}

// OpenConversation returns one conversation with the caller's unread count.
func (s *Service) OpenConversation(ctx context.Context, conversationID, userID string) (*domain.ConversationView, error) {
	var view domain.ConversationView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		m, err := requireMembership(ctx, tx, conversationID, userID)
		if err != nil {
			return err
		}
		conv, err := tx.GetConversation(ctx, conversationID)
		if err != nil {
			return notFound(err, "conversation %s", conversationID)
		}
		view, err = buildView(ctx, tx, conv, m, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func buildView(ctx context.Context, tx repository.Tx, conv *domain.Conversation, m *domain.Membership, viewerID string) (domain.ConversationView, error) {
	members, err := membersOf(ctx, tx, conv.ID)
	if err != nil {
		return domain.ConversationView{}, err
	}
	names := []string{}
	for _, p := range members {
		if p.UserID != viewerID {
			names = append(names, p.Name)
		}
	}
	title := strings.Join(names, ", ")
	if len(names) == 0 {
		title = selfTitle
	}
	return domain.ConversationView{
		ID:                  conv.ID,
		Kind:                conv.Kind,
		Title:               title,
		CreatedAt:           conv.CreatedAt,
		UpdatedAt:           conv.UpdatedAt,
		LastMessageText:     conv.LastMessageText,
		LastMessageAt:       conv.LastMessageAt,
		LastMessageSenderID: conv.LastMessageSenderID,
		UnreadCount:         m.UnreadCount,
		Members:             members,
	}, nil
}

func activityAt(v domain.ConversationView) time.Time {
	c := domain.Conversation{CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt, LastMessageAt: v.LastMessageAt}
	return c.ActivityAt()
}
