package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

// Heartbeat records that the user is active now and returns the presence
// record id. Last-seen never moves backwards.
func (s *Service) Heartbeat(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("heartbeat: %w", domain.ErrUnauthorized)
	}
	var id string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		id, err = tx.TouchPresence(ctx, newID(), userID, s.now())
		return err
	})
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.Heartbeats.Inc()
	}
	s.publish(ctx, events.PresenceChanged, events.PresenceTopic(userID))
	return id, nil
}

// OnlineStatus reports, in input order, whether each user sent a heartbeat
// within the online window. Users without a record are offline with a zero
// last-seen.
func (s *Service) OnlineStatus(ctx context.Context, viewerID string, userIDs []string) ([]domain.OnlineStatus, error) {
	if viewerID == "" {
		return nil, fmt.Errorf("online status: %w", domain.ErrUnauthorized)
	}
	out := make([]domain.OnlineStatus, 0, len(userIDs))
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = out[:0]
		now := s.now()
		for _, uid := range userIDs {
			st := domain.OnlineStatus{UserID: uid}
			p, err := tx.GetPresence(ctx, uid)
			switch {
			case errors.Is(err, repository.ErrNotFound):
			case err != nil:
				return err
			default:
				st.LastSeen = p.LastSeenAt.UnixMilli()
				st.IsOnline = now.Sub(p.LastSeenAt) < s.cfg.OnlineWindow
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
