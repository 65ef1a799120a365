package service

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/scheduler"
	"go.uber.org/zap"
)

const (
	cleanupDeleted = "deleted"
	cleanupStale   = "stale"
	cleanupMissing = "missing"
	cleanupFailed  = "failed"
)

// SetTyping marks the user as typing for window (the configured TTL when
// window is not positive, capped at TypingMaxTTL) and schedules a cleanup
// shortly after expiry.
// A failure to schedule is logged; the state still expires for readers.
func (s *Service) SetTyping(ctx context.Context, conversationID, userID string, window time.Duration) error {
	switch {
	case window <= 0:
		window = s.cfg.TypingTTL
	case window > s.cfg.TypingMaxTTL:
		window = s.cfg.TypingMaxTTL
	}

	var expiresAt time.Time
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, userID); err != nil {
			return err
		}
		expiresAt = s.now().Add(window)
		return tx.UpsertTyping(ctx, newID(), conversationID, userID, expiresAt)
	})
	if err != nil {
		return err
	}

	job := scheduler.Job{
		Kind:           scheduler.KindTypingCleanup,
		ConversationID: conversationID,
		UserID:         userID,
		ExpiresAt:      expiresAt,
	}
	if err := s.sched.ScheduleOnce(ctx, window+s.cfg.TypingCleanupGrace, job); err != nil {
		if s.metrics != nil {
			s.metrics.ScheduleFailures.Inc()
		}
		s.log.Warn("schedule typing cleanup",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	s.publish(ctx, events.TypingChanged, events.TypingTopic(conversationID))
	return nil
}

// ClearTyping removes the user's typing state unconditionally.
func (s *Service) ClearTyping(ctx context.Context, conversationID, userID string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, userID); err != nil {
			return err
		}
		return tx.DeleteTyping(ctx, conversationID, userID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.TypingChanged, events.TypingTopic(conversationID))
	return nil
}

// ListTypingUsers returns ids of members other than the viewer whose typing
// state has not expired.
func (s *Service) ListTypingUsers(ctx context.Context, conversationID, viewerID string) ([]string, error) {
	out := []string{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireMembership(ctx, tx, conversationID, viewerID); err != nil {
			return err
		}
		states, err := tx.ListActiveTyping(ctx, conversationID, s.now())
		if err != nil {
			return err
		}
		for _, ts := range states {
			if ts.UserID != viewerID {
				out = append(out, ts.UserID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireTyping deletes the typing state named by job only if it still
// carries the expiry captured when the job was scheduled and that expiry
// has passed. A refreshed state is left alone, which makes repeated or late
// deliveries harmless.
func (s *Service) ExpireTyping(ctx context.Context, job scheduler.Job) (bool, error) {
	captured := job.ExpiresAt.UTC().Truncate(time.Millisecond)
	result := cleanupMissing
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		result = cleanupMissing
		ts, err := tx.GetTyping(ctx, job.ConversationID, job.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !ts.ExpiresAt.Equal(captured) || s.now().Before(ts.ExpiresAt) {
			result = cleanupStale
			return nil
		}
		result = cleanupDeleted
		return tx.DeleteTyping(ctx, job.ConversationID, job.UserID)
	})
	if err != nil {
		result = cleanupFailed
	}
	if s.metrics != nil {
		s.metrics.TypingCleanups.WithLabelValues(result).Inc()
	}
	if err != nil {
		return false, err
	}
	if result == cleanupDeleted {
		s.publish(ctx, events.TypingChanged, events.TypingTopic(job.ConversationID))
	}
	return result == cleanupDeleted, nil
}

// HandleJob is the scheduler entry point.
func (s *Service) HandleJob(ctx context.Context, job scheduler.Job) {
	switch job.Kind {
	case scheduler.KindTypingCleanup:
		if _, err := s.ExpireTyping(ctx, job); err != nil {
			s.log.Warn("typing cleanup",
				zap.String("conversation_id", job.ConversationID),
				zap.String("user_id", job.UserID),
				zap.Error(err))
		}
	default:
		s.log.Warn("unknown job kind", zap.String("kind", job.Kind))
	}
}
