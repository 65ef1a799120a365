// Package scheduler runs one-shot deferred jobs. Delivery is at least once
// and jobs cannot be cancelled, so handlers must be idempotent.
package scheduler

import (
	"context"
	"time"
)

const KindTypingCleanup = "typing.cleanup"

type Job struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type JobHandler func(ctx context.Context, job Job)

type Scheduler interface {
	ScheduleOnce(ctx context.Context, delay time.Duration, job Job) error
}
