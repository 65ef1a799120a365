// Package service keeps conversations, memberships, messages, unread
// counters, typing indicators and presence consistent. Every operation runs
// as one store transaction and publishes a change event after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/scheduler"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Config struct {
	TypingTTL          time.Duration
	TypingMaxTTL       time.Duration
	TypingCleanupGrace time.Duration
	OnlineWindow       time.Duration
	SearchLimit        int
	BrowseLimit        int
}

func DefaultConfig() Config {
	return Config{
		TypingTTL:          2500 * time.Millisecond,
		TypingMaxTTL:       3 * time.Second,
		TypingCleanupGrace: 50 * time.Millisecond,
		OnlineWindow:       30 * time.Second,
		SearchLimit:        30,
		BrowseLimit:        50,
	}
}

type Service struct {
	store   repository.Store
	clock   clockwork.Clock
	sched   scheduler.Scheduler
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     Config
}

func New(store repository.Store, clock clockwork.Clock, sched scheduler.Scheduler, pub events.Publisher, m *metrics.Metrics, log *zap.Logger, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = def.TypingTTL
	}
	if cfg.TypingMaxTTL <= 0 {
		cfg.TypingMaxTTL = def.TypingMaxTTL
	}
	if cfg.TypingMaxTTL < cfg.TypingTTL {
		cfg.TypingMaxTTL = cfg.TypingTTL
	}
	if cfg.TypingCleanupGrace <= 0 {
		cfg.TypingCleanupGrace = def.TypingCleanupGrace
	}
	if cfg.OnlineWindow <= 0 {
		cfg.OnlineWindow = def.OnlineWindow
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}
	if cfg.BrowseLimit <= 0 {
		cfg.BrowseLimit = def.BrowseLimit
	}
	return &Service{
		store:   store,
		clock:   clock,
		sched:   sched,
		pub:     pub,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

// now is UTC at millisecond precision, the resolution of stored dates.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func newID() string {
	return uuid.NewString()
}

func (s *Service) publish(ctx context.Context, typ string, topics ...string) {
	if s.pub == nil || len(topics) == 0 {
		return
	}
	s.pub.Publish(context.WithoutCancel(ctx), events.Event{Type: typ, Topics: topics, At: s.now()})
}

// notFound converts a repository miss into the domain error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return err
}
