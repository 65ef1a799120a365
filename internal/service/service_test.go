package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type scheduled struct {
	delay time.Duration
	job   scheduler.Job
}

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []scheduled
	err  error
}

func (r *recordingScheduler) ScheduleOnce(_ context.Context, delay time.Duration, job scheduler.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, scheduled{delay: delay, job: job})
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingPublisher) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	svc   *Service
	store *repository.MemoryStore
	clock clockwork.FakeClock
	sched *recordingScheduler
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		clock: clockwork.NewFakeClockAt(t0),
		sched: &recordingScheduler{},
		pub:   &recordingPublisher{},
	}
	m := metrics.New(prometheus.NewRegistry())
	f.svc = New(f.store, f.clock, f.sched, f.pub, m, zap.NewNop(), DefaultConfig())
	return f
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u, err := f.svc.ResolveUser(context.Background(), &domain.Identity{Subject: "ext-" + name, Name: name})
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) direct(t *testing.T, a, b string) string {
	t.Helper()
	id, err := f.svc.OpenOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return id
}

func (f *fixture) membership(t *testing.T, convID, userID string) *domain.Membership {
	t.Helper()
	var m *domain.Membership
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		m, err = tx.GetMembership(ctx, convID, userID)
		return err
	}))
	return m
}

func (f *fixture) conversation(t *testing.T, convID string) *domain.Conversation {
	t.Helper()
	var c *domain.Conversation
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		c, err = tx.GetConversation(ctx, convID)
		return err
	}))
	return c
}
