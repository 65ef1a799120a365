package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetTyping_SchedulesGuardedCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 0))

	require.Len(t, f.sched.jobs, 1)
	sj := f.sched.jobs[0]
	assert.Equal(t, 2550*time.Millisecond, sj.delay)
	assert.Equal(t, scheduler.KindTypingCleanup, sj.job.Kind)
	assert.Equal(t, t0.Add(2500*time.Millisecond), sj.job.ExpiresAt)

	typing, err := f.svc.ListTypingUsers(ctx, conv, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{ann}, typing)

	typing, err = f.svc.ListTypingUsers(ctx, conv, ann)
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestSetTyping_WindowIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, time.Hour))

	require.Len(t, f.sched.jobs, 1)
	assert.Equal(t, 3050*time.Millisecond, f.sched.jobs[0].delay)
	assert.Equal(t, t0.Add(3*time.Second), f.sched.jobs[0].job.ExpiresAt)

	f.clock.Advance(3 * time.Second)
	typing, err := f.svc.ListTypingUsers(ctx, conv, bob)
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestTypingExpiryRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 2500*time.Millisecond))
	f.clock.Advance(2000 * time.Millisecond)
	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 2500*time.Millisecond))
	require.Len(t, f.sched.jobs, 2)
	first, second := f.sched.jobs[0].job, f.sched.jobs[1].job

	// first cleanup fires at T+2550
	f.clock.Advance(550 * time.Millisecond)
	deleted, err := f.svc.ExpireTyping(ctx, first)
	require.NoError(t, err)
	assert.False(t, deleted)

	f.clock.Advance(50 * time.Millisecond)
	typing, err := f.svc.ListTypingUsers(ctx, conv, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{ann}, typing)

	// second cleanup fires at T+4550
	f.clock.Advance(1950 * time.Millisecond)
	deleted, err = f.svc.ExpireTyping(ctx, second)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = f.svc.ExpireTyping(ctx, second)
	require.NoError(t, err)
	assert.False(t, deleted, "repeated delivery is a no-op")
}

func TestExpireTyping_EarlyDeliveryKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 0))
	deleted, err := f.svc.ExpireTyping(ctx, f.sched.jobs[0].job)
	require.NoError(t, err)
	assert.False(t, deleted)

	var ts *domain.TypingState
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ts, err = tx.GetTyping(ctx, conv, ann)
		return err
	}))
	assert.Equal(t, t0.Add(2500*time.Millisecond), ts.ExpiresAt)
}

func TestListTypingUsers_FiltersExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 0))
	f.clock.Advance(2500 * time.Millisecond)

	typing, err := f.svc.ListTypingUsers(ctx, conv, bob)
	require.NoError(t, err)
	assert.Empty(t, typing, "state expiring exactly now is absent")

	var stored *domain.TypingState
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		stored, err = tx.GetTyping(ctx, conv, ann)
		return err
	}))
	assert.NotNil(t, stored, "not yet physically removed")
}

func TestClearTyping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob, eve := f.user(t, "Ann"), f.user(t, "Bob"), f.user(t, "Eve")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 0))
	require.NoError(t, f.svc.ClearTyping(ctx, conv, ann))
	require.NoError(t, f.svc.ClearTyping(ctx, conv, ann))

	typing, err := f.svc.ListTypingUsers(ctx, conv, bob)
	require.NoError(t, err)
	assert.Empty(t, typing)

	deleted, err := f.svc.ExpireTyping(ctx, f.sched.jobs[0].job)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.ErrorIs(t, f.svc.ClearTyping(ctx, conv, eve), domain.ErrForbidden)
}

func TestTyping_NonMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob, eve := f.user(t, "Ann"), f.user(t, "Bob"), f.user(t, "Eve")
	conv := f.direct(t, ann, bob)

	assert.ErrorIs(t, f.svc.SetTyping(ctx, conv, eve, 0), domain.ErrForbidden)
	assert.Empty(t, f.sched.jobs)

	_, err := f.svc.ListTypingUsers(ctx, conv, eve)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	typing, err := f.svc.ListTypingUsers(ctx, conv, ann)
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestSetTyping_ScheduleFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sched.err = errors.New("queue down")
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")
	conv := f.direct(t, ann, bob)

	require.NoError(t, f.svc.SetTyping(ctx, conv, ann, 0))
	typing, err := f.svc.ListTypingUsers(ctx, conv, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{ann}, typing)
}

func TestTyping_LocalSchedulerEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	sched := scheduler.NewLocal(clock)
	svc := New(store, clock, sched, &recordingPublisher{}, metrics.New(prometheus.NewRegistry()), zap.NewNop(), DefaultConfig())
	sched.Handle(svc.HandleJob)

	ann, err := svc.ResolveUser(ctx, &domain.Identity{Subject: "a", Name: "Ann"})
	require.NoError(t, err)
	bob, err := svc.ResolveUser(ctx, &domain.Identity{Subject: "b", Name: "Bob"})
	require.NoError(t, err)
	conv, err := svc.OpenOrCreateDirect(ctx, ann.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, svc.SetTyping(ctx, conv, ann.ID, 0))
	clock.Advance(2550 * time.Millisecond)

	assert.Eventually(t, func() bool {
		var gone bool
		_ = store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.GetTyping(ctx, conv, ann.ID)
			gone = errors.Is(err, repository.ErrNotFound)
			return nil
		})
		return gone
	}, time.Second, 5*time.Millisecond)
}
