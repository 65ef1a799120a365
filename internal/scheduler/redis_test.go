package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisScheduler(t *testing.T, clock clockwork.Clock) (*Redis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, clock, RedisOptions{Key: "test:jobs"}, zap.NewNop()), rdb
}

func TestRedis_DeliversDueJobsOnce(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s, rdb := newRedisScheduler(t, clock)
	rec := &recorder{}
	s.Handle(rec.handle)

	expires := clock.Now().Add(2500 * time.Millisecond)
	job := Job{Kind: KindTypingCleanup, ConversationID: "c1", UserID: "u1", ExpiresAt: expires}
	require.NoError(t, s.ScheduleOnce(ctx, 2550*time.Millisecond, job))

	n, err := s.pollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(2550 * time.Millisecond)
	n, err = s.pollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.jobs, 1)
	assert.True(t, rec.jobs[0].ExpiresAt.Equal(expires))
	assert.NotEmpty(t, rec.jobs[0].ID)

	n, err = s.pollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	left, err := rdb.ZCard(ctx, "test:jobs").Result()
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestRedis_IdenticalJobsStayDistinct(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s, _ := newRedisScheduler(t, clock)
	rec := &recorder{}
	s.Handle(rec.handle)

	job := Job{Kind: KindTypingCleanup, ConversationID: "c1", UserID: "u1"}
	require.NoError(t, s.ScheduleOnce(ctx, 0, job))
	require.NoError(t, s.ScheduleOnce(ctx, 0, job))

	n, err := s.pollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedis_NoHandler(t *testing.T) {
	s, _ := newRedisScheduler(t, clockwork.NewFakeClock())
	_, err := s.pollOnce(context.Background())
	assert.ErrorIs(t, err, ErrNoHandler)
}
