package scheduler

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keeps jobs in a sorted set scored by due time in unix milliseconds.
// Any number of instances may poll the same key; ZREM decides which one
// runs a job.
type Redis struct {
	rdb   redis.UniversalClient
	key   string
	clock clockwork.Clock
	poll  time.Duration
	batch int64
	log   *zap.Logger

	mu     sync.RWMutex
	handle JobHandler
}

type RedisOptions struct {
	Key          string
	PollInterval time.Duration
	BatchSize    int64
}

func NewRedis(rdb redis.UniversalClient, clock clockwork.Clock, opts RedisOptions, log *zap.Logger) *Redis {
	if opts.Key == "" {
		opts.Key = "conversation:jobs"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Redis{
		rdb:   rdb,
		key:   opts.Key,
		clock: clock,
		poll:  opts.PollInterval,
		batch: opts.BatchSize,
		log:   log,
	}
}

func (r *Redis) Handle(h JobHandler) {
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
}

func (r *Redis) ScheduleOnce(ctx context.Context, delay time.Duration, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := r.clock.Now().Add(delay).UnixMilli()
	return r.rdb.ZAdd(ctx, r.key, redis.Z{Score: float64(due), Member: string(b)}).Err()
}

// Run polls for due jobs until ctx is cancelled.
func (r *Redis) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := r.pollOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("scheduler poll", zap.Error(err))
			}
		}
	}
}

func (r *Redis) pollOnce(ctx context.Context) (int, error) {
	r.mu.RLock()
	h := r.handle
	r.mu.RUnlock()
	if h == nil {
		return 0, ErrNoHandler
	}

	now := r.clock.Now().UnixMilli()
	members, err := r.rdb.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: r.batch,
	}).Result()
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, m := range members {
		removed, err := r.rdb.ZRem(ctx, r.key, m).Result()
		if err != nil {
			return ran, err
		}
		if removed != 1 {
			// claimed by another instance
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			r.log.Warn("drop malformed job", zap.Error(err))
			continue
		}
		h(ctx, job)
		ran++
	}
	return ran, nil
}
