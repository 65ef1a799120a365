package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrNoHandler = errors.New("scheduler: no handler registered")

// Local fires jobs from in-process timers. Pending jobs are lost on restart.
type Local struct {
	clock  clockwork.Clock
	mu     sync.RWMutex
	handle JobHandler
}

func NewLocal(clock clockwork.Clock) *Local {
	return &Local{clock: clock}
}

func (l *Local) Handle(h JobHandler) {
	l.mu.Lock()
	l.handle = h
	l.mu.Unlock()
}

func (l *Local) ScheduleOnce(_ context.Context, delay time.Duration, job Job) error {
	l.mu.RLock()
	h := l.handle
	l.mu.RUnlock()
	if h == nil {
		return ErrNoHandler
	}
	if delay < 0 {
		delay = 0
	}
	l.clock.AfterFunc(delay, func() {
		h(context.Background(), job)
	})
	return nil
}
