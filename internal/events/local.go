package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LocalBus delivers events to a single handler on its own goroutine.
type LocalBus struct {
	ch     chan Event
	log    *zap.Logger
	mu     sync.RWMutex
	handle Handler
}

func NewLocalBus(buffer int, log *zap.Logger) *LocalBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBus{ch: make(chan Event, buffer), log: log}
}

func (b *LocalBus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handle = h
	b.mu.Unlock()
}

// Publish never blocks; events are dropped when the buffer is full.
func (b *LocalBus) Publish(_ context.Context, ev Event) {
	select {
	case b.ch <- ev:
	default:
		b.log.Warn("event dropped, bus full", zap.String("type", ev.Type))
	}
}

func (b *LocalBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.ch:
			b.mu.RLock()
			h := b.handle
			b.mu.RUnlock()
			if h != nil {
				h(ev)
			}
		}
	}
}
