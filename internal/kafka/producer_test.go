package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu    sync.Mutex
	fail  bool
	calls int
	msgs  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

// slowWriter holds every write until release is closed.
type slowWriter struct {
	fakeWriter
	release chan struct{}
}

func (w *slowWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.fakeWriter.WriteMessages(ctx, msgs...)
}

func TestProducer_PublishEncodesEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 0, BreakerSettings{}, zap.NewNop())

	p.write(context.Background(), events.Event{Type: events.MessageSent, Topics: []string{"messages:c1"}})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, events.MessageSent, string(w.msgs[0].Key))
	ev, err := Decode(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, []string{"messages:c1"}, ev.Topics)
}

func TestProducer_BreakerOpens(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := newProducer(w, 0, BreakerSettings{MaxFailures: 2, Timeout: time.Minute}, zap.NewNop())

	for i := 0; i < 5; i++ {
		p.write(context.Background(), events.Event{Type: events.TypingChanged})
	}
	assert.Equal(t, 2, w.calls)
	assert.Equal(t, gobreaker.StateOpen, p.cb.State())
}

func TestProducer_PublishDoesNotWaitForBroker(t *testing.T) {
	w := &slowWriter{release: make(chan struct{})}
	p := newProducer(w, 4, BreakerSettings{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	start := time.Now()
	for i := 0; i < 10; i++ {
		p.Publish(ctx, events.Event{Type: events.MessageSent, Topics: []string{"messages:c1"}})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, w.written())

	close(w.release)
	require.Eventually(t, func() bool { return w.written() > 0 }, time.Second, 5*time.Millisecond)
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`{"topics":["x"]}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`nope`))
	assert.Error(t, err)
}
