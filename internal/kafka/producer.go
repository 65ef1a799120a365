package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const writeTimeout = 5 * time.Second

// Producer publishes change events to a topic. Publish only enqueues; Run
// writes through a circuit breaker so a broker outage fails fast.
type Producer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	queue  chan events.Event
	log    *zap.Logger
}

type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

func NewProducer(brokers []string, topic string, buffer int, bs BreakerSettings, log *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 5 * time.Millisecond,
	}
	return newProducer(w, buffer, bs, log)
}

func newProducer(w messageWriter, buffer int, bs BreakerSettings, log *zap.Logger) *Producer {
	if buffer <= 0 {
		buffer = 1024
	}
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "kafka-events",
		MaxRequests: 1,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Producer{
		writer: w,
		cb:     gobreaker.NewCircuitBreaker(st),
		queue:  make(chan events.Event, buffer),
		log:    log,
	}
}

// Publish never blocks. When the queue is full the event is dropped.
func (p *Producer) Publish(_ context.Context, ev events.Event) {
	select {
	case p.queue <- ev:
	default:
		p.log.Warn("kafka queue full, dropping event", zap.String("type", ev.Type))
	}
}

// Run writes queued events until ctx is done.
func (p *Producer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			p.write(ctx, ev)
		}
	}
}

// write is best effort: failures are logged and the event is dropped.
func (p *Producer) write(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Type),
		Value: b,
		Time:  time.Now(),
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		p.log.Warn("publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (p *Producer) Close(ctx context.Context) error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
