package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

// NewConsumer joins groupID. Every service instance needs its own group so
// each one sees every event and can refresh its own websocket subscribers.
func NewConsumer(brokers []string, topic string, groupID string, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, log: log}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handle events.Handler) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		ev, err := Decode(m.Value)
		if err != nil {
			c.log.Warn("invalid event", zap.String("key", string(m.Key)), zap.Error(err))
			continue
		}
		handle(ev)
	}
}

func Decode(b []byte) (events.Event, error) {
	var ev events.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return events.Event{}, err
	}
	if ev.Type == "" {
		return events.Event{}, errors.New("event type missing")
	}
	return ev, nil
}

func (c *Consumer) Close(ctx context.Context) error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
