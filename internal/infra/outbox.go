package infra

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/guard"
	"github.com/kenvote/registry/internal/metrics"
)

// MessageWriter is the broker side of the outbox.
type MessageWriter interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Outbox buffers lifecycle events in memory and relays them to the broker
// from a single goroutine. Publish never blocks the caller; when the buffer
// is full the event is dropped and counted.
type Outbox struct {
	writer  MessageWriter
	breaker *guard.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	queue   chan domain.EventDraft
	timeout time.Duration
	done    chan struct{}
}

// NewOutbox creates an outbox with room for size pending events.
func NewOutbox(writer MessageWriter, breaker *guard.CircuitBreaker, m *metrics.Metrics, logger *slog.Logger, size int) *Outbox {
	if size <= 0 {
		size = 1024
	}
	return &Outbox{
		writer:  writer,
		breaker: breaker,
		metrics: m,
		logger:  logger,
		queue:   make(chan domain.EventDraft, size),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Publish enqueues ev for delivery.
func (o *Outbox) Publish(_ context.Context, ev domain.EventDraft) {
	select {
	case o.queue <- ev:
	default:
		o.metrics.EventPublished("dropped")
		o.logger.Warn("event outbox full, dropping event", "event_type", ev.EventType, "event_id", ev.EventID)
	}
}

// Start begins relaying in a goroutine. When ctx is cancelled the events
// already queued are flushed before Done is closed.
func (o *Outbox) Start(ctx context.Context) {
	o.logger.Info("event outbox started", "capacity", cap(o.queue))

	go func() {
		defer close(o.done)
		for {
			select {
			case <-ctx.Done():
				o.flush()
				o.logger.Info("event outbox stopped")
				return
			case ev := <-o.queue:
				o.send(context.Background(), ev)
			}
		}
	}()
}

// Done is closed once the relay goroutine has exited.
func (o *Outbox) Done() <-chan struct{} { return o.done }

func (o *Outbox) flush() {
	for {
		select {
		case ev := <-o.queue:
			o.send(context.Background(), ev)
		default:
			return
		}
	}
}

func (o *Outbox) send(ctx context.Context, ev domain.EventDraft) {
	msg, err := json.Marshal(ev)
	if err != nil {
		o.metrics.EventPublished("error")
		o.logger.Error("encode event failed", "event_id", ev.EventID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	topic := ev.Topic()
	err = o.breaker.Do(ctx, topic, func(ctx context.Context) error {
		return o.writer.Publish(ctx, topic, []byte(ev.AggregateID), msg)
	})
	switch {
	case err == nil:
		o.metrics.EventPublished("ok")
	case errors.Is(err, guard.ErrCircuitOpen):
		o.metrics.EventPublished("dropped")
		o.logger.Warn("event dropped, broker circuit open", "event_id", ev.EventID, "topic", topic)
	default:
		o.metrics.EventPublished("error")
		o.logger.Error("kafka publish failed", "event_id", ev.EventID, "topic", topic, "error", err)
	}
}
