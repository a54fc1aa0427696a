package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/queue"
)

// Consumer is a telemetry sink. Handle is called from the consumer's own
// goroutine pump, one signal at a time, in enqueue order.
type Consumer interface {
	Handle(ctx context.Context, sig Signal)
}

// ProcessingReporter is an optional Consumer extension letting
// FlushConsumers wait for in-flight asynchronous work a Handle call
// kicked off but did not block on (e.g. a buffered network write).
type ProcessingReporter interface {
	IsProcessing() bool
}

type registeredConsumer struct {
	id       string
	consumer Consumer
	queue    *queue.Queue[Signal]
	cancel   context.CancelFunc
}

// RegisterConsumer attaches a sink with its own async queue: signals sent
// through the client are enqueued, never delivered synchronously. The
// returned func unregisters the consumer and stops its pump.
//
// One slow consumer's queue backing up never blocks another consumer or
// the producing call site, since each consumer owns an independent
// unbounded queue fed by the same enqueue fan-out (internal/queue.Queue
// never blocks the producer and never drops; its memory is not bounded —
// this port chooses unbounded-with-the-caller-responsible-for-
// keeping-up over bounded-drop-oldest, the other option spec.md allows).
func (c *Client) RegisterConsumer(consumer Consumer) (unregister func()) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	rc := &registeredConsumer{
		id:       id,
		consumer: consumer,
		queue:    queue.New[Signal](),
		cancel:   cancel,
	}

	c.mu.Lock()
	c.consumers[id] = rc
	c.mu.Unlock()

	go rc.pump(ctx)

	return func() {
		c.mu.Lock()
		delete(c.consumers, id)
		c.mu.Unlock()
		rc.queue.Stop()
		rc.cancel()
	}
}

func (rc *registeredConsumer) pump(ctx context.Context) {
	log := logger.Telemetry()
	for {
		sig, ok := rc.queue.Next(ctx)
		if !ok {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("consumer", rc.id).Msg("telemetry consumer panicked")
				}
			}()
			rc.consumer.Handle(ctx, sig)
		}()
	}
}

// FlushConsumers polls every registered consumer's queue depth (and
// IsProcessing, when a consumer implements ProcessingReporter) at a 50ms
// cadence until all report idle or timeoutMs elapses. On expiry it
// returns normally without signalling loss — this is the only
// time-bounded wait in the core.
func (c *Client) FlushConsumers(timeoutMs int) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.allConsumersIdle() {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		<-ticker.C
	}
}

func (c *Client) allConsumersIdle() bool {
	c.mu.Lock()
	consumers := make([]*registeredConsumer, 0, len(c.consumers))
	for _, rc := range c.consumers {
		consumers = append(consumers, rc)
	}
	c.mu.Unlock()

	for _, rc := range consumers {
		if rc.queue.Len() > 0 {
			return false
		}
		if pr, ok := rc.consumer.(ProcessingReporter); ok && pr.IsProcessing() {
			return false
		}
	}
	return true
}
