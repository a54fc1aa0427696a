// Package rediscons implements a telemetry Consumer that republishes
// flushed signals onto a Redis stream for out-of-process aggregation. It
// is one concrete sink satisfying the Telemetry Core's "consumers are a
// pluggable sink contract" — concrete exporters themselves are out of
// scope for the core, but the runtime ships this one as a real, usable
// default.
package rediscons

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// Consumer publishes every signal it receives onto a single Redis stream
// via XADD.
type Consumer struct {
	client     *redis.Client
	stream     string
	processing int32
}

// New builds a Consumer that writes to stream on client.
func New(client *redis.Client, stream string) *Consumer {
	return &Consumer{client: client, stream: stream}
}

// Handle implements telemetry.Consumer.
func (c *Consumer) Handle(ctx context.Context, sig telemetry.Signal) {
	atomic.StoreInt32(&c.processing, 1)
	defer atomic.StoreInt32(&c.processing, 0)

	encoded, err := json.Marshal(sig)
	if err != nil {
		logger.Telemetry().Error().Err(err).Msg("rediscons: failed to encode signal")
		return
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{
			"kind":    string(sig.Kind),
			"scope":   sig.Scope,
			"payload": string(encoded),
		},
	}).Err(); err != nil {
		logger.Telemetry().Error().Err(err).Str("stream", c.stream).Msg("rediscons: XADD failed")
	}
}

// IsProcessing implements telemetry.ProcessingReporter so FlushConsumers
// waits out an in-flight XADD before reporting idle.
func (c *Consumer) IsProcessing() bool {
	return atomic.LoadInt32(&c.processing) == 1
}
