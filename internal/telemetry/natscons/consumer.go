// Package natscons implements a telemetry Consumer that republishes
// flushed signals onto a NATS subject, mirroring the dotted-subject
// conventions the runtime's own natstransport uses for RPC.
package natscons

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// Consumer publishes every signal it receives onto a single NATS subject.
type Consumer struct {
	conn    *nats.Conn
	subject string
}

// New builds a Consumer that publishes to subject on conn.
func New(conn *nats.Conn, subject string) *Consumer {
	return &Consumer{conn: conn, subject: subject}
}

// Handle implements telemetry.Consumer.
func (c *Consumer) Handle(_ context.Context, sig telemetry.Signal) {
	encoded, err := json.Marshal(sig)
	if err != nil {
		logger.Telemetry().Error().Err(err).Msg("natscons: failed to encode signal")
		return
	}
	if err := c.conn.Publish(c.subject, encoded); err != nil {
		logger.Telemetry().Error().Err(err).Str("subject", c.subject).Msg("natscons: publish failed")
	}
}
