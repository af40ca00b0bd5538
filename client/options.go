package client

import (
	"log/slog"

	"github.com/zhengren252/ntn-sub004/backoff"
	"github.com/zhengren252/ntn-sub004/protocol"
)

// Option configures a Client.
type Option func(*Client)

// WithIdentity sets the identity presented to the broker. It must be
// unique among connected clients. Defaults to a generated client id.
func WithIdentity(identity string) Option {
	return func(c *Client) { c.identity = identity }
}

// WithCodec sets the wire codec. It must match the backend's codec.
func WithCodec(h *protocol.MessageHandler) Option {
	return func(c *Client) { c.codec = h }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnect enables automatic reconnection with the given parameters.
func WithReconnect(maxRetries int, strategy backoff.Strategy) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		if strategy != nil {
			c.strategy = strategy
		}
	}
}
