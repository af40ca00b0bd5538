package transport

import (
	"log/slog"
	"time"
)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithInboundBuffer sets the capacity of the inbound message channel.
func WithInboundBuffer(n int) Option {
	return func(r *Router) { r.inboundSize = n }
}

// WithOutboundBuffer sets how many messages may wait for each peer before
// the peer is disconnected.
func WithOutboundBuffer(n int) Option {
	return func(r *Router) { r.outboundSize = n }
}

// WithWriteTimeout bounds a single write to a peer.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Router) { r.writeTimeout = d }
}

// DealerOption configures a Dealer.
type DealerOption func(*Dealer)

// WithDealerLogger sets the dealer's structured logger.
func WithDealerLogger(logger *slog.Logger) DealerOption {
	return func(d *Dealer) { d.logger = logger }
}

// WithDealerBuffer sets the capacity of the dealer's receive channel.
func WithDealerBuffer(n int) DealerOption {
	return func(d *Dealer) { d.bufSize = n }
}
