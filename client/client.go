// Package client provides a Go client for upstream modules calling the
// compute backend through the broker frontend.
//
// Usage:
//
//	c, err := client.Dial(ctx, "ws://127.0.0.1:5555/",
//	    client.WithIdentity("scanner"),
//	)
//	defer c.Close()
//
//	// Full response, including error responses.
//	resp, err := c.Call(ctx, protocol.MethodHealthCheck, nil)
//
//	// Data only; error responses become *client.ResponseError.
//	data, err := c.Invoke(ctx, protocol.MethodGetMarketData, protocol.Params{
//	    "symbols": []string{"AAPL"},
//	})
//
// The context deadline is the client-side timeout. Giving up does not
// cancel the request on the backend; a response that arrives later is
// discarded.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zhengren252/ntn-sub004/backoff"
	"github.com/zhengren252/ntn-sub004/id"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/transport"
)

// ErrClosed is returned by calls on a closed client or after the
// connection is lost for good.
var ErrClosed = errors.New("compute/client: closed")

// ResponseError is an error response returned by the backend.
type ResponseError struct {
	RequestID string
	Message   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("compute/client: request %s failed: %s", e.RequestID, e.Message)
}

// Client sends requests to the broker frontend and correlates responses
// by request_id.
type Client struct {
	url      string
	identity string
	codec    *protocol.MessageHandler
	logger   *slog.Logger

	// Reconnection.
	reconnect  bool
	maxRetries int
	strategy   backoff.Strategy

	mu     sync.Mutex
	dealer *transport.Dealer
	closed atomic.Bool
	lost   chan struct{}

	// Request-response correlation.
	pending sync.Map // request_id → chan *protocol.ServiceResponse
}

// Dial connects to the broker frontend at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:        url,
		codec:      protocol.NewMessageHandler(protocol.JSONCodec{}),
		logger:     slog.Default(),
		maxRetries: 5,
		strategy:   backoff.DefaultStrategy(),
		lost:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.identity == "" {
		c.identity = id.NewClientID().String()
	}

	d, err := transport.Dial(ctx, c.url, c.identity, transport.WithDealerLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("compute/client: dial: %w", err)
	}
	c.dealer = d

	go c.readLoop(d)
	return c, nil
}

// Identity returns the identity presented to the broker.
func (c *Client) Identity() string { return c.identity }

// Call sends one request and waits for the correlated response. An error
// response is returned as a response, not as an error; err is set only
// when no response was received.
func (c *Client) Call(ctx context.Context, method protocol.Method, params protocol.Params) (*protocol.ServiceResponse, error) {
	if params == nil {
		params = protocol.Params{}
	}
	req := &protocol.ServiceRequest{
		Method:    method,
		Params:    params,
		RequestID: id.NewRequestID().String(),
		Timestamp: protocol.Now(),
	}
	return c.Do(ctx, req)
}

// Do sends a prepared request. req.RequestID must be set and unique among
// the client's outstanding calls.
func (c *Client) Do(ctx context.Context, req *protocol.ServiceRequest) (*protocol.ServiceResponse, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if req.RequestID == "" {
		return nil, fmt.Errorf("compute/client: request has no request_id")
	}
	data, err := c.codec.SerializeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("compute/client: %w", err)
	}

	respCh := make(chan *protocol.ServiceResponse, 1)
	if _, dup := c.pending.LoadOrStore(req.RequestID, respCh); dup {
		return nil, fmt.Errorf("compute/client: request %s already in flight", req.RequestID)
	}
	defer c.pending.Delete(req.RequestID)

	if err := c.send(data); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-c.lost:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("compute/client: request %s: %w", req.RequestID, ctx.Err())
	}
}

// Invoke calls method and returns the response data. An error response
// is returned as *ResponseError.
func (c *Client) Invoke(ctx context.Context, method protocol.Method, params protocol.Params) (map[string]any, error) {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &ResponseError{RequestID: resp.RequestID, Message: resp.ErrorMessage()}
	}
	return resp.Data, nil
}

// Close closes the connection. Outstanding calls return ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	d := c.dealer
	c.mu.Unlock()
	return d.Close()
}

func (c *Client) send(data []byte) error {
	c.mu.Lock()
	d := c.dealer
	c.mu.Unlock()
	if err := d.Send(data); err != nil {
		return fmt.Errorf("compute/client: send: %w", err)
	}
	return nil
}

// readLoop delivers responses from d until the connection ends.
func (c *Client) readLoop(d *transport.Dealer) {
	for {
		msg, err := d.Recv(context.Background())
		if err != nil {
			if c.closed.Load() {
				close(c.lost)
				return
			}
			c.logger.Warn("compute client: connection lost", slog.String("error", err.Error()))
			if c.reconnect && c.tryReconnect() {
				return
			}
			c.closed.Store(true)
			close(c.lost)
			return
		}
		if len(msg) == 0 {
			continue
		}

		resp, err := c.codec.ParseResponse(msg[len(msg)-1])
		if err != nil {
			c.logger.Warn("compute client: invalid response", slog.String("error", err.Error()))
			continue
		}
		val, ok := c.pending.Load(resp.RequestID)
		if !ok {
			c.logger.Debug("compute client: discarding uncorrelated response",
				slog.String("request_id", resp.RequestID),
			)
			continue
		}
		ch := val.(chan *protocol.ServiceResponse) //nolint:errcheck // pending map always stores this type
		select {
		case ch <- resp:
		default:
		}
	}
}

// tryReconnect dials again under the same identity so responses to
// outstanding requests still reach this client. It reports whether a new
// read loop took over.
func (c *Client) tryReconnect() bool {
	for attempt := range c.maxRetries {
		if err := backoff.Wait(context.Background(), c.strategy, attempt); err != nil {
			return false
		}
		if c.closed.Load() {
			return false
		}
		c.logger.Info("compute client reconnecting", slog.Int("attempt", attempt+1))

		d, err := transport.Dial(context.Background(), c.url, c.identity, transport.WithDealerLogger(c.logger))
		if err != nil {
			c.logger.Warn("compute client reconnect failed", slog.String("error", err.Error()))
			continue
		}

		c.mu.Lock()
		c.dealer = d
		c.mu.Unlock()
		if c.closed.Load() {
			_ = d.Close()
		}
		c.logger.Info("compute client reconnected")
		go c.readLoop(d)
		return true
	}
	c.logger.Error("compute client: max reconnection attempts reached")
	return false
}
