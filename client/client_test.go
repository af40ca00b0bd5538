package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/zhengren252/ntn-sub004/backoff"
	"github.com/zhengren252/ntn-sub004/client"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/transport"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupFrontend starts a router standing in for the broker frontend.
func setupFrontend(t *testing.T) *transport.Router {
	t.Helper()
	r := transport.NewRouter("frontend", "127.0.0.1:0", transport.WithLogger(testLogger()))
	if err := r.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func dialClient(t *testing.T, url string, opts ...client.Option) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts = append([]client.Option{client.WithLogger(testLogger())}, opts...)
	c, err := client.Dial(ctx, url, opts...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// nextRequest reads one request from the frontend.
func nextRequest(t *testing.T, r *transport.Router) (string, *protocol.ServiceRequest) {
	t.Helper()
	select {
	case msg := <-r.Inbound():
		req, err := protocol.ParseRequest(msg[len(msg)-1])
		if err != nil {
			t.Fatalf("ParseRequest: %v", err)
		}
		return msg.Identity(), req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request")
		return "", nil
	}
}

func reply(t *testing.T, r *transport.Router, clientID string, resp *protocol.ServiceResponse) {
	t.Helper()
	data, err := protocol.SerializeResponse(resp)
	if err != nil {
		t.Fatalf("SerializeResponse: %v", err)
	}
	if err := r.Send(transport.Message{[]byte(clientID), data}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

// ── Tests ─────────────────────────────────────────────

func TestClient_CallCorrelatesResponse(t *testing.T) {
	r := setupFrontend(t)
	c := dialClient(t, r.URL(), client.WithIdentity("cli_scanner"))

	type result struct {
		resp *protocol.ServiceResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.Call(context.Background(), protocol.MethodHealthCheck, nil)
		done <- result{resp, err}
	}()

	clientID, req := nextRequest(t, r)
	if clientID != "cli_scanner" {
		t.Errorf("identity = %q, want cli_scanner", clientID)
	}
	if req.Method != protocol.MethodHealthCheck {
		t.Errorf("method = %q", req.Method)
	}
	if !strings.HasPrefix(req.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", req.RequestID)
	}

	// An uncorrelated response is ignored.
	reply(t, r, clientID, protocol.CreateResponse("req_other", map[string]any{"x": 1}, protocol.StatusSuccess))
	reply(t, r, clientID, protocol.CreateResponse(req.RequestID, map[string]any{"status": "healthy"}, protocol.StatusSuccess))

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Call: %v", res.err)
		}
		if res.resp.RequestID != req.RequestID || res.resp.Data["status"] != "healthy" {
			t.Errorf("unexpected response %+v", res.resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Call did not return")
	}
}

func TestClient_InvokeErrorResponse(t *testing.T) {
	r := setupFrontend(t)
	c := dialClient(t, r.URL())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Invoke(context.Background(), protocol.MethodExecuteOrder, protocol.Params{"symbol": "AAPL"})
		errCh <- err
	}()

	clientID, req := nextRequest(t, r)
	reply(t, r, clientID, protocol.CreateErrorResponse(req.RequestID, "missing parameter: action"))

	err := <-errCh
	var respErr *client.ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expected *ResponseError, got %v", err)
	}
	if respErr.RequestID != req.RequestID || respErr.Message != "missing parameter: action" {
		t.Errorf("unexpected error %+v", respErr)
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	r := setupFrontend(t)
	c := dialClient(t, r.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, protocol.MethodHealthCheck, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_DuplicateRequestID(t *testing.T) {
	r := setupFrontend(t)
	c := dialClient(t, r.URL())

	req := &protocol.ServiceRequest{Method: protocol.MethodHealthCheck, RequestID: "req_same"}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = c.Do(ctx, req)
	}()
	nextRequest(t, r)

	_, err := c.Do(context.Background(), &protocol.ServiceRequest{Method: protocol.MethodHealthCheck, RequestID: "req_same"})
	if err == nil || !strings.Contains(err.Error(), "already in flight") {
		t.Fatalf("expected in-flight error, got %v", err)
	}
}

func TestClient_ConnectionLost(t *testing.T) {
	r := setupFrontend(t)
	c := dialClient(t, r.URL())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), protocol.MethodHealthCheck, nil)
		errCh <- err
	}()
	nextRequest(t, r)
	_ = r.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, client.ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Call did not return after connection loss")
	}
}

func TestClient_ReconnectKeepsOutstandingCall(t *testing.T) {
	r := setupFrontend(t)
	addr := r.Addr()
	c := dialClient(t, r.URL(),
		client.WithIdentity("cli_sticky"),
		client.WithReconnect(50, backoff.NewConstant(20*time.Millisecond)),
	)

	done := make(chan *protocol.ServiceResponse, 1)
	go func() {
		resp, err := c.Call(context.Background(), protocol.MethodHealthCheck, nil)
		if err != nil {
			t.Errorf("Call: %v", err)
		}
		done <- resp
	}()
	_, req := nextRequest(t, r)
	_ = r.Close()

	r2 := transport.NewRouter("frontend", addr, transport.WithLogger(testLogger()))
	if err := r2.Listen(context.Background()); err != nil {
		t.Fatalf("Listen again: %v", err)
	}
	t.Cleanup(func() { _ = r2.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for !r2.Connected("cli_sticky") {
		if time.Now().After(deadline) {
			t.Fatal("client did not reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	reply(t, r2, "cli_sticky", protocol.CreateResponse(req.RequestID, map[string]any{"status": "healthy"}, protocol.StatusSuccess))

	select {
	case resp := <-done:
		if resp == nil || resp.RequestID != req.RequestID {
			t.Fatalf("unexpected response %+v", resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Call did not return after reconnect")
	}
}

func TestClient_CallAfterClose(t *testing.T) {
	r := setupFrontend(t)
	c := dialClient(t, r.URL())
	_ = c.Close()

	if _, err := c.Call(context.Background(), protocol.MethodHealthCheck, nil); !errors.Is(err, client.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
