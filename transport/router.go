package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// Router is a router-style WebSocket endpoint.
type Router struct {
	name         string
	addr         string
	logger       *slog.Logger
	inboundSize  int
	outboundSize int
	writeTimeout time.Duration

	ln      net.Listener
	srv     *http.Server
	inbound chan Message
	events  chan PeerEvent
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	mu    sync.RWMutex
	peers map[string]*peer
}

// peer is one connected identity. Writes go through out so a peer that
// stops reading only backs up its own queue.
type peer struct {
	identity string
	conn     net.Conn
	out      chan []byte
	quit     chan struct{}
	once     sync.Once
}

// close disconnects the peer. The read loop then removes it and reports
// the disconnect.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.quit)
		_ = p.conn.Close()
	})
}

// NewRouter creates a router that will bind addr ("host:port") when
// Listen is called. name is used in log output only.
func NewRouter(name, addr string, opts ...Option) *Router {
	r := &Router{
		name:         name,
		addr:         addr,
		logger:       slog.Default(),
		inboundSize:  1024,
		outboundSize: 256,
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
		peers:        make(map[string]*peer),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.outboundSize < 1 {
		r.outboundSize = 1
	}
	r.inbound = make(chan Message, r.inboundSize)
	r.events = make(chan PeerEvent, r.inboundSize)
	return r
}

// Listen binds the address and starts accepting peers in the background.
func (r *Router) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("transport: %s listen %s: %w", r.name, r.addr, err)
	}
	r.ln = ln
	r.srv = &http.Server{
		Handler:           http.HandlerFunc(r.handleUpgrade),
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if serveErr := r.srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			r.logger.Error("router serve error",
				slog.String("router", r.name),
				slog.String("error", serveErr.Error()),
			)
		}
	}()

	r.logger.Info("router listening",
		slog.String("router", r.name),
		slog.String("addr", ln.Addr().String()),
	)
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (r *Router) Addr() string {
	if r.ln == nil {
		return r.addr
	}
	return r.ln.Addr().String()
}

// URL returns the WebSocket URL peers dial.
func (r *Router) URL() string { return "ws://" + r.Addr() + "/" }

// Inbound delivers [identity, frames...] for every message received.
func (r *Router) Inbound() <-chan Message { return r.inbound }

// Events delivers peer connect and disconnect notifications.
func (r *Router) Events() <-chan PeerEvent { return r.events }

// Done is closed when the router is closed.
func (r *Router) Done() <-chan struct{} { return r.done }

// Peers returns the identities of connected peers.
func (r *Router) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// Connected reports whether a peer with identity is currently attached.
func (r *Router) Connected(identity string) bool {
	r.mu.RLock()
	_, ok := r.peers[identity]
	r.mu.RUnlock()
	return ok
}

// Send queues msg[1:] for the peer named by msg[0]. It never blocks: a
// peer whose outbound queue is full is disconnected and ErrPeerBacklog is
// returned.
func (r *Router) Send(msg Message) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if len(msg) < 2 {
		return ErrEmptyMessage
	}
	r.mu.RLock()
	p, ok := r.peers[msg.Identity()]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, msg.Identity())
	}

	data, err := encodeFrames(msg[1:])
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}

	select {
	case <-p.quit:
		return fmt.Errorf("%w: %s", ErrUnknownPeer, p.identity)
	default:
	}
	select {
	case p.out <- data:
		return nil
	default:
		r.logger.Warn("peer outbound queue full, disconnecting",
			slog.String("router", r.name),
			slog.String("identity", p.identity),
			slog.Int("queued", len(p.out)),
		)
		p.close()
		return fmt.Errorf("%w: %s", ErrPeerBacklog, p.identity)
	}
}

// Close stops accepting peers and disconnects every connected peer.
func (r *Router) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.done)

	var err error
	if r.srv != nil {
		err = r.srv.Close()
	}

	r.mu.Lock()
	for _, p := range r.peers {
		p.close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return err
}

func (r *Router) handleUpgrade(w http.ResponseWriter, req *http.Request) {
	identity := req.Header.Get(IdentityHeader)
	if identity == "" {
		identity = uuid.NewString()
	}

	r.mu.RLock()
	_, taken := r.peers[identity]
	r.mu.RUnlock()
	if taken {
		http.Error(w, "identity already connected", http.StatusConflict)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(req, w)
	if err != nil {
		r.logger.Warn("websocket upgrade failed",
			slog.String("router", r.name),
			slog.String("error", err.Error()),
		)
		return
	}

	p := &peer{
		identity: identity,
		conn:     conn,
		out:      make(chan []byte, r.outboundSize),
		quit:     make(chan struct{}),
	}
	r.mu.Lock()
	if _, raced := r.peers[identity]; raced || r.closed.Load() {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.peers[identity] = p
	r.mu.Unlock()

	r.wg.Add(2)
	go r.readLoop(p)
	go r.writeLoop(p)
}

func (r *Router) readLoop(p *peer) {
	defer r.wg.Done()

	r.logger.Debug("peer connected",
		slog.String("router", r.name),
		slog.String("identity", p.identity),
	)
	r.emit(PeerEvent{Identity: p.identity, Connected: true})

	defer func() {
		r.mu.Lock()
		if r.peers[p.identity] == p {
			delete(r.peers, p.identity)
		}
		r.mu.Unlock()
		p.close()
		r.logger.Debug("peer disconnected",
			slog.String("router", r.name),
			slog.String("identity", p.identity),
		)
		r.emit(PeerEvent{Identity: p.identity, Connected: false})
	}()

	for {
		data, op, err := wsutil.ReadClientData(p.conn)
		if err != nil {
			return
		}
		if op != ws.OpBinary {
			continue
		}
		frames, decErr := decodeFrames(data)
		if decErr != nil {
			r.logger.Warn("dropping undecodable message",
				slog.String("router", r.name),
				slog.String("identity", p.identity),
				slog.String("error", decErr.Error()),
			)
			continue
		}

		msg := make(Message, 0, len(frames)+1)
		msg = append(msg, []byte(p.identity))
		msg = append(msg, frames...)

		select {
		case r.inbound <- msg:
		case <-r.done:
			return
		}
	}
}

// writeLoop drains the peer's outbound queue. A failed or timed out write
// leaves a partial frame on the wire, so the peer is disconnected.
func (r *Router) writeLoop(p *peer) {
	defer r.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case data := <-p.out:
			if r.writeTimeout > 0 {
				_ = p.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			}
			if err := wsutil.WriteServerMessage(p.conn, ws.OpBinary, data); err != nil {
				r.logger.Warn("peer write failed, disconnecting",
					slog.String("router", r.name),
					slog.String("identity", p.identity),
					slog.String("error", err.Error()),
				)
				p.close()
				return
			}
		}
	}
}

func (r *Router) emit(ev PeerEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}
