package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Dealer is a single identified connection to a Router.
type Dealer struct {
	identity string
	logger   *slog.Logger
	bufSize  int

	conn   net.Conn
	rw     io.ReadWriter
	wmu    sync.Mutex
	in     chan Message
	stop   chan struct{}
	done   chan struct{}
	err    atomic.Value // error
	closed atomic.Bool
}

// Dial connects to the router at url presenting identity. An empty
// identity lets the router assign one.
func Dial(ctx context.Context, url, identity string, opts ...DealerOption) (*Dealer, error) {
	d := &Dealer{
		identity: identity,
		logger:   slog.Default(),
		bufSize:  64,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	dialer := ws.Dialer{}
	if identity != "" {
		dialer.Header = ws.HandshakeHeaderHTTP(http.Header{IdentityHeader: []string{identity}})
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	d.conn = conn

	var r io.Reader = conn
	if br != nil {
		r = br
	}
	d.rw = struct {
		io.Reader
		io.Writer
	}{r, conn}
	d.in = make(chan Message, d.bufSize)

	go d.readLoop()
	return d, nil
}

// Identity returns the identity presented on dial.
func (d *Dealer) Identity() string { return d.identity }

// Send writes one multipart message.
func (d *Dealer) Send(frames ...[]byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if len(frames) == 0 {
		return ErrEmptyMessage
	}
	data, err := encodeFrames(frames)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if err := wsutil.WriteClientMessage(d.conn, ws.OpBinary, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Recv blocks until a message arrives, the connection fails, or ctx is done.
func (d *Dealer) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-d.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-d.in:
		return msg, nil
	case <-d.done:
		return nil, d.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the connection is lost or closed.
func (d *Dealer) Done() <-chan struct{} { return d.done }

// Err returns the reason the connection ended, or nil while it is alive.
func (d *Dealer) Err() error {
	if v := d.err.Load(); v != nil {
		return v.(error)
	}
	select {
	case <-d.done:
		return ErrClosed
	default:
		return nil
	}
}

// Close closes the connection.
func (d *Dealer) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(d.stop)
	d.wmu.Lock()
	_ = wsutil.WriteClientMessage(d.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	d.wmu.Unlock()
	return d.conn.Close()
}

func (d *Dealer) readLoop() {
	defer close(d.done)
	for {
		data, op, err := wsutil.ReadServerData(d.rw)
		if err != nil {
			if !d.closed.Load() {
				d.err.Store(fmt.Errorf("%w: %w", ErrClosed, err))
				d.logger.Debug("dealer read error",
					slog.String("identity", d.identity),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if op != ws.OpBinary {
			continue
		}
		frames, decErr := decodeFrames(data)
		if decErr != nil {
			d.logger.Warn("dropping undecodable message",
				slog.String("identity", d.identity),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		select {
		case d.in <- frames:
		case <-d.stop:
			return
		}
	}
}
