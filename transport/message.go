// Package transport provides router-style endpoints and dealer connections
// over WebSocket. A router accepts many identified peers and delivers every
// inbound message prefixed with the sender's identity; sending a message
// whose first frame is an identity routes it to that peer. A dealer is the
// single-connection peer side.
package transport

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// IdentityHeader carries the peer's self-assigned identity on the upgrade
// request.
const IdentityHeader = "X-Compute-Identity"

var (
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("transport: closed")

	// ErrUnknownPeer is returned by Router.Send when no peer holds the
	// destination identity.
	ErrUnknownPeer = errors.New("transport: unknown peer")

	// ErrPeerBacklog is returned by Router.Send when the destination peer
	// is not draining its queue. The peer is disconnected.
	ErrPeerBacklog = errors.New("transport: peer outbound queue full")

	// ErrEmptyMessage is returned when a message has no frames.
	ErrEmptyMessage = errors.New("transport: empty message")
)

// Message is a multipart message. On a router the first frame is the
// peer identity.
type Message [][]byte

// Identity returns the first frame as a string.
func (m Message) Identity() string {
	if len(m) == 0 {
		return ""
	}
	return string(m[0])
}

// PeerEvent reports a peer joining or leaving a router.
type PeerEvent struct {
	Identity  string
	Connected bool
}

func encodeFrames(frames [][]byte) ([]byte, error) {
	return msgpack.Marshal(frames)
}

func decodeFrames(data []byte) ([][]byte, error) {
	var frames [][]byte
	if err := msgpack.Unmarshal(data, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}
