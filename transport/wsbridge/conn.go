// Package wsbridge adapts a WebSocket connection to a pair of
// ordinary io.Reader/io.Writer streams and drives the bidirectional
// pump between a WebSocket and a TCP socket. It is grounded on the
// upgrade/bidirectional-pump shape used throughout the reference
// wstunnel and wire-socket servers, built here on top of the
// gorilla-compatible github.com/jeelsboobz/websocket package that the
// teacher (Dreamacro/clash) already depends on for VLESS-over-WS.
package wsbridge

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/jeelsboobz/websocket"
)

// State mirrors the WHATWG WebSocket readyState enum (§3 data model:
// "WebSocket state enum"), since the underlying library exposes no
// such thing itself and the safe-close helper needs to know when a
// second Close call would be a no-op.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// Conn wraps a *websocket.Conn as an io.ReadWriteCloser carrying
// binary WebSocket messages, tracking readiness so Close is
// idempotent regardless of how many goroutines call it concurrently
// (spec §8: "Safe close idempotence").
type Conn struct {
	ws    *websocket.Conn
	state atomic.Int32

	// pending holds the unread remainder of the current WebSocket
	// message between Read calls, since websocket.Conn.ReadMessage
	// returns whole messages but io.Reader must support partial reads.
	pending []byte
}

// NewConn wraps an already-upgraded WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws}
	c.state.Store(int32(StateOpen))
	return c
}

// State reports the current readiness state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Read implements io.Reader by pulling one binary WebSocket message
// at a time and doling it out across possibly-multiple Read calls.
func (c *Conn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		if c.State() == StateClosed {
			return 0, io.EOF
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.markClosed()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.pending = data
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write implements io.Writer, sending each call as one binary
// WebSocket message (spec §4.2: "each chunk written is sent as a
// binary WebSocket message").
func (c *Conn) Write(p []byte) (int, error) {
	if c.State() == StateClosed {
		return 0, errors.New("wsbridge: write on closed connection")
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SafeClose closes the underlying socket only when it is OPEN or
// CLOSING, swallowing any error from an already-closed peer — the
// idempotence invariant spec §4.2/§8 requires of the close helper.
func (c *Conn) SafeClose() error {
	prev := State(c.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}
	_ = c.ws.Close()
	return nil
}

// Close implements io.Closer via SafeClose.
func (c *Conn) Close() error {
	return c.SafeClose()
}

func (c *Conn) markClosed() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}
