// Package stats tracks process-wide session and byte counters for the
// /info diagnostic endpoint, adapted from the teacher's
// tunnel/statistic sniffing wrapper (an atomic.Uint64 write counter on
// a net.Conn) with the TLS-SNI rule-matching half dropped — SPEC_FULL
// has no rule engine for a sniffed SNI to feed.
package stats

import (
	"net"

	"go.uber.org/atomic"
)

// Global aggregates counters across every session, surfaced by the
// /info endpoint.
var Global = &Counters{}

// Counters tracks session and byte totals. Safe for concurrent use.
type Counters struct {
	ActiveUnderpass atomic.Int64
	ActiveTwoPassV1 atomic.Int64
	ActiveTwoPassV2 atomic.Int64
	BytesUp         atomic.Uint64
	BytesDown       atomic.Uint64
}

// Conn wraps a net.Conn, adding its traffic to the given counters.
type Conn struct {
	net.Conn
	up   *atomic.Uint64
	down *atomic.Uint64
}

// NewConn wraps conn so reads count toward down and writes toward up
// (from the perspective of the wrapped endpoint).
func NewConn(conn net.Conn, up, down *atomic.Uint64) *Conn {
	return &Conn{Conn: conn, up: up, down: down}
}

func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.down.Add(uint64(n))
	}
	return n, err
}

func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.up.Add(uint64(n))
	}
	return n, err
}
