// Package dialer dials the TCP target a tunnel engine has parsed out
// of its inbound request, using the teacher's functional-options
// shape (component/dialer.Option) trimmed down to what an HTTP/WS
// tunnel needs: a connect timeout and TCP keepalive tuning. The
// teacher's routing-mark/multi-interface-bind/dual-stack-racer
// machinery served its TUN/multi-proxy-group use case, which
// SPEC_FULL has no component for (see DESIGN.md).
package dialer

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultTimeout bounds how long a target dial may take before
	// the caller reports an UpstreamDialFailure (spec §4.4/§7).
	DefaultTimeout = 10 * time.Second

	// DefaultKeepAlive matches the teacher's tcpKeepAlive helper
	// (adapter/outbound/util.go): keep the dialed socket alive so a
	// quiet tunnel direction doesn't get reaped by an intermediate
	// NAT/load balancer.
	DefaultKeepAlive = 30 * time.Second
)

type options struct {
	timeout   time.Duration
	keepAlive time.Duration
	proxyAddr string
}

// Option configures DialContext.
type Option func(*options)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithKeepAlive overrides DefaultKeepAlive. A non-positive value
// disables keepalive.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// WithProxy routes the dial through a SOCKS5 relay at addr instead of
// connecting directly, when addr is non-empty — spec §6's optional
// PROXY_ADDR, an intermediate relay for sandboxes where this process
// itself sits behind one.
func WithProxy(addr string) Option {
	return func(o *options) { o.proxyAddr = addr }
}

// DialContext dials network/address (normally "tcp") applying the
// given options, the way the teacher's component/dialer.DialContext
// is the single chokepoint every outbound adapter calls through.
func DialContext(ctx context.Context, network, address string, opts ...Option) (net.Conn, error) {
	o := options{timeout: DefaultTimeout, keepAlive: DefaultKeepAlive}
	for _, opt := range opts {
		opt(&o)
	}

	d := &net.Dialer{Timeout: o.timeout, KeepAlive: -1}
	if o.keepAlive > 0 {
		d.KeepAlive = o.keepAlive
	}

	if o.proxyAddr != "" {
		relay, err := proxy.SOCKS5("tcp", o.proxyAddr, nil, d)
		if err != nil {
			return nil, err
		}
		return relay.Dial(network, address)
	}

	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if tcp, ok := conn.(*net.TCPConn); ok && o.keepAlive > 0 {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(o.keepAlive)
	}

	return conn, nil
}
