// Package twopass implements the H2 TCP Tunnel engine (spec §4.4/§4.5):
// a v1 single-POST tunnel and a v2 POST+GET rendezvous, both dialing a
// target named by request headers and streaming the socket as the
// response body masqueraded as application/grpc. Grounded on
// _examples/other_examples/...FarelRA-UnderPass__TwoPass-Client, the
// client half of this exact protocol, inverted into a server.
package twopass

import (
	"crypto/subtle"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	C "github.com/FarelRA/underpass/constant"
	"github.com/FarelRA/underpass/component/dialer"
	"github.com/FarelRA/underpass/component/stats"
	"github.com/FarelRA/underpass/log"
)

// rendezvousGrace is the v2 GET-before-POST grace window spec §5
// fixes at 2000 ms.
const rendezvousGrace = 2000 * time.Millisecond

var targetHostPattern = regexp.MustCompile(`^[A-Za-z0-9\-.:\[\]]+$`)

// Engine serves both the v1 and v2 H2 tunnel endpoints (spec §6 "H2
// tunnel endpoint"), dispatching on method and the presence of
// X-Tunnel-Id.
type Engine struct {
	Password string
	// RendezvousGrace overrides the v2 GET-before-POST grace window
	// (default rendezvousGrace, spec §5's 2000ms).
	RendezvousGrace time.Duration
	// ProxyAddr, when set, routes the target dial through a SOCKS5
	// relay instead of dialing directly (spec §6 PROXY_ADDR).
	ProxyAddr string

	rendezvous *rendezvousTable
}

// NewEngine builds an Engine authenticating against password.
func NewEngine(password string) *Engine {
	return &Engine{Password: password, rendezvous: newRendezvousTable()}
}

func (e *Engine) rendezvousGrace() time.Duration {
	if e.RendezvousGrace > 0 {
		return e.RendezvousGrace
	}
	return rendezvousGrace
}

func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqLog := log.With(log.Fields{"remote": r.RemoteAddr, "path": r.URL.Path})

	if err := e.authenticate(r); err != nil {
		reqLog.Warnln("[twopass] auth:", err)
		http.Error(w, "unauthorized", C.StatusFor(err))
		return
	}

	id := r.Header.Get("X-Tunnel-Id")
	switch {
	case r.Method == http.MethodPost && id == "":
		e.handleV1(w, r, reqLog)
	case r.Method == http.MethodPost:
		e.handleV2POST(w, r, reqLog, id)
	case r.Method == http.MethodGet && id != "":
		e.handleV2GET(w, r, reqLog, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// authenticate compares Authorization against "Basic <password>".
// Spec §4.4 doesn't require constant-time comparison but recommends
// it; crypto/subtle is stdlib but is the one-line primitive the Go
// ecosystem itself provides for exactly this, so no third-party
// alternative is reached for (see DESIGN.md).
func (e *Engine) authenticate(r *http.Request) error {
	want := "Basic " + e.Password
	got := r.Header.Get("Authorization")
	if len(got) != len(want) || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return C.ErrUnauthorized
	}
	return nil
}

// validateTarget extracts and validates X-Target-Host/X-Target-Port
// per spec §4.4.
func validateTarget(r *http.Request) (host, port string, err error) {
	host = strings.ToLower(strings.TrimSpace(r.Header.Get("X-Target-Host")))
	if host == "" || !targetHostPattern.MatchString(host) {
		return "", "", C.ErrBadRequest
	}

	portStr := strings.TrimSpace(r.Header.Get("X-Target-Port"))
	p, convErr := strconv.Atoi(portStr)
	if convErr != nil || p < 1 || p > 65535 {
		return "", "", C.ErrBadRequest
	}
	return host, portStr, nil
}

// setStreamHeaders applies the response headers spec §6 requires on
// every streaming reply (v1 200, v2 GET 200).
func setStreamHeaders(h http.Header) {
	h.Set("Content-Type", "application/grpc")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Frame-Options", "DENY")
}

// flushWriter forces a Flush after every Write so a streamed response
// reaches the client as it arrives rather than waiting for a full
// buffer, matching the low-latency expectation of a live TCP tunnel.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) flushWriter {
	fw := flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.f = f
	}
	return fw
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// pipeRequestBody copies the client request body into the dialed
// target, then half-closes the target's write side so it sees EOF; its
// failure is logged but never changes a response already sent, per
// spec §4.4.
func pipeRequestBody(reqLog *log.Logger, target io.Writer, body io.ReadCloser) {
	defer body.Close()
	if _, err := io.Copy(target, body); err != nil {
		reqLog.Warnln("[twopass] request body pipe:", err)
	}
	if sc, ok := target.(*stats.Conn); ok {
		if cw, ok := sc.Conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
	}
}

// dialTarget is the one chokepoint both v1 and v2 use to reach a
// target, wrapping the result in stats.Conn so /info's byte counters
// include H2 tunnel traffic alongside VLESS traffic.
func (e *Engine) dialTarget(r *http.Request, host, port string) (*stats.Conn, error) {
	conn, err := dialer.DialContext(r.Context(), "tcp", host+":"+port, dialer.WithProxy(e.ProxyAddr))
	if err != nil {
		return nil, err
	}
	return stats.NewConn(conn, &stats.Global.BytesUp, &stats.Global.BytesDown), nil
}
