// Package underpass implements the VLESS-over-WebSocket engine (spec
// §4.1-§4.3): upgrade, first-chunk extraction, header parse, target
// dial, and full-duplex bridging, with UDP:53 redirected to DoH.
// Grounded on the teacher's listener.go accept loop (read for grounding
// and removed, see DESIGN.md) generalized from a TUN-packet dispatcher
// into an HTTP-handler-shaped one, matching how the rest of the pack's
// WS proxies (other_examples) structure an upgrade handler.
package underpass

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeelsboobz/websocket"

	"github.com/FarelRA/underpass/component/dialer"
	"github.com/FarelRA/underpass/component/stats"
	"github.com/FarelRA/underpass/component/wire"
	"github.com/FarelRA/underpass/dns/doh"
	"github.com/FarelRA/underpass/log"
	"github.com/FarelRA/underpass/transport/vless"
	"github.com/FarelRA/underpass/transport/wsbridge"
)

// firstChunkBufferSize bounds the single read used to obtain the
// first WebSocket message when no early-data header is present. VLESS
// headers plus whatever initial payload a client front-loads into the
// first frame comfortably fit well under this.
const firstChunkBufferSize = 64 * 1024

// Engine serves the VLESS WebSocket endpoint (spec §6 "VLESS WebSocket
// endpoint"). The zero value is not usable; build one with NewEngine.
type Engine struct {
	UUID        string
	DoH         *doh.Client
	IdleTimeout time.Duration
	Upgrader    websocket.Upgrader

	// ProxyAddr, when set, routes the target dial through a SOCKS5
	// relay instead of dialing directly (spec §6 PROXY_ADDR).
	ProxyAddr string
}

// NewEngine builds an Engine for the given configured user id. dohClient
// may be nil, in which case UDP:53 requests are rejected (spec §4.3).
func NewEngine(uuid string, dohClient *doh.Client) *Engine {
	return &Engine{
		UUID: uuid,
		DoH:  dohClient,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (e *Engine) idleTimeout() time.Duration {
	if e.IdleTimeout > 0 {
		return e.IdleTimeout
	}
	return wsbridge.DefaultIdleTimeout
}

// ServeHTTP upgrades the request and drives one VLESS session to
// completion. It never returns an error to the caller beyond what the
// HTTP response already carries; failures are logged.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqLog := log.With(log.Fields{"remote": r.RemoteAddr, "path": r.URL.Path})

	first, err := firstChunkFromHeader(r)
	if err != nil {
		reqLog.Warnln("[underpass] early data:", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var respHeader http.Header
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		respHeader = http.Header{"Sec-WebSocket-Protocol": []string{proto}}
	}

	conn, err := e.Upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		reqLog.Warnln("[underpass] upgrade:", err)
		return
	}
	ws := wsbridge.NewConn(conn)

	if first == nil {
		first, err = readFirstMessage(ws)
		if err != nil {
			reqLog.Warnln("[underpass] read first chunk:", err)
			_ = ws.SafeClose()
			return
		}
	}

	if err := e.handle(r.Context(), reqLog, ws, first); err != nil {
		reqLog.Warnln("[underpass] session ended:", err)
	}
}

// firstChunkFromHeader decodes Sec-WebSocket-Protocol early data (spec
// §4.2), returning (nil, nil) when the header is absent so the caller
// falls back to waiting on the first frame.
func firstChunkFromHeader(r *http.Request) ([]byte, error) {
	proto := r.Header.Get("Sec-WebSocket-Protocol")
	if proto == "" {
		return nil, nil
	}
	data, err := wire.DecodeEarlyData(proto)
	if err != nil {
		return nil, fmt.Errorf("decode early data: %w", err)
	}
	return data, nil
}

// readFirstMessage waits for the first inbound WebSocket message when
// no early-data header was sent, per spec §4.2.
func readFirstMessage(ws *wsbridge.Conn) ([]byte, error) {
	buf := make([]byte, firstChunkBufferSize)
	n, err := ws.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// handle parses the header out of first and dispatches to the TCP
// bridge or the UDP/DoH path. A parse failure closes the socket
// without ever sending the version preamble (spec §4.1 invariant).
func (e *Engine) handle(ctx context.Context, reqLog *log.Logger, ws *wsbridge.Conn, first []byte) error {
	header, payload, err := vless.ParseHeader(first, e.UUID)
	if err != nil {
		_ = ws.SafeClose()
		return err
	}

	if header.Command == vless.CommandUDP {
		return e.handleUDP(ctx, reqLog, ws, header, payload)
	}
	return e.handleTCP(ctx, reqLog, ws, header, payload)
}

func (e *Engine) handleTCP(ctx context.Context, reqLog *log.Logger, ws *wsbridge.Conn, header *vless.Header, payload []byte) error {
	target, err := dialer.DialContext(ctx, "tcp", header.Destination(), dialer.WithProxy(e.ProxyAddr))
	if err != nil {
		_ = ws.SafeClose()
		return fmt.Errorf("dial %s: %w", header.Destination(), err)
	}
	target = stats.NewConn(target, &stats.Global.BytesUp, &stats.Global.BytesDown)

	if _, err := ws.Write(header.Preamble()); err != nil {
		_ = target.Close()
		_ = ws.SafeClose()
		return fmt.Errorf("flush preamble: %w", err)
	}

	stats.Global.ActiveUnderpass.Inc()
	defer stats.Global.ActiveUnderpass.Dec()

	reqLog.Infoln("[underpass] bridging to", header.Destination())

	// The initial payload was already read off the first WebSocket
	// message while parsing the header out of it; chain it back in
	// front of ws's live stream so the bridge's client→target pump
	// sees it as the first bytes rather than needing a special case.
	client := &clientStream{Reader: wire.SequentialReader(payload, ws), ws: ws}
	return wsbridge.Bridge(ctx, client, target, wsbridge.WithIdleTimeout(e.idleTimeout()))
}

// clientStream presents the sequenced (buffered-payload + live-ws)
// reader alongside ws's Write/SafeClose so it satisfies the
// io.ReadWriteCloser Bridge expects for the client side.
type clientStream struct {
	io.Reader
	ws *wsbridge.Conn
}

func (c *clientStream) Write(p []byte) (int, error) { return c.ws.Write(p) }
func (c *clientStream) Close() error                { return c.ws.SafeClose() }

// handleUDP services command=UDP, port=53 by relaying each inbound
// DNS message through the configured DoH endpoint (spec §4.3). Any
// other UDP destination is rejected outright.
func (e *Engine) handleUDP(ctx context.Context, reqLog *log.Logger, ws *wsbridge.Conn, header *vless.Header, payload []byte) error {
	if header.Port != 53 || e.DoH == nil {
		_ = ws.SafeClose()
		return fmt.Errorf("vless: unsupported udp destination %s", header.Destination())
	}

	if _, err := ws.Write(header.Preamble()); err != nil {
		_ = ws.SafeClose()
		return fmt.Errorf("flush preamble: %w", err)
	}

	stats.Global.ActiveUnderpass.Inc()
	defer stats.Global.ActiveUnderpass.Dec()

	reqLog.Infoln("[underpass] udp/doh session for", header.Destination())

	if len(payload) > 0 {
		if err := e.forwardDNS(ctx, ws, payload); err != nil {
			_ = ws.SafeClose()
			return err
		}
	}

	buf := make([]byte, firstChunkBufferSize)
	for {
		n, err := ws.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := e.forwardDNS(ctx, ws, buf[:n]); err != nil {
			_ = ws.SafeClose()
			return err
		}
	}
}

// forwardDNS posts one DNS query to the DoH endpoint and frames the
// response back onto the WebSocket as a VLESS UDP reply: a 2-byte
// big-endian length prefix followed by the raw message (spec §4.3).
func (e *Engine) forwardDNS(ctx context.Context, ws *wsbridge.Conn, query []byte) error {
	resp, err := e.DoH.Exchange(ctx, query)
	if err != nil {
		return fmt.Errorf("doh exchange: %w", err)
	}

	framed := make([]byte, 2+len(resp))
	binary.BigEndian.PutUint16(framed, uint16(len(resp)))
	copy(framed[2:], resp)

	_, err = ws.Write(framed)
	return err
}
