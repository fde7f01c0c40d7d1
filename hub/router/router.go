// Package router implements the prefix-match + random-backend load
// balancer (spec §4.6): serves the {path, backends} route table that
// package config parses from CONFIG at startup, forwards HTTP and
// WebSocket-upgrade requests alike,
// rewriting the path and collapsing duplicate slashes. Grounded on the
// teacher's hub/route chi-wiring style plus listener.go's (deleted,
// see DESIGN.md) multi-backend bookkeeping; the WebSocket passthrough
// reuses jeelsboobz/websocket the same way transport/wsbridge does.
package router

import (
	"io"
	"math/rand"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"github.com/jeelsboobz/websocket"

	"github.com/FarelRA/underpass/config"
	"github.com/FarelRA/underpass/log"
)

// Router dispatches requests to one of several backends per route,
// spec §3 "RouteTable": first-match-wins prefix order.
type Router struct {
	routes   []config.Route
	dialer   websocket.Dialer
	upgrader websocket.Upgrader
}

// New builds a Router over the given route table.
func New(routes []config.Route) *Router {
	return &Router{
		routes: routes,
		dialer: websocket.Dialer{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := rt.match(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	backend := route.Backends[rand.Intn(len(route.Backends))]
	target, err := url.Parse(backend)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	target.Path = rewritePath(target.Path, route.Path, r.URL.Path)

	if isWebSocketUpgrade(r) {
		rt.proxyWebSocket(w, r, target)
		return
	}
	rt.proxyHTTP(w, r, target)
}

// match returns the first route whose path prefixes the request path
// (spec §4.6: "first route whose path is a prefix... first-match wins").
func (rt *Router) match(path string) (config.Route, bool) {
	for _, route := range rt.routes {
		if strings.HasPrefix(path, route.Path) {
			return route, true
		}
	}
	return config.Route{}, false
}

// rewritePath concatenates the backend's own path with the remainder
// of the request path after the matched prefix, collapsing any
// resulting duplicate slashes (spec §4.6).
func rewritePath(backendPath, prefix, requestPath string) string {
	remainder := strings.TrimPrefix(requestPath, prefix)
	joined := backendPath + "/" + remainder
	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}
	return joined
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (rt *Router) proxyHTTP(w http.ResponseWriter, r *http.Request, target *url.URL) {
	// target.Path is already the full rewritten path; the reverse proxy
	// joins its target's path with the request path, so hand it a
	// path-less target and put the rewritten path on the request.
	base := *target
	base.Path, base.RawPath = "", ""
	out := r.Clone(r.Context())
	out.URL.Path, out.URL.RawPath = target.Path, ""
	proxy := httputil.NewSingleHostReverseProxy(&base)
	proxy.ServeHTTP(w, out)
}

// proxyWebSocket dials the backend's WebSocket endpoint and bridges it
// with the client connection. A non-101 backend response is reported
// to the client prefixed "Backend connection error:" per spec §4.6.
func (rt *Router) proxyWebSocket(w http.ResponseWriter, r *http.Request, target *url.URL) {
	scheme := "ws"
	if target.Scheme == "https" {
		scheme = "wss"
	}
	backendURL := scheme + "://" + target.Host + target.Path
	if target.RawQuery != "" {
		backendURL += "?" + target.RawQuery
	}

	// The dialer writes its own handshake headers and rejects requests
	// that already carry them.
	reqHeader := r.Header.Clone()
	for _, k := range []string{"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions"} {
		reqHeader.Del(k)
	}
	backendConn, resp, err := rt.dialer.Dial(backendURL, reqHeader)
	if err != nil {
		status := http.StatusBadGateway
		msg := "Backend connection error: " + err.Error()
		if resp != nil {
			status = resp.StatusCode
			if b, readErr := io.ReadAll(resp.Body); readErr == nil {
				msg = "Backend connection error: " + string(b)
			}
			_ = resp.Body.Close()
		}
		http.Error(w, msg, status)
		return
	}
	defer backendConn.Close()

	clientConn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnln("[router] client upgrade:", err)
		return
	}
	defer clientConn.Close()

	bridgeWebSockets(clientConn, backendConn)
}

// bridgeWebSockets pumps messages between two already-upgraded
// WebSocket connections, keeping each message's type, until either
// side closes.
func bridgeWebSockets(a, b *websocket.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pumpWebSocket(a, b)
	}()
	go func() {
		defer wg.Done()
		pumpWebSocket(b, a)
	}()
	wg.Wait()
}

func pumpWebSocket(dst, src *websocket.Conn) {
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			_ = dst.Close()
			return
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			_ = src.Close()
			return
		}
	}
}
