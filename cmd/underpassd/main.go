// Command underpassd runs the VLESS-over-WebSocket and H2 TCP tunnel
// engines behind one HTTP server, plus the /info diagnostic endpoint
// and the prefix-match router for anything else (spec §1/§6).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/FarelRA/underpass/config"
	"github.com/FarelRA/underpass/dns/doh"
	"github.com/FarelRA/underpass/hub/route"
	"github.com/FarelRA/underpass/hub/router"
	"github.com/FarelRA/underpass/listener/twopass"
	"github.com/FarelRA/underpass/listener/underpass"
	"github.com/FarelRA/underpass/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Errorln("[underpassd] config:", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.LogLevel)

	var dohClient *doh.Client
	if cfg.DoHURL != "" {
		dohClient = doh.NewClient(cfg.DoHURL, nil)
	}

	vlessEngine := underpass.NewEngine(cfg.UserID, dohClient)
	vlessEngine.ProxyAddr = cfg.ProxyAddr
	tunnelEngine := twopass.NewEngine(cfg.Password)
	tunnelEngine.ProxyAddr = cfg.ProxyAddr
	proxyRouter := router.New(cfg.Routes)

	mux := chi.NewRouter()
	mux.With(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})).Mount("/info", route.Router())

	mux.Handle("/vless", vlessEngine)
	mux.Handle("/tunnel", tunnelEngine)
	mux.Handle("/tunnel/*", tunnelEngine)
	mux.Handle("/*", proxyRouter)

	// h2c so the H2 tunnel's streaming semantics work without TLS
	// termination at this process (spec §1: TLS is the edge's job).
	handler := h2c.NewHandler(mux, &http2.Server{})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port),
		Handler: handler,
	}

	go func() {
		log.Infoln("[underpassd] listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorln("[underpassd] serve:", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(srv)
}

func waitForShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infoln("[underpassd] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnln("[underpassd] shutdown:", err)
	}
}
