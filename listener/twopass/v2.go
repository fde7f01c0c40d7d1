package twopass

import (
	"fmt"
	"io"
	"net/http"

	C "github.com/FarelRA/underpass/constant"
	"github.com/FarelRA/underpass/component/stats"
	"github.com/FarelRA/underpass/log"
)

// handleV2POST implements the POST half of spec §4.5: insert the
// rendezvous entry, dial, resolve (or reject) the entry, then pipe the
// request body into the target and reply 201 once drained.
func (e *Engine) handleV2POST(w http.ResponseWriter, r *http.Request, reqLog *log.Logger, id string) {
	host, port, err := validateTarget(r)
	if err != nil {
		http.Error(w, "invalid target", http.StatusBadRequest)
		return
	}

	ent, err := e.rendezvous.insert(id)
	if err != nil {
		reqLog.Warnln("[twopass v2] insert:", err)
		http.Error(w, "tunnel id in use", http.StatusConflict)
		return
	}

	conn, err := e.dialTarget(r, host, port)
	if err != nil {
		reqLog.Warnln("[twopass v2] dial:", err)
		ent.reject(fmt.Errorf("twopass: dial %s:%s: %w", host, port, C.ErrUpstreamDial))
		http.Error(w, "upstream dial failed", http.StatusBadGateway)
		return
	}

	stats.Global.ActiveTwoPassV2.Inc()
	ent.resolve(conn)

	pipeRequestBody(reqLog, conn, r.Body)

	w.WriteHeader(http.StatusCreated)
	reqLog.Infoln("[twopass v2] post drained for", host+":"+port)
}

// handleV2GET implements the GET half: await the rendezvous (bounded
// wait for an absent entry, unbounded wait for a pending one), then
// stream the resolved socket as the response body.
func (e *Engine) handleV2GET(w http.ResponseWriter, r *http.Request, reqLog *log.Logger, id string) {
	res, err := e.rendezvous.await(r.Context(), id, e.rendezvousGrace())
	if err != nil {
		reqLog.Warnln("[twopass v2] await:", err)
		http.Error(w, "tunnel not found", C.StatusFor(err))
		return
	}
	if res.err != nil {
		reqLog.Warnln("[twopass v2] upstream rejected:", res.err)
		http.Error(w, "upstream dial failed", http.StatusBadGateway)
		return
	}

	defer func() {
		_ = res.stream.Close()
		stats.Global.ActiveTwoPassV2.Dec()
	}()

	setStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(newFlushWriter(w), res.stream); err != nil {
		reqLog.Warnln("[twopass v2] response stream:", err)
	}
	reqLog.Infoln("[twopass v2] get stream closed for", id)
}
