package twopass

import (
	"io"
	"net/http"

	"github.com/FarelRA/underpass/component/stats"
	"github.com/FarelRA/underpass/log"
)

// handleV1 implements spec §4.4: dial the target, return 200 with the
// socket's read side as the response body, piping the request body
// into the socket write side concurrently.
func (e *Engine) handleV1(w http.ResponseWriter, r *http.Request, reqLog *log.Logger) {
	host, port, err := validateTarget(r)
	if err != nil {
		http.Error(w, "invalid target", http.StatusBadRequest)
		return
	}

	conn, err := e.dialTarget(r, host, port)
	if err != nil {
		reqLog.Warnln("[twopass v1] dial:", err)
		http.Error(w, "upstream dial failed", http.StatusBadGateway)
		return
	}

	stats.Global.ActiveTwoPassV1.Inc()
	defer stats.Global.ActiveTwoPassV1.Dec()
	defer conn.Close()

	setStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	go pipeRequestBody(reqLog, conn, r.Body)

	if _, err := io.Copy(newFlushWriter(w), conn); err != nil {
		reqLog.Warnln("[twopass v1] response stream:", err)
	}
	reqLog.Infoln("[twopass v1] session closed for", host+":"+port)
}
