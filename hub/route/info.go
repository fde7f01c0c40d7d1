// Package route implements the /info diagnostic HTTP endpoint (spec
// §1 "external collaborators" list), grounded on the teacher's
// hub/route/configs.go chi-router/render.JSON wiring — generalized
// from a config read/write API (dropped, see DESIGN.md) down to a
// read-only status page over component/stats.Global.
package route

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/FarelRA/underpass/component/stats"
)

var startTime = time.Now()

// infoResponse is the body the /info endpoint renders.
type infoResponse struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	ActiveUnderpass int64   `json:"active_underpass"`
	ActiveTwoPassV1 int64   `json:"active_twopass_v1"`
	ActiveTwoPassV2 int64   `json:"active_twopass_v2"`
	BytesUp         uint64  `json:"bytes_up"`
	BytesDown       uint64  `json:"bytes_down"`
}

// Router builds the /info router.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getInfo)
	return r
}

func getInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, infoResponse{
		UptimeSeconds:   time.Since(startTime).Seconds(),
		ActiveUnderpass: stats.Global.ActiveUnderpass.Load(),
		ActiveTwoPassV1: stats.Global.ActiveTwoPassV1.Load(),
		ActiveTwoPassV2: stats.Global.ActiveTwoPassV2.Load(),
		BytesUp:         stats.Global.BytesUp.Load(),
		BytesDown:       stats.Global.BytesDown.Load(),
	})
}
