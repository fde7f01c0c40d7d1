package route

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FarelRA/underpass/component/stats"
)

func TestGetInfoReportsCounters(t *testing.T) {
	stats.Global.ActiveUnderpass.Store(3)
	stats.Global.BytesUp.Store(100)
	t.Cleanup(func() {
		stats.Global.ActiveUnderpass.Store(0)
		stats.Global.BytesUp.Store(0)
	})

	srv := httptest.NewServer(Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body infoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(3), body.ActiveUnderpass)
	require.Equal(t, uint64(100), body.BytesUp)
	require.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
}
