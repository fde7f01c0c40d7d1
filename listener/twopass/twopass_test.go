package twopass

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPassword = "s3cret"

// newEchoTarget starts a TCP listener that echoes everything it reads
// back to the writer, standing in for the dialed target.
func newEchoTarget(t *testing.T) (host string, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return h, p
}

func TestHandleV1Happy(t *testing.T) {
	host, port := newEchoTarget(t)

	engine := NewEngine(testPassword)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("ping"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic "+testPassword)
	req.Header.Set("X-Target-Host", host)
	req.Header.Set("X-Target-Port", port)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/grpc", resp.Header.Get("Content-Type"))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ping", string(body))
}

func TestHandleV1AuthFailure(t *testing.T) {
	engine := NewEngine(testPassword)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("ping"))
	require.NoError(t, err)
	req.Header.Set("X-Target-Host", "example.com")
	req.Header.Set("X-Target-Port", "80")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleV1InvalidTargetPort(t *testing.T) {
	engine := NewEngine(testPassword)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic "+testPassword)
	req.Header.Set("X-Target-Host", "example.com")
	req.Header.Set("X-Target-Port", "not-a-port")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleV2Rendezvous(t *testing.T) {
	host, port := newEchoTarget(t)

	engine := NewEngine(testPassword)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	const tunnelID = "t1"
	postDone := make(chan *http.Response, 1)
	go func() {
		req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("hello-v2"))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Basic "+testPassword)
		req.Header.Set("X-Target-Host", host)
		req.Header.Set("X-Target-Port", port)
		req.Header.Set("X-Tunnel-Id", tunnelID)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		postDone <- resp
	}()

	time.Sleep(100 * time.Millisecond)

	getReq, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	getReq.Header.Set("Authorization", "Basic "+testPassword)
	getReq.Header.Set("X-Tunnel-Id", tunnelID)

	getResp, err := http.DefaultClient.Do(getReq)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	body, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello-v2", string(body))

	postResp := <-postDone
	defer postResp.Body.Close()
	require.Equal(t, http.StatusCreated, postResp.StatusCode)

	// a third GET for the same, now-consumed id sees 404.
	req3, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req3.Header.Set("Authorization", "Basic "+testPassword)
	req3.Header.Set("X-Tunnel-Id", tunnelID)
	resp3, err := http.DefaultClient.Do(req3)
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestHandleV2DuplicatePostConflict(t *testing.T) {
	host, port := newEchoTarget(t)
	engine := NewEngine(testPassword)

	// Occupy the entry directly so a racing POST observes "pending".
	_, err := engine.rendezvous.insert("dup")
	require.NoError(t, err)

	srv := httptest.NewServer(engine)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic "+testPassword)
	req.Header.Set("X-Target-Host", host)
	req.Header.Set("X-Target-Port", port)
	req.Header.Set("X-Tunnel-Id", "dup")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWithUnknownTunnelIDTimesOut(t *testing.T) {
	engine := NewEngine(testPassword)
	engine.RendezvousGrace = 50 * time.Millisecond // keep the test fast
	srv := httptest.NewServer(engine)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic "+testPassword)
	req.Header.Set("X-Tunnel-Id", "never-posted")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
