// Package doh implements the UDP:53→DNS-over-HTTPS rewriter spec §4.3
// calls for: the host sandbox forbids UDP sockets, so a VLESS UDP
// command targeting port 53 is satisfied by POSTing the raw DNS
// message to a configured DoH endpoint instead of opening a socket.
// Generalized from the teacher's dns/doh.go, which wired the same
// RFC 8484 exchange into clash's internal resolver; here it stands
// alone as a forwarding client with no resolver of its own.
package doh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/miekg/dns"

	"github.com/FarelRA/underpass/log"
)

// dnsMessageMimeType is the content type RFC 8484 §4.1 requires.
const dnsMessageMimeType = "application/dns-message"

// Client forwards raw DNS query bytes to a DoH endpoint and returns
// the raw response bytes, logging the query name for observability
// without altering the bytes it forwards.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a DoH client for the given endpoint URL.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, httpClient: httpClient}
}

// Exchange POSTs a raw DNS query message (as received, byte for
// byte, from the VLESS client) to the DoH endpoint and returns the
// raw response message, to be re-framed by the caller as a VLESS UDP
// response (spec §4.3: 2-byte big-endian length prefix + payload).
func (c *Client) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	c.logQuery(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("doh: build request: %w", err)
	}
	req.Header.Set("content-type", dnsMessageMimeType)
	req.Header.Set("accept", dnsMessageMimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doh: exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh: upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("doh: read response: %w", err)
	}
	return body, nil
}

// logQuery best-effort unpacks the outgoing message for a debug line;
// a query that doesn't unpack is still forwarded unchanged — this
// client is a byte-level proxy, not a validating resolver.
func (c *Client) logQuery(query []byte) {
	m := new(dns.Msg)
	if err := m.Unpack(query); err != nil || len(m.Question) == 0 {
		return
	}
	log.Debugln("[doh] query", m.Question[0].Name, "via", c.url)
}
