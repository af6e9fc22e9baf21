package opensearch_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchpool/integration/database/opensearch"
)

// httpBackend starts a test server and counts the TCP connections it accepts.
func httpBackend(t *testing.T, handler http.HandlerFunc) (string, *atomic.Int64) {
	t.Helper()

	accepted := new(atomic.Int64)
	srv := httptest.NewUnstartedServer(handler)
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			accepted.Add(1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)

	return srv.URL, accepted
}

// rawBackend starts a TCP server that reads one request per connection and
// lets reply write whatever bytes it wants.
func rawBackend(t *testing.T, reply func(conn net.Conn)) (string, *atomic.Int64) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := new(atomic.Int64)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func() {
				defer conn.Close()
				req, err := http.ReadRequest(bufio.NewReader(conn))
				if err != nil {
					return
				}
				_, _ = io.Copy(io.Discard, req.Body)
				reply(conn)
			}()
		}
	}()

	return "http://" + ln.Addr().String(), accepted
}

func newTransport(t *testing.T, rawURL string, size int, opts ...opensearch.TransportOption) *opensearch.Transport {
	t.Helper()

	endpoint, err := opensearch.ParseEndpoint(rawURL)
	require.NoError(t, err)

	tr, err := opensearch.NewTransport(endpoint, size, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr
}

// countOnce leases a connection, sends a count request over it and closes
// the lease with the resulting error.
func countOnce(t *testing.T, tr *opensearch.Transport, index string) (int, []byte, error) {
	t.Helper()

	ctx := context.Background()
	lease, err := tr.Lease(ctx)
	if err != nil {
		return 0, nil, err
	}

	res, err := opensearchapi.CountRequest{Index: []string{index}}.Do(ctx, lease)
	if err != nil {
		lease.Close(err)
		return 0, nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	lease.Close(err)
	return res.StatusCode, body, err
}
