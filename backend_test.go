package searchpool_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchpool"
)

// fakeBackend is an in-memory stand-in for the search service. It answers
// _bulk, _count and ping requests and tracks how many TCP connections are
// open at once.
type fakeBackend struct {
	srv *httptest.Server

	reject   func(doc map[string]any) (status int, errType, reason string)
	override http.HandlerFunc
	lag      time.Duration

	mu         sync.Mutex
	counts     map[string]int64
	bulkBodies []string
	countBody  string

	failWith atomic.Int64 // non-zero: answer every request with this status
	autoID   atomic.Int64
	requests atomic.Int64
	bulks    atomic.Int64
	accepted atomic.Int64
	open     atomic.Int64
	maxOpen  atomic.Int64
}

type backendOption func(*fakeBackend)

// withReject makes the backend reject documents for which fn returns a
// non-zero status.
func withReject(fn func(doc map[string]any) (int, string, string)) backendOption {
	return func(b *fakeBackend) { b.reject = fn }
}

// withOverride routes every request to h instead of the default handler.
func withOverride(h http.HandlerFunc) backendOption {
	return func(b *fakeBackend) { b.override = h }
}

// withLag delays every response.
func withLag(d time.Duration) backendOption {
	return func(b *fakeBackend) { b.lag = d }
}

func newBackend(t *testing.T, opts ...backendOption) *fakeBackend {
	t.Helper()

	b := &fakeBackend{counts: make(map[string]int64)}
	for _, opt := range opts {
		opt(b)
	}

	b.srv = httptest.NewUnstartedServer(http.HandlerFunc(b.serveHTTP))
	b.srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			b.accepted.Add(1)
			n := b.open.Add(1)
			for {
				peak := b.maxOpen.Load()
				if n <= peak || b.maxOpen.CompareAndSwap(peak, n) {
					break
				}
			}
		case http.StateClosed, http.StateHijacked:
			b.open.Add(-1)
		}
	}
	b.srv.Start()
	t.Cleanup(b.srv.Close)

	return b
}

func (b *fakeBackend) URL() string { return b.srv.URL + "/" }

func (b *fakeBackend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)
	if b.lag > 0 {
		time.Sleep(b.lag)
	}
	if status := b.failWith.Load(); status != 0 {
		writeJSON(w, int(status), map[string]any{"error": http.StatusText(int(status))})
		return
	}
	if b.override != nil {
		b.override(w, r)
		return
	}

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		b.bulk(w, r)
	case strings.HasSuffix(r.URL.Path, "/_count"):
		b.count(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"type": "not_found", "reason": "no handler for " + r.URL.Path},
		})
	}
}

func (b *fakeBackend) bulk(w http.ResponseWriter, r *http.Request) {
	b.bulks.Add(1)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.bulkBodies = append(b.bulkBodies, string(raw))
	b.mu.Unlock()

	var items []map[string]any
	hasErrors := false

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for sc.Scan() {
		var action map[string]map[string]any
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad action line"})
			return
		}
		if !sc.Scan() {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing source line"})
			return
		}
		var doc map[string]any
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad source line"})
			return
		}

		meta := action["index"]
		index, _ := meta["_index"].(string)
		id, _ := meta["_id"].(string)
		if id == "" {
			id = fmt.Sprintf("auto-%d", b.autoID.Add(1))
		}

		if b.reject != nil {
			if status, errType, reason := b.reject(doc); status != 0 {
				hasErrors = true
				items = append(items, map[string]any{"index": map[string]any{
					"_index": index, "_id": id, "status": status,
					"error": map[string]any{"type": errType, "reason": reason},
				}})
				continue
			}
		}

		b.mu.Lock()
		b.counts[index]++
		b.mu.Unlock()
		items = append(items, map[string]any{"index": map[string]any{
			"_index": index, "_id": id, "status": http.StatusCreated, "result": "created",
		}})
	}

	writeJSON(w, http.StatusOK, map[string]any{"took": 3, "errors": hasErrors, "items": items})
}

func (b *fakeBackend) count(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	index := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/_count")

	b.mu.Lock()
	b.countBody = string(raw)
	n := b.counts[index]
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"count": n, "_shards": map[string]any{"total": 1}})
}

func (b *fakeBackend) indexed(collection string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[collection]
}

func (b *fakeBackend) lastBulkBody() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bulkBodies) == 0 {
		return ""
	}
	return b.bulkBodies[len(b.bulkBodies)-1]
}

func (b *fakeBackend) lastCountBody() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.countBody
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// hangUp closes the connection without answering.
func hangUp(w http.ResponseWriter, _ *http.Request) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		_ = conn.Close()
	}
}

// newClient builds a client against b. Lazy indexing is off unless configure
// turns it on.
func newClient(t *testing.T, b *fakeBackend, size int, configure func(cfg *searchpool.Config), opts ...searchpool.Option) *searchpool.Client {
	t.Helper()

	cfg := searchpool.DefaultConfig()
	cfg.Endpoint = b.URL()
	cfg.MaxConnections = size
	cfg.LazyThreshold = 0
	if configure != nil {
		configure(&cfg)
	}

	client, err := searchpool.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return client
}

// safeBuffer is a bytes.Buffer safe for concurrent writers.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
