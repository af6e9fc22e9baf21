package searchpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/searchpool/core/logger"
	"github.com/dmitrymomot/searchpool/integration/database/opensearch"
	"github.com/dmitrymomot/searchpool/pkg/connpool"
)

// ErrHealthcheckFailed is returned by Healthcheck when the backend is
// unreachable or answers the ping with an error status.
var ErrHealthcheckFailed = errors.New("search backend healthcheck failed")

// Client is a search backend client that shares a fixed set of connections
// between any number of goroutines. It is safe for concurrent use.
type Client struct {
	transport   *opensearch.Transport
	logger      *slog.Logger
	parentField string
	idField     string
	now         func() time.Time
	flushLimit  int

	lazyThreshold int
	lazyPeriod    time.Duration
	lazyMu        sync.Mutex
	lazy          map[string]*lazyQueue
	lazyClosed    bool           // guarded by lazyMu
	lazySending   sync.WaitGroup // sends of documents taken off a queue before close

	// Background flusher state.
	runMu           sync.Mutex
	cancel          context.CancelFunc
	done            chan struct{}
	shutdownTimeout time.Duration

	closed atomic.Bool
}

// Stats is a point-in-time snapshot of the client state.
type Stats struct {
	connpool.Stats
	Queued int // Documents waiting in lazy queues
}

// New creates a client for cfg. No connection is opened until the first call.
func New(cfg Config, opts ...Option) (*Client, error) {
	endpoint, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	o := options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parentField: defaultParentField,
		now:         time.Now,
		flushLimit:  cfg.MaxConnections,

		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	topts := []opensearch.TransportOption{
		opensearch.WithDialTimeout(cfg.DialTimeout),
		opensearch.WithRequestTimeout(cfg.RequestTimeout),
		opensearch.WithMaxIdleTime(cfg.MaxIdleTime),
		opensearch.WithLogger(o.logger),
	}
	if o.dial != nil {
		topts = append(topts, opensearch.WithDialFunc(o.dial))
	}

	transport, err := opensearch.NewTransport(endpoint, cfg.MaxConnections, topts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	idField := cfg.IDField
	if idField == "" {
		idField = defaultIDField
	}

	return &Client{
		transport:       transport,
		logger:          o.logger.With(logger.Component("searchpool")),
		parentField:     o.parentField,
		idField:         idField,
		now:             o.now,
		flushLimit:      o.flushLimit,
		lazyThreshold:   cfg.LazyThreshold,
		lazyPeriod:      cfg.LazyPeriod,
		lazy:            make(map[string]*lazyQueue),
		shutdownTimeout: o.shutdownTimeout,
	}, nil
}

// NewFromEnv creates a client configured from SEARCH_* environment variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// MustNew is like New but panics on error.
func MustNew(cfg Config, opts ...Option) *Client {
	c, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Endpoint returns the backend the client talks to.
func (c *Client) Endpoint() opensearch.Endpoint {
	return c.transport.Endpoint()
}

// Stats returns connection pool and lazy queue statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Stats:  c.transport.Stats(),
		Queued: c.queued(),
	}
}

// Healthcheck pings the backend over a pooled connection.
func (c *Client) Healthcheck(ctx context.Context) error {
	if err := c.perform(ctx, "ping", opensearchapi.PingRequest{}, nil); err != nil {
		c.logger.ErrorContext(ctx, "search backend healthcheck failed", logger.Error(err))
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Close stops the background flusher, sends every queued document and closes
// the connection pool. ctx bounds the final flush. Documents that could not be
// sent are reported in the returned error and dropped.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.stopFlusher()

	// No document is queued or taken off a queue after this point, except by
	// the final Flush below.
	c.lazyMu.Lock()
	c.lazyClosed = true
	c.lazyMu.Unlock()
	c.lazySending.Wait()

	flushErr := c.Flush(ctx)
	if n := c.queued(); n > 0 {
		c.logger.ErrorContext(ctx, "documents dropped on close",
			logger.Count("documents", n),
			logger.Error(flushErr))
	}

	stats := c.transport.Stats()
	closeErr := c.transport.Close()
	if flushErr != nil || closeErr != nil {
		c.logger.WarnContext(ctx, "search client closed with errors", logger.Errors(flushErr, closeErr))
	}
	c.logger.DebugContext(ctx, "search client closed",
		logger.Group("pool",
			slog.Int64("dialed", stats.Dialed),
			slog.Int64("discarded", stats.Discarded),
			slog.Int64("dial_failures", stats.DialFailures)))

	return errors.Join(flushErr, closeErr)
}

// perform sends req over one leased connection and hands the response body to
// decode. The lease is released or discarded depending on the outcome: decode
// errors wrapping ErrProtocol discard the connection, backend error statuses
// do not.
func (c *Client) perform(ctx context.Context, op string, req opensearchapi.Request, decode func(body []byte) error) (err error) {
	lease, err := c.transport.Lease(ctx)
	if err != nil {
		return err
	}
	defer func() { lease.Close(err) }()

	res, err := req.Do(ctx, lease)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", ErrProtocol, op, err)
	}

	if res.IsError() {
		return newResponseError(res.StatusCode, body)
	}
	if decode == nil {
		return nil
	}
	return decode(body)
}
