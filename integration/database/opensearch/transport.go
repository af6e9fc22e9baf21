package opensearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/searchpool/core/logger"
	"github.com/dmitrymomot/searchpool/pkg/connpool"
)

const defaultDialTimeout = 5 * time.Second

// DialFunc opens a raw network connection, matching net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Transport routes requests to one backend endpoint over a bounded pool of
// keep-alive connections.
type Transport struct {
	endpoint       Endpoint
	pool           *connpool.Pool[*Conn]
	exec           *Executor
	dial           DialFunc
	requestTimeout time.Duration
	logger         *slog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*transportOptions)

type transportOptions struct {
	dial           DialFunc
	dialTimeout    time.Duration
	requestTimeout time.Duration
	maxIdleTime    time.Duration
	logger         *slog.Logger
}

// WithDialFunc replaces the network dialer. Useful for tests and proxies.
func WithDialFunc(dial DialFunc) TransportOption {
	return func(o *transportOptions) {
		if dial != nil {
			o.dial = dial
		}
	}
}

// WithDialTimeout bounds connection establishment. Ignored when a custom
// dial function is set.
func WithDialTimeout(d time.Duration) TransportOption {
	return func(o *transportOptions) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithRequestTimeout bounds each request/response exchange. Zero means the
// caller's context is the only bound.
func WithRequestTimeout(d time.Duration) TransportOption {
	return func(o *transportOptions) {
		o.requestTimeout = d
	}
}

// WithMaxIdleTime drops pooled connections idle for longer than d, before the
// backend's keep-alive timeout can leave them half-open.
func WithMaxIdleTime(d time.Duration) TransportOption {
	return func(o *transportOptions) {
		o.maxIdleTime = d
	}
}

// WithLogger sets the logger for transport, executor and pool events.
func WithLogger(l *slog.Logger) TransportOption {
	return func(o *transportOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewTransport creates a transport holding at most size connections to endpoint.
func NewTransport(endpoint Endpoint, size int, opts ...TransportOption) (*Transport, error) {
	o := transportOptions{
		dialTimeout: defaultDialTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.requestTimeout < 0 {
		return nil, fmt.Errorf("%w: request timeout must not be negative", ErrInvalidConfig)
	}
	if o.dial == nil {
		d := &net.Dialer{Timeout: o.dialTimeout, KeepAlive: 30 * time.Second}
		o.dial = d.DialContext
	}

	log := o.logger.With(logger.Component("opensearch"), logger.Endpoint(endpoint.Address()))

	t := &Transport{
		endpoint:       endpoint,
		exec:           NewExecutor(WithExecutorLogger(log)),
		dial:           o.dial,
		requestTimeout: o.requestTimeout,
		logger:         log,
	}

	pool, err := connpool.New(size, t.dialConn,
		connpool.WithMaxIdleTime(o.maxIdleTime),
		connpool.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	t.pool = pool

	return t, nil
}

func (t *Transport) dialConn(ctx context.Context) (*Conn, error) {
	nc, err := t.dial(ctx, "tcp", t.endpoint.Address())
	if err != nil {
		return nil, err
	}
	c := newConn(nc)
	t.logger.DebugContext(ctx, "connection established", logger.ConnID(c.id))
	return c, nil
}

// Endpoint returns the backend endpoint.
func (t *Transport) Endpoint() Endpoint { return t.endpoint }

// Stats returns connection pool statistics.
func (t *Transport) Stats() connpool.Stats { return t.pool.Stats() }

// Close closes idle connections and rejects new leases.
func (t *Transport) Close() error { return t.pool.Close() }

// Lease checks out one connection for a single logical call. The lease must
// be closed with Close once the response has been consumed.
func (t *Transport) Lease(ctx context.Context) (*Lease, error) {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, classifyAcquire(err)
	}
	return &Lease{t: t, conn: conn}, nil
}

func classifyAcquire(err error) error {
	switch {
	case errors.Is(err, connpool.ErrClosed):
		return err
	case errors.Is(err, connpool.ErrDial):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: waiting for connection: %w", ErrTimeout, err)
	default:
		return err
	}
}

// Lease pins one pooled connection to one caller. It implements
// opensearchapi.Transport so any request type of the API can be sent over it.
// A Lease is not safe for concurrent use.
type Lease struct {
	t      *Transport
	conn   *Conn
	closed bool
}

var _ opensearchapi.Transport = (*Lease)(nil)

// Conn returns the leased connection.
func (l *Lease) Conn() *Conn { return l.conn }

// Perform sends req over the leased connection. The request URL is resolved
// against the transport endpoint.
func (l *Lease) Perform(req *http.Request) (*http.Response, error) {
	if l.closed {
		return nil, ErrLeaseClosed
	}

	ctx := req.Context()
	if l.t.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.t.requestTimeout)
		defer cancel()
	}

	l.t.resolve(req)
	return l.t.exec.Send(ctx, l.conn, req)
}

// Close hands the connection back to the pool. It is released when healthy,
// and discarded when the executor marked it broken or callErr reports a
// malformed response. Close is idempotent.
func (l *Lease) Close(callErr error) {
	if l.closed {
		return
	}
	l.closed = true

	if !l.conn.Reusable() || errors.Is(callErr, ErrProtocol) {
		l.t.logger.Debug("discarding connection",
			logger.ConnID(l.conn.id),
			slog.Bool("broken", l.conn.broken),
			slog.Int("conn_requests", l.conn.requests),
			logger.Error(callErr),
		)
		l.t.pool.Discard(l.conn)
		return
	}
	l.t.pool.Release(l.conn)
}

func (t *Transport) resolve(req *http.Request) {
	req.URL.Scheme = t.endpoint.Scheme
	req.URL.Host = t.endpoint.Address()
	if t.endpoint.PathPrefix != "" {
		req.URL.Path = t.endpoint.PathPrefix + req.URL.Path
		if req.URL.RawPath != "" {
			req.URL.RawPath = t.endpoint.PathPrefix + req.URL.RawPath
		}
	}
	req.Host = req.URL.Host
}
