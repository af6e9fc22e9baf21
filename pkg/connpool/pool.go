package connpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrymomot/searchpool/core/logger"
)

// Conn is the minimal contract for pooled connections.
type Conn interface {
	Close() error
}

// DialFunc opens a new connection. It is called without any pool lock held.
type DialFunc[C Conn] func(ctx context.Context) (C, error)

type idleConn[C Conn] struct {
	conn  C
	since time.Time
}

// Pool is a fixed-size pool of connections of type C.
// All methods are safe for concurrent use.
type Pool[C Conn] struct {
	size int
	dial DialFunc[C]

	// One permit per slot. A permit is held from Acquire until Release or Discard.
	sem *semaphore.Weighted

	mu     sync.Mutex
	idle   []idleConn[C]
	inUse  int
	closed bool

	maxIdleTime time.Duration
	logger      *slog.Logger
	now         func() time.Time

	waiting      atomic.Int64
	dialed       atomic.Int64
	dialFailures atomic.Int64
	discarded    atomic.Int64
}

// Stats is a point-in-time snapshot of the pool state.
type Stats struct {
	Size         int   // Maximum number of live connections
	Open         int   // Live connections (Idle + InUse)
	Idle         int   // Connections ready for reuse
	InUse        int   // Connections checked out
	Waiting      int   // Callers blocked in Acquire
	Dialed       int64 // Connections created over the pool lifetime
	DialFailures int64 // Failed dial attempts
	Discarded    int64 // Connections removed via Discard
}

// New creates a pool bounded to size live connections.
// No connection is dialed until the first Acquire.
func New[C Conn](size int, dial DialFunc[C], opts ...Option) (*Pool[C], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if dial == nil {
		return nil, fmt.Errorf("%w: dial function is required", ErrInvalidConfig)
	}

	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Pool[C]{
		size:        size,
		dial:        dial,
		sem:         semaphore.NewWeighted(int64(size)),
		idle:        make([]idleConn[C], 0, size),
		maxIdleTime: o.maxIdleTime,
		logger:      o.logger,
		now:         o.now,
	}, nil
}

// Acquire returns a connection for exclusive use by the caller, blocking while
// all slots are taken. The connection must be handed back exactly once, with
// Release if it is healthy or Discard if it is not.
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	var zero C

	if p.isClosed() {
		return zero, ErrClosed
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return zero, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return zero, ErrClosed
	}

	var expired []C
	for len(p.idle) > 0 {
		last := len(p.idle) - 1
		ic := p.idle[last]
		p.idle[last] = idleConn[C]{}
		p.idle = p.idle[:last]

		if p.maxIdleTime > 0 && p.now().Sub(ic.since) > p.maxIdleTime {
			expired = append(expired, ic.conn)
			continue
		}

		p.inUse++
		p.mu.Unlock()
		p.closeAll(expired, "idle timeout")
		return ic.conn, nil
	}

	// Reserve the slot before dialing so Stats never under-reports.
	p.inUse++
	p.mu.Unlock()
	p.closeAll(expired, "idle timeout")

	conn, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
		p.sem.Release(1)

		p.dialFailures.Add(1)
		p.logger.WarnContext(ctx, "connection dial failed", logger.Error(err))
		return zero, fmt.Errorf("%w: %w", ErrDial, err)
	}

	p.dialed.Add(1)
	p.logger.DebugContext(ctx, "connection dialed", slog.Int64("dialed", p.dialed.Load()))
	return conn, nil
}

// Release returns a healthy connection to the pool and wakes the longest
// waiting caller, if any. Releasing a connection that was not acquired
// corrupts the pool accounting and panics.
func (p *Pool[C]) Release(conn C) {
	p.mu.Lock()
	p.checkIn()
	if p.closed {
		p.mu.Unlock()
		p.closeOne(conn, "pool closed")
		p.sem.Release(1)
		return
	}
	p.idle = append(p.idle, idleConn[C]{conn: conn, since: p.now()})
	p.mu.Unlock()

	p.sem.Release(1)
}

// Discard closes a broken connection and frees its slot. The replacement is
// dialed by a later Acquire, not here.
func (p *Pool[C]) Discard(conn C) {
	p.mu.Lock()
	p.checkIn()
	p.mu.Unlock()

	p.discarded.Add(1)
	p.closeOne(conn, "discarded")
	p.sem.Release(1)
}

// Close closes all idle connections and rejects further Acquire calls.
// Checked-out connections are closed as they are released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, ic := range idle {
		if err := ic.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Debug("pool closed", slog.Int("closed_idle", len(idle)))
	return errors.Join(errs...)
}

// Stats returns current pool statistics.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	inUse := p.inUse
	p.mu.Unlock()

	return Stats{
		Size:         p.size,
		Open:         idle + inUse,
		Idle:         idle,
		InUse:        inUse,
		Waiting:      int(p.waiting.Load()),
		Dialed:       p.dialed.Load(),
		DialFailures: p.dialFailures.Load(),
		Discarded:    p.discarded.Load(),
	}
}

// Size returns the configured maximum number of live connections.
func (p *Pool[C]) Size() int {
	return p.size
}

func (p *Pool[C]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// checkIn must be called with p.mu held.
func (p *Pool[C]) checkIn() {
	if p.inUse == 0 {
		p.mu.Unlock()
		panic("connpool: connection returned more times than acquired")
	}
	p.inUse--
}

func (p *Pool[C]) closeOne(conn C, reason string) {
	if err := conn.Close(); err != nil {
		p.logger.Debug("connection close failed",
			slog.String("reason", reason),
			logger.Error(err))
	}
}

func (p *Pool[C]) closeAll(conns []C, reason string) {
	for _, c := range conns {
		p.closeOne(c, reason)
	}
}
