// Package connpool provides a bounded, lazily filled pool of reusable network
// connections to a single backend.
//
// The pool never holds more than Size live connections. Callers that find all
// connections checked out block in Acquire until another caller returns one
// with Release or frees a slot with Discard. Blocked callers are served in the
// order they started waiting, so no caller starves under sustained load.
//
// # Basic Usage
//
//	pool, err := connpool.New(8, func(ctx context.Context) (net.Conn, error) {
//		var d net.Dialer
//		return d.DialContext(ctx, "tcp", "127.0.0.1:9200")
//	})
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	if err := use(conn); err != nil {
//		pool.Discard(conn) // broken: close it, a fresh one is dialed later
//		return err
//	}
//	pool.Release(conn)
//
// # Connection Lifecycle
//
// Connections are dialed on demand, only when a caller holds a free slot and
// no idle connection is available. A failed dial is reported to that caller
// alone; the slot is given back and the next waiter dials on its own turn.
// Discarded connections are replaced lazily, which keeps a pool pointed at an
// unreachable backend from spinning on reconnect attempts.
//
// Use WithMaxIdleTime to drop connections that sat idle long enough for the
// peer to have closed them.
//
// # Cancellation
//
// Acquire honors the context. A caller whose context ends while waiting is
// removed from the wait queue; a slot granted concurrently with cancellation
// is handed to the next waiter instead of being lost.
//
// # Error Handling
//
//   - ErrInvalidConfig: size is not positive or the dial function is nil
//   - ErrClosed: the pool was closed
//   - ErrDial: the dial function failed (wraps the dial error)
package connpool
