package searchpool

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/searchpool/integration/database/opensearch"
)

const (
	defaultIDField         = "_id"
	defaultParentField     = "_parent"
	defaultShutdownTimeout = 30 * time.Second
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	dial        opensearch.DialFunc
	parentField string
	now         func() time.Time
	flushLimit  int

	shutdownTimeout time.Duration
}

// WithLogger sets the logger for client, transport and pool events.
// The default logger discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDialFunc replaces the network dialer.
func WithDialFunc(dial opensearch.DialFunc) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// WithParentField names the document field whose value becomes the bulk
// action's routing key. The field is removed from the indexed source.
// An empty name disables routing.
func WithParentField(name string) Option {
	return func(o *options) {
		o.parentField = name
	}
}

// WithClock overrides the time source used by lazy indexing.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFlushConcurrency bounds how many collections Flush sends at once.
// Defaults to the connection pool size.
func WithFlushConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.flushLimit = n
		}
	}
}

// WithShutdownTimeout bounds the final flush Stop performs after the
// background flusher exits.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
