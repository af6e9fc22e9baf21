package connpool

import (
	"log/slog"
	"time"
)

// Option configures a Pool.
type Option func(*options)

type options struct {
	maxIdleTime time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// WithMaxIdleTime closes idle connections older than d instead of reusing them.
// Zero keeps idle connections forever.
func WithMaxIdleTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxIdleTime = d
		}
	}
}

// WithLogger sets the logger for pool events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for idle expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
