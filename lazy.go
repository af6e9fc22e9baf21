package searchpool

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/searchpool/core/logger"
)

var (
	// ErrLazyDisabled is returned by Start when lazy indexing is turned off.
	ErrLazyDisabled = errors.New("lazy indexing is disabled")
	// ErrFlusherRunning is returned by Start when the flusher already runs.
	ErrFlusherRunning = errors.New("lazy flusher already started")
	// ErrFlusherNotRunning is returned by Stop when no flusher runs.
	ErrFlusherNotRunning = errors.New("lazy flusher not started")
)

type lazyQueue struct {
	docs      []Document
	lastFlush time.Time
}

// Index queues doc for collection and sends the queue with BulkIndex once it
// holds more than LazyThreshold documents or LazyPeriod has passed since the
// collection was last flushed. With LazyThreshold 0 the document is sent
// immediately.
//
// A queued document is not lost when a flush fails: it stays queued and the
// failure is logged. The document id is taken from Config.IDField.
func (c *Client) Index(ctx context.Context, collection string, doc Document) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	if c.closed.Load() {
		return ErrClosed
	}

	if c.lazyThreshold == 0 {
		res, err := c.BulkIndex(ctx, collection, c.idField, []Document{doc})
		if err != nil {
			return err
		}
		return res.Err()
	}

	now := c.now()

	c.lazyMu.Lock()
	if c.lazyClosed {
		c.lazyMu.Unlock()
		return ErrClosed
	}
	q, ok := c.lazy[collection]
	if !ok {
		q = &lazyQueue{lastFlush: now}
		c.lazy[collection] = q
	}
	q.docs = append(q.docs, maps.Clone(doc))
	docs := c.takeIfDue(q, now)
	sending := c.beginSend(docs != nil)
	c.lazyMu.Unlock()

	if docs != nil {
		defer sending()
		// The documents are back in the queue on failure; the caller's
		// document is accepted either way.
		_ = c.sendQueued(ctx, collection, docs)
	}
	return nil
}

// Flush sends every queued document regardless of threshold and period.
// Collections are flushed concurrently, bounded by WithFlushConcurrency.
// Collections that fail keep their documents queued.
func (c *Client) Flush(ctx context.Context) error {
	now := c.now()

	c.lazyMu.Lock()
	pending := make(map[string][]Document, len(c.lazy))
	for name, q := range c.lazy {
		if len(q.docs) == 0 {
			continue
		}
		pending[name] = q.docs
		q.docs = nil
		q.lastFlush = now
	}
	sending := c.beginSend(len(pending) > 0)
	c.lazyMu.Unlock()
	defer sending()

	if len(pending) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		merr *multierror.Error
	)
	g := new(errgroup.Group)
	g.SetLimit(c.flushLimit)

	for name, docs := range pending {
		g.Go(func() error {
			if err := c.sendQueued(ctx, name, docs); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("flush %s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return merr.ErrorOrNil()
}

// flushIfDue flushes one collection when its threshold or period is reached.
func (c *Client) flushIfDue(ctx context.Context, collection string) error {
	c.lazyMu.Lock()
	var docs []Document
	if q, ok := c.lazy[collection]; ok {
		docs = c.takeIfDue(q, c.now())
	}
	sending := c.beginSend(docs != nil)
	c.lazyMu.Unlock()
	defer sending()

	if docs == nil {
		return nil
	}
	return c.sendQueued(ctx, collection, docs)
}

// beginSend must be called with c.lazyMu held. It registers a send that Close
// waits for before its final flush and returns the func that ends it. Sends
// started by that final flush are not registered.
func (c *Client) beginSend(taken bool) func() {
	if !taken || c.lazyClosed {
		return func() {}
	}
	c.lazySending.Add(1)
	return c.lazySending.Done
}

// flushDue flushes every collection whose threshold or period is reached.
func (c *Client) flushDue(ctx context.Context) {
	c.lazyMu.Lock()
	names := make([]string, 0, len(c.lazy))
	for name := range c.lazy {
		names = append(names, name)
	}
	c.lazyMu.Unlock()

	for _, name := range names {
		_ = c.flushIfDue(ctx, name)
	}
}

// takeIfDue must be called with c.lazyMu held. It empties q and returns its
// documents when a flush is due, nil otherwise.
func (c *Client) takeIfDue(q *lazyQueue, now time.Time) []Document {
	if len(q.docs) == 0 {
		return nil
	}
	if len(q.docs) <= c.lazyThreshold && !now.After(q.lastFlush.Add(c.lazyPeriod)) {
		return nil
	}
	docs := q.docs
	q.docs = nil
	q.lastFlush = now
	return docs
}

// sendQueued sends docs and puts them back at the front of the queue when the
// request as a whole fails.
func (c *Client) sendQueued(ctx context.Context, collection string, docs []Document) error {
	res, err := c.BulkIndex(ctx, collection, c.idField, docs)
	if err != nil {
		c.lazyMu.Lock()
		q, ok := c.lazy[collection]
		if !ok {
			q = &lazyQueue{lastFlush: c.now()}
			c.lazy[collection] = q
		}
		q.docs = append(docs, q.docs...)
		c.lazyMu.Unlock()

		c.logger.WarnContext(ctx, "lazy flush failed, duplicate data may exist later",
			logger.Collection(collection),
			logger.Count("documents", len(docs)),
			logger.Error(err))
		return err
	}

	if len(res.Failed) > 0 {
		c.logger.WarnContext(ctx, "lazy flush rejected documents",
			logger.Collection(collection),
			logger.Count("failed", len(res.Failed)),
			logger.Error(res.Err()))
	}
	return nil
}

func (c *Client) queued() int {
	c.lazyMu.Lock()
	defer c.lazyMu.Unlock()

	n := 0
	for _, q := range c.lazy {
		n += len(q.docs)
	}
	return n
}

// Start runs the background flusher until ctx is cancelled or Stop is
// called, flushing collections whose LazyPeriod has passed. It blocks.
func (c *Client) Start(ctx context.Context) error {
	if c.lazyThreshold == 0 || c.lazyPeriod <= 0 {
		return ErrLazyDisabled
	}

	c.runMu.Lock()
	if c.cancel != nil {
		c.runMu.Unlock()
		return ErrFlusherRunning
	}
	if c.closed.Load() {
		c.runMu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.runMu.Unlock()

	defer close(done)

	c.logger.InfoContext(ctx, "lazy flusher started", logger.Duration(c.lazyPeriod))

	ticker := time.NewTicker(c.lazyPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(context.Background(), "lazy flusher stopping")
			return ctx.Err()
		case <-ticker.C:
			c.flushDue(ctx)
		}
	}
}

// Stop stops the background flusher and flushes every queue, bounded by the
// shutdown timeout.
func (c *Client) Stop() error {
	if !c.stopFlusher() {
		return ErrFlusherNotRunning
	}
	return c.finalFlush()
}

// Run provides errgroup compatibility: it runs the flusher until ctx is
// cancelled, then flushes every queue before returning.
func (c *Client) Run(ctx context.Context) func() error {
	return func() error {
		if c.lazyThreshold == 0 || c.lazyPeriod <= 0 {
			<-ctx.Done()
			return nil
		}

		err := c.Start(ctx)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !c.stopFlusher() {
			// Stopped by Stop or Close, which flush on their own.
			return nil
		}
		return c.finalFlush()
	}
}

func (c *Client) finalFlush() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()

	if err := c.Flush(ctx); err != nil {
		c.logger.WarnContext(ctx, "final lazy flush failed", logger.Error(err))
		return err
	}
	c.logger.InfoContext(ctx, "lazy flusher stopped cleanly")
	return nil
}

// stopFlusher cancels a running flusher and waits for it to exit.
// It reports whether one was running.
func (c *Client) stopFlusher() bool {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}
