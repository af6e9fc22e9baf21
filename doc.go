// Package searchpool is a client for OpenSearch and Elasticsearch compatible
// document indexes, built for programs that run thousands of goroutines
// against one backend.
//
// Every call borrows one keep-alive connection from a fixed-size pool and
// gives it back when the response has been read. Callers that find the pool
// exhausted wait in line, first come first served, so a slow backend slows
// callers down instead of multiplying connections.
//
// # Operations
//
//   - BulkIndex: sends a batch of documents in one _bulk request
//   - Count: returns the number of documents in a collection
//   - Index: queues one document and sends queued documents in bulk lazily
//   - Flush: sends every queued document now
//   - Healthcheck: pings the backend
//
// # Usage Example
//
//	cfg := searchpool.DefaultConfig()
//	cfg.RequestTimeout = 10 * time.Second
//
//	client, err := searchpool.New(cfg, searchpool.WithLogger(slog.Default()))
//	if err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	res, err := client.BulkIndex(ctx, "events", "_id", []searchpool.Document{
//		{"_id": "1", "user": "kim"},
//		{"_id": "2", "user": "lee"},
//	})
//	if err != nil {
//		return err // the whole batch failed
//	}
//	for _, failed := range res.Failed {
//		log.Printf("document %d rejected: %s", failed.Position, failed.Reason)
//	}
//
//	n, err := client.Count(ctx, "events")
//
// # Configuration
//
// Config maps to SEARCH_* environment variables; NewFromEnv loads them (and a
// .env file, if present):
//
//	SEARCH_ENDPOINT=http://127.0.0.1:9200/
//	SEARCH_MAX_CONNECTIONS=10
//	SEARCH_REQUEST_TIMEOUT=0s
//	SEARCH_DIAL_TIMEOUT=5s
//	SEARCH_MAX_IDLE_TIME=0s
//	SEARCH_LAZY_THRESHOLD=1000
//	SEARCH_LAZY_PERIOD=5s
//	SEARCH_ID_FIELD=_id
//
// # Lazy Indexing
//
// Index buffers documents per collection. A collection is flushed when it
// holds more than LazyThreshold documents, or on the first Index or Count
// after LazyPeriod has passed. Run the background flusher with errgroup to
// flush idle collections too:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(client.Run(ctx))
//
// A failed flush keeps the documents queued for the next attempt. If the
// backend applied part of the failed request before the connection dropped,
// those documents are indexed twice.
//
// Index returns ErrClosed once Close has started; every document accepted
// before that is sent by Close. Start returns ErrFlusherRunning when a
// flusher is already running and Stop returns ErrFlusherNotRunning when none is.
//
// # Error Handling
//
// Call-level failures wrap one of the transport errors:
//
//   - ErrConnection: the connection could not be opened or broke mid-request,
//     or the caller cancelled ctx while the request was in flight
//   - ErrTimeout: the request timeout or context deadline expired
//   - ErrProtocol: the response was malformed
//
// A non-2xx response is returned as *ResponseError, which matches ErrBackend.
// Documents the backend rejected one by one are not call errors; they are
// listed in BulkResult.Failed and combined by BulkResult.Err.
//
// Nothing is retried internally. Connections that failed are discarded and
// replaced on demand.
package searchpool
