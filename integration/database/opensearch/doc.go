// Package opensearch provides a pooled HTTP/1.1 transport for OpenSearch and
// Elasticsearch compatible backends.
//
// The standard opensearch-go client multiplexes requests over net/http's own
// connection management, which grows without bound under many concurrent
// callers. This package instead pins every request to one connection from a
// fixed-size connpool.Pool, so a program with thousands of goroutines opens at
// most Size connections no matter how slow the backend gets.
//
// # Components
//
//   - Endpoint: immutable backend address parsed from a URL with ParseEndpoint
//   - Conn: one keep-alive TCP connection with its buffered reader and writer
//   - Executor: writes one request and reads one complete response on a Conn
//   - Transport: owns the pool and hands out leases
//   - Lease: one checked-out connection; implements opensearchapi.Transport
//
// # Usage Example
//
//	endpoint, err := opensearch.ParseEndpoint("http://127.0.0.1:9200/")
//	if err != nil {
//		return err
//	}
//
//	transport, err := opensearch.NewTransport(endpoint, 10,
//		opensearch.WithRequestTimeout(5*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	defer transport.Close()
//
//	lease, err := transport.Lease(ctx)
//	if err != nil {
//		return err
//	}
//	res, err := opensearchapi.CountRequest{Index: []string{"events"}}.Do(ctx, lease)
//	lease.Close(err)
//
// # Connection Health
//
// The executor marks a connection broken on any write, read or framing error,
// and Lease.Close discards broken connections instead of returning them to the
// pool. A response with "Connection: close" retires its connection the same
// way. A connection the backend closed while it sat idle surfaces as
// ErrConnection on the next request; nothing is retried internally. Use
// WithMaxIdleTime to retire idle connections before the backend's keep-alive
// timeout.
//
// # Error Handling
//
//   - ErrConnection: dial, write or read failed, or the peer closed the connection
//   - ErrTimeout: the request timeout or context deadline expired
//   - ErrProtocol: the response could not be parsed
//   - ErrInvalidEndpoint, ErrInvalidConfig: construction errors
package opensearch
