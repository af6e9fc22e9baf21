package opensearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/searchpool/core/logger"
)

const (
	headerOpaqueID  = "X-Opaque-Id"
	headerUserAgent = "User-Agent"
	userAgent       = "searchpool"
)

// aLongTimeAgo is a non-zero time in the past; setting it as a deadline
// unblocks pending reads and writes immediately.
var aLongTimeAgo = time.Unix(1, 0)

// Executor sends one HTTP/1.1 request over a leased connection and reads the
// complete response. It never pipelines: the connection carries exactly one
// request/response exchange per Send.
type Executor struct {
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger for request events.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send writes req to conn and returns the fully buffered response. The
// returned body is in memory, so conn is free once Send returns.
//
// The context deadline bounds the whole exchange. On any error the
// connection is marked broken and must be discarded by the caller.
func (e *Executor) Send(ctx context.Context, conn *Conn, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		// Nothing was written; the connection is still clean.
		return nil, classify(ctx, "send", err)
	}

	deadline, _ := ctx.Deadline()
	if err := conn.netConn.SetDeadline(deadline); err != nil {
		conn.broken = true
		return nil, fmt.Errorf("%w: set deadline: %w", ErrConnection, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.netConn.SetDeadline(aLongTimeAgo)
	})
	defer func() {
		if !stop() && !conn.broken {
			// The interrupt fired or is firing; the deadline may be clobbered
			// after we return.
			conn.closeAfter = true
		}
	}()

	requestID := uuid.NewString()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(headerOpaqueID, requestID)
	if req.Header.Get(headerUserAgent) == "" {
		req.Header.Set(headerUserAgent, userAgent)
	}

	start := time.Now()

	if err := req.Write(conn.bw); err != nil {
		return nil, e.fail(ctx, conn, requestID, "write request", err)
	}
	if err := conn.bw.Flush(); err != nil {
		return nil, e.fail(ctx, conn, requestID, "write request", err)
	}

	res, err := http.ReadResponse(conn.br, req)
	if err != nil {
		return nil, e.fail(ctx, conn, requestID, "read response", err)
	}

	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if err != nil {
		return nil, e.fail(ctx, conn, requestID, "read response body", err)
	}

	conn.requests++
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	res.TransferEncoding = nil

	if res.Close {
		conn.closeAfter = true
	}
	if conn.br.Buffered() > 0 {
		// Bytes past the end of the response: the stream is out of sync.
		conn.closeAfter = true
	}

	e.logger.DebugContext(ctx, "request completed",
		logger.ConnID(conn.id),
		logger.RequestID(requestID),
		logger.Method(req.Method),
		logger.Path(req.URL.Path),
		logger.StatusCode(res.StatusCode),
		logger.Elapsed(start),
	)

	return res, nil
}

func (e *Executor) fail(ctx context.Context, conn *Conn, requestID, op string, err error) error {
	conn.broken = true
	classified := classify(ctx, op, err)
	e.logger.WarnContext(ctx, "request failed",
		logger.ConnID(conn.id),
		logger.RequestID(requestID),
		slog.Int("conn_requests", conn.requests),
		logger.Error(classified),
	)
	return classified
}

// classify maps low-level errors onto the transport error taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	// Context errors take priority: the deadline/interrupt caused the I/O error.
	// Cancellation is also delivered as a past deadline, so it is checked first.
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, ctxErr)
	case errors.Is(ctxErr, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}

	if op == "write request" {
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}

	// Anything else came out of the HTTP parser.
	return fmt.Errorf("%w: %s: %w", ErrProtocol, op, err)
}
