package opensearch

import (
	"bufio"
	"net"
	"time"

	"github.com/google/uuid"
)

const connBufferSize = 32 << 10

// Conn is a keep-alive connection to the backend. It is used by at most one
// request at a time; the pool enforces that.
type Conn struct {
	id        string
	netConn   net.Conn
	br        *bufio.Reader
	bw        *bufio.Writer
	createdAt time.Time
	requests  int

	// Set by the executor. A connection with either flag set must be
	// discarded instead of released.
	broken     bool // I/O or framing failure; state is unknown
	closeAfter bool // peer asked to close, or the stream is out of sync
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		id:        uuid.NewString(),
		netConn:   nc,
		br:        bufio.NewReaderSize(nc, connBufferSize),
		bw:        bufio.NewWriterSize(nc, connBufferSize),
		createdAt: time.Now(),
	}
}

// ID returns the connection identifier used in logs.
func (c *Conn) ID() string { return c.id }

// Requests returns how many requests were sent over the connection.
func (c *Conn) Requests() int { return c.requests }

// Age returns the time since the connection was established.
func (c *Conn) Age() time.Duration { return time.Since(c.createdAt) }

// Reusable reports whether the connection may go back to the pool.
func (c *Conn) Reusable() bool { return !c.broken && !c.closeAfter }

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.netConn.Close()
}
