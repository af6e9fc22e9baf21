package opensearch

import "errors"

// Transport error taxonomy. Use errors.Is to tell them apart; every error
// returned from this package that involved a connection wraps exactly one of
// ErrConnection, ErrTimeout or ErrProtocol.
var (
	ErrInvalidEndpoint = errors.New("invalid search endpoint")
	ErrInvalidConfig   = errors.New("invalid transport configuration")
	ErrConnection      = errors.New("search backend connection failed")
	ErrTimeout         = errors.New("search request timed out")
	ErrProtocol        = errors.New("malformed search backend response")
	ErrLeaseClosed     = errors.New("connection lease already closed")
)
