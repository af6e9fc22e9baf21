package connpool

import "errors"

// Package-level error definitions for pool operations.
var (
	ErrInvalidConfig = errors.New("invalid pool configuration")
	ErrClosed        = errors.New("pool is closed")
	ErrDial          = errors.New("failed to dial connection")
)
