package searchpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/searchpool/integration/database/opensearch"
	"github.com/dmitrymomot/searchpool/pkg/connpool"
)

// Transport errors. Every failed call that reached the network wraps exactly
// one of these; check with errors.Is.
var (
	ErrConnection = opensearch.ErrConnection
	ErrTimeout    = opensearch.ErrTimeout
	ErrProtocol   = opensearch.ErrProtocol
)

// Client errors.
var (
	ErrInvalidConfig     = errors.New("invalid search client configuration")
	ErrInvalidCollection = errors.New("collection name is required")
	ErrBackend           = errors.New("search backend returned an error")
	ErrClosed            = connpool.ErrClosed
)

// ResponseError is returned when the backend answers a request with a non-2xx
// status. The connection stays healthy and is returned to the pool.
type ResponseError struct {
	Status int    // HTTP status code
	Type   string // Backend error type, when the body carried one
	Reason string // Human-readable reason
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: status %d: %s", ErrBackend, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: status %d: %s: %s", ErrBackend, e.Status, e.Type, e.Reason)
}

// Unwrap makes errors.Is(err, ErrBackend) report true.
func (e *ResponseError) Unwrap() error { return ErrBackend }

// errorBody matches both error shapes the backend uses:
// {"error":{"type":"...","reason":"..."}} and {"error":"..."}.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func newResponseError(status int, body []byte) *ResponseError {
	re := &ResponseError{Status: status, Reason: http.StatusText(status)}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return re
	}

	var cause errorCause
	if err := json.Unmarshal(eb.Error, &cause); err == nil {
		re.Type = cause.Type
		if cause.Reason != "" {
			re.Reason = cause.Reason
		}
		return re
	}

	var text string
	if err := json.Unmarshal(eb.Error, &text); err == nil && text != "" {
		re.Reason = text
	}
	return re
}
