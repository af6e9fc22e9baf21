package searchpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/searchpool/core/logger"
)

// CountOption configures a Count call.
type CountOption func(*countOptions)

type countOptions struct {
	query any
}

// WithQuery restricts the count to documents matching query. query is
// marshalled as the request body, for example
// map[string]any{"query": map[string]any{"term": map[string]any{"user": "kim"}}}.
func WithQuery(query any) CountOption {
	return func(o *countOptions) {
		o.query = query
	}
}

// Count returns the number of documents in collection. Documents queued by
// Index for the collection are flushed first when their flush is due.
func (c *Client) Count(ctx context.Context, collection string, opts ...CountOption) (int64, error) {
	if collection == "" {
		return 0, ErrInvalidCollection
	}

	var o countOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.flushIfDue(ctx, collection); err != nil {
		c.logger.WarnContext(ctx, "flush before count failed", logger.Collection(collection), logger.Error(err))
	}

	req := opensearchapi.CountRequest{Index: []string{collection}}
	if o.query != nil {
		body, err := json.Marshal(o.query)
		if err != nil {
			return 0, fmt.Errorf("encode count query: %w", err)
		}
		req.Body = bytes.NewReader(body)
	}

	var count int64
	err := c.perform(ctx, "count", req, func(body []byte) error {
		var resp struct {
			Count *int64 `json:"count"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%w: decode count response: %w", ErrProtocol, err)
		}
		if resp.Count == nil {
			return fmt.Errorf("%w: count response has no count field", ErrProtocol)
		}
		count = *resp.Count
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
