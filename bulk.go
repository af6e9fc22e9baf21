package searchpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/searchpool/core/logger"
)

// Document is a structured record sent to the index.
type Document map[string]any

// BulkResult is the outcome of a bulk request the backend accepted.
// Per-document rejections are reported in Failed; they are not call errors.
type BulkResult struct {
	Indexed int
	Failed  []BulkItemError
	Took    time.Duration // Backend-reported processing time
}

// Err returns the per-document failures as one error, or nil.
func (r *BulkResult) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	var merr *multierror.Error
	for i := range r.Failed {
		merr = multierror.Append(merr, &r.Failed[i])
	}
	return merr.ErrorOrNil()
}

// BulkItemError describes one document the backend rejected.
type BulkItemError struct {
	Position int    // Index of the document in the submitted batch
	ID       string // Document id, if known
	Status   int
	Type     string
	Reason   string
}

// Error implements the error interface.
func (e *BulkItemError) Error() string {
	id := e.ID
	if id == "" {
		id = "<auto>"
	}
	return fmt.Sprintf("document %d (id %s) rejected: status %d: %s: %s", e.Position, id, e.Status, e.Type, e.Reason)
}

// BulkIndex sends docs to collection in a single bulk request over one pooled
// connection. When idField is not empty and a document carries a non-nil value
// for it, that value becomes the document id; otherwise the backend assigns one.
//
// A non-nil error means the whole batch failed or its outcome is unknown.
// Documents rejected individually are listed in the result.
func (c *Client) BulkIndex(ctx context.Context, collection, idField string, docs []Document) (*BulkResult, error) {
	if len(docs) == 0 {
		return &BulkResult{}, nil
	}
	if collection == "" {
		return nil, ErrInvalidCollection
	}

	payload, err := buildBulkPayload(collection, idField, c.parentField, docs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	req := opensearchapi.BulkRequest{
		Index: collection,
		Body:  bytes.NewReader(payload),
	}

	var result *BulkResult
	err = c.perform(ctx, "bulk", req, func(body []byte) error {
		var derr error
		result, derr = decodeBulkResponse(body, len(docs))
		return derr
	})
	if err != nil {
		c.logger.WarnContext(ctx, "bulk request failed",
			logger.Collection(collection),
			logger.Count("documents", len(docs)),
			logger.Elapsed(start),
			logger.Error(err))
		return nil, err
	}

	if len(result.Failed) > 0 {
		c.logger.InfoContext(ctx, "bulk request partially rejected",
			logger.Collection(collection),
			logger.Count("indexed", result.Indexed),
			logger.Count("failed", len(result.Failed)))
	}

	return result, nil
}

type bulkAction struct {
	Index bulkActionMeta `json:"index"`
}

type bulkActionMeta struct {
	Index   string `json:"_index"`
	ID      any    `json:"_id,omitempty"`
	Routing any    `json:"routing,omitempty"`
}

// buildBulkPayload renders the newline-delimited action/source pairs in input
// order. The caller's documents are not modified.
func buildBulkPayload(collection, idField, parentField string, docs []Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, doc := range docs {
		meta := bulkActionMeta{Index: collection}
		source := doc
		cloned := false
		drop := func(field string) {
			if !cloned {
				source = make(Document, len(doc))
				for k, v := range doc {
					source[k] = v
				}
				cloned = true
			}
			delete(source, field)
		}

		if idField != "" {
			if id, ok := doc[idField]; ok {
				if id != nil {
					meta.ID = id
				}
				// Metadata fields are not allowed in the document body.
				if strings.HasPrefix(idField, "_") {
					drop(idField)
				}
			}
		}

		if parentField != "" {
			if parent, ok := doc[parentField]; ok {
				if parent != nil {
					meta.Routing = parent
				}
				drop(parentField)
			}
		}

		// Encoder.Encode terminates each line with '\n'.
		if err := enc.Encode(bulkAction{Index: meta}); err != nil {
			return nil, fmt.Errorf("encode action for document %d: %w", i, err)
		}
		if source == nil {
			source = Document{}
		}
		if err := enc.Encode(source); err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

type bulkResponse struct {
	Took   int64                         `json:"took"`
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items"`
}

type bulkResponseItem struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// decodeBulkResponse maps the per-item results back onto input positions.
func decodeBulkResponse(body []byte, expected int) (*BulkResult, error) {
	var resp bulkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode bulk response: %w", ErrProtocol, err)
	}
	if len(resp.Items) != expected {
		return nil, fmt.Errorf("%w: bulk response has %d items for %d documents", ErrProtocol, len(resp.Items), expected)
	}

	result := &BulkResult{Took: time.Duration(resp.Took) * time.Millisecond}
	for i, wrapped := range resp.Items {
		if len(wrapped) != 1 {
			return nil, fmt.Errorf("%w: bulk item %d has %d actions", ErrProtocol, i, len(wrapped))
		}

		var item bulkResponseItem
		for _, v := range wrapped {
			item = v
		}

		if item.Status >= 200 && item.Status <= 299 && len(item.Error) == 0 {
			result.Indexed++
			continue
		}

		ie := BulkItemError{Position: i, ID: item.ID, Status: item.Status}
		if len(item.Error) > 0 {
			var cause errorCause
			if err := json.Unmarshal(item.Error, &cause); err == nil {
				ie.Type, ie.Reason = cause.Type, cause.Reason
			} else {
				ie.Reason = string(item.Error)
			}
		}
		result.Failed = append(result.Failed, ie)
	}

	return result, nil
}
