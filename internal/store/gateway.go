package store

import (
	"context"
	"time"

	"github.com/plantforge/equipment-pipeline/pkg/metrics"
	"go.uber.org/zap"
)

// Record is one row exchanged with the backend.
type Record map[string]any

// WriteSummary reports the outcome of a successful write.
type WriteSummary struct {
	RowsAffected int64
}

// Backend is the raw store interface the gateway protects. Query and
// statement strings are opaque names interpreted by the implementation; the
// gateway adds no meaning of its own.
type Backend interface {
	Read(ctx context.Context, query string, params Record) ([]Record, error)
	Write(ctx context.Context, statement string, params Record) (WriteSummary, error)
	WriteMany(ctx context.Context, statement string, items []Record) (WriteSummary, error)
}

// BatchError records one failed chunk of a batch write.
type BatchError struct {
	ItemIndex int    `json:"itemIndex"`
	Message   string `json:"message"`
}

// BatchResult is the chunk-granular accounting of a batch write. Processed and
// Failed count items, but failure granularity is the chunk: a chunk that
// exhausts its retries fails all of its items.
type BatchResult struct {
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors,omitempty"`
}

const (
	DefaultRetryAttempts = 3
	DefaultChunkSize     = 500

	retryBaseDelay = 100 * time.Millisecond
)

// Gateway wraps a Backend with bounded retries for transient errors, a
// process-wide circuit breaker, and chunked batch writes.
type Gateway struct {
	backend  Backend
	breaker  *CircuitBreaker
	attempts int
	log      *zap.SugaredLogger
}

func NewGateway(backend Backend, breaker *CircuitBreaker, attempts int) *Gateway {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &Gateway{
		backend:  backend,
		breaker:  breaker,
		attempts: attempts,
		log:      zap.S().Named("storage_gateway"),
	}
}

// Breaker exposes the shared breaker for state inspection.
func (g *Gateway) Breaker() *CircuitBreaker {
	return g.breaker
}

// Read executes a query with retry and breaker protection.
func (g *Gateway) Read(ctx context.Context, query string, params Record) ([]Record, error) {
	var records []Record
	err := g.attempt(ctx, "read", func(ctx context.Context) error {
		var err error
		records, err = g.backend.Read(ctx, query, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Write executes a statement with retry and breaker protection.
func (g *Gateway) Write(ctx context.Context, statement string, params Record) (WriteSummary, error) {
	var summary WriteSummary
	err := g.attempt(ctx, "write", func(ctx context.Context) error {
		var err error
		summary, err = g.backend.Write(ctx, statement, params)
		return err
	})
	if err != nil {
		return WriteSummary{}, err
	}
	return summary, nil
}

// BatchWrite partitions items into fixed-size chunks and executes one retried
// write per chunk. Chunks are independent: a chunk that exhausts its retries is
// recorded against its first item's index and does not block later chunks.
func (g *Gateway) BatchWrite(ctx context.Context, statement string, items []Record, chunkSize int) (BatchResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	result := BatchResult{}
	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		err := g.attempt(ctx, "batch_write", func(ctx context.Context) error {
			_, err := g.backend.WriteMany(ctx, statement, chunk)
			return err
		})
		if err != nil {
			g.log.Warnw("batch chunk failed", "statement", statement, "first_item", start, "items", len(chunk), "error", err)
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, BatchError{ItemIndex: start, Message: err.Error()})
			continue
		}
		result.Processed += len(chunk)
	}
	return result, nil
}

// attempt runs op under the breaker with the retry budget. Only transient
// errors are retried; breaker fast-fails and permanent errors return
// immediately.
func (g *Gateway) attempt(ctx context.Context, operation string, op func(context.Context) error) error {
	var lastErr error
	for i := 0; i < g.attempts; i++ {
		if err := g.breaker.Allow(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			g.breaker.RecordSuccess()
			return nil
		}

		g.breaker.RecordFailure()
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if i == g.attempts-1 {
			break
		}

		metrics.IncreaseStoreRetriesMetric(operation)
		g.log.Debugw("retrying store call", "operation", operation, "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return NewPermanentError(ctx.Err())
		case <-time.After(retryBaseDelay * time.Duration(i+1)):
		}
	}
	return lastErr
}
