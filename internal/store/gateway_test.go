package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plantforge/equipment-pipeline/internal/store"
	"github.com/stretchr/testify/require"
)

// scriptedBackend returns the queued error for each call; a nil entry means
// success. An exhausted script keeps succeeding.
type scriptedBackend struct {
	readErrs      []error
	writeManyErrs []error
	readCalls     int
	writeCalls    int
	manyCalls     int
}

func (b *scriptedBackend) Read(ctx context.Context, query string, params store.Record) ([]store.Record, error) {
	b.readCalls++
	if len(b.readErrs) > 0 {
		err := b.readErrs[0]
		b.readErrs = b.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []store.Record{{"query": query}}, nil
}

func (b *scriptedBackend) Write(ctx context.Context, statement string, params store.Record) (store.WriteSummary, error) {
	b.writeCalls++
	return store.WriteSummary{RowsAffected: 1}, nil
}

func (b *scriptedBackend) WriteMany(ctx context.Context, statement string, items []store.Record) (store.WriteSummary, error) {
	b.manyCalls++
	if len(b.writeManyErrs) > 0 {
		err := b.writeManyErrs[0]
		b.writeManyErrs = b.writeManyErrs[1:]
		if err != nil {
			return store.WriteSummary{}, err
		}
	}
	return store.WriteSummary{RowsAffected: int64(len(items))}, nil
}

func newGateway(backend store.Backend, threshold int) *store.Gateway {
	return store.NewGateway(backend, store.NewCircuitBreaker(threshold, time.Hour), 3)
}

func transientErr() error {
	return store.NewTransientError(errors.New("connection refused"))
}

func TestGatewayReadPassesThrough(t *testing.T) {
	backend := &scriptedBackend{}
	g := newGateway(backend, 100)

	records, err := g.Read(context.Background(), "equipment_list", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, backend.readCalls)
}

func TestGatewayRetriesTransientErrors(t *testing.T) {
	backend := &scriptedBackend{readErrs: []error{transientErr(), transientErr(), nil}}
	g := newGateway(backend, 100)

	records, err := g.Read(context.Background(), "equipment_list", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 3, backend.readCalls)
}

func TestGatewayRetryBudgetExhausted(t *testing.T) {
	backend := &scriptedBackend{readErrs: []error{transientErr(), transientErr(), transientErr()}}
	g := newGateway(backend, 100)

	_, err := g.Read(context.Background(), "equipment_list", nil)
	require.Error(t, err)
	require.True(t, store.IsTransient(err))
	require.Equal(t, 3, backend.readCalls)
}

func TestGatewayPermanentErrorNotRetried(t *testing.T) {
	backend := &scriptedBackend{readErrs: []error{store.NewPermanentError(errors.New("duplicate key"))}}
	g := newGateway(backend, 100)

	_, err := g.Read(context.Background(), "equipment_list", nil)
	require.Error(t, err)
	require.False(t, store.IsTransient(err))
	require.Equal(t, 1, backend.readCalls)
}

func TestGatewayFastFailsWhenBreakerOpen(t *testing.T) {
	backend := &scriptedBackend{readErrs: []error{transientErr(), transientErr(), transientErr()}}
	g := newGateway(backend, 3)

	_, err := g.Read(context.Background(), "equipment_list", nil)
	require.Error(t, err)
	require.Equal(t, store.BreakerOpen, g.Breaker().State())

	// the backend is not touched while the breaker is open
	_, err = g.Read(context.Background(), "equipment_list", nil)
	require.True(t, store.IsCircuitOpen(err))
	require.Equal(t, 3, backend.readCalls)
}

func TestGatewayRetryStopsOnCancelledContext(t *testing.T) {
	backend := &scriptedBackend{readErrs: []error{transientErr(), transientErr(), transientErr()}}
	g := newGateway(backend, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Read(ctx, "equipment_list", nil)
	require.Error(t, err)
	require.Equal(t, 1, backend.readCalls)
}

func records(n int) []store.Record {
	out := make([]store.Record, n)
	for i := range out {
		out[i] = store.Record{"seq": i}
	}
	return out
}

func TestBatchWriteChunksIndependently(t *testing.T) {
	// second chunk fails permanently on its single attempt
	backend := &scriptedBackend{writeManyErrs: []error{nil, store.NewPermanentError(errors.New("constraint violated"))}}
	g := newGateway(backend, 100)

	result, err := g.BatchWrite(context.Background(), "upsert_equipment", records(1000), 500)
	require.NoError(t, err)
	require.Equal(t, 500, result.Processed)
	require.Equal(t, 500, result.Failed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 500, result.Errors[0].ItemIndex)
	require.Equal(t, 2, backend.manyCalls)
}

func TestBatchWriteRetriesChunk(t *testing.T) {
	backend := &scriptedBackend{writeManyErrs: []error{transientErr(), nil}}
	g := newGateway(backend, 100)

	result, err := g.BatchWrite(context.Background(), "upsert_equipment", records(10), 500)
	require.NoError(t, err)
	require.Equal(t, 10, result.Processed)
	require.Zero(t, result.Failed)
	require.Equal(t, 2, backend.manyCalls)
}

func TestBatchWriteEmptyInput(t *testing.T) {
	backend := &scriptedBackend{}
	g := newGateway(backend, 100)

	result, err := g.BatchWrite(context.Background(), "upsert_equipment", nil, 500)
	require.NoError(t, err)
	require.Zero(t, result.Processed)
	require.Zero(t, result.Failed)
	require.Empty(t, result.Errors)
	require.Zero(t, backend.manyCalls)
}
