package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ashita-ai/tracecrud/internal/storage"
)

type opKey struct {
	resource, operation, outcome string
}

// collectOperations returns the resource.operations counter values and the
// total number of resource.operation.duration observations.
func collectOperations(t *testing.T, reader *sdkmetric.ManualReader) (map[opKey]int64, uint64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[opKey]int64)
	var observations uint64
	attr := func(set attribute.Set, key string) string {
		v, _ := set.Value(attribute.Key(key))
		return v.AsString()
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "resource.operations":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok, "resource.operations is %T", m.Data)
				for _, dp := range sum.DataPoints {
					counts[opKey{attr(dp.Attributes, "resource"), attr(dp.Attributes, "operation"), attr(dp.Attributes, "outcome")}] += dp.Value
				}
			case "resource.operation.duration":
				hist, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok, "resource.operation.duration is %T", m.Data)
				for _, dp := range hist.DataPoints {
					observations += dp.Count
				}
			}
		}
	}
	return counts, observations
}

func newMeteredUsers(t *testing.T, store *fakeStore) (*Service[int64], *fakeRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec := &fakeRecorder{}
	svc, err := NewService(Users(), store, rec, WithMeter(mp.Meter("test")))
	require.NoError(t, err)
	return svc, rec, reader
}

func TestMetrics_OutcomePerOperation(t *testing.T) {
	t.Parallel()
	store := &fakeStore{rows: []storage.Row{{"id": int64(7)}}}
	svc, _, reader := newMeteredUsers(t, store)
	ctx := context.Background()

	require.True(t, svc.Create(ctx, map[string]any{"username": "alice", "email": "a@x.com"}).OK())

	store.rows = nil
	assert.Equal(t, KindNotFound, svc.ReadOne(ctx, 7).Kind())

	store.err = errors.New("connection reset")
	assert.Equal(t, KindStoreFailure, svc.Delete(ctx, 7).Kind())

	// Validation failures never reach the store and are not counted.
	assert.Equal(t, KindValidation, svc.Create(ctx, map[string]any{}).Kind())

	counts, observations := collectOperations(t, reader)
	assert.Equal(t, map[opKey]int64{
		{"users", OpCreate, "ok"}:             1,
		{"users", OpReadOne, "not_found"}:     1,
		{"users", OpDelete, "store_failure"}: 1,
	}, counts)
	assert.Equal(t, uint64(3), observations)
}

func TestMetrics_PanicCountsAsStoreFailure(t *testing.T) {
	t.Parallel()
	store := &fakeStore{panics: "driver exploded"}
	svc, rec, reader := newMeteredUsers(t, store)

	assert.PanicsWithValue(t, "driver exploded", func() {
		svc.ReadOne(context.Background(), 1)
	})

	span := rec.only(t)
	assert.Equal(t, 1, span.ended)
	assert.Zero(t, span.late)
	require.Len(t, span.errs, 1)
	assert.Contains(t, span.errs[0].Error(), "driver exploded")
	assert.Equal(t, "panic", span.attrs["error.type"])

	counts, observations := collectOperations(t, reader)
	assert.Equal(t, map[opKey]int64{{"users", OpReadOne, "store_failure"}: 1}, counts)
	assert.Equal(t, uint64(1), observations)
}

func TestMetrics_PanicInEveryOperation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fields := map[string]any{"username": "alice", "email": "a@x.com"}
	ops := map[string]func(*Service[int64]){
		OpCreate:  func(s *Service[int64]) { s.Create(ctx, fields) },
		OpReadAll: func(s *Service[int64]) { s.ReadAll(ctx) },
		OpUpdate:  func(s *Service[int64]) { s.Update(ctx, 1, fields) },
		OpDelete:  func(s *Service[int64]) { s.Delete(ctx, 1) },
	}
	for op, call := range ops {
		t.Run(op, func(t *testing.T) {
			t.Parallel()
			svc, rec, reader := newMeteredUsers(t, &fakeStore{panics: op})
			assert.Panics(t, func() { call(svc) })

			span := rec.only(t)
			assert.Equal(t, 1, span.ended)
			assert.Len(t, span.errs, 1)
			counts, _ := collectOperations(t, reader)
			assert.Equal(t, int64(1), counts[opKey{"users", op, "store_failure"}])
		})
	}
}
