package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ashita-ai/tracecrud/internal/resource"
	"github.com/ashita-ai/tracecrud/internal/telemetry"
)

func newPostgresRecorder(t *testing.T) (telemetry.SpanRecorder, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return telemetry.NewOTelRecorder(tp.Tracer("user-service")), sr
}

func assertNoSpanErrors(t *testing.T, sr *tracetest.SpanRecorder) {
	t.Helper()
	for _, s := range sr.Ended() {
		assert.Equal(t, codes.Unset, s.Status().Code, s.Name())
		for _, ev := range s.Events() {
			assert.NotEqual(t, "exception", ev.Name, s.Name())
		}
	}
}

func TestPostgresUsersService(t *testing.T) {
	store := requirePostgres(t)
	recorder, sr := newPostgresRecorder(t)
	svc, err := resource.NewService(resource.Users(), store, recorder)
	require.NoError(t, err)
	ctx := context.Background()

	created := svc.Create(ctx, map[string]any{"username": "linus", "email": "linus@example.com", "password": "hunter2"})
	require.True(t, created.OK(), "err: %v", created.Err())
	id := created.Value()
	assert.Positive(t, id)

	got := svc.ReadOne(ctx, id)
	require.True(t, got.OK(), "err: %v", got.Err())
	assert.Equal(t, id, got.Value().Key)
	assert.Equal(t, map[string]any{"username": "linus", "email": "linus@example.com"}, got.Value().Fields)
	assert.WithinDuration(t, time.Now(), got.Value().CreatedAt, time.Minute)

	all := svc.ReadAll(ctx)
	require.True(t, all.OK(), "err: %v", all.Err())
	var found bool
	for _, rec := range all.Value() {
		if rec.Key == id {
			found = true
		}
	}
	assert.True(t, found, "created user missing from list")

	updated := svc.Update(ctx, id, map[string]any{"username": "torvalds", "email": "t@example.com"})
	require.True(t, updated.OK(), "err: %v", updated.Err())
	got = svc.ReadOne(ctx, id)
	require.True(t, got.OK())
	assert.Equal(t, "torvalds", got.Value().Fields["username"])

	deleted := svc.Delete(ctx, id)
	require.True(t, deleted.OK(), "err: %v", deleted.Err())
	assert.Equal(t, int64(1), deleted.Value())
	assert.Equal(t, resource.KindNotFound, svc.Delete(ctx, id).Kind())
	assert.Equal(t, resource.KindNotFound, svc.ReadOne(ctx, id).Kind())
	assert.Equal(t, resource.KindNotFound, svc.ReadOne(ctx, 0).Kind())

	assertNoSpanErrors(t, sr)
	for _, s := range sr.Ended() {
		assert.Equal(t, "postgresql", attrString(s, "db.system"), s.Name())
	}
}

func TestPostgresProductsService(t *testing.T) {
	store := requirePostgres(t)
	recorder, sr := newPostgresRecorder(t)
	svc, err := resource.NewService(resource.Products(), store, recorder)
	require.NoError(t, err)
	ctx := context.Background()

	created := svc.Create(ctx, map[string]any{"name": "widget", "description": "blue", "quantity": float64(2147483647)})
	require.True(t, created.OK(), "err: %v", created.Err())
	id := created.Value()
	assert.NotEqual(t, uuid.Nil, id)

	got := svc.ReadOne(ctx, id)
	require.True(t, got.OK(), "err: %v", got.Err())
	assert.Equal(t, id, got.Value().Key)
	assert.Equal(t, map[string]any{"name": "widget", "description": "blue", "quantity": int64(2147483647)}, got.Value().Fields)
	assert.False(t, got.Value().CreatedAt.IsZero())

	updated := svc.Update(ctx, id, map[string]any{"name": "widget", "quantity": float64(3)})
	require.True(t, updated.OK(), "err: %v", updated.Err())
	got = svc.ReadOne(ctx, id)
	require.True(t, got.OK())
	assert.Equal(t, int64(3), got.Value().Fields["quantity"])
	assert.Nil(t, got.Value().Fields["description"])

	all := svc.ReadAll(ctx)
	require.True(t, all.OK(), "err: %v", all.Err())
	assert.NotEmpty(t, all.Value())

	assert.True(t, svc.Delete(ctx, id).OK())
	assert.Equal(t, resource.KindNotFound, svc.ReadOne(ctx, id).Kind())
	assert.Equal(t, resource.KindNotFound, svc.Update(ctx, uuid.New(), map[string]any{"name": "x", "quantity": float64(1)}).Kind())

	tooMany := svc.Create(ctx, map[string]any{"name": "widget", "quantity": float64(3000000000)})
	assert.Equal(t, resource.KindValidation, tooMany.Kind())

	assertNoSpanErrors(t, sr)
}

func attrString(s sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}
