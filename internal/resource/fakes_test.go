package resource

import (
	"context"
	"sync"

	"github.com/ashita-ai/tracecrud/internal/storage"
	"github.com/ashita-ai/tracecrud/internal/telemetry"
)

type storeCall struct {
	statement string
	params    storage.Params
}

// fakeStore answers every call with the configured rows, count or error.
// Fields may be changed between calls but not during one.
type fakeStore struct {
	mu       sync.Mutex
	rows     []storage.Row
	affected int64
	err      error
	panics   any // when set, Exec and Query panic with it
	calls    []storeCall
}

func (f *fakeStore) record(statement string, params storage.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, storeCall{statement: statement, params: params})
	if f.panics != nil {
		panic(f.panics)
	}
}

func (f *fakeStore) Exec(_ context.Context, statement string, params storage.Params) (int64, error) {
	f.record(statement, params)
	return f.affected, f.err
}

func (f *fakeStore) Query(_ context.Context, statement string, params storage.Params) ([]storage.Row, error) {
	f.record(statement, params)
	return f.rows, f.err
}

func (f *fakeStore) Ping(context.Context) error { return f.err }
func (f *fakeStore) System() string             { return "postgresql" }
func (f *fakeStore) Close()                     {}

// fakeSpan records everything set on it, including calls after End.
type fakeSpan struct {
	name   string
	attrs  map[string]any
	events []string
	errs   []error
	ended  int
	late   int
}

func (s *fakeSpan) SetAttribute(key string, value any) {
	if s.ended > 0 {
		s.late++
	}
	s.attrs[key] = value
}

func (s *fakeSpan) AddEvent(name string, _ map[string]any) {
	if s.ended > 0 {
		s.late++
	}
	s.events = append(s.events, name)
}

func (s *fakeSpan) RecordError(err error) {
	if s.ended > 0 {
		s.late++
	}
	s.errs = append(s.errs, err)
}

func (s *fakeSpan) End() { s.ended++ }

// fakeRecorder counts started spans.
type fakeRecorder struct {
	mu    sync.Mutex
	spans []*fakeSpan
}

var _ telemetry.SpanRecorder = (*fakeRecorder)(nil)

func (r *fakeRecorder) Start(ctx context.Context, name string) (context.Context, telemetry.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &fakeSpan{name: name, attrs: make(map[string]any)}
	r.spans = append(r.spans, s)
	return ctx, s
}

func (r *fakeRecorder) only(t interface {
	Helper()
	Fatalf(string, ...any)
}) *fakeSpan {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.spans) != 1 {
		t.Fatalf("started %d spans, want 1", len(r.spans))
	}
	return r.spans[0]
}
