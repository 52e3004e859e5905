package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ashita-ai/tracecrud/internal/storage"
	"github.com/ashita-ai/tracecrud/internal/telemetry"
)

// Operation names used in metrics and logs.
const (
	OpCreate  = "create"
	OpReadOne = "read_one"
	OpReadAll = "read_all"
	OpUpdate  = "update"
	OpDelete  = "delete"
)

// Service runs the CRUD operations for one resource type. Each operation that
// passes validation performs exactly one store call inside exactly one span.
// It is safe for concurrent use.
type Service[K comparable] struct {
	def        Definition[K]
	stmts      statements
	updateCols []Column
	secret     map[string]bool

	store    storage.Store
	recorder telemetry.SpanRecorder

	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

type serviceOptions struct {
	meter metric.Meter
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithMeter records per-operation counters and latencies on m.
func WithMeter(m metric.Meter) Option {
	return func(o *serviceOptions) { o.meter = m }
}

// NewService validates def and binds it to store and recorder.
func NewService[K comparable](def Definition[K], store storage.Store, recorder telemetry.SpanRecorder, opts ...Option) (*Service[K], error) {
	if store == nil || recorder == nil {
		return nil, errors.New("resource: store and recorder are required")
	}
	stmts, err := def.build()
	if err != nil {
		return nil, err
	}
	updateCols, err := def.updateColumns()
	if err != nil {
		return nil, err
	}

	o := serviceOptions{meter: noop.NewMeterProvider().Meter("")}
	for _, opt := range opts {
		opt(&o)
	}
	operations, err := o.meter.Int64Counter("resource.operations",
		metric.WithDescription("Resource operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("resource: create operations counter: %w", err)
	}
	duration, err := o.meter.Float64Histogram("resource.operation.duration",
		metric.WithDescription("Resource operation duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("resource: create duration histogram: %w", err)
	}

	secret := make(map[string]bool)
	for _, c := range def.Columns {
		if c.Secret {
			secret[c.Name] = true
		}
	}

	return &Service[K]{
		def:        def,
		stmts:      stmts,
		updateCols: updateCols,
		secret:     secret,
		store:      store,
		recorder:   recorder,
		operations: operations,
		duration:   duration,
	}, nil
}

// Definition returns the resource definition the service was built from.
func (s *Service[K]) Definition() Definition[K] {
	return s.def
}

// ParseKey converts a path segment into a key.
func (s *Service[K]) ParseKey(raw string) (K, error) {
	return s.def.Key.Parse(raw)
}

// Create validates fields, inserts a row and returns its key. Validation
// failures return before a span is started.
func (s *Service[K]) Create(ctx context.Context, fields map[string]any) (res Result[K]) {
	values, err := validateFields(s.def.Columns, s.def.RequiredMessage, fields)
	if err != nil {
		return failValidation[K](err)
	}
	params, err := s.bind(values)
	if err != nil {
		return Fail[K](KindStoreFailure, err)
	}
	var key K
	if s.def.Key.Generate != nil {
		key = s.def.Key.Generate()
		params["id"] = bindKey(key)
	}

	start := time.Now()
	ctx, span := s.recorder.Start(ctx, "create"+s.def.Label)
	defer func() { s.finish(ctx, span, OpCreate, start, res.outcome(), recover()) }()
	s.annotate(span, "INSERT", s.stmts.insert, params)

	rows, err := s.store.Query(ctx, s.stmts.insert, params)
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("resource: insert %s returned no row", s.def.Singular)
	}
	if err != nil {
		return storeFailure[K](span, fmt.Errorf("resource: create %s: %w", s.def.Singular, err))
	}
	if s.def.Key.Generate == nil {
		key, err = s.def.Key.Decode(rows[0]["id"])
		if err != nil {
			return storeFailure[K](span, fmt.Errorf("resource: create %s: decode id: %w", s.def.Singular, err))
		}
	}

	span.SetAttribute(s.keyAttr(), bindKey(key))
	span.AddEvent(s.def.Label+" inserted into database", nil)
	return Ok(key)
}

// ReadOne returns the record for key. A missing row is KindNotFound and is
// not recorded as a span error.
func (s *Service[K]) ReadOne(ctx context.Context, key K) (res Result[Record[K]]) {
	params := storage.Params{"id": bindKey(key)}

	start := time.Now()
	ctx, span := s.recorder.Start(ctx, "get"+s.def.Label+"ById")
	defer func() { s.finish(ctx, span, OpReadOne, start, res.outcome(), recover()) }()
	s.annotate(span, "SELECT", s.stmts.selectOne, params)
	span.SetAttribute(s.keyAttr(), bindKey(key))

	rows, err := s.store.Query(ctx, s.stmts.selectOne, params)
	if err != nil {
		return storeFailure[Record[K]](span, fmt.Errorf("resource: read %s: %w", s.def.Singular, err))
	}
	if len(rows) == 0 {
		span.AddEvent(s.def.Label+" not found", nil)
		return Fail[Record[K]](KindNotFound, s.notFound(key))
	}

	rec, err := decodeRow(&s.def, rows[0])
	if err != nil {
		return storeFailure[Record[K]](span, err)
	}
	span.AddEvent(s.def.Label+" retrieved", nil)
	return Ok(rec)
}

// ReadAll returns every record. No rows is an empty, successful result.
func (s *Service[K]) ReadAll(ctx context.Context) (res Result[[]Record[K]]) {
	start := time.Now()
	ctx, span := s.recorder.Start(ctx, "getAll"+s.def.PluralLabel)
	defer func() { s.finish(ctx, span, OpReadAll, start, res.outcome(), recover()) }()
	s.annotate(span, "SELECT", s.stmts.selectAll, nil)

	rows, err := s.store.Query(ctx, s.stmts.selectAll, nil)
	if err != nil {
		return storeFailure[[]Record[K]](span, fmt.Errorf("resource: list %s: %w", s.def.Name, err))
	}

	records := make([]Record[K], 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(&s.def, row)
		if err != nil {
			return storeFailure[[]Record[K]](span, err)
		}
		records = append(records, rec)
	}

	span.SetAttribute("db."+s.def.Singular+"_count", len(records))
	span.AddEvent("Fetched all "+s.def.Name, map[string]any{"count": len(records)})
	return Ok(records)
}

// Update overwrites the update columns of key and echoes the submitted
// values. Zero affected rows is KindNotFound.
func (s *Service[K]) Update(ctx context.Context, key K, fields map[string]any) (res Result[Record[K]]) {
	values, err := validateFields(s.updateCols, s.def.RequiredMessage, fields)
	if err != nil {
		return failValidation[Record[K]](err)
	}
	params, err := s.bind(values)
	if err != nil {
		return Fail[Record[K]](KindStoreFailure, err)
	}
	params["id"] = bindKey(key)

	start := time.Now()
	ctx, span := s.recorder.Start(ctx, "update"+s.def.Label)
	defer func() { s.finish(ctx, span, OpUpdate, start, res.outcome(), recover()) }()
	s.annotate(span, "UPDATE", s.stmts.update, params)
	span.SetAttribute(s.keyAttr(), bindKey(key))

	affected, err := s.store.Exec(ctx, s.stmts.update, params)
	if err != nil {
		return storeFailure[Record[K]](span, fmt.Errorf("resource: update %s: %w", s.def.Singular, err))
	}
	span.SetAttribute("db.rows_affected", affected)
	if affected == 0 {
		span.AddEvent(s.def.Label+" not found", nil)
		return Fail[Record[K]](KindNotFound, s.notFound(key))
	}

	echo := make(map[string]any, len(values))
	for name, v := range values {
		if !s.secret[name] {
			echo[name] = v
		}
	}
	span.AddEvent(s.def.Label+" updated", nil)
	return Ok(Record[K]{Key: key, Fields: echo})
}

// Delete removes key and returns the affected-row count. Zero affected rows
// is KindNotFound, so deleting twice yields Ok then NotFound.
func (s *Service[K]) Delete(ctx context.Context, key K) (res Result[int64]) {
	params := storage.Params{"id": bindKey(key)}

	start := time.Now()
	ctx, span := s.recorder.Start(ctx, "delete"+s.def.Label)
	defer func() { s.finish(ctx, span, OpDelete, start, res.outcome(), recover()) }()
	s.annotate(span, "DELETE", s.stmts.delete, params)
	span.SetAttribute(s.keyAttr(), bindKey(key))

	affected, err := s.store.Exec(ctx, s.stmts.delete, params)
	if err != nil {
		return storeFailure[int64](span, fmt.Errorf("resource: delete %s: %w", s.def.Singular, err))
	}
	span.SetAttribute("db.rows_affected", affected)
	if affected == 0 {
		span.AddEvent(s.def.Label+" not found", nil)
		return Fail[int64](KindNotFound, s.notFound(key))
	}
	span.AddEvent(s.def.Label+" deleted", nil)
	return Ok(affected)
}

// bind applies column transforms to validated values.
func (s *Service[K]) bind(values map[string]any) (storage.Params, error) {
	params := make(storage.Params, len(values)+1)
	for name, v := range values {
		c, _ := s.def.column(name)
		if c.Transform != nil && v != nil {
			t, err := c.Transform(v)
			if err != nil {
				return nil, fmt.Errorf("resource: transform %s.%s: %w", s.def.Singular, name, err)
			}
			v = t
		}
		params[name] = v
	}
	return params, nil
}

// annotate sets the attributes shared by every operation. Secret params are
// left out of db.parameters.
func (s *Service[K]) annotate(span telemetry.Span, verb, statement string, params storage.Params) {
	span.SetAttribute("db.system", s.store.System())
	span.SetAttribute("db.operation", verb)
	span.SetAttribute("db.table", s.def.table())
	span.SetAttribute("db.statement", statement)
	if len(params) == 0 {
		return
	}
	public := make(map[string]any, len(params))
	for k, v := range params {
		if !s.secret[k] {
			public[k] = v
		}
	}
	if encoded, err := json.Marshal(public); err == nil {
		span.SetAttribute("db.parameters", string(encoded))
	}
}

// finish ends the span and records the operation metrics. A recovered panic
// is recorded as a store failure and then re-raised.
func (s *Service[K]) finish(ctx context.Context, span telemetry.Span, op string, start time.Time, outcome string, recovered any) {
	if recovered != nil {
		span.SetAttribute("error.type", "panic")
		span.RecordError(fmt.Errorf("resource: %s %s panicked: %v", op, s.def.Singular, recovered))
		outcome = KindStoreFailure.String()
	}
	span.End()
	attrs := metric.WithAttributes(
		attribute.String("resource", s.def.Name),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	s.operations.Add(ctx, 1, attrs)
	s.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
	if recovered != nil {
		panic(recovered)
	}
}

func (s *Service[K]) keyAttr() string {
	return "db." + s.def.Singular + "_id"
}

func (s *Service[K]) notFound(key K) error {
	return fmt.Errorf("resource: %s %v: %w", s.def.Singular, key, storage.ErrNotFound)
}

// storeFailure records err on the span and wraps it as KindStoreFailure.
func storeFailure[T any](span telemetry.Span, err error) Result[T] {
	span.SetAttribute("error.type", storage.Classify(err))
	span.RecordError(err)
	return Fail[T](KindStoreFailure, err)
}

func failValidation[T any](err error) Result[T] {
	if errors.Is(err, ErrValidation) {
		return Fail[T](KindValidation, err)
	}
	return Fail[T](KindStoreFailure, err)
}

// bindKey converts keys with a text form (uuid.UUID) to strings so both
// drivers bind them the same way.
func bindKey(key any) any {
	if s, ok := key.(fmt.Stringer); ok {
		return s.String()
	}
	return key
}
