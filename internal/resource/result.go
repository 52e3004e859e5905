package resource

import "fmt"

// Kind classifies a failed operation.
type Kind int

const (
	// KindNotFound means the key did not match a row. It is a normal outcome
	// and is never recorded on the span as an exception.
	KindNotFound Kind = iota + 1
	// KindValidation means the caller's input was rejected before any span
	// was started.
	KindValidation
	// KindStoreFailure means the store returned an error. The error has been
	// recorded on the operation's span.
	KindStoreFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindStoreFailure:
		return "store_failure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of one resource operation: either a value or a
// failure kind with its cause, never both.
type Result[T any] struct {
	value T
	kind  Kind
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps a failure. A nil err is replaced with one describing kind so
// that Err never returns nil for a failed result.
func Fail[T any](kind Kind, err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("resource: %s", kind)
	}
	return Result[T]{kind: kind, err: err}
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool { return r.kind == 0 }

// Value returns the payload. It is the zero value for failed results.
func (r Result[T]) Value() T { return r.value }

// Kind returns the failure kind, or 0 for successful results.
func (r Result[T]) Kind() Kind { return r.kind }

// Err returns the failure cause, or nil for successful results.
func (r Result[T]) Err() error { return r.err }

// outcome labels the result for metrics.
func (r Result[T]) outcome() string {
	if r.OK() {
		return "ok"
	}
	return r.kind.String()
}
