package domain

// Result is an Ok/Err sum type for operations whose failures are expected
// and must be returned as values rather than panics.
type Result[T any] struct {
	value T
	err   *DomainError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a classified failure. A nil error is treated as an unknown failure.
func Err[T any](e *DomainError) Result[T] {
	if e == nil {
		e = NewDomainError(CodeUnknown, "unknown error", nil)
	}
	return Result[T]{err: e}
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Value returns the wrapped value; the zero value when the result is an error.
func (r Result[T]) Value() T {
	return r.value
}

// Error returns the wrapped failure, or nil.
func (r Result[T]) Error() *DomainError {
	return r.err
}

// Get unpacks the result into Go's (value, error) convention.
func (r Result[T]) Get() (T, error) {
	if r.err != nil {
		return r.value, r.err
	}
	return r.value, nil
}
