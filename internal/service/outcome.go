package service

// Outcome carries either a value or a degradation marker with its cause.
// Degraded calls are logged where they happen; callers branch on Degraded
// instead of on an error.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Cause    error
}

// Ok wraps a successful value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degrade marks a failed call. Value keeps the zero value or a partial default.
func Degrade[T any](fallback T, cause error) Outcome[T] {
	return Outcome[T]{Value: fallback, Degraded: true, Cause: cause}
}

// Available reports whether the call succeeded.
func (o Outcome[T]) Available() bool {
	return !o.Degraded
}
