// Package outcome provides Outcome, a value that is either a success
// carrying a T or a failure carrying a *failure.Failure.
//
// Type-preserving combinators are methods. Combinators that change the
// success type are package functions because Go methods cannot declare
// their own type parameters.
package outcome

import (
	"fmt"

	"github.com/goliatone/go-repository-tiered/failure"
)

// Outcome is either Ok(value) or Err(failure). The zero value is not a
// valid Outcome; build one with Ok, Err, FromResult or Try.
type Outcome[T any] struct {
	value   T
	failure *failure.Failure
}

// Unit is the success payload of operations that return nothing.
type Unit struct{}

// Pair holds two values combined by Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Err builds a failed Outcome. A nil failure is replaced by an
// Unexpected failure so that a failed Outcome always carries one.
func Err[T any](f *failure.Failure) Outcome[T] {
	if f == nil {
		f = failure.Unexpected("outcome: nil failure")
	}
	return Outcome[T]{failure: f}
}

// Done is the successful Unit outcome.
func Done() Outcome[Unit] {
	return Ok(Unit{})
}

// FromResult converts a Go (value, error) pair. A non-nil error is
// classified with failure.MapError.
func FromResult[T any](value T, err error) Outcome[T] {
	if err != nil {
		return Err[T](failure.MapError(err, nil))
	}
	return Ok(value)
}

// Try runs fn and converts its result. A panic inside fn is recovered
// and reported as an Unexpected failure.
func Try[T any](fn func() (T, error)) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Err[T](failure.Unexpected(fmt.Sprintf("panic: %v", r),
				failure.WithCode("PANIC"),
			))
		}
	}()
	return FromResult(fn())
}

func (o Outcome[T]) IsSuccess() bool {
	return o.failure == nil
}

func (o Outcome[T]) IsFailure() bool {
	return o.failure != nil
}

// Failure returns the failure, or nil for a success.
func (o Outcome[T]) Failure() *failure.Failure {
	return o.failure
}

// Get returns the value and whether the outcome succeeded.
func (o Outcome[T]) Get() (T, bool) {
	return o.value, o.failure == nil
}

// Unwrap returns the value, or the zero value and the failure as an error.
func (o Outcome[T]) Unwrap() (T, error) {
	if o.failure != nil {
		var zero T
		return zero, o.failure
	}
	return o.value, nil
}

// ValueOr returns the value on success and def otherwise.
func (o Outcome[T]) ValueOr(def T) T {
	if o.failure != nil {
		return def
	}
	return o.value
}

// Recover turns a failure into a success using f. Successes pass through.
func (o Outcome[T]) Recover(f func(*failure.Failure) T) Outcome[T] {
	if o.failure == nil {
		return o
	}
	return Ok(f(o.failure))
}

// OrElse replaces a failure with the outcome returned by f.
func (o Outcome[T]) OrElse(f func(*failure.Failure) Outcome[T]) Outcome[T] {
	if o.failure == nil {
		return o
	}
	return f(o.failure)
}

// Tap runs f on the success value and returns o unchanged.
func (o Outcome[T]) Tap(f func(T)) Outcome[T] {
	if o.failure == nil {
		f(o.value)
	}
	return o
}

// TapFailure runs f on the failure and returns o unchanged.
func (o Outcome[T]) TapFailure(f func(*failure.Failure)) Outcome[T] {
	if o.failure != nil {
		f(o.failure)
	}
	return o
}

func (o Outcome[T]) String() string {
	if o.failure != nil {
		return "Err(" + o.failure.Error() + ")"
	}
	return fmt.Sprintf("Ok(%v)", o.value)
}

// Fold eliminates o by running exactly one of the handlers.
func Fold[T, R any](o Outcome[T], onFailure func(*failure.Failure) R, onSuccess func(T) R) R {
	if o.failure != nil {
		return onFailure(o.failure)
	}
	return onSuccess(o.value)
}

// Map applies f to the success value. A failure is passed through with
// the same *failure.Failure.
func Map[T, U any](o Outcome[T], f func(T) U) Outcome[U] {
	if o.failure != nil {
		return Outcome[U]{failure: o.failure}
	}
	return Ok(f(o.value))
}

func FlatMap[T, U any](o Outcome[T], f func(T) Outcome[U]) Outcome[U] {
	if o.failure != nil {
		return Outcome[U]{failure: o.failure}
	}
	return f(o.value)
}

// Zip combines two outcomes. The first failure, left to right, wins.
func Zip[A, B any](a Outcome[A], b Outcome[B]) Outcome[Pair[A, B]] {
	if a.failure != nil {
		return Outcome[Pair[A, B]]{failure: a.failure}
	}
	if b.failure != nil {
		return Outcome[Pair[A, B]]{failure: b.failure}
	}
	return Ok(Pair[A, B]{First: a.value, Second: b.value})
}

// Sequence collects all success values in order, or returns the first
// failure in list order.
func Sequence[T any](outcomes []Outcome[T]) Outcome[[]T] {
	values := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if o.failure != nil {
			return Outcome[[]T]{failure: o.failure}
		}
		values = append(values, o.value)
	}
	return Ok(values)
}

// Traverse maps every item with f and sequences the results. f runs for
// every item, so side effects happen even after a failure; the first
// failure in item order is returned.
func Traverse[T, U any](items []T, f func(T) Outcome[U]) Outcome[[]U] {
	mapped := make([]Outcome[U], len(items))
	for i, item := range items {
		mapped[i] = f(item)
	}
	return Sequence(mapped)
}
