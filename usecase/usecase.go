// Package usecase composes single-purpose operations returning outcomes.
//
// Steps always run one after the other. A chain stops at the first failed
// step, or when its context is done, and never calls the steps after it.
package usecase

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-repository-tiered/failure"
	"github.com/goliatone/go-repository-tiered/outcome"
)

// UseCase is a single operation from In to Out.
type UseCase[In, Out any] interface {
	Execute(ctx context.Context, in In) outcome.Outcome[Out]
}

// Func adapts a function to UseCase.
type Func[In, Out any] func(ctx context.Context, in In) outcome.Outcome[Out]

func (f Func[In, Out]) Execute(ctx context.Context, in In) outcome.Outcome[Out] {
	return f(ctx, in)
}

// Then runs first and feeds its value to next.
func Then[A, B, C any](first UseCase[A, B], next UseCase[B, C]) UseCase[A, C] {
	return Func[A, C](func(ctx context.Context, in A) outcome.Outcome[C] {
		if f := stopped(ctx, 0); f != nil {
			return outcome.Err[C](f)
		}
		mid := first.Execute(ctx, in)
		if mid.IsFailure() {
			return outcome.Err[C](mid.Failure())
		}
		if f := stopped(ctx, 1); f != nil {
			return outcome.Err[C](f)
		}
		value, _ := mid.Get()
		return next.Execute(ctx, value)
	})
}

// Chain runs steps in order, passing each value to the next step.
// An empty chain returns its input.
func Chain[T any](steps ...UseCase[T, T]) UseCase[T, T] {
	return Func[T, T](func(ctx context.Context, in T) outcome.Outcome[T] {
		current := in
		for i, step := range steps {
			if f := stopped(ctx, i); f != nil {
				return outcome.Err[T](f)
			}
			res := step.Execute(ctx, current)
			if res.IsFailure() {
				return res
			}
			current, _ = res.Get()
		}
		return outcome.Ok(current)
	})
}

// Sequence runs unit steps in order and returns the first failure.
func Sequence(ctx context.Context, steps ...UseCase[outcome.Unit, outcome.Unit]) outcome.Outcome[outcome.Unit] {
	return Chain(steps...).Execute(ctx, outcome.Unit{})
}

// Logged wraps uc so failures are logged under name. Successful runs log at
// debug level.
func Logged[In, Out any](name string, logger *slog.Logger, uc UseCase[In, Out]) UseCase[In, Out] {
	if logger == nil {
		return uc
	}
	return Func[In, Out](func(ctx context.Context, in In) outcome.Outcome[Out] {
		res := uc.Execute(ctx, in)
		if f := res.Failure(); f != nil {
			logger.WarnContext(ctx, "use case failed", append([]any{"use_case", name}, f.LogAttrs()...)...)
			return res
		}
		logger.DebugContext(ctx, "use case completed", "use_case", name)
		return res
	})
}

func stopped(ctx context.Context, step int) *failure.Failure {
	if err := ctx.Err(); err != nil {
		return failure.MapError(err, map[string]any{"step": step})
	}
	return nil
}
