// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline is a small lazy, single-value asynchronous pipeline.
//
// Nothing runs until Subscribe. A subscription ends with exactly one
// terminal signal (complete, error or cancel) and may hop between
// goroutines on the way through SubscribeOn. Finalizers registered with
// DoFinally run once, on the goroutine that delivers the terminal signal,
// before Done is closed.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
)

var (
	ErrCancelled     = errors.New("pipeline: cancelled")
	ErrOperatorPanic = errors.New("pipeline: operator panicked")
	ErrNoExecutor    = errors.New("pipeline: SubscribeOn needs an executor")
)

// Executor moves a task onto another goroutine. *scheduler.Scheduler
// satisfies it.
type Executor interface {
	Schedule(ctx context.Context, task relay.Task) error
}

type emitFunc[T any] func(ctx context.Context, v T, err error)

// Mono is a lazy computation producing one value or an error.
type Mono[T any] struct {
	run func(ctx context.Context, st *state, emit emitFunc[T])
}

// Just emits v.
func Just[T any](v T) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, _ *state, emit emitFunc[T]) {
		emit(ctx, v, nil)
	}}
}

// Fail emits err.
func Fail[T any](err error) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, _ *state, emit emitFunc[T]) {
		var zero T
		emit(ctx, zero, err)
	}}
}

// Empty completes without a meaningful value.
func Empty() Mono[struct{}] {
	return Just(struct{}{})
}

// FromCallable emits the result of fn, called with the context of the
// goroutine the subscription is running on.
func FromCallable[T any](fn func(ctx context.Context) (T, error)) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, st *state, emit emitFunc[T]) {
		if st.isDone() {
			return
		}
		var v T
		err := guard(func() error {
			var err error
			v, err = fn(ctx)
			return err
		})
		emit(ctx, v, err)
	}}
}

// Defer builds the pipeline at subscription time.
func Defer[T any](fn func(ctx context.Context) Mono[T]) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, st *state, emit emitFunc[T]) {
		var m Mono[T]
		if err := guard(func() error { m = fn(ctx); return nil }); err != nil {
			var zero T
			emit(ctx, zero, err)
			return
		}
		m.run(ctx, st, emit)
	}}
}

// Map transforms the value. Errors skip fn.
func Map[T, R any](m Mono[T], fn func(ctx context.Context, v T) (R, error)) Mono[R] {
	return Mono[R]{run: func(ctx context.Context, st *state, emit emitFunc[R]) {
		m.run(ctx, st, func(ctx context.Context, v T, err error) {
			var r R
			if err == nil {
				err = guard(func() error {
					var err error
					r, err = fn(ctx, v)
					return err
				})
			}
			emit(ctx, r, err)
		})
	}}
}

// FlatMap continues with the pipeline returned by fn.
func FlatMap[T, R any](m Mono[T], fn func(ctx context.Context, v T) Mono[R]) Mono[R] {
	return Mono[R]{run: func(ctx context.Context, st *state, emit emitFunc[R]) {
		m.run(ctx, st, func(ctx context.Context, v T, err error) {
			if err != nil {
				var zero R
				emit(ctx, zero, err)
				return
			}
			var next Mono[R]
			if err := guard(func() error { next = fn(ctx, v); return nil }); err != nil {
				var zero R
				emit(ctx, zero, err)
				return
			}
			next.run(ctx, st, emit)
		})
	}}
}

// Then discards the value, keeping the completion or error.
func Then[T any](m Mono[T]) Mono[struct{}] {
	return Map(m, func(context.Context, T) (struct{}, error) { return struct{}{}, nil })
}

// SubscribeOn runs the upstream on ex. The hop is decorated by ex's relay
// hooks with the context of the goroutine subscribing.
func (m Mono[T]) SubscribeOn(ex Executor) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, st *state, emit emitFunc[T]) {
		if ex == nil {
			var zero T
			emit(ctx, zero, ErrNoExecutor)
			return
		}
		err := ex.Schedule(ctx, func(wctx context.Context) error {
			if st.isDone() {
				return nil
			}
			if err := guard(func() error { m.run(wctx, st, emit); return nil }); err != nil {
				var zero T
				emit(wctx, zero, err)
			}
			return nil
		})
		if err != nil {
			var zero T
			emit(ctx, zero, err)
		}
	}}
}

// DoOnSubscribe calls fn on the subscribing goroutine before the upstream
// starts.
func (m Mono[T]) DoOnSubscribe(fn func(ctx context.Context)) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, st *state, emit emitFunc[T]) {
		if err := guard(func() error { fn(ctx); return nil }); err != nil {
			var zero T
			emit(ctx, zero, err)
			return
		}
		m.run(ctx, st, emit)
	}}
}

// DoOnSuccess observes the value without changing it.
func (m Mono[T]) DoOnSuccess(fn func(ctx context.Context, v T)) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, st *state, emit emitFunc[T]) {
		m.run(ctx, st, func(ctx context.Context, v T, err error) {
			if err == nil {
				err = guard(func() error { fn(ctx, v); return nil })
			}
			emit(ctx, v, err)
		})
	}}
}

// DoFinally registers fn to run once after the terminal signal, with the
// context of the goroutine delivering it. Finalizers run in the order their
// operators were applied to the subscriber, outermost first.
func (m Mono[T]) DoFinally(fn func(ctx context.Context, sig Signal)) Mono[T] {
	return Mono[T]{run: func(ctx context.Context, st *state, emit emitFunc[T]) {
		st.addFinalizer(ctx, fn)
		m.run(ctx, st, emit)
	}}
}

// Subscribe starts the pipeline on the calling goroutine.
func (m Mono[T]) Subscribe(ctx context.Context) *Subscription[T] {
	sub := &Subscription[T]{st: newState()}
	if err := guard(func() error { m.run(ctx, sub.st, sub.complete); return nil }); err != nil {
		var zero T
		sub.complete(ctx, zero, err)
	}
	return sub
}

// Block subscribes and waits for the result.
func (m Mono[T]) Block(ctx context.Context) (T, error) {
	return m.Subscribe(ctx).Await(ctx)
}

// guard runs fn, reporting a panic as an ErrOperatorPanic error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperatorPanic, r)
		}
	}()
	return fn()
}
