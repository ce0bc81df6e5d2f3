// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"sync"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"

	"github.com/google/uuid"
)

// Signal is the terminal signal of a subscription.
type Signal int

const (
	SignalComplete Signal = iota
	SignalError
	SignalCancel
)

func (s Signal) String() string {
	switch s {
	case SignalComplete:
		return "complete"
	case SignalError:
		return "error"
	case SignalCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

type finalizer func(ctx context.Context, sig Signal)

// state is shared by every operator of one subscription.
type state struct {
	id   string
	done chan struct{}

	mu         sync.Mutex
	terminated bool
	signal     Signal
	finalizers []finalizer
}

func newState() *state {
	return &state{
		id:   uuid.New().String(),
		done: make(chan struct{}),
	}
}

func (st *state) isDone() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.terminated
}

// addFinalizer registers fn. If the subscription already ended, fn runs
// right away on the caller.
func (st *state) addFinalizer(ctx context.Context, fn finalizer) {
	st.mu.Lock()
	if st.terminated {
		sig := st.signal
		st.mu.Unlock()
		runFinalizer(ctx, st.id, fn, sig)
		return
	}
	st.finalizers = append(st.finalizers, fn)
	st.mu.Unlock()
}

// terminate records sig once and runs the finalizers with ctx. record is
// called under the lock to publish the result. It reports whether this call
// was the terminal one.
func (st *state) terminate(ctx context.Context, sig Signal, record func()) bool {
	st.mu.Lock()
	if st.terminated {
		st.mu.Unlock()
		return false
	}
	st.terminated = true
	st.signal = sig
	record()
	finals := st.finalizers
	st.finalizers = nil
	st.mu.Unlock()

	defer close(st.done)
	for _, fn := range finals {
		runFinalizer(ctx, st.id, fn, sig)
	}
	return true
}

func runFinalizer(ctx context.Context, id string, fn finalizer, sig Signal) {
	if err := guard(func() error { fn(ctx, sig); return nil }); err != nil {
		logger.Error().Ctx(ctx).Err(err).Str("subscription", id).Stringer("signal", sig).
			Msg("pipeline: finalizer failed")
	}
}

// Subscription is a running pipeline.
type Subscription[T any] struct {
	st    *state
	value T
	err   error
}

func (s *Subscription[T]) complete(ctx context.Context, v T, err error) {
	sig := SignalComplete
	if err != nil {
		sig = SignalError
	}
	s.st.terminate(ctx, sig, func() {
		s.value, s.err = v, err
	})
}

// ID identifies the subscription in logs.
func (s *Subscription[T]) ID() string {
	return s.st.id
}

// Done is closed once the terminal signal was delivered and every
// finalizer has run.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.st.done
}

// Cancel ends the subscription with SignalCancel. Finalizers run on the
// calling goroutine with ctx. Cancelling a finished subscription does
// nothing.
func (s *Subscription[T]) Cancel(ctx context.Context) {
	s.st.terminate(ctx, SignalCancel, func() {
		s.err = ErrCancelled
	})
}

// Await waits for the result. A cancelled subscription returns
// ErrCancelled; an expired ctx returns ctx.Err() without cancelling.
func (s *Subscription[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-s.st.done:
		return s.value, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Signal returns the terminal signal and whether there was one yet.
func (s *Subscription[T]) Signal() (Signal, bool) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.signal, s.st.terminated
}
