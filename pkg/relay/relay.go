// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay carries scope bindings across asynchronous hops.
//
// A Hook runs on the submitting goroutine when a task is handed to a
// scheduler and returns the task that will actually run, possibly on another
// goroutine. Propagate builds the standard hook: it snapshots a set of slots
// at submission and reinstates them around the task on whatever goroutine
// executes it.
package relay

import (
	"context"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

// Task is a unit of work. ctx carries the scope of the executing goroutine.
type Task func(ctx context.Context) error

// Hook decorates a task. It is called with the submitter's context.
type Hook func(ctx context.Context, task Task) Task

// Propagate returns a hook relaying the given slots.
//
// The snapshot is taken when the hook runs, on the submitting goroutine.
// When the decorated task runs, the executing scope holds exactly the
// snapshot for those slots (absent stays absent, even over stale values),
// and once the task returns or panics the executing scope gets back what it
// held before. Errors and panics from the task pass through unchanged.
func Propagate(keys ...scope.Key) Hook {
	return func(ctx context.Context, task Task) Task {
		snap := scope.Capture(scope.FromContext(ctx), keys...)
		return func(ctx context.Context) error {
			restore := snap.Install(scope.FromContext(ctx))
			logger.Trace().Ctx(ctx).Int("slots", len(keys)).Msg("relay: snapshot installed")
			defer func() {
				restore()
				logger.Trace().Int("slots", len(keys)).Msg("relay: snapshot removed")
			}()
			return task(ctx)
		}
	}
}

// Chain composes hooks in order: Chain(h1, h2) decorates with h1 first, so
// h1 captures first and h2's wrapper runs outermost.
func Chain(hooks ...Hook) Hook {
	return func(ctx context.Context, task Task) Task {
		for _, h := range hooks {
			task = h(ctx, task)
		}
		return task
	}
}
