// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package filter binds request-scoped values around request processing.
//
// The blocking stack serves a request on one goroutine from start to end, so
// its filters bind on entry and release in a defer. The asynchronous stack
// builds a pipeline that may finish on another goroutine; its filters bind
// when the pipeline is subscribed and release on the pipeline's terminal
// signal, and they install the scheduler hooks that carry the bindings over
// each hop.
package filter

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

// Handler serves a request on the blocking stack.
type Handler func(ctx context.Context, req *request.NativeRequest) error

// Filter runs around the rest of a blocking chain.
type Filter interface {
	Type() string
	Do(ctx context.Context, req *request.NativeRequest, next Handler) error
}

// Chain is an ordered list of blocking filters. The first filter added is
// the outermost.
type Chain struct {
	filters []Filter
}

func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

func (c *Chain) AddFilter(f Filter) {
	c.filters = append(c.filters, f)
}

// Then returns h wrapped by every filter of the chain.
func (c *Chain) Then(h Handler) Handler {
	next := h
	for i := len(c.filters) - 1; i >= 0; i-- {
		next = c.wrap(c.filters[i], next)
	}
	return next
}

// Serve runs h behind the chain on the calling goroutine. A scope is
// attached to ctx if it carries none.
func (c *Chain) Serve(ctx context.Context, req *request.NativeRequest, h Handler) error {
	ctx, _ = scope.Ensure(ctx)
	return c.Then(h)(ctx, req)
}

func (c *Chain) wrap(f Filter, next Handler) Handler {
	return func(ctx context.Context, req *request.NativeRequest) error {
		t := time.Now()
		err := f.Do(ctx, req, next)
		FilterRunDuration.WithLabelValues(stackBlocking).Observe(time.Since(t).Seconds())
		FilterRunsTotal.WithLabelValues(stackBlocking, f.Type()).Inc()

		if ctx.Err() != nil {
			FilterContextCancelled.WithLabelValues(f.Type(), ctx.Err().Error()).Inc()
		}
		if err != nil {
			FilterErrorsTotal.WithLabelValues(stackBlocking, f.Type()).Inc()
		}
		return err
	}
}
