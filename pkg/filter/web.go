// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/pipeline"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

// ErrAlreadySubscribed is signalled when a filtered pipeline is subscribed
// a second time. Nothing is bound for the repeat subscription.
var ErrAlreadySubscribed = errors.New("filter: pipeline already subscribed")

// ExchangeHandler builds the pipeline serving an exchange.
type ExchangeHandler func(ctx context.Context, ex *request.Exchange) pipeline.Mono[struct{}]

// WebFilter decorates the pipeline of the rest of an async chain.
type WebFilter interface {
	Type() string
	Filter(ctx context.Context, ex *request.Exchange, next ExchangeHandler) pipeline.Mono[struct{}]
}

// HookOwner is a filter that needs scheduler hooks while it is in service.
type HookOwner interface {
	Setup(reg *relay.Registry) error
	Shutdown(reg *relay.Registry)
}

// WebChain is an ordered list of async filters. The first filter added is
// the outermost.
type WebChain struct {
	filters []WebFilter
}

func NewWebChain(filters ...WebFilter) *WebChain {
	return &WebChain{filters: filters}
}

func (c *WebChain) AddFilter(f WebFilter) {
	c.filters = append(c.filters, f)
}

// Setup installs the scheduler hooks of every filter that owns some.
func (c *WebChain) Setup(reg *relay.Registry) error {
	for _, f := range c.filters {
		if o, ok := f.(HookOwner); ok {
			if err := o.Setup(reg); err != nil {
				return fmt.Errorf("filter %s: %w", f.Type(), err)
			}
		}
	}
	return nil
}

// Shutdown removes the hooks installed by Setup, in reverse order.
func (c *WebChain) Shutdown(reg *relay.Registry) {
	for i := len(c.filters) - 1; i >= 0; i-- {
		if o, ok := c.filters[i].(HookOwner); ok {
			o.Shutdown(reg)
		}
	}
}

// Then returns h wrapped by every filter of the chain.
func (c *WebChain) Then(h ExchangeHandler) ExchangeHandler {
	next := h
	for i := len(c.filters) - 1; i >= 0; i-- {
		next = wrapWeb(c.filters[i], next)
	}
	return next
}

// Serve builds the filtered pipeline for ex and subscribes to it on the
// calling goroutine, which becomes the initiating scope. A scope is
// attached to ctx if it carries none.
func (c *WebChain) Serve(ctx context.Context, ex *request.Exchange, h ExchangeHandler) *pipeline.Subscription[struct{}] {
	ctx, _ = scope.Ensure(ctx)
	return c.Then(h)(ctx, ex).Subscribe(ctx)
}

func wrapWeb(f WebFilter, next ExchangeHandler) ExchangeHandler {
	return func(ctx context.Context, ex *request.Exchange) pipeline.Mono[struct{}] {
		m := f.Filter(ctx, ex, next)
		return pipeline.Defer(func(context.Context) pipeline.Mono[struct{}] {
			t := time.Now()
			return m.DoFinally(func(ctx context.Context, sig pipeline.Signal) {
				FilterRunDuration.WithLabelValues(stackAsync).Observe(time.Since(t).Seconds())
				FilterRunsTotal.WithLabelValues(stackAsync, f.Type()).Inc()
				FilterSignalsTotal.WithLabelValues(f.Type(), sig.String()).Inc()
				if sig == pipeline.SignalError {
					FilterErrorsTotal.WithLabelValues(stackAsync, f.Type()).Inc()
				}
			})
		})
	}
}

// binder describes one value an async filter binds into the initiating
// scope. bind returns the matching release, or nil when it bound nothing.
// A release only undoes the binding it was returned for.
type binder struct {
	filter string
	bind   func(sc *scope.Scope) (release func(sc *scope.Scope) bool)
}

// around binds on the first subscription of m and releases on its terminal
// signal, on the delivering scope and on the initiating scope.
func (b binder) around(m pipeline.Mono[struct{}]) pipeline.Mono[struct{}] {
	var subscribed atomic.Bool
	return pipeline.Defer(func(ctx context.Context) pipeline.Mono[struct{}] {
		if !subscribed.CompareAndSwap(false, true) {
			logger.Warn().Ctx(ctx).Str("filter", b.filter).Msg("filter: repeat subscription rejected")
			return pipeline.Fail[struct{}](fmt.Errorf("%s: %w", b.filter, ErrAlreadySubscribed))
		}

		var (
			initiating *scope.Scope
			release    func(sc *scope.Scope) bool
		)
		return m.
			DoOnSubscribe(func(ctx context.Context) {
				initiating = scope.FromContext(ctx)
				release = b.bind(initiating)
				if release != nil {
					ScopeBindingsActive.WithLabelValues(b.filter).Inc()
					logger.Trace().Ctx(ctx).Str("filter", b.filter).Msg("filter: bound to initiating scope")
				}
			}).
			DoFinally(func(ctx context.Context, sig pipeline.Signal) {
				if release == nil {
					return
				}
				current := scope.FromContext(ctx)
				release(current)
				if current != initiating {
					release(initiating)
				}
				ScopeBindingsActive.WithLabelValues(b.filter).Dec()
				logger.Trace().Ctx(ctx).Str("filter", b.filter).Stringer("signal", sig).
					Msg("filter: unbound")
			})
	})
}
