// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/pipeline"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

const (
	FilterTypeBinding         = "BindingFilter"
	FilterTypeExchangeBinding = "ExchangeBindingFilter"

	// HookRequestHolder relays the request handle across scheduler hops.
	HookRequestHolder = "request-holder"
)

// BindingFilter makes the request reachable through request.Current.
type BindingFilter struct{}

func (f *BindingFilter) Type() string {
	return FilterTypeBinding
}

func (f *BindingFilter) Do(ctx context.Context, req *request.NativeRequest, next Handler) error {
	sc := scope.FromContext(ctx)
	request.Handle.Set(sc, req)
	logger.Trace().Ctx(ctx).Msg("filter: request bound to the current scope")
	defer func() {
		request.Handle.Clear(sc)
		logger.Trace().Ctx(ctx).Msg("filter: request unbound from the current scope")
	}()

	return next(ctx, req)
}

// ExchangeBindingFilter makes the exchange's request reachable through
// request.Current from the subscribing scope until the pipeline ends.
type ExchangeBindingFilter struct{}

func (f *ExchangeBindingFilter) Type() string {
	return FilterTypeExchangeBinding
}

func (f *ExchangeBindingFilter) Filter(ctx context.Context, ex *request.Exchange, next ExchangeHandler) pipeline.Mono[struct{}] {
	b := binder{
		filter: FilterTypeExchangeBinding,
		bind: func(sc *scope.Scope) func(*scope.Scope) bool {
			request.Handle.Set(sc, ex.Request())
			m := request.Handle.Mark(sc)
			if !m.Bound() {
				return nil
			}
			return func(sc *scope.Scope) bool {
				return request.Handle.ClearIf(sc, m)
			}
		},
	}
	return b.around(next(ctx, ex))
}

// Setup installs the hook relaying the request handle.
func (f *ExchangeBindingFilter) Setup(reg *relay.Registry) error {
	return reg.Install(HookRequestHolder, relay.Propagate(request.Handle))
}

func (f *ExchangeBindingFilter) Shutdown(reg *relay.Registry) {
	reg.Remove(HookRequestHolder)
}
