// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/mdc"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/pipeline"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

const (
	FilterTypeRID         = "RIDFilter"
	FilterTypeReactiveRID = "ReactiveRIDFilter"

	// HookMDC relays the diagnostic fields across scheduler hops.
	HookMDC = "mdc"
)

// RIDFilter puts the rid request parameter into the diagnostic context for
// the duration of the request.
type RIDFilter struct{}

func (f *RIDFilter) Type() string {
	return FilterTypeRID
}

func (f *RIDFilter) Do(ctx context.Context, req *request.NativeRequest, next Handler) error {
	rid, ok := req.Param(mdc.RIDKey)
	if !ok {
		return next(ctx, req)
	}

	sc := scope.FromContext(ctx)
	mdc.Put(sc, mdc.RIDKey, rid)
	logger.Trace().Ctx(ctx).Msg("filter: rid bound to the current scope")
	defer func() {
		mdc.RemoveValue(sc, mdc.RIDKey, rid)
		logger.Trace().Msg("filter: rid removed from the current scope")
	}()

	return next(ctx, req)
}

// ReactiveRIDFilter puts the rid query parameter into the diagnostic
// context of the scope subscribing to the request pipeline, until the
// pipeline ends.
type ReactiveRIDFilter struct{}

func (f *ReactiveRIDFilter) Type() string {
	return FilterTypeReactiveRID
}

func (f *ReactiveRIDFilter) Filter(ctx context.Context, ex *request.Exchange, next ExchangeHandler) pipeline.Mono[struct{}] {
	rid, ok := ex.QueryParam(mdc.RIDKey)
	b := binder{
		filter: FilterTypeReactiveRID,
		bind: func(sc *scope.Scope) func(*scope.Scope) bool {
			if !ok || sc == nil {
				return nil
			}
			mdc.Put(sc, mdc.RIDKey, rid)
			return func(sc *scope.Scope) bool {
				return mdc.RemoveValue(sc, mdc.RIDKey, rid)
			}
		},
	}
	return b.around(next(ctx, ex))
}

// Setup installs the hook relaying the diagnostic context.
func (f *ReactiveRIDFilter) Setup(reg *relay.Registry) error {
	return reg.Install(HookMDC, relay.Propagate(mdc.Slot))
}

func (f *ReactiveRIDFilter) Shutdown(reg *relay.Registry) {
	reg.Remove(HookMDC)
}
