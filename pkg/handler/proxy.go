// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/pipeline"
)

var ErrNoUpstream = errors.New("handler: proxy has no upstream")

// Upstream is a blocking call to the proxied service.
type Upstream interface {
	Call(ctx context.Context, template string) (any, error)
}

// UpstreamFunc adapts a function to Upstream.
type UpstreamFunc func(ctx context.Context, template string) (any, error)

func (f UpstreamFunc) Call(ctx context.Context, template string) (any, error) {
	return f(ctx, template)
}

// Proxy forwards queries to an upstream.
type Proxy struct {
	upstream Upstream
	executor pipeline.Executor
}

// NewProxy returns a proxy calling up. ex runs the blocking upstream call
// off the request goroutine in Async; it may be nil when only Sync is used.
func NewProxy(up Upstream, ex pipeline.Executor) *Proxy {
	return &Proxy{upstream: up, executor: ex}
}

// Sync calls the upstream on the calling goroutine.
func (p *Proxy) Sync(ctx context.Context, template string) (any, error) {
	if p.upstream == nil {
		return nil, ErrNoUpstream
	}
	logger.Ctx(ctx).Info().Str("template", template).Msg("proxying the query")
	resp, err := p.upstream.Call(ctx, template)
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Interface("response", resp).Msg("proxy target responded")
	return resp, nil
}

// Async calls the upstream on the proxy's executor. The subscription is
// logged on the subscribing goroutine, the response on the worker.
func (p *Proxy) Async(template string) pipeline.Mono[any] {
	if p.upstream == nil {
		return pipeline.Fail[any](ErrNoUpstream)
	}
	return pipeline.FromCallable(func(ctx context.Context) (any, error) {
		return p.upstream.Call(ctx, template)
	}).
		SubscribeOn(p.executor).
		DoOnSubscribe(func(ctx context.Context) {
			logger.Ctx(ctx).Info().Str("template", template).Msg("async mode: proxying the query")
		}).
		DoOnSuccess(func(ctx context.Context, resp any) {
			logger.Ctx(ctx).Info().Interface("response", resp).Msg("proxy target responded")
		})
}
