// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/filter"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/pipeline"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
)

// Logged logs the invocation of h and its result at debug level. Errors are
// returned as they are.
func Logged(name string, h filter.Handler) filter.Handler {
	return func(ctx context.Context, req *request.NativeRequest) error {
		logger.Ctx(ctx).Debug().
			Str("handler", name).
			Str("method", req.Method()).
			Str("path", req.URL().Path).
			Msg("handler is being invoked")

		err := h(ctx, req)

		logger.Ctx(ctx).Debug().Str("handler", name).AnErr("result", err).Msg("handler returned")
		return err
	}
}

// LoggedMono logs the subscription of m and its value at debug level, on
// whichever goroutine each happens. Errors pass through untouched.
func LoggedMono[T any](name string, m pipeline.Mono[T]) pipeline.Mono[T] {
	return m.
		DoOnSubscribe(func(ctx context.Context) {
			logger.Ctx(ctx).Debug().Str("handler", name).Msg("handler is being invoked")
		}).
		DoOnSuccess(func(ctx context.Context, v T) {
			logger.Ctx(ctx).Debug().Str("handler", name).Interface("result", v).Msg("handler resulted")
		})
}
