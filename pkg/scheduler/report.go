// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"

	"github.com/getsentry/sentry-go"
)

// reportPanic logs a recovered task panic and forwards it to Sentry, tagged
// with the submitter's diagnostic fields. Without a configured Sentry client
// the capture is a no-op.
func reportPanic(ctx context.Context, j *job, pe *PanicError) {
	logger.Error().
		Str("task_id", j.id).
		Fields(j.fields).
		Str("panic", fmt.Sprint(pe.Value)).
		Bytes("stack", pe.Stack).
		Msg("scheduler: task panicked")

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(ss *sentry.Scope) {
		ss.SetTag("task_id", j.id)
		for k, v := range j.fields {
			ss.SetTag(k, fmt.Sprint(v))
		}
		hub.RecoverWithContext(ctx, pe.Value)
	})
}
