// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package filter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/filter"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/mdc"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scheduler"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNative(target string) *request.NativeRequest {
	return request.NewNative(httptest.NewRequest(http.MethodGet, target, nil))
}

func blockingChain() *filter.Chain {
	chain := filter.NewChain(&filter.RIDFilter{})
	chain.AddFilter(&filter.BindingFilter{})
	return chain
}

func TestChain_BindsForTheDurationOfTheRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  string
		wantRID string
		wantOK  bool
	}{
		{name: "with rid", target: "/inspect?rid=abc123", wantRID: "abc123", wantOK: true},
		{name: "without rid", target: "/inspect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := scope.New()
			ctx := scope.NewContext(context.Background(), sc)
			req := newNative(tt.target)

			err := blockingChain().Serve(ctx, req, func(ctx context.Context, r *request.NativeRequest) error {
				rid, ok := mdc.FromContext(ctx, mdc.RIDKey)
				assert.Equal(t, tt.wantOK, ok)
				assert.Equal(t, tt.wantRID, rid)

				cur, err := request.Current(ctx)
				require.NoError(t, err)
				assert.Same(t, req, cur)
				return nil
			})
			require.NoError(t, err)

			assert.Equal(t, 0, sc.Len(), "request scope must be clean")
			_, err = request.Current(ctx)
			assert.ErrorIs(t, err, request.ErrNoRequestBound)
		})
	}
}

func TestChain_ErrorReachesCallerAfterCleanup(t *testing.T) {
	t.Parallel()

	sc := scope.New()
	ctx := scope.NewContext(context.Background(), sc)
	boom := errors.New("downstream failed")
	before := testutil.ToFloat64(filter.FilterErrorsTotal.WithLabelValues("blocking", filter.FilterTypeRID))

	err := blockingChain().Serve(ctx, newNative("/inspect?rid=abc123"), func(ctx context.Context, r *request.NativeRequest) error {
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 0, sc.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(filter.FilterErrorsTotal.WithLabelValues("blocking", filter.FilterTypeRID)))
}

func TestChain_PanicPropagatesAfterCleanup(t *testing.T) {
	t.Parallel()

	sc := scope.New()
	ctx := scope.NewContext(context.Background(), sc)

	assert.PanicsWithValue(t, "boom", func() {
		_ = blockingChain().Serve(ctx, newNative("/inspect?rid=abc123"), func(ctx context.Context, r *request.NativeRequest) error {
			panic("boom")
		})
	})
	assert.Equal(t, 0, sc.Len())
}

func TestChain_RIDReleasedWhenDownstreamAddsFields(t *testing.T) {
	t.Parallel()

	sc := scope.New()
	ctx := scope.NewContext(context.Background(), sc)

	err := blockingChain().Serve(ctx, newNative("/inspect?rid=abc123"), func(ctx context.Context, r *request.NativeRequest) error {
		mdc.Put(scope.FromContext(ctx), "user", "u1")
		return nil
	})
	require.NoError(t, err)

	_, ok := mdc.Get(sc, mdc.RIDKey)
	assert.False(t, ok)
	user, _ := mdc.Get(sc, "user")
	assert.Equal(t, "u1", user, "fields added downstream are not the filter's to remove")
}

func TestRIDFilter_LeavesOuterRIDWithoutParameter(t *testing.T) {
	t.Parallel()

	sc := scope.New()
	mdc.Put(sc, mdc.RIDKey, "outer")
	ctx := scope.NewContext(context.Background(), sc)

	chain := filter.NewChain(&filter.RIDFilter{})
	err := chain.Serve(ctx, newNative("/inspect"), func(ctx context.Context, r *request.NativeRequest) error {
		return nil
	})
	require.NoError(t, err)

	rid, ok := mdc.Get(sc, mdc.RIDKey)
	assert.True(t, ok)
	assert.Equal(t, "outer", rid)
}

func TestChain_ServeWithoutScope(t *testing.T) {
	t.Parallel()

	var seen string
	err := blockingChain().Serve(context.Background(), newNative("/inspect?rid=abc123"), func(ctx context.Context, r *request.NativeRequest) error {
		seen, _ = mdc.FromContext(ctx, mdc.RIDKey)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", seen)
}

func TestChain_FormParameterIsUsed(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/inspect", strings.NewReader("rid=from-form"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var seen string
	err := blockingChain().Serve(context.Background(), request.NewNative(r), func(ctx context.Context, _ *request.NativeRequest) error {
		seen, _ = mdc.FromContext(ctx, mdc.RIDKey)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from-form", seen)
}

func TestChain_HopFromBlockingStack(t *testing.T) {
	t.Parallel()

	hooks := relay.NewRegistry(t.Name())
	require.NoError(t, hooks.Install(filter.HookMDC, relay.Propagate(mdc.Slot)))
	require.NoError(t, hooks.Install(filter.HookRequestHolder, relay.Propagate(request.Handle)))
	s := scheduler.New(scheduler.Config{Name: "blocking-hop", Concurrency: 1, Hooks: hooks})
	s.Start(context.Background())
	t.Cleanup(s.Stop)

	req := newNative("/inspect?rid=abc123")
	err := blockingChain().Serve(context.Background(), req, func(ctx context.Context, r *request.NativeRequest) error {
		done := make(chan error, 1)
		if err := s.Schedule(ctx, func(ctx context.Context) error {
			rid, _ := mdc.FromContext(ctx, mdc.RIDKey)
			cur, err := request.Current(ctx)
			if err == nil && (rid != "abc123" || cur != request.HTTPRequest(req)) {
				err = errors.New("worker saw the wrong request")
			}
			done <- err
			return err
		}); err != nil {
			return err
		}
		return <-done
	})
	require.NoError(t, err)

	s.Stop()
	for _, sc := range s.WorkerScopes() {
		assert.Equal(t, 0, sc.Len())
	}
}
