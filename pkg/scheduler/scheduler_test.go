// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scheduler"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rid = scope.NewSlot[string]("rid")

func newRelayScheduler(t *testing.T, name string, concurrency int) *scheduler.Scheduler {
	t.Helper()
	hooks := relay.NewRegistry(t.Name())
	require.NoError(t, hooks.Install("rid", relay.Propagate(rid)))
	s := scheduler.New(scheduler.Config{
		Name:        name,
		Concurrency: concurrency,
		Hooks:       hooks,
	})
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func submitterCtx(value string) context.Context {
	sc := scope.New()
	if value != "" {
		rid.Set(sc, value)
	}
	return scope.NewContext(context.Background(), sc)
}

func TestScheduler_NewDefaults(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.Config{})
	assert.Equal(t, "default", s.Name())
	assert.Len(t, s.WorkerScopes(), scheduler.DefaultConcurrency)
	assert.NotNil(t, s.Hooks())
	s.Stop()
}

func TestScheduler_Lifecycle(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.Config{Name: "lifecycle", Concurrency: 2})
	noop := func(ctx context.Context) error { return nil }

	assert.ErrorIs(t, s.Schedule(context.Background(), noop), scheduler.ErrNotStarted)

	s.Start(context.Background())
	s.Start(context.Background())
	require.NoError(t, s.Schedule(context.Background(), noop))

	s.Stop()
	s.Stop()
	assert.ErrorIs(t, s.Schedule(context.Background(), noop), scheduler.ErrSchedulerStopped)
}

func TestScheduler_RunsOnWorkerScope(t *testing.T) {
	t.Parallel()

	s := newRelayScheduler(t, "worker-scope", 2)
	workers := s.WorkerScopes()

	got := make(chan *scope.Scope, 1)
	require.NoError(t, s.Schedule(context.Background(), func(ctx context.Context) error {
		got <- scope.FromContext(ctx)
		return nil
	}))

	sc := <-got
	assert.Contains(t, workers, sc)
}

func TestScheduler_IsolationBetweenConcurrentTasks(t *testing.T) {
	t.Parallel()

	s := newRelayScheduler(t, "isolation", 4)

	const n = 200
	var wg sync.WaitGroup
	var mismatches atomic.Int64
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("req-%d", i)
		wg.Add(1)
		go func() {
			err := s.Schedule(submitterCtx(want), func(ctx context.Context) error {
				defer wg.Done()
				time.Sleep(time.Duration(i%3) * 100 * time.Microsecond)
				if got, _ := rid.Get(scope.FromContext(ctx)); got != want {
					mismatches.Add(1)
				}
				return nil
			})
			if err != nil {
				wg.Done()
				t.Errorf("schedule %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, mismatches.Load())
}

func TestScheduler_WorkersAreCleanAfterEveryOutcome(t *testing.T) {
	t.Parallel()

	hooks := relay.NewRegistry(t.Name())
	require.NoError(t, hooks.Install("rid", relay.Propagate(rid)))
	s := scheduler.New(scheduler.Config{Name: "leak-free", Concurrency: 3, Hooks: hooks})
	s.Start(context.Background())

	for i := 0; i < 30; i++ {
		ctx := submitterCtx(fmt.Sprintf("req-%d", i))
		var task relay.Task
		switch i % 3 {
		case 0:
			task = func(ctx context.Context) error { return nil }
		case 1:
			task = func(ctx context.Context) error { return errors.New("failed") }
		default:
			task = func(ctx context.Context) error { panic("boom") }
		}
		require.NoError(t, s.Schedule(ctx, task))
	}
	s.Stop()

	for i, sc := range s.WorkerScopes() {
		_, ok := rid.Get(sc)
		assert.False(t, ok, "worker %d leaked a value", i)
		assert.Equal(t, 0, sc.Len())
	}
}

func TestScheduler_AbsencePropagatesOverStaleWorkerState(t *testing.T) {
	t.Parallel()

	hooks := relay.NewRegistry(t.Name())
	require.NoError(t, hooks.Install("rid", relay.Propagate(rid)))
	s := scheduler.New(scheduler.Config{Name: "absence", Concurrency: 2, Hooks: hooks})
	for _, sc := range s.WorkerScopes() {
		rid.Set(sc, "stale")
	}
	s.Start(context.Background())
	defer s.Stop()

	const n = 20
	seen := make(chan bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, s.Schedule(submitterCtx(""), func(ctx context.Context) error {
			_, ok := rid.Get(scope.FromContext(ctx))
			seen <- ok
			return nil
		}))
	}
	for i := 0; i < n; i++ {
		assert.False(t, <-seen)
	}
}

func TestScheduler_PanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()

	s := newRelayScheduler(t, "panic", 1)
	before := testutil.ToFloat64(scheduler.TasksProcessedTotal.WithLabelValues("panic", "panicked"))

	require.NoError(t, s.Schedule(submitterCtx("abc123"), func(ctx context.Context) error {
		panic("boom")
	}))

	done := make(chan string, 1)
	require.NoError(t, s.Schedule(submitterCtx("next"), func(ctx context.Context) error {
		v, _ := rid.Get(scope.FromContext(ctx))
		done <- v
		return nil
	}))

	select {
	case v := <-done:
		assert.Equal(t, "next", v)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	assert.Equal(t, before+1, testutil.ToFloat64(scheduler.TasksProcessedTotal.WithLabelValues("panic", "panicked")))
}

func TestScheduler_QueueFull(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.Config{Name: "full", Concurrency: 1, QueueSize: 1})
	s.Start(context.Background())
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Schedule(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Schedule(context.Background(), noop))
	assert.ErrorIs(t, s.Schedule(context.Background(), noop), scheduler.ErrQueueFull)

	close(release)
}

func TestScheduler_StopDrainsAcceptedTasks(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.Config{Name: "drain", Concurrency: 2})
	s.Start(context.Background())

	var ran atomic.Int64
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Schedule(context.Background(), func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		}))
	}
	s.Stop()

	assert.Equal(t, int64(20), ran.Load())
}

func TestScheduler_RateLimit(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.Config{Name: "rate", Concurrency: 1, RateLimit: 0.001, RateBurst: 1})
	s.Start(context.Background())
	defer s.Stop()

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Schedule(context.Background(), noop))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Schedule(ctx, noop))
}

func TestScheduler_DecoratesOnSubmittingGoroutine(t *testing.T) {
	t.Parallel()

	hooks := relay.NewRegistry(t.Name())
	s := scheduler.New(scheduler.Config{Name: "decorate", Concurrency: 1, Hooks: hooks})
	s.Start(context.Background())
	defer s.Stop()

	submitter := scope.New()
	var decoratedOn *scope.Scope
	require.NoError(t, hooks.Install("probe", func(ctx context.Context, task relay.Task) relay.Task {
		decoratedOn = scope.FromContext(ctx)
		return task
	}))

	done := make(chan struct{})
	require.NoError(t, s.Schedule(scope.NewContext(context.Background(), submitter), func(ctx context.Context) error {
		close(done)
		return nil
	}))
	<-done
	assert.Same(t, submitter, decoratedOn)
}
