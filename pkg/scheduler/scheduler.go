// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs relayed tasks on a fixed pool of worker goroutines.
//
// Every worker owns one scope for its whole life, the way a pooled thread
// owns its thread-local storage, so a task can find leftovers from whatever
// ran before it. Tasks are decorated through the relay hook registry on the
// submitting goroutine before they are queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"

	"golang.org/x/time/rate"
)

// Default configuration values
const (
	DefaultConcurrency = 5
	DefaultQueueSize   = 256
	DefaultRateBurst   = 1
)

// Common errors
var (
	ErrQueueFull        = errors.New("scheduler: queue is full")
	ErrNotStarted       = errors.New("scheduler: not started")
	ErrSchedulerStopped = errors.New("scheduler: stopped")
)

// PanicError describes a task that panicked on a worker.
type PanicError struct {
	TaskID string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scheduler: task %s panicked: %v", e.TaskID, e.Value)
}

// Config configures a Scheduler.
type Config struct {
	// Name labels the scheduler's logs and metrics.
	Name string

	// Concurrency is the number of worker goroutines.
	Concurrency int

	// QueueSize bounds the number of accepted tasks not yet finished.
	QueueSize int

	// RateLimit throttles submissions (tasks per second). Zero disables it.
	RateLimit float64
	RateBurst int

	// Hooks decorates every submitted task. Nil means no decoration.
	Hooks *relay.Registry
}

// Scheduler is a worker pool for relay tasks.
type Scheduler struct {
	name        string
	concurrency int
	queueSize   int64
	hooks       *relay.Registry
	limiter     *rate.Limiter

	queue  *taskQueue
	scopes []*scope.Scope

	mu      sync.RWMutex
	started bool
	stopped bool

	pending  sync.WaitGroup
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler. Call Start before scheduling tasks.
func New(cfg Config) *Scheduler {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Hooks == nil {
		cfg.Hooks = relay.NewRegistry(cfg.Name)
	}

	s := &Scheduler{
		name:        cfg.Name,
		concurrency: cfg.Concurrency,
		queueSize:   int64(cfg.QueueSize),
		hooks:       cfg.Hooks,
		queue:       newTaskQueue(cfg.QueueSize),
		scopes:      make([]*scope.Scope, cfg.Concurrency),
	}
	for i := range s.scopes {
		s.scopes[i] = scope.New()
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = DefaultRateBurst
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

func (s *Scheduler) Name() string {
	return s.name
}

// Hooks returns the registry decorating this scheduler's tasks.
func (s *Scheduler) Hooks() *relay.Registry {
	return s.hooks
}

// WorkerScopes returns the scope owned by each worker.
func (s *Scheduler) WorkerScopes() []*scope.Scope {
	out := make([]*scope.Scope, len(s.scopes))
	copy(out, s.scopes)
	return out
}

// Schedule decorates task on the calling goroutine and queues it for a
// worker. ctx must carry the caller's scope for relay hooks to capture it.
func (s *Scheduler) Schedule(ctx context.Context, task relay.Task) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			TasksRejectedTotal.WithLabelValues(s.name, "rate_limited").Inc()
			return err
		}
	}

	j := newJob(ctx, s.hooks.Decorate(ctx, task))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		TasksRejectedTotal.WithLabelValues(s.name, "stopped").Inc()
		return ErrSchedulerStopped
	}
	if !s.started {
		TasksRejectedTotal.WithLabelValues(s.name, "not_started").Inc()
		return ErrNotStarted
	}

	s.pending.Add(1)
	if err := s.queue.put(j); err != nil {
		s.pending.Done()
		reason := "full"
		if errors.Is(err, ErrSchedulerStopped) {
			reason = "stopped"
		}
		TasksRejectedTotal.WithLabelValues(s.name, reason).Inc()
		return err
	}

	TasksScheduledTotal.WithLabelValues(s.name).Inc()
	QueueDepth.WithLabelValues(s.name).Set(float64(s.queue.len()))
	return nil
}

// Start launches the workers. ctx is the parent of every worker context.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	for i, sc := range s.scopes {
		s.wg.Add(1)
		go s.work(scope.NewContext(ctx, sc), i)
	}

	logger.Info().
		Str("scheduler", s.name).
		Int("concurrency", s.concurrency).
		Int64("queue_size", s.queueSize).
		Msg("scheduler: started")
}

// Stop rejects new tasks, waits for accepted ones to finish and then stops
// the workers. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.pending.Wait()
		s.queue.dispose()
		s.wg.Wait()

		logger.Info().Str("scheduler", s.name).Msg("scheduler: stopped")
	})
}

func (s *Scheduler) work(ctx context.Context, worker int) {
	defer s.wg.Done()

	for {
		j, err := s.queue.take()
		if err != nil {
			return
		}
		QueueDepth.WithLabelValues(s.name).Set(float64(s.queue.len()))
		s.run(ctx, worker, j)
	}
}

func (s *Scheduler) run(ctx context.Context, worker int, j *job) {
	defer s.pending.Done()

	WorkerActive.WithLabelValues(s.name).Inc()
	defer WorkerActive.WithLabelValues(s.name).Dec()

	start := time.Now()
	err := j.invoke(ctx)
	TaskProcessingDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

	var pe *PanicError
	switch {
	case errors.As(err, &pe):
		TasksProcessedTotal.WithLabelValues(s.name, "panicked").Inc()
		reportPanic(ctx, j, pe)
	case err != nil:
		TasksProcessedTotal.WithLabelValues(s.name, "failed").Inc()
		logger.Warn().
			Err(err).
			Str("scheduler", s.name).
			Str("task_id", j.id).
			Int("worker", worker).
			Fields(j.fields).
			Msg("scheduler: task failed")
	default:
		TasksProcessedTotal.WithLabelValues(s.name, "completed").Inc()
	}
}
