// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/mdc"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/relay"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"

	gods "github.com/Workiva/go-datastructures/queue"
	"github.com/google/uuid"
)

// job is a decorated task waiting for a worker.
type job struct {
	id   string
	task relay.Task

	// Diagnostic fields of the submitter, kept for failure reports that
	// happen after the relay has already cleaned the worker scope.
	fields map[string]any
}

func newJob(ctx context.Context, task relay.Task) *job {
	j := &job{
		id:   uuid.New().String(),
		task: task,
	}
	if fields := mdc.Copy(scope.FromContext(ctx)); len(fields) > 0 {
		j.fields = make(map[string]any, len(fields))
		for k, v := range fields {
			j.fields[k] = v
		}
	}
	return j
}

// invoke runs the task, turning a panic into a *PanicError. The task's own
// deferred cleanup has run by the time the panic is recovered here.
func (j *job) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{TaskID: j.id, Value: r, Stack: debug.Stack()}
		}
	}()
	return j.task(ctx)
}

// taskQueue is a bounded FIFO on top of a blocking Workiva queue.
type taskQueue struct {
	q     *gods.Queue
	size  int64
	count atomic.Int64
}

func newTaskQueue(size int) *taskQueue {
	return &taskQueue{
		q:    gods.New(int64(size)),
		size: int64(size),
	}
}

func (tq *taskQueue) put(j *job) error {
	if tq.count.Add(1) > tq.size {
		tq.count.Add(-1)
		return ErrQueueFull
	}
	if err := tq.q.Put(j); err != nil {
		tq.count.Add(-1)
		return fmt.Errorf("%w: %v", ErrSchedulerStopped, err)
	}
	return nil
}

// take blocks until a job is available or the queue is disposed.
func (tq *taskQueue) take() (*job, error) {
	items, err := tq.q.Get(1)
	if err != nil {
		return nil, err
	}
	tq.count.Add(-1)
	return items[0].(*job), nil
}

func (tq *taskQueue) len() int64 {
	return tq.count.Load()
}

func (tq *taskQueue) dispose() {
	tq.q.Dispose()
}
