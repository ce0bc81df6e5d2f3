// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
)

var ErrInvalidHook = errors.New("relay: hook needs a name and a function")

type namedHook struct {
	name string
	hook Hook
}

// Registry holds the named hooks applied to every scheduled task.
//
// Readers load an immutable hook list with one atomic read and never wait on
// writers. Writers serialize on mu and publish a fresh list. The zero value
// is an empty, unnamed registry.
type Registry struct {
	name  string
	mu    sync.Mutex
	hooks atomic.Pointer[[]namedHook]
}

// NewRegistry returns an empty registry. name labels its metrics.
func NewRegistry(name string) *Registry {
	return &Registry{name: name}
}

// Name returns the registry's metrics label.
func (r *Registry) Name() string {
	return r.name
}

func (r *Registry) load() []namedHook {
	if p := r.hooks.Load(); p != nil {
		return *p
	}
	return nil
}

// Install registers hook under name. Installing an existing name replaces
// that hook and keeps its position.
func (r *Registry) Install(name string, hook Hook) error {
	if name == "" || hook == nil {
		return ErrInvalidHook
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	next := make([]namedHook, 0, len(old)+1)
	replaced := false
	for _, h := range old {
		if h.name == name {
			h.hook = hook
			replaced = true
		}
		next = append(next, h)
	}
	if !replaced {
		next = append(next, namedHook{name: name, hook: hook})
		HooksInstalled.WithLabelValues(r.name).Inc()
	}
	r.hooks.Store(&next)

	logger.Debug().Str("registry", r.name).Str("hook", name).Bool("replaced", replaced).Msg("relay: hook installed")
	return nil
}

// Remove unregisters name. Unknown names are ignored.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	next := make([]namedHook, 0, len(old))
	for _, h := range old {
		if h.name != name {
			next = append(next, h)
		}
	}
	if len(next) == len(old) {
		return
	}
	r.hooks.Store(&next)

	HooksInstalled.WithLabelValues(r.name).Dec()
	logger.Debug().Str("registry", r.name).Str("hook", name).Msg("relay: hook removed")
}

// Names returns the installed hook names in registration order.
func (r *Registry) Names() []string {
	hooks := r.load()
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = h.name
	}
	return names
}

func (r *Registry) Len() int {
	return len(r.load())
}

// Decorate passes task through every installed hook in registration order.
// It must be called on the submitting goroutine.
func (r *Registry) Decorate(ctx context.Context, task Task) Task {
	hooks := r.load()
	for _, h := range hooks {
		task = h.hook(ctx, task)
	}
	TasksDecorated.WithLabelValues(r.name).Inc()
	return task
}
