// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package scope provides goroutine-affine value slots.
//
// A Scope is the slot table of one logical thread of execution: a worker
// goroutine owns one Scope for its whole life, a request goroutine owns one
// for the life of the request. Scopes travel on context.Context so that code
// running on a goroutine can reach its own table without hidden globals.
//
// Scopes are copy-on-write. Reads are a single atomic load and never block;
// writes are lock-free CAS loops. Forking a scope shares the immutable table,
// so later writes on either side stay invisible to the other.
package scope

import (
	"context"
	"sync/atomic"
)

// cell is one binding of a value into a slot. Each Set allocates a new cell,
// which gives every binding an identity usable by ClearIf.
type cell struct {
	value any
}

type table map[*key]*cell

var emptyTable = table{}

// Scope is the slot table of one goroutine.
type Scope struct {
	cells atomic.Pointer[table]
}

// New returns an empty scope.
func New() *Scope {
	s := &Scope{}
	t := emptyTable
	s.cells.Store(&t)
	return s
}

// Fork returns a new scope holding the values currently bound in s.
func (s *Scope) Fork() *Scope {
	child := New()
	if s == nil {
		return child
	}
	child.cells.Store(s.cells.Load())
	return child
}

// Len returns the number of bound slots.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(*s.cells.Load())
}

func (s *Scope) load(k *key) (*cell, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := (*s.cells.Load())[k]
	return c, ok
}

// update applies fn to a private copy of the table and publishes it.
// fn reports whether it changed anything; unchanged tables are not stored.
func (s *Scope) update(fn func(t table) bool) bool {
	if s == nil {
		return false
	}
	for {
		old := s.cells.Load()
		next := make(table, len(*old)+1)
		for k, c := range *old {
			next[k] = c
		}
		if !fn(next) {
			return false
		}
		if s.cells.CompareAndSwap(old, &next) {
			return true
		}
	}
}

type scopeKey struct{}

// NewContext returns a copy of ctx carrying sc.
func NewContext(ctx context.Context, sc *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

// FromContext returns the scope carried by ctx, or nil.
func FromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	sc, _ := ctx.Value(scopeKey{}).(*Scope)
	return sc
}

// Ensure returns ctx and its scope, attaching a new empty scope when ctx
// carries none.
func Ensure(ctx context.Context) (context.Context, *Scope) {
	if sc := FromContext(ctx); sc != nil {
		return ctx, sc
	}
	sc := New()
	return NewContext(ctx, sc), sc
}

// Go runs fn on a new goroutine whose context carries a fork of the
// caller's scope. Values bound in the caller after Go returns are not seen
// by fn, and values fn binds are not seen by the caller.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	child := NewContext(ctx, FromContext(ctx).Fork())
	go fn(child)
}
