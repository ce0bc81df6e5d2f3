// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"errors"
	"fmt"
)

// ErrUnscoped is returned when a slot is read on a goroutine that has no
// value bound for it.
var ErrUnscoped = errors.New("no value bound in current scope")

type key struct {
	name string
}

// Key is the type-erased identity of a Slot.
type Key interface {
	Name() string
	slotKey() *key
}

// Slot is a typed cell that holds at most one value per Scope.
type Slot[T any] struct {
	k *key
}

// NewSlot creates a slot. Two slots never alias, even with equal names.
func NewSlot[T any](name string) *Slot[T] {
	return &Slot[T]{k: &key{name: name}}
}

func (s *Slot[T]) Name() string { return s.k.name }

func (s *Slot[T]) slotKey() *key { return s.k }

// Set binds v in sc, replacing any previous value.
func (s *Slot[T]) Set(sc *Scope, v T) {
	sc.update(func(t table) bool {
		t[s.k] = &cell{value: v}
		return true
	})
}

// Get returns the value bound in sc.
func (s *Slot[T]) Get(sc *Scope) (T, bool) {
	c, ok := sc.load(s.k)
	if !ok {
		var zero T
		return zero, false
	}
	v, _ := c.value.(T)
	return v, true
}

// MustGet is Get reporting absence as ErrUnscoped.
func (s *Slot[T]) MustGet(sc *Scope) (T, error) {
	v, ok := s.Get(sc)
	if !ok {
		return v, fmt.Errorf("%s: %w", s.k.name, ErrUnscoped)
	}
	return v, nil
}

// Clear removes the value bound in sc, if any.
func (s *Slot[T]) Clear(sc *Scope) {
	sc.update(func(t table) bool {
		if _, ok := t[s.k]; !ok {
			return false
		}
		delete(t, s.k)
		return true
	})
}

// Mark identifies the binding a slot currently holds in a scope.
// The zero Mark stands for "nothing bound".
type Mark struct {
	c *cell
}

// Bound reports whether the mark refers to an actual binding.
func (m Mark) Bound() bool { return m.c != nil }

// Mark returns the identity of the current binding of s in sc.
func (s *Slot[T]) Mark(sc *Scope) Mark {
	c, _ := sc.load(s.k)
	return Mark{c: c}
}

// ClearIf clears s in sc only while it still holds the binding m.
// It reports whether a value was removed.
func (s *Slot[T]) ClearIf(sc *Scope, m Mark) bool {
	if m.c == nil {
		return false
	}
	return sc.update(func(t table) bool {
		if t[s.k] != m.c {
			return false
		}
		delete(t, s.k)
		return true
	})
}

// Lookup is Get that also returns the mark of the binding it read.
func (s *Slot[T]) Lookup(sc *Scope) (T, Mark, bool) {
	c, ok := sc.load(s.k)
	if !ok {
		var zero T
		return zero, Mark{}, false
	}
	v, _ := c.value.(T)
	return v, Mark{c: c}, true
}

// ReplaceIf binds v in sc only while s still holds the binding m.
func (s *Slot[T]) ReplaceIf(sc *Scope, m Mark, v T) bool {
	if m.c == nil {
		return false
	}
	return sc.update(func(t table) bool {
		if t[s.k] != m.c {
			return false
		}
		t[s.k] = &cell{value: v}
		return true
	})
}

// Update applies fn to the binding of s in sc and publishes the result as
// one atomic step. fn may run more than once when writers race. It returns
// the next value, whether the slot stays bound, and whether anything changed
// at all; when nothing changed sc is left as it is. Update reports whether
// sc was changed.
func (s *Slot[T]) Update(sc *Scope, fn func(cur T, bound bool) (next T, bind, changed bool)) bool {
	return sc.update(func(t table) bool {
		var cur T
		c, bound := t[s.k]
		if bound {
			cur, _ = c.value.(T)
		}
		next, bind, changed := fn(cur, bound)
		if !changed {
			return false
		}
		if bind {
			t[s.k] = &cell{value: next}
		} else {
			delete(t, s.k)
		}
		return true
	})
}
