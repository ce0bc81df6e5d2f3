// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mdc is the mapped diagnostic context: string fields bound to the
// current scope that log formatters attach to every line.
package mdc

import (
	"context"
	"maps"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

const (
	// RIDKey is the diagnostic field holding the request correlation id.
	RIDKey = "rid"
)

// Fields is an immutable set of diagnostic fields. Writers always replace
// the whole map.
type Fields map[string]string

// Slot holds the diagnostic fields of a scope.
var Slot = scope.NewSlot[Fields]("mdc")

// Put sets key to value in sc.
func Put(sc *scope.Scope, key, value string) {
	Slot.Update(sc, func(cur Fields, _ bool) (Fields, bool, bool) {
		next := make(Fields, len(cur)+1)
		maps.Copy(next, cur)
		next[key] = value
		return next, true, true
	})
}

// Get returns the value of key in sc.
func Get(sc *scope.Scope, key string) (string, bool) {
	cur, _ := Slot.Get(sc)
	v, ok := cur[key]
	return v, ok
}

// Remove deletes key from sc. Removing the last field unbinds the slot.
func Remove(sc *scope.Scope, key string) {
	Slot.Update(sc, func(cur Fields, _ bool) (Fields, bool, bool) {
		if _, ok := cur[key]; !ok {
			return nil, false, false
		}
		return without(cur, key)
	})
}

// RemoveValue deletes key from sc only while it still holds value, so a
// newer binding of the same key is left alone. Other fields are kept. It
// reports whether sc was changed.
func RemoveValue(sc *scope.Scope, key, value string) bool {
	return Slot.Update(sc, func(cur Fields, _ bool) (Fields, bool, bool) {
		if v, ok := cur[key]; !ok || v != value {
			return nil, false, false
		}
		return without(cur, key)
	})
}

func without(cur Fields, key string) (Fields, bool, bool) {
	if len(cur) == 1 {
		return nil, false, true
	}
	next := make(Fields, len(cur)-1)
	for k, v := range cur {
		if k != key {
			next[k] = v
		}
	}
	return next, true, true
}

// Clear drops every field of sc.
func Clear(sc *scope.Scope) {
	Slot.Clear(sc)
}

// Copy returns a mutable copy of the fields bound in sc, or nil.
func Copy(sc *scope.Scope) map[string]string {
	cur, ok := Slot.Get(sc)
	if !ok {
		return nil
	}
	return maps.Clone(cur)
}

// FromContext looks key up in the scope carried by ctx.
func FromContext(ctx context.Context, key string) (string, bool) {
	return Get(scope.FromContext(ctx), key)
}
