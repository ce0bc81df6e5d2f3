// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package scope

// Snapshot is an immutable capture of a set of slots taken from one scope.
// A slot that was unbound at capture time is recorded as absent.
type Snapshot struct {
	keys  []*key
	cells []*cell // nil entry means absent
}

// Capture records the current bindings of keys in sc.
func Capture(sc *Scope, keys ...Key) Snapshot {
	snap := Snapshot{
		keys:  make([]*key, len(keys)),
		cells: make([]*cell, len(keys)),
	}
	var t table
	if sc != nil {
		t = *sc.cells.Load()
	}
	for i, k := range keys {
		snap.keys[i] = k.slotKey()
		snap.cells[i] = t[k.slotKey()]
	}
	return snap
}

// Empty reports whether no captured slot was bound.
func (sn Snapshot) Empty() bool {
	for _, c := range sn.cells {
		if c != nil {
			return false
		}
	}
	return true
}

// Install makes sc hold exactly the captured bindings for the captured
// slots: present values are bound, absent ones are cleared. The returned
// function puts those slots back to what sc held before Install.
func (sn Snapshot) Install(sc *Scope) (restore func()) {
	if sc == nil || len(sn.keys) == 0 {
		return func() {}
	}
	prev := make([]*cell, len(sn.keys))
	sc.update(func(t table) bool {
		for i, k := range sn.keys {
			prev[i] = t[k]
			apply(t, k, sn.cells[i])
		}
		return true
	})
	return func() {
		sc.update(func(t table) bool {
			for i, k := range sn.keys {
				apply(t, k, prev[i])
			}
			return true
		})
	}
}

func apply(t table, k *key, c *cell) {
	if c == nil {
		delete(t, k)
		return
	}
	t[k] = c
}
