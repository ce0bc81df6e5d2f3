// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package scope_test

import (
	"testing"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_InstallAndRestore(t *testing.T) {
	t.Parallel()

	rid := scope.NewSlot[string]("rid")
	user := scope.NewSlot[string]("user")

	submitter := scope.New()
	rid.Set(submitter, "abc123")
	snap := scope.Capture(submitter, rid, user)
	assert.False(t, snap.Empty())

	// The worker carries leftovers from an earlier task
	worker := scope.New()
	rid.Set(worker, "stale")
	user.Set(worker, "stale-user")

	restore := snap.Install(worker)
	v, ok := rid.Get(worker)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
	_, ok = user.Get(worker)
	assert.False(t, ok, "absent in snapshot must be absent after install")

	restore()
	v, _ = rid.Get(worker)
	assert.Equal(t, "stale", v)
	v, _ = user.Get(worker)
	assert.Equal(t, "stale-user", v)
}

func TestSnapshot_RestoreToEmpty(t *testing.T) {
	t.Parallel()

	rid := scope.NewSlot[string]("rid")
	submitter := scope.New()
	rid.Set(submitter, "abc123")

	worker := scope.New()
	restore := scope.Capture(submitter, rid).Install(worker)
	rid.Set(worker, "changed by task")
	restore()

	_, ok := rid.Get(worker)
	assert.False(t, ok)
	assert.Equal(t, 0, worker.Len())
}

func TestSnapshot_IsImmutable(t *testing.T) {
	t.Parallel()

	rid := scope.NewSlot[string]("rid")
	submitter := scope.New()
	rid.Set(submitter, "before")
	snap := scope.Capture(submitter, rid)

	rid.Set(submitter, "after")
	rid.Clear(submitter)

	worker := scope.New()
	restore := snap.Install(worker)
	defer restore()
	v, _ := rid.Get(worker)
	assert.Equal(t, "before", v)
}

func TestSnapshot_EmptyAndNil(t *testing.T) {
	t.Parallel()

	rid := scope.NewSlot[string]("rid")
	snap := scope.Capture(nil, rid)
	assert.True(t, snap.Empty())

	assert.NotPanics(t, func() {
		snap.Install(nil)()
		scope.Capture(scope.New()).Install(scope.New())()
	})
}
