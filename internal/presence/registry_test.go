// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkrelay/linkrelay/internal/domain"
)

type fakeHandle struct {
	id string
}

func (h *fakeHandle) ID() string                 { return h.id }
func (h *fakeHandle) TrySend(_ domain.Push) bool { return true }

func TestAddReplaceRemove(t *testing.T) {
	r := NewRegistry(500 * time.Millisecond)
	id := domain.Identity("ABCD1234")

	replaced := r.Add(id, &fakeHandle{id: "s1"})
	assert.False(t, replaced)
	assert.Equal(t, 1, r.Count())

	replaced = r.Add(id, &fakeHandle{id: "s2"})
	assert.True(t, replaced)
	assert.Equal(t, 1, r.Count(), "replacement must not create a second entry")

	entry := r.TryGet(id)
	require.NotNil(t, entry)
	assert.Equal(t, "s2", entry.Handle.ID())

	r.Remove(id)
	assert.Nil(t, r.TryGet(id))
	assert.Equal(t, 0, r.Count())
}

func TestRemoveIfHandle(t *testing.T) {
	r := NewRegistry(500 * time.Millisecond)
	id := domain.Identity("ABCD1234")

	r.Add(id, &fakeHandle{id: "old"})
	r.Add(id, &fakeHandle{id: "new"})

	// The replaced session's close must not evict the live entry.
	assert.False(t, r.RemoveIfHandle(id, "old"))
	require.NotNil(t, r.TryGet(id))

	assert.True(t, r.RemoveIfHandle(id, "new"))
	assert.Nil(t, r.TryGet(id))
}

func TestCooldownWindow(t *testing.T) {
	r := NewRegistry(500 * time.Millisecond)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	id := domain.Identity("ABCD1234")
	r.Add(id, &fakeHandle{id: "s1"})

	assert.True(t, r.CheckAndMarkCooldown(id), "first action passes")
	assert.False(t, r.CheckAndMarkCooldown(id), "second action inside window is limited")

	now = now.Add(499 * time.Millisecond)
	assert.False(t, r.CheckAndMarkCooldown(id), "still inside window")

	now = now.Add(time.Millisecond)
	assert.True(t, r.CheckAndMarkCooldown(id), "window elapsed")
}

func TestCooldownRejectedAttemptDoesNotExtendWindow(t *testing.T) {
	r := NewRegistry(500 * time.Millisecond)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	id := domain.Identity("ABCD1234")
	r.Add(id, &fakeHandle{id: "s1"})

	require.True(t, r.CheckAndMarkCooldown(id))

	now = now.Add(300 * time.Millisecond)
	require.False(t, r.CheckAndMarkCooldown(id))

	// Window measured from the accepted action, not the rejected one.
	now = now.Add(200 * time.Millisecond)
	assert.True(t, r.CheckAndMarkCooldown(id))
}

func TestCooldownConcurrentSingleWinner(t *testing.T) {
	r := NewRegistry(time.Minute)
	id := domain.Identity("ABCD1234")
	r.Add(id, &fakeHandle{id: "s1"})

	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.CheckAndMarkCooldown(id) {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), passed.Load(), "exactly one concurrent action may pass")
}

func TestSnapshotAndCount(t *testing.T) {
	r := NewRegistry(500 * time.Millisecond)

	want := make(map[domain.Identity]bool)
	for i := 0; i < 40; i++ {
		id := domain.Identity(fmt.Sprintf("USER%04d", i))
		want[id] = true
		r.Add(id, &fakeHandle{id: string(id)})
	}

	assert.Equal(t, 40, r.Count())

	snap := r.Snapshot()
	assert.Len(t, snap, 40)
	for _, id := range snap {
		assert.True(t, want[id])
	}
}

func TestConcurrentAddRemove(t *testing.T) {
	r := NewRegistry(500 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := domain.Identity(fmt.Sprintf("USER%04d", n))
			for j := 0; j < 100; j++ {
				r.Add(id, &fakeHandle{id: "s"})
				r.TryGet(id)
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}
