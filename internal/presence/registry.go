// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package presence tracks which identities currently hold an active
// session and enforces the per-sender action cooldown.
//
// The registry is the only shared mutable state in the relay core. It
// is a value owned by the composition root and injected into every
// component that needs it, backed by a sharded map so that lookups,
// upserts, removals, and the atomic cooldown check-and-set are all
// race-free under concurrent access from independent sessions.
package presence

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/metrics"
)

// numShards spreads identities over independent locks. Power of two.
const numShards = 32

// Handle is the delivery endpoint of a live session. TrySend must not
// block: a session that cannot accept the frame promptly reports false
// and the caller records the delivery as failed.
type Handle interface {
	ID() string
	TrySend(frame domain.Push) bool
}

// Entry is the live presence record for one identity. Exactly one
// entry exists per connected identity at any instant.
type Entry struct {
	Identity    domain.Identity
	Handle      Handle
	ConnectedAt time.Time

	// lastActionAt is only touched under the owning shard's lock.
	lastActionAt time.Time
}

// Registry is a concurrency-safe map from identity to its active
// session entry.
type Registry struct {
	shards   [numShards]shard
	cooldown time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[domain.Identity]*Entry
}

// NewRegistry creates a registry enforcing the given cooldown interval
// between relayed actions from the same sender.
func NewRegistry(cooldown time.Duration) *Registry {
	r := &Registry{cooldown: cooldown, now: time.Now}
	for i := range r.shards {
		r.shards[i].entries = make(map[domain.Identity]*Entry)
	}
	return r
}

func (r *Registry) shardFor(id domain.Identity) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.shards[h.Sum32()&(numShards-1)]
}

// Add registers a session for the identity. A prior entry for the same
// identity is silently replaced; its old handle becomes unreachable for
// future deliveries. Reports whether an entry was replaced.
func (r *Registry) Add(id domain.Identity, h Handle) (replaced bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, replaced = s.entries[id]
	s.entries[id] = &Entry{
		Identity:    id,
		Handle:      h,
		ConnectedAt: r.now(),
	}
	return replaced
}

// Remove deletes the identity's entry if present. No error if absent.
func (r *Registry) Remove(id domain.Identity) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// RemoveIfHandle deletes the entry only when it still belongs to the
// given session handle. A session closing after it has been replaced by
// a newer connection must not evict the newer entry.
func (r *Registry) RemoveIfHandle(id domain.Identity, handleID string) (removed bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.Handle.ID() != handleID {
		return false
	}
	delete(s.entries, id)
	return true
}

// TryGet returns the identity's live entry, or nil when offline.
func (r *Registry) TryGet(id domain.Identity) *Entry {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// CheckAndMarkCooldown atomically checks the sender's last-action
// timestamp against the cooldown interval. Outside the window it stamps
// the current time and reports true ("not limited"); inside the window
// it reports false without stamping. Two concurrent calls for the same
// identity cannot both pass.
//
// An offline identity is never rate limited; the gateway guarantees a
// presence entry exists for any authenticated caller.
func (r *Registry) CheckAndMarkCooldown(id domain.Identity) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return true
	}

	now := r.now()
	if !entry.lastActionAt.IsZero() && now.Sub(entry.lastActionAt) < r.cooldown {
		return false
	}
	entry.lastActionAt = now
	return true
}

// Push delivers a fire-and-forget frame to an online identity. Reports
// false when the identity is offline or its send buffer is full.
func (r *Registry) Push(id domain.Identity, method string, payload any) bool {
	entry := r.TryGet(id)
	if entry == nil {
		return false
	}
	ok := entry.Handle.TrySend(domain.Push{Method: method, Payload: payload})
	metrics.RecordPush(method, !ok)
	return ok
}

// Broadcast delivers a frame to every online session. Sessions with
// full buffers are skipped.
func (r *Registry) Broadcast(method string, payload any) {
	frame := domain.Push{Method: method, Payload: payload}
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, entry := range s.entries {
			ok := entry.Handle.TrySend(frame)
			metrics.RecordPush(method, !ok)
		}
		s.mu.RUnlock()
	}
}

// Count returns the number of live entries.
func (r *Registry) Count() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Snapshot returns the identities currently online. Order is not
// defined.
func (r *Registry) Snapshot() []domain.Identity {
	out := make([]domain.Identity, 0, r.Count())
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for id := range s.entries {
			out = append(out, id)
		}
		s.mu.RUnlock()
	}
	return out
}
