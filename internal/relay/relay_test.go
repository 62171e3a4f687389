// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package relay

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/presence"
	"github.com/linkrelay/linkrelay/internal/store"
)

const (
	alice = domain.Identity("ALICE001")
	bob   = domain.Identity("BOBBY002")
	carol = domain.Identity("CAROL003")
	dave  = domain.Identity("DAVEY004")
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
	os.Exit(m.Run())
}

type stubHandle struct {
	id     string
	accept bool
	sent   []domain.Push
}

func (h *stubHandle) ID() string { return h.id }

func (h *stubHandle) TrySend(frame domain.Push) bool {
	if !h.accept {
		return false
	}
	h.sent = append(h.sent, frame)
	return true
}

type fixture struct {
	relay *Relay
	reg   *presence.Registry
	st    *store.MemoryStore
}

// newFixture builds a relay with the cooldown disabled so tests that
// send multiple requests are not rate limited; cooldown behavior has
// its own tests below.
func newFixture(t *testing.T, cooldown time.Duration) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	for secret, id := range map[string]domain.Identity{
		"a": alice, "b": bob, "c": carol, "d": dave,
	} {
		require.NoError(t, st.CreateAccount(ctx, secret, []domain.Identity{id}))
	}
	reg := presence.NewRegistry(cooldown)
	reg.Add(alice, &stubHandle{id: "alice", accept: true})
	return &fixture{relay: New(reg, st, 3), reg: reg, st: st}
}

// grantTo creates the edge granter->grantee carrying the grant, which
// authorizes the grantee's actions against the granter.
func (f *fixture) grantTo(t *testing.T, granter, grantee domain.Identity, g domain.Grant) {
	t.Helper()
	_, err := f.st.CreatePermissions(context.Background(), granter, grantee, g)
	require.NoError(t, err)
}

func deliverAlways(_ domain.Identity, h presence.Handle) bool {
	return h.TrySend(domain.Push{Method: "test"})
}

var speakCap = domain.Capability{Channel: domain.ChannelSay}

func TestRelaySuccess(t *testing.T) {
	f := newFixture(t, 0)
	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay})

	resp := f.relay.Relay(context.Background(), "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseSuccess, resp.Code)
	assert.Equal(t, domain.ActionSuccess, resp.Results[bob])
}

func TestRelayTargetCapRejectedBeforeCooldown(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay})
	ctx := context.Background()

	targets := []domain.Identity{bob, carol, dave, "EXTRA005"}
	resp := f.relay.Relay(ctx, "speak", alice, targets, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseTooManyTargets, resp.Code)
	assert.Empty(t, resp.Results)

	// The cap rejection must not have consumed the cooldown.
	resp = f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseSuccess, resp.Code)
}

func TestRelayCooldownSequence(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay})
	ctx := context.Background()
	targets := []domain.Identity{bob}

	resp := f.relay.Relay(ctx, "speak", alice, targets, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseSuccess, resp.Code)

	resp = f.relay.Relay(ctx, "speak", alice, targets, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseRateLimited, resp.Code)
	assert.Empty(t, resp.Results)
}

func TestRelayBadTargetsConsumeCooldown(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	ctx := context.Background()

	resp := f.relay.Relay(ctx, "speak", alice, nil, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseBadTargets, resp.Code)

	// Structural validation runs after the cooldown check, so the
	// malformed request still consumed the window.
	resp = f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ResponseRateLimited, resp.Code)
}

func TestRelayBadTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []domain.Identity
	}{
		{"empty", nil},
		{"self target", []domain.Identity{alice}},
		{"duplicate", []domain.Identity{bob, bob}},
		{"malformed code", []domain.Identity{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			resp := f.relay.Relay(context.Background(), "speak", alice, tt.targets, speakCap, deliverAlways)
			assert.Equal(t, domain.ResponseBadTargets, resp.Code)
			assert.Empty(t, resp.Results)
		})
	}
}

func TestRelayPerTargetIndependence(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	// bob: online with grant. carol: offline. dave: online without grant.
	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.reg.Add(dave, &stubHandle{id: "dave", accept: true})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay})

	resp := f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob, carol, dave}, speakCap, deliverAlways)
	require.Equal(t, domain.ResponseSuccess, resp.Code)
	assert.Equal(t, domain.ActionSuccess, resp.Results[bob])
	assert.Equal(t, domain.ActionTargetOffline, resp.Results[carol])
	assert.Equal(t, domain.ActionPermissionDenied, resp.Results[dave])
}

func TestRelayInsufficientCapabilityBits(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelYell})

	resp := f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ActionPermissionDenied, resp.Results[bob])

	// Widening the grant flips the outcome.
	_, err := f.st.UpdatePermissions(ctx, bob, alice, domain.Grant{Channels: domain.ChannelYell | domain.ChannelSay})
	require.NoError(t, err)

	resp = f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ActionSuccess, resp.Results[bob])
}

func TestRelayExpiredGrantDenied(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay, Expires: &past})

	resp := f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ActionPermissionDenied, resp.Results[bob])
}

func TestRelayDeliveryFailure(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.reg.Add(bob, &stubHandle{id: "bob", accept: false})
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay})

	resp := f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	require.Equal(t, domain.ResponseSuccess, resp.Code, "delivery failure does not change the overall code")
	assert.Equal(t, domain.ActionDeliveryFailed, resp.Results[bob])
}

func TestRelayStoreFailureDeniesTarget(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.reg.Add(bob, &stubHandle{id: "bob", accept: true})
	f.relay.store = &failingGrantStore{PermissionStore: f.st}

	resp := f.relay.Relay(ctx, "speak", alice, []domain.Identity{bob}, speakCap, deliverAlways)
	assert.Equal(t, domain.ActionPermissionDenied, resp.Results[bob], "unreadable grants fail closed")
}

type failingGrantStore struct {
	store.PermissionStore
}

func (f *failingGrantStore) GetGrant(context.Context, domain.Identity, domain.Identity) (*domain.Grant, error) {
	return nil, store.ErrUnavailable
}
