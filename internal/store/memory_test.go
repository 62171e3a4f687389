// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkrelay/linkrelay/internal/domain"
)

const (
	alice = domain.Identity("ALICE001")
	bob   = domain.Identity("BOBBY002")
	carol = domain.Identity("CAROL003")
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "alice-secret", []domain.Identity{alice}))
	require.NoError(t, m.CreateAccount(ctx, "bob-secret", []domain.Identity{bob}))
	require.NoError(t, m.CreateAccount(ctx, "carol-secret", []domain.Identity{carol}))
	return m
}

func TestAuthenticateUser(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	ids, err := m.AuthenticateUser(ctx, "alice-secret")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{alice}, ids)

	ids, err = m.AuthenticateUser(ctx, "wrong-secret")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLoginUser(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	ok, err := m.LoginUser(ctx, "alice-secret", alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.LoginUser(ctx, "alice-secret", bob)
	require.NoError(t, err)
	assert.False(t, ok, "secret must not log into another account's identity")
}

func TestCreatePermissionsLifecycle(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	res, err := m.CreatePermissions(ctx, alice, "NOBODY00", domain.Grant{})
	require.NoError(t, err)
	assert.Equal(t, ResultNoSuchUser, res)

	res, err = m.CreatePermissions(ctx, alice, bob, domain.Grant{})
	require.NoError(t, err)
	assert.Equal(t, ResultCreated, res)

	res, err = m.CreatePermissions(ctx, alice, bob, domain.Grant{})
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyExists, res)

	// Reverse edge completes the pairing.
	res, err = m.CreatePermissions(ctx, bob, alice, domain.Grant{})
	require.NoError(t, err)
	assert.Equal(t, ResultPaired, res)
}

func TestUpdatePermissionsRequiresEdge(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	g := domain.Grant{Channels: domain.ChannelSay}
	res, err := m.UpdatePermissions(ctx, alice, bob, g)
	require.NoError(t, err)
	assert.Equal(t, ResultNoOp, res)

	_, err = m.CreatePermissions(ctx, alice, bob, domain.Grant{})
	require.NoError(t, err)

	res, err = m.UpdatePermissions(ctx, alice, bob, g)
	require.NoError(t, err)
	assert.Equal(t, ResultDone, res)

	got, err := m.GetGrant(ctx, alice, bob)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Channels.Has(domain.ChannelSay))
}

func TestDeletePermissionsIdempotent(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	_, err := m.CreatePermissions(ctx, alice, bob, domain.Grant{})
	require.NoError(t, err)

	res, err := m.DeletePermissions(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, ResultDone, res)

	res, err = m.DeletePermissions(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, ResultNoOp, res)
}

func TestGetPermissionsBothDirections(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	_, err := m.CreatePermissions(ctx, alice, bob, domain.Grant{Channels: domain.ChannelSay})
	require.NoError(t, err)

	pg, err := m.GetPermissions(ctx, alice, bob)
	require.NoError(t, err)
	require.NotNil(t, pg.AToB)
	assert.Nil(t, pg.BToA)
	assert.True(t, pg.AToB.Channels.Has(domain.ChannelSay))

	_, err = m.CreatePermissions(ctx, bob, alice, domain.Grant{Primary: domain.PrimaryEmote})
	require.NoError(t, err)

	pg, err = m.GetPermissions(ctx, alice, bob)
	require.NoError(t, err)
	require.NotNil(t, pg.BToA)
	assert.True(t, pg.BToA.Primary.Has(domain.PrimaryEmote))
}

func TestGetAllPermissions(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()

	_, err := m.CreatePermissions(ctx, alice, bob, domain.Grant{})
	require.NoError(t, err)
	_, err = m.CreatePermissions(ctx, bob, alice, domain.Grant{})
	require.NoError(t, err)
	_, err = m.CreatePermissions(ctx, carol, alice, domain.Grant{})
	require.NoError(t, err)

	rows, err := m.GetAllPermissions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byPeer := make(map[domain.Identity]PeerPermissions)
	for _, row := range rows {
		byPeer[row.Peer] = row
	}

	require.Contains(t, byPeer, bob)
	assert.NotNil(t, byPeer[bob].Granted)
	assert.NotNil(t, byPeer[bob].Received)

	require.Contains(t, byPeer, carol)
	assert.Nil(t, byPeer[carol].Granted, "carol's request is one-directional")
	assert.NotNil(t, byPeer[carol].Received)
}

func TestDeleteExpired(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	_, err := m.CreatePermissions(ctx, alice, bob, domain.Grant{Expires: &past})
	require.NoError(t, err)
	_, err = m.CreatePermissions(ctx, bob, alice, domain.Grant{Expires: &future})
	require.NoError(t, err)
	_, err = m.CreatePermissions(ctx, alice, carol, domain.Grant{})
	require.NoError(t, err)

	removed, err := m.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, Edge{Granter: alice, Grantee: bob}, removed[0])

	g, err := m.GetGrant(ctx, alice, bob)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = m.GetGrant(ctx, bob, alice)
	require.NoError(t, err)
	assert.NotNil(t, g, "unexpired grant survives the sweep")
}
