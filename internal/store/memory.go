// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package store

import (
	"context"
	"sync"
	"time"

	"github.com/linkrelay/linkrelay/internal/domain"
)

// MemoryStore is an in-process PermissionStore with the same result
// semantics as the Postgres store. It backs tests and dev mode when no
// database URL is configured.
type MemoryStore struct {
	mu sync.RWMutex

	// accounts maps the secret lookup key to the argon2id hash and the
	// identities registered under it.
	accounts map[string]*memoryAccount

	// identities maps every registered identity to its account key.
	identities map[domain.Identity]string

	// grants maps granter -> grantee -> grant.
	grants map[domain.Identity]map[domain.Identity]domain.Grant
}

type memoryAccount struct {
	secretHash string
	identities []domain.Identity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*memoryAccount),
		identities: make(map[domain.Identity]string),
		grants:     make(map[domain.Identity]map[domain.Identity]domain.Grant),
	}
}

func (m *MemoryStore) CreateAccount(_ context.Context, secret string, ids []domain.Identity) error {
	hash, err := hashSecret(secret)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(lookupKey(secret))
	acct := &memoryAccount{secretHash: hash}
	for _, id := range ids {
		acct.identities = append(acct.identities, id)
		m.identities[id] = key
	}
	m.accounts[key] = acct
	return nil
}

func (m *MemoryStore) AuthenticateUser(_ context.Context, secret string) ([]domain.Identity, error) {
	m.mu.RLock()
	acct := m.accounts[string(lookupKey(secret))]
	m.mu.RUnlock()

	if acct == nil {
		return nil, nil
	}
	ok, err := verifySecret(secret, acct.secretHash)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]domain.Identity, len(acct.identities))
	copy(out, acct.identities)
	return out, nil
}

func (m *MemoryStore) LoginUser(ctx context.Context, secret string, id domain.Identity) (bool, error) {
	ids, err := m.AuthenticateUser(ctx, secret)
	if err != nil {
		return false, err
	}
	for _, candidate := range ids {
		if candidate == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreatePermissions(_ context.Context, granter, grantee domain.Identity, g domain.Grant) (StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[grantee]; !ok {
		return ResultNoSuchUser, nil
	}
	if _, ok := m.grants[granter][grantee]; ok {
		return ResultAlreadyExists, nil
	}

	if m.grants[granter] == nil {
		m.grants[granter] = make(map[domain.Identity]domain.Grant)
	}
	m.grants[granter][grantee] = g

	if _, reverse := m.grants[grantee][granter]; reverse {
		return ResultPaired, nil
	}
	return ResultCreated, nil
}

func (m *MemoryStore) UpdatePermissions(_ context.Context, granter, grantee domain.Identity, g domain.Grant) (StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.grants[granter][grantee]; !ok {
		return ResultNoOp, nil
	}
	m.grants[granter][grantee] = g
	return ResultDone, nil
}

func (m *MemoryStore) DeletePermissions(_ context.Context, granter, grantee domain.Identity) (StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.grants[granter][grantee]; !ok {
		return ResultNoOp, nil
	}
	delete(m.grants[granter], grantee)
	return ResultDone, nil
}

func (m *MemoryStore) GetGrant(_ context.Context, granter, grantee domain.Identity) (*domain.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grants[granter][grantee]
	if !ok {
		return nil, nil
	}
	out := g
	return &out, nil
}

func (m *MemoryStore) GetPermissions(ctx context.Context, a, b domain.Identity) (PairGrants, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pg PairGrants
	if g, ok := m.grants[a][b]; ok {
		out := g
		pg.AToB = &out
	}
	if g, ok := m.grants[b][a]; ok {
		out := g
		pg.BToA = &out
	}
	return pg, nil
}

func (m *MemoryStore) GetAllPermissions(_ context.Context, id domain.Identity) ([]PeerPermissions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make(map[domain.Identity]*PeerPermissions)
	for grantee, g := range m.grants[id] {
		out := g
		rows[grantee] = &PeerPermissions{Peer: grantee, Granted: &out}
	}
	for granter, edges := range m.grants {
		if granter == id {
			continue
		}
		g, ok := edges[id]
		if !ok {
			continue
		}
		out := g
		row := rows[granter]
		if row == nil {
			row = &PeerPermissions{Peer: granter}
			rows[granter] = row
		}
		row.Received = &out
	}

	result := make([]PeerPermissions, 0, len(rows))
	for _, row := range rows {
		result = append(result, *row)
	}
	return result, nil
}

func (m *MemoryStore) UserExists(_ context.Context, id domain.Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.identities[id]
	return ok, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []Edge
	for granter, edges := range m.grants {
		for grantee, g := range edges {
			if g.ExpiredAt(now) {
				delete(edges, grantee)
				removed = append(removed, Edge{Granter: granter, Grantee: grantee})
			}
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() {}
