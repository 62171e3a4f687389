// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package store persists accounts and the directed per-pair permission
// graph. The contract is implemented twice: a Postgres store on pgx for
// production and an in-memory store for tests and single-node dev mode.
// A circuit breaker wrapper guards the read path used by the relay.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/linkrelay/linkrelay/internal/domain"
)

// ErrUnavailable marks a store failure that is infrastructural, not
// semantic: connection loss, timeout, open circuit breaker. Callers
// surface it as an unknown-outcome result, never as a denial.
var ErrUnavailable = errors.New("permission store unavailable")

// StoreResult is the typed outcome of a permission write.
type StoreResult int

const (
	// ResultCreated: a new edge was inserted and the reverse direction
	// does not exist yet.
	ResultCreated StoreResult = iota

	// ResultPaired: a new edge was inserted and the reverse direction
	// already existed, completing a mutual pairing.
	ResultPaired

	// ResultAlreadyExists: the edge was already present; nothing changed.
	ResultAlreadyExists

	// ResultNoSuchUser: the named counterparty identity does not exist.
	ResultNoSuchUser

	// ResultNoOp: the operation had no edge to act on.
	ResultNoOp

	// ResultDone: the write completed.
	ResultDone
)

// PairGrants holds both directions of one pair's permission edges. A nil
// pointer means that direction has no edge.
type PairGrants struct {
	AToB *domain.Grant
	BToA *domain.Grant
}

// PeerPermissions is one row of an identity's relationship listing.
type PeerPermissions struct {
	Peer domain.Identity

	// Granted is the grant the identity extends to the peer.
	Granted *domain.Grant

	// Received is the grant the peer extends to the identity.
	Received *domain.Grant
}

// Edge names one directed permission edge, used by the expiry sweeper to
// notify affected peers after a purge.
type Edge struct {
	Granter domain.Identity
	Grantee domain.Identity
}

// PermissionStore is the persistence contract for accounts and the
// permission graph. All writes touching multiple rows are atomic.
type PermissionStore interface {
	// AuthenticateUser verifies the shared secret and returns every
	// identity registered under it. An unknown or wrong secret returns
	// an empty slice and no error.
	AuthenticateUser(ctx context.Context, secret string) ([]domain.Identity, error)

	// LoginUser reports whether the secret owns the given identity.
	LoginUser(ctx context.Context, secret string, id domain.Identity) (bool, error)

	// CreatePermissions inserts the edge granter->grantee with the given
	// grant. Returns ResultNoSuchUser, ResultAlreadyExists,
	// ResultCreated, or ResultPaired.
	CreatePermissions(ctx context.Context, granter, grantee domain.Identity, g domain.Grant) (StoreResult, error)

	// UpdatePermissions replaces the grant on an existing edge. Returns
	// ResultNoOp when the edge does not exist, ResultDone otherwise.
	UpdatePermissions(ctx context.Context, granter, grantee domain.Identity, g domain.Grant) (StoreResult, error)

	// DeletePermissions removes the edge granter->grantee. Idempotent:
	// ResultNoOp when absent, ResultDone when removed.
	DeletePermissions(ctx context.Context, granter, grantee domain.Identity) (StoreResult, error)

	// GetGrant returns the grant on the edge granter->grantee, or nil
	// when the edge does not exist.
	GetGrant(ctx context.Context, granter, grantee domain.Identity) (*domain.Grant, error)

	// GetPermissions returns both directions between a and b.
	GetPermissions(ctx context.Context, a, b domain.Identity) (PairGrants, error)

	// GetAllPermissions returns one row per peer the identity shares at
	// least one directed edge with.
	GetAllPermissions(ctx context.Context, id domain.Identity) ([]PeerPermissions, error)

	// UserExists reports whether the identity is registered.
	UserExists(ctx context.Context, id domain.Identity) (bool, error)

	// DeleteExpired removes every edge whose grant expired at or before
	// now and returns the removed edges.
	DeleteExpired(ctx context.Context, now time.Time) ([]Edge, error)

	// CreateAccount registers a secret with its identities. Provisioning
	// only; the relay core never calls it.
	CreateAccount(ctx context.Context, secret string, ids []domain.Identity) error

	// Close releases the store's resources.
	Close()
}
