// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/metrics"
)

// BreakerStore guards the read path the relay depends on with a circuit
// breaker. A database that starts timing out must fail relays fast
// instead of stacking up blocked sessions; while the breaker is open
// every guarded call returns ErrUnavailable immediately. Writes pass
// through unguarded so pairing operations keep their exact store
// semantics.
type BreakerStore struct {
	PermissionStore
	cb *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with a breaker that opens after
// failureThreshold consecutive failures and probes again after
// openTimeout.
func NewBreakerStore(inner PermissionStore, failureThreshold uint32, openTimeout time.Duration) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "permission-store",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("permission store breaker state change")
			metrics.StoreBreakerState.Set(breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			// Semantic results (absent rows, wrong secrets) must not
			// trip the breaker; only infrastructure failures count.
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
	}
	return &BreakerStore{
		PermissionStore: inner,
		cb:              gobreaker.NewCircuitBreaker[any](settings),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, err
}

func (b *BreakerStore) GetGrant(ctx context.Context, granter, grantee domain.Identity) (*domain.Grant, error) {
	out, err := b.execute(func() (any, error) {
		return b.PermissionStore.GetGrant(ctx, granter, grantee)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.Grant), nil
}

func (b *BreakerStore) GetPermissions(ctx context.Context, a, bID domain.Identity) (PairGrants, error) {
	out, err := b.execute(func() (any, error) {
		return b.PermissionStore.GetPermissions(ctx, a, bID)
	})
	if err != nil {
		return PairGrants{}, err
	}
	return out.(PairGrants), nil
}

func (b *BreakerStore) GetAllPermissions(ctx context.Context, id domain.Identity) ([]PeerPermissions, error) {
	out, err := b.execute(func() (any, error) {
		return b.PermissionStore.GetAllPermissions(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.([]PeerPermissions), nil
}

func (b *BreakerStore) UserExists(ctx context.Context, id domain.Identity) (bool, error) {
	out, err := b.execute(func() (any, error) {
		return b.PermissionStore.UserExists(ctx, id)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}
