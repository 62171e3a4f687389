// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package pairing manages the directed permission graph: creating pair
// requests, removing edges, and updating grants, with presence-sync and
// permission-sync pushes to the online counterparty. All mutations go
// through the permission store; the service layers presence awareness
// and push notifications on top of the store's typed results.
package pairing

import (
	"context"
	"time"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/metrics"
	"github.com/linkrelay/linkrelay/internal/presence"
	"github.com/linkrelay/linkrelay/internal/store"
)

// Service implements the pairing operations over a permission store and
// the presence registry.
type Service struct {
	store    store.PermissionStore
	presence *presence.Registry
}

// NewService creates a pairing service.
func NewService(st store.PermissionStore, reg *presence.Registry) *Service {
	return &Service{store: st, presence: reg}
}

// CreatePairRequest inserts the directed edge caller->target with the
// given initial grant. The pairing becomes mutual only when the target
// reciprocates with its own request.
func (s *Service) CreatePairRequest(ctx context.Context, caller, target domain.Identity, grant domain.Grant) domain.PairResponse {
	if caller == target {
		metrics.PairOperations.WithLabelValues("create", string(domain.PairSelfPairRejected)).Inc()
		return domain.PairResponse{Code: domain.PairSelfPairRejected, Status: domain.PeerOffline}
	}

	res, err := s.store.CreatePermissions(ctx, caller, target, grant)
	if err != nil {
		logging.Err(err).
			Str("caller", string(caller)).
			Str("target", string(target)).
			Msg("create pair request failed")
		metrics.PairOperations.WithLabelValues("create", string(domain.PairUnknown)).Inc()
		return domain.PairResponse{Code: domain.PairUnknown, Status: domain.PeerOffline}
	}

	resp := domain.PairResponse{Status: domain.PeerPending}
	switch res {
	case store.ResultNoSuchUser:
		resp.Code = domain.PairNoSuchIdentity
		resp.Status = domain.PeerOffline
	case store.ResultAlreadyExists:
		resp.Code = domain.PairAlreadyPending
	case store.ResultCreated:
		resp.Code = domain.PairPending
		// The target learns a request is waiting for them.
		s.presence.Push(target, domain.PushPresenceSync, domain.PresenceSync{
			Identity: caller,
			Status:   domain.PeerPending,
			Grant:    &grant,
		})
	case store.ResultPaired:
		resp.Code = domain.PairPaired
		resp.Status = s.peerStatus(target)
		s.presence.Push(target, domain.PushPresenceSync, domain.PresenceSync{
			Identity: caller,
			Status:   s.peerStatus(caller),
			Grant:    &grant,
		})
	default:
		resp.Code = domain.PairUnknown
	}

	metrics.PairOperations.WithLabelValues("create", string(resp.Code)).Inc()
	return resp
}

// RemovePair deletes the edge caller->target. Idempotent. The target's
// view demotes to pending when their own edge toward the caller
// survives, and to no relationship otherwise.
func (s *Service) RemovePair(ctx context.Context, caller, target domain.Identity) domain.PairStateResponse {
	res, err := s.store.DeletePermissions(ctx, caller, target)
	if err != nil {
		logging.Err(err).
			Str("caller", string(caller)).
			Str("target", string(target)).
			Msg("remove pair failed")
		metrics.PairOperations.WithLabelValues("remove", string(domain.PairUnknown)).Inc()
		return domain.PairStateResponse{Code: domain.PairUnknown}
	}
	if res == store.ResultNoOp {
		metrics.PairOperations.WithLabelValues("remove", string(domain.PairNoOp)).Inc()
		return domain.PairStateResponse{Code: domain.PairNoOp}
	}

	reverse, err := s.store.GetGrant(ctx, target, caller)
	if err != nil {
		// The removal already happened; the push is best effort.
		logging.Err(err).Str("target", string(target)).Msg("reverse edge lookup failed after removal")
	}
	sync := domain.PresenceSync{Identity: caller, Status: domain.PeerOffline}
	if reverse != nil {
		sync.Status = domain.PeerPending
	}
	s.presence.Push(target, domain.PushPresenceSync, sync)

	metrics.PairOperations.WithLabelValues("remove", string(domain.PairDone)).Inc()
	return domain.PairStateResponse{Code: domain.PairDone}
}

// UpdatePermissions replaces the grant on the existing edge
// caller->target and notifies the online target of its new
// capabilities.
func (s *Service) UpdatePermissions(ctx context.Context, caller, target domain.Identity, grant domain.Grant) domain.PairStateResponse {
	res, err := s.store.UpdatePermissions(ctx, caller, target, grant)
	if err != nil {
		logging.Err(err).
			Str("caller", string(caller)).
			Str("target", string(target)).
			Msg("update permissions failed")
		metrics.PairOperations.WithLabelValues("update", string(domain.PairUnknown)).Inc()
		return domain.PairStateResponse{Code: domain.PairUnknown}
	}
	if res == store.ResultNoOp {
		metrics.PairOperations.WithLabelValues("update", string(domain.PairNoOp)).Inc()
		return domain.PairStateResponse{Code: domain.PairNoOp}
	}

	s.presence.Push(target, domain.PushPermissionSync, domain.PermissionSync{
		Identity: caller,
		Grant:    grant,
	})

	metrics.PairOperations.WithLabelValues("update", string(domain.PairDone)).Inc()
	return domain.PairStateResponse{Code: domain.PairDone}
}

// GetPermissions returns both directions between a and b.
func (s *Service) GetPermissions(ctx context.Context, a, b domain.Identity) (store.PairGrants, error) {
	return s.store.GetPermissions(ctx, a, b)
}

// AccountData assembles the caller's full relationship listing with
// per-peer status.
func (s *Service) AccountData(ctx context.Context, caller domain.Identity) (domain.AccountData, error) {
	rows, err := s.store.GetAllPermissions(ctx, caller)
	if err != nil {
		return domain.AccountData{}, err
	}

	data := domain.AccountData{
		Identity:      caller,
		Relationships: make([]domain.Relationship, 0, len(rows)),
	}
	for _, row := range rows {
		rel := domain.Relationship{
			Peer:     row.Peer,
			Granted:  row.Granted,
			Received: row.Received,
			Status:   domain.PeerPending,
		}
		if row.Granted != nil && row.Received != nil {
			rel.Status = s.peerStatus(row.Peer)
		}
		data.Relationships = append(data.Relationships, rel)
	}
	return data, nil
}

// NotifyPresence pushes the identity's presence transition to every
// online peer it is mutually paired with. The grant carried is the one
// the identity extends to that peer.
func (s *Service) NotifyPresence(ctx context.Context, id domain.Identity, status domain.PeerStatus) {
	rows, err := s.store.GetAllPermissions(ctx, id)
	if err != nil {
		logging.Err(err).Str("identity", string(id)).Msg("presence notification lookup failed")
		return
	}
	for _, row := range rows {
		if row.Granted == nil || row.Received == nil {
			continue
		}
		s.presence.Push(row.Peer, domain.PushPresenceSync, domain.PresenceSync{
			Identity: id,
			Status:   status,
			Grant:    row.Granted,
		})
	}
}

// SweepExpired purges expired edges and demotes affected online peers'
// views. Called periodically by the supervised sweeper.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, edge := range removed {
		metrics.GrantsExpired.Inc()

		// The grantee loses capabilities; their view of the granter
		// demotes the same way an explicit removal would.
		reverse, err := s.store.GetGrant(ctx, edge.Grantee, edge.Granter)
		if err != nil {
			logging.Err(err).Msg("reverse edge lookup failed during expiry sweep")
			continue
		}
		sync := domain.PresenceSync{Identity: edge.Granter, Status: domain.PeerOffline}
		if reverse != nil {
			sync.Status = domain.PeerPending
		}
		s.presence.Push(edge.Grantee, domain.PushPresenceSync, sync)
	}
	return len(removed), nil
}

func (s *Service) peerStatus(id domain.Identity) domain.PeerStatus {
	if s.presence.TryGet(id) != nil {
		return domain.PeerOnline
	}
	return domain.PeerOffline
}
