// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package relay implements the core action-relay pipeline: request-wide
// admission checks followed by independent per-target authorization and
// delivery.
package relay

import (
	"context"
	"time"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/metrics"
	"github.com/linkrelay/linkrelay/internal/presence"
	"github.com/linkrelay/linkrelay/internal/store"
)

// DeliverFunc attempts non-blocking delivery of the action to one
// target's session. Reports false when the session cannot accept it.
type DeliverFunc func(target domain.Identity, h presence.Handle) bool

// Relay runs the admission and per-target pipeline for action requests.
type Relay struct {
	presence  *presence.Registry
	store     store.PermissionStore
	targetCap int

	now func() time.Time
}

// New creates a relay with the given target cap.
func New(reg *presence.Registry, st store.PermissionStore, targetCap int) *Relay {
	return &Relay{presence: reg, store: st, targetCap: targetCap, now: time.Now}
}

// Relay processes one action request.
//
// The admission checks run in a fixed order: target cap, then sender
// cooldown, then structural target validation. The cooldown is only
// consumed by requests that pass the cap check, and a request rejected
// for malformed targets has already consumed it.
//
// Per-target processing is fully independent: presence lookup, then
// capability check against the grant the target extends to the sender,
// then the delivery attempt. One target's denial never affects another.
func (r *Relay) Relay(ctx context.Context, kind string, sender domain.Identity, targets []domain.Identity, capability domain.Capability, deliver DeliverFunc) domain.ActionResponse {
	start := time.Now()
	resp := r.run(ctx, sender, targets, capability, deliver)

	counts := make(map[string]int, len(resp.Results))
	for _, code := range resp.Results {
		counts[string(code)]++
	}
	metrics.RecordRelay(kind, string(resp.Code), counts, time.Since(start))
	return resp
}

func (r *Relay) run(ctx context.Context, sender domain.Identity, targets []domain.Identity, capability domain.Capability, deliver DeliverFunc) domain.ActionResponse {
	if len(targets) > r.targetCap {
		return domain.ActionResponse{Code: domain.ResponseTooManyTargets}
	}

	if !r.presence.CheckAndMarkCooldown(sender) {
		return domain.ActionResponse{Code: domain.ResponseRateLimited}
	}

	if !validTargets(sender, targets) {
		return domain.ActionResponse{Code: domain.ResponseBadTargets}
	}

	now := r.now()
	results := make(map[domain.Identity]domain.ActionResultCode, len(targets))
	for _, target := range targets {
		results[target] = r.processTarget(ctx, sender, target, capability, now, deliver)
	}
	return domain.ActionResponse{Code: domain.ResponseSuccess, Results: results}
}

func (r *Relay) processTarget(ctx context.Context, sender, target domain.Identity, capability domain.Capability, now time.Time, deliver DeliverFunc) domain.ActionResultCode {
	entry := r.presence.TryGet(target)
	if entry == nil {
		return domain.ActionTargetOffline
	}

	// Authorization reads the grant the target extends to the sender.
	grant, err := r.store.GetGrant(ctx, target, sender)
	if err != nil {
		// Fail closed: an unreadable grant authorizes nothing.
		logging.Err(err).
			Str("sender", string(sender)).
			Str("target", string(target)).
			Msg("grant lookup failed during relay")
		return domain.ActionPermissionDenied
	}
	if grant == nil || !grant.Permits(capability, now) {
		return domain.ActionPermissionDenied
	}

	if !deliver(target, entry.Handle) {
		logging.Warn().
			Str("sender", string(sender)).
			Str("target", string(target)).
			Msg("action delivery failed, session buffer full")
		return domain.ActionDeliveryFailed
	}
	return domain.ActionSuccess
}

// validTargets checks the structural requirements: at least one target,
// no duplicates, no self-targeting, every code well formed.
func validTargets(sender domain.Identity, targets []domain.Identity) bool {
	if len(targets) == 0 {
		return false
	}
	seen := make(map[domain.Identity]struct{}, len(targets))
	for _, target := range targets {
		if target == sender || !target.Valid() {
			return false
		}
		if _, dup := seen[target]; dup {
			return false
		}
		seen[target] = struct{}{}
	}
	return true
}
