// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package pairing

import (
	"context"
	"time"

	"github.com/linkrelay/linkrelay/internal/logging"
)

// Sweeper periodically purges expired grants. It runs as a supervised
// service; a store outage makes a sweep fail and the next tick retries.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper creates a sweeper ticking at the given interval.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Serve runs the sweep loop until the context is cancelled. Implements
// suture.Service.
func (w *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			n, err := w.svc.SweepExpired(ctx, now)
			if err != nil {
				logging.Err(err).Msg("grant expiry sweep failed")
				continue
			}
			if n > 0 {
				logging.Info().Int("removed", n).Msg("expired grants purged")
			}
		}
	}
}

func (w *Sweeper) String() string { return "grant-expiry-sweeper" }
