// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingService struct {
	starts atomic.Int32
	fail   atomic.Bool
}

func (s *countingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	if s.fail.Load() {
		s.fail.Store(false)
		return errors.New("simulated crash")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return "counting-service" }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeRestartsCrashedService(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{
		FailureBackoff:  50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	svc := &countingService{}
	svc.fail.Store(true)
	tree.AddMaintenanceService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = tree.Serve(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && svc.starts.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, svc.starts.Load(), int32(2), "crashed service was restarted")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}
}

func TestTreeShutdownStopsAllLayers(t *testing.T) {
	tree := NewTree(quietLogger(), DefaultTreeConfig())

	a := &countingService{}
	b := &countingService{}
	tree.AddMessagingService(a)
	tree.AddMaintenanceService(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = tree.Serve(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (a.starts.Load() == 0 || b.starts.Load() == 0) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int32(1), a.starts.Load())
	assert.Equal(t, int32(1), b.starts.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}
}
