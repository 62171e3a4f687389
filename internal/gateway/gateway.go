// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package gateway owns the websocket transport: upgrading authenticated
// connections into sessions, running the per-session read and write
// pumps, and binding session lifecycle to the presence registry.
//
// Each session dispatches one inbound call at a time; concurrency
// exists across sessions, never within one. Outbound frames go through
// a bounded queue so a stalled client can never block a sender.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/linkrelay/linkrelay/internal/auth"
	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/handler"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/metrics"
	"github.com/linkrelay/linkrelay/internal/pairing"
	"github.com/linkrelay/linkrelay/internal/presence"
)

// Gateway upgrades websocket connections and supervises their sessions.
type Gateway struct {
	presence   *presence.Registry
	pairing    *pairing.Service
	dispatcher *handler.Dispatcher
	jwt        *auth.JWTManager
	upgrader   websocket.Upgrader
	sendBuffer int

	register   chan *session
	unregister chan *session

	// ctx is the hub lifetime set by Serve; sessions dispatch under it.
	mu  sync.RWMutex
	ctx context.Context
}

// New creates the gateway.
func New(reg *presence.Registry, pr *pairing.Service, d *handler.Dispatcher, jwt *auth.JWTManager, sendBuffer int) *Gateway {
	return &Gateway{
		presence:   reg,
		pairing:    pr,
		dispatcher: d,
		jwt:        jwt,
		sendBuffer: sendBuffer,
		register:   make(chan *session),
		unregister: make(chan *session),
		ctx:        context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth makes the origin check moot for a native
			// client; browsers are not a supported client.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve runs the hub loop until the context is cancelled, then closes
// every live session. Implements suture.Service.
func (g *Gateway) Serve(ctx context.Context) error {
	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()
	sessions := make(map[*session]struct{})

	for {
		select {
		case s := <-g.register:
			sessions[s] = struct{}{}
		case s := <-g.unregister:
			delete(sessions, s)
		case <-ctx.Done():
			for s := range sessions {
				s.close()
			}
			return ctx.Err()
		}
	}
}

func (g *Gateway) String() string { return "session-gateway" }

// context returns the hub lifetime context.
func (g *Gateway) context() context.Context {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ctx
}

// HandleWS is the /ws endpoint. The bearer token is verified before the
// upgrade; the identity bound here is the only identity the session
// ever acts as.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	identity, err := g.jwt.Verify(token)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(g, identity, conn)

	// A reconnecting client replaces its previous session; the stale
	// connection is closed so it cannot linger until ping timeout.
	if old := g.presence.TryGet(identity); old != nil {
		if prev, ok := old.Handle.(*session); ok {
			prev.close()
		}
	}
	if replaced := g.presence.Add(identity, s); replaced {
		metrics.SessionEvents.WithLabelValues("replace").Inc()
	} else {
		metrics.SessionEvents.WithLabelValues("connect").Inc()
	}
	metrics.SessionsActive.Set(float64(g.presence.Count()))

	hubCtx := g.context()
	select {
	case g.register <- s:
	case <-hubCtx.Done():
		s.close()
		return
	}

	logging.Info().
		Str("identity", string(identity)).
		Str("session", s.id).
		Msg("session active")
	g.pairing.NotifyPresence(hubCtx, identity, domain.PeerOnline)

	go s.writePump()
	go s.readPump()
}

// drop finalizes a session after its read pump exits.
func (g *Gateway) drop(s *session) {
	hubCtx := g.context()
	select {
	case g.unregister <- s:
	case <-hubCtx.Done():
	}

	// Only the live entry holder announces the offline transition; a
	// replaced session going away must not mark the identity offline.
	if removed := g.presence.RemoveIfHandle(s.identity, s.id); removed {
		metrics.SessionEvents.WithLabelValues("disconnect").Inc()
		metrics.SessionsActive.Set(float64(g.presence.Count()))
		g.pairing.NotifyPresence(hubCtx, s.identity, domain.PeerOffline)
		logging.Info().
			Str("identity", string(s.identity)).
			Str("session", s.id).
			Msg("session closed")
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// Browser websocket clients cannot set headers on the upgrade.
	return r.URL.Query().Get("token")
}
