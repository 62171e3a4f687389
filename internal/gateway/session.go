// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package gateway

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a silent peer stays alive; pings go out at
	// pingPeriod so a healthy peer always answers in time.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. The largest legal payload
	// is a customization profile; everything above this is a protocol
	// violation.
	maxMessageSize = 128 * 1024
)

// session is one authenticated websocket connection. It implements
// presence.Handle; deliveries from other sessions arrive through
// TrySend and are serialized onto the connection by the write pump.
type session struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	gw       *Gateway

	// send carries marshalled frames to the write pump. Bounded; a full
	// queue fails the delivery rather than blocking the sender.
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(g *Gateway, identity domain.Identity, conn *websocket.Conn) *session {
	return &session{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		gw:       g,
		send:     make(chan []byte, g.sendBuffer),
		closed:   make(chan struct{}),
	}
}

// ID implements presence.Handle.
func (s *session) ID() string { return s.id }

// TrySend implements presence.Handle: non-blocking enqueue of a push
// frame. Reports false when the session is closed or its queue is full.
func (s *session) TrySend(frame domain.Push) bool {
	raw, err := json.Marshal(frame)
	if err != nil {
		logging.Err(err).Str("method", frame.Method).Msg("push marshalling failed")
		return false
	}
	return s.enqueue(raw)
}

func (s *session) enqueue(raw []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- raw:
		return true
	default:
		return false
	}
}

// close makes the write pump exit, which tears down the connection.
// Safe to call from any goroutine, any number of times.
func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// readPump reads calls and dispatches them serially. It owns the
// inbound side of the connection; when it returns the session is done.
func (s *session) readPump() {
	defer func() {
		s.close()
		_ = s.conn.Close()
		s.gw.drop(s)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().
					Err(err).
					Str("identity", string(s.identity)).
					Msg("session read error")
			}
			return
		}

		var call domain.Call
		if err := json.Unmarshal(raw, &call); err != nil {
			s.reply(domain.Reply{Result: domain.ErrorResponse{
				Code:   domain.ResponseBadRequest,
				Detail: "malformed frame",
			}})
			continue
		}

		result := s.gw.dispatcher.Dispatch(s.gw.context(), s.identity, call)
		if !s.reply(domain.Reply{ID: call.ID, Result: result}) {
			return
		}
	}
}

// reply enqueues a response frame. Unlike pushes, a reply that cannot
// be queued ends the session: the client is not consuming its own
// responses.
func (s *session) reply(r domain.Reply) bool {
	raw, err := json.Marshal(r)
	if err != nil {
		logging.Err(err).Uint64("call_id", r.ID).Msg("reply marshalling failed")
		return false
	}
	return s.enqueue(raw)
}

// writePump serializes outbound frames and keepalive pings onto the
// connection. It owns all writes.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case raw := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
