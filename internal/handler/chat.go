// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package handler

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/presence"
)

// aliasSuffixLen is how many identity characters the chat alias keeps.
// The full friend code never appears in the global channel.
const aliasSuffixLen = 4

// Chat broadcasts global chat messages to every active session. A
// shared token bucket bounds the whole channel's throughput; chat is a
// courtesy feature and must never crowd out action relays.
type Chat struct {
	presence *presence.Registry
	limiter  *rate.Limiter

	now func() time.Time
}

// NewChat creates the global chat broadcaster.
func NewChat(reg *presence.Registry, messagesPerSecond float64, burst int) *Chat {
	return &Chat{
		presence: reg,
		limiter:  rate.NewLimiter(rate.Limit(messagesPerSecond), burst),
		now:      time.Now,
	}
}

// Send validates and broadcasts one message from the caller.
func (c *Chat) Send(caller domain.Identity, req domain.ChatMessageRequest) domain.ChatMessageResponse {
	if strings.ContainsAny(req.Message, "\r\n") {
		return domain.ChatMessageResponse{
			Code:   domain.ResponseBadRequest,
			Detail: "message must not contain line breaks",
		}
	}

	if !c.limiter.Allow() {
		return domain.ChatMessageResponse{Code: domain.ResponseRateLimited}
	}

	c.presence.Broadcast(domain.PushChatMessageReceived, domain.ChatMessageReceived{
		Alias:   Alias(req.Title, caller),
		Message: req.Message,
		SentAt:  c.now(),
	})
	return domain.ChatMessageResponse{Code: domain.ResponseSuccess}
}

// Alias builds the display name for global chat: the chosen title plus
// the identity's last characters, enough to disambiguate without
// exposing the full friend code.
func Alias(title string, id domain.Identity) string {
	if title == "" {
		title = "Anon"
	}
	return fmt.Sprintf("%s#%s", title, id.Suffix(aliasSuffixLen))
}
