// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package handler translates wire calls into relay, pairing, and chat
// operations. Each relayable action kind is one ActionHandler value
// that validates the payload, derives the required capability, and
// builds the command forwarded to target sessions. The dispatcher owns
// the method table; the gateway stays pure transport.
package handler

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/pairing"
	"github.com/linkrelay/linkrelay/internal/presence"
	"github.com/linkrelay/linkrelay/internal/relay"
	"github.com/linkrelay/linkrelay/internal/validation"
)

// ParsedAction is the relay input produced by an ActionHandler.
type ParsedAction struct {
	Targets    []domain.Identity
	Capability domain.Capability

	// Command builds the payload forwarded to each target, with the
	// sender stamped from the authenticated session.
	Command func(sender domain.Identity) any
}

// ActionHandler validates one action kind's payload and derives the
// relay inputs. Parse errors are user errors; they map to a bad-request
// reply, never to a dropped session.
type ActionHandler interface {
	Kind() string
	Parse(raw json.RawMessage) (*ParsedAction, error)
}

// Dispatcher routes authenticated calls to their handlers.
type Dispatcher struct {
	relay   *relay.Relay
	pairing *pairing.Service
	chat    *Chat
	actions map[string]ActionHandler
}

// NewDispatcher builds the method table. Moodle and customization blob
// limits come from config.
func NewDispatcher(rl *relay.Relay, pr *pairing.Service, chat *Chat, moodleMax, customizationMax int) *Dispatcher {
	d := &Dispatcher{
		relay:   rl,
		pairing: pr,
		chat:    chat,
		actions: make(map[string]ActionHandler),
	}
	for _, h := range []ActionHandler{
		speakHandler{},
		emoteHandler{},
		honorificHandler{},
		moodleHandler{maxBytes: moodleMax},
		customizationHandler{maxBytes: customizationMax},
	} {
		d.actions[h.Kind()] = h
	}
	return d
}

// Dispatch executes one call for the authenticated caller and returns
// the reply payload. Every outcome is a typed response; errors never
// propagate to the session loop.
func (d *Dispatcher) Dispatch(ctx context.Context, caller domain.Identity, call domain.Call) any {
	switch call.Method {
	case domain.MethodAddPair:
		var req domain.AddPairRequest
		if resp := decode(call.Payload, &req); resp != nil {
			return *resp
		}
		return d.pairing.CreatePairRequest(ctx, caller, req.Target, domain.Grant{})

	case domain.MethodRemovePair:
		var req domain.RemovePairRequest
		if resp := decode(call.Payload, &req); resp != nil {
			return *resp
		}
		return d.pairing.RemovePair(ctx, caller, req.Target)

	case domain.MethodUpdatePermissions:
		var req domain.UpdatePermissionsRequest
		if resp := decode(call.Payload, &req); resp != nil {
			return *resp
		}
		return d.pairing.UpdatePermissions(ctx, caller, req.Target, req.Grant)

	case domain.MethodGetAccountData:
		data, err := d.pairing.AccountData(ctx, caller)
		if err != nil {
			logging.Err(err).Str("caller", string(caller)).Msg("account data lookup failed")
			return domain.ErrorResponse{Code: domain.ResponseUnknown}
		}
		return data

	case domain.MethodSendChatMessage:
		var req domain.ChatMessageRequest
		if resp := decode(call.Payload, &req); resp != nil {
			return *resp
		}
		return d.chat.Send(caller, req)

	default:
		h, ok := d.actions[call.Method]
		if !ok {
			return domain.ErrorResponse{
				Code:   domain.ResponseBadRequest,
				Detail: fmt.Sprintf("unknown method %q", call.Method),
			}
		}
		return d.relayAction(ctx, caller, h, call.Payload)
	}
}

func (d *Dispatcher) relayAction(ctx context.Context, caller domain.Identity, h ActionHandler, raw json.RawMessage) any {
	parsed, err := h.Parse(raw)
	if err != nil {
		return domain.ErrorResponse{Code: domain.ResponseBadRequest, Detail: err.Error()}
	}

	command := parsed.Command(caller)
	return d.relay.Relay(ctx, h.Kind(), caller, parsed.Targets, parsed.Capability,
		func(_ domain.Identity, handle presence.Handle) bool {
			return handle.TrySend(domain.Push{Method: h.Kind(), Payload: command})
		})
}

// decode unmarshals and validates a request payload, returning a
// bad-request response on failure.
func decode(raw json.RawMessage, into any) *domain.ErrorResponse {
	if len(raw) == 0 {
		return &domain.ErrorResponse{Code: domain.ResponseBadRequest, Detail: "missing payload"}
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &domain.ErrorResponse{Code: domain.ResponseBadRequest, Detail: "malformed payload"}
	}
	if err := validation.ValidateStruct(into); err != nil {
		return &domain.ErrorResponse{Code: domain.ResponseBadRequest, Detail: err.Error()}
	}
	return nil
}
