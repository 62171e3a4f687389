// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// Remote-callable methods. Every call is implicitly scoped to the
// caller's authenticated identity; payloads never carry a sender field
// the server trusts.
const (
	MethodAddPair           = "add-pair"
	MethodRemovePair        = "remove-pair"
	MethodUpdatePermissions = "update-pair-permissions"
	MethodSpeak             = "speak"
	MethodEmote             = "emote"
	MethodSetHonorific      = "set-honorific"
	MethodSetMoodle         = "set-moodle"
	MethodSetCustomization  = "set-customization"
	MethodSendChatMessage   = "send-chat-message"
	MethodGetAccountData    = "get-account-data"
)

// Server-initiated pushes, fire-and-forget from the server's view.
const (
	PushPresenceSync        = "presence-sync"
	PushPermissionSync      = "permission-sync"
	PushChatMessageReceived = "chat-message-received"
)

// Call is a client request frame. ID correlates the reply; it is opaque
// to the server beyond echoing it back.
type Call struct {
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the server's response frame for a Call.
type Reply struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result"`
}

// Push is a server-initiated frame. ID is absent; Method names the push.
type Push struct {
	Method  string `json:"method"`
	Payload any    `json:"payload"`
}

// ResponseCode is the overall outcome of a remote call. For relayed
// actions it means "the request was processable", not "every target
// succeeded"; the per-target result map is the source of truth.
type ResponseCode string

const (
	ResponseSuccess        ResponseCode = "success"
	ResponseTooManyTargets ResponseCode = "too-many-targets"
	ResponseRateLimited    ResponseCode = "rate-limited"
	ResponseBadTargets     ResponseCode = "bad-targets"
	ResponseBadRequest     ResponseCode = "bad-request"
	ResponseUnknown        ResponseCode = "unknown"
)

// ActionResultCode is the per-target outcome of a relayed action.
type ActionResultCode string

const (
	ActionSuccess          ActionResultCode = "success"
	ActionTargetOffline    ActionResultCode = "target-offline"
	ActionPermissionDenied ActionResultCode = "permission-denied"
	ActionDeliveryFailed   ActionResultCode = "delivery-failed"
)

// ActionResponse aggregates a relayed action: an overall code plus one
// result per requested target. Results is empty when the request was
// rejected before per-target processing.
type ActionResponse struct {
	Code    ResponseCode                  `json:"code"`
	Results map[Identity]ActionResultCode `json:"results"`
}

// PeerStatus is the presence view of a peer carried on presence-sync
// pushes and account data.
type PeerStatus string

const (
	PeerOnline  PeerStatus = "online"
	PeerOffline PeerStatus = "offline"
	PeerPending PeerStatus = "pending"
)

// Requests.

type AddPairRequest struct {
	Target Identity `json:"target" validate:"required,friendcode"`
}

type RemovePairRequest struct {
	Target Identity `json:"target" validate:"required,friendcode"`
}

type UpdatePermissionsRequest struct {
	Target Identity `json:"target" validate:"required,friendcode"`
	Grant  Grant    `json:"grant"`
}

type SpeakRequest struct {
	Targets []Identity `json:"targets"`
	Message string     `json:"message" validate:"required,max=500"`
	Channel Channel    `json:"channel" validate:"required"`
	Extra   string     `json:"extra,omitempty" validate:"max=100"`
}

type EmoteRequest struct {
	Targets []Identity `json:"targets"`
	Emote   string     `json:"emote" validate:"required"`
	// DisplayLogMessage asks the recipient client to echo the emote
	// into its chat log.
	DisplayLogMessage bool `json:"displayLogMessage"`
}

type HonorificRequest struct {
	Targets []Identity `json:"targets"`
	Title   string     `json:"title" validate:"max=32"`
}

// MoodleOp selects which moodle capability a set-moodle action needs.
type MoodleOp string

const (
	MoodleOpApplyOwn   MoodleOp = "apply-own"
	MoodleOpApplyPairs MoodleOp = "apply-pairs"
	MoodleOpRemove     MoodleOp = "remove"
)

type MoodleRequest struct {
	Targets []Identity      `json:"targets"`
	Op      MoodleOp        `json:"op" validate:"required,oneof=apply-own apply-pairs remove"`
	Info    json.RawMessage `json:"info"`
}

type CustomizationRequest struct {
	Targets []Identity      `json:"targets"`
	Profile json.RawMessage `json:"profile" validate:"required"`
}

type ChatMessageRequest struct {
	Message string `json:"message" validate:"required,max=500"`
	Title   string `json:"title" validate:"max=32"`
}

type GetAccountDataRequest struct{}

// Forwarded commands, delivered to target sessions. Sender is stamped
// by the server from the authenticated session, never from the request.

type SpeakCommand struct {
	Sender  Identity `json:"sender"`
	Message string   `json:"message"`
	Channel Channel  `json:"channel"`
	Extra   string   `json:"extra,omitempty"`
}

type EmoteCommand struct {
	Sender            Identity `json:"sender"`
	Emote             string   `json:"emote"`
	DisplayLogMessage bool     `json:"displayLogMessage"`
}

type HonorificCommand struct {
	Sender Identity `json:"sender"`
	Title  string   `json:"title"`
}

type MoodleCommand struct {
	Sender Identity        `json:"sender"`
	Op     MoodleOp        `json:"op"`
	Info   json.RawMessage `json:"info"`
}

type CustomizationCommand struct {
	Sender  Identity        `json:"sender"`
	Profile json.RawMessage `json:"profile"`
}

// Pushes.

// PresenceSync tells an online peer that a counterparty's status from
// their point of view changed. Grant carries the capabilities the peer
// has received when the transition makes them newly visible.
type PresenceSync struct {
	Identity Identity   `json:"identity"`
	Status   PeerStatus `json:"status"`
	Grant    *Grant     `json:"grant,omitempty"`
}

// PermissionSync tells an online peer that the capabilities they
// receive from Identity changed.
type PermissionSync struct {
	Identity Identity `json:"identity"`
	Grant    Grant    `json:"grant"`
}

// ChatMessageReceived is broadcast to every active session.
type ChatMessageReceived struct {
	Alias   string    `json:"alias"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

// Account data.

// Relationship is the both-direction projection of one permission pair
// for display purposes.
type Relationship struct {
	Peer Identity `json:"peer"`
	// Granted is the grant the account holder extends to the peer.
	Granted *Grant `json:"granted,omitempty"`
	// Received is the grant the peer extends to the account holder.
	Received *Grant     `json:"received,omitempty"`
	Status   PeerStatus `json:"status"`
}

type AccountData struct {
	Identity      Identity       `json:"identity"`
	Relationships []Relationship `json:"relationships"`
}

// PairResponse is the reply payload for add-pair.
type PairResponse struct {
	Code   PairCode   `json:"code"`
	Status PeerStatus `json:"status"`
}

// PairCode enumerates add-pair / remove-pair / update outcomes.
type PairCode string

const (
	PairPending          PairCode = "pending"
	PairPaired           PairCode = "paired"
	PairAlreadyPending   PairCode = "already-pending"
	PairSelfPairRejected PairCode = "self-pair-rejected"
	PairNoSuchIdentity   PairCode = "no-such-identity"
	PairNoOp             PairCode = "no-op"
	PairDone             PairCode = "done"
	PairUnknown          PairCode = "unknown"
)

// PairStateResponse is the reply payload for remove-pair and
// update-pair-permissions.
type PairStateResponse struct {
	Code PairCode `json:"code"`
}

// ChatMessageResponse is the reply payload for send-chat-message.
type ChatMessageResponse struct {
	Code   ResponseCode `json:"code"`
	Detail string       `json:"detail,omitempty"`
}

// ErrorResponse is the reply payload for calls that fail validation
// before reaching a handler.
type ErrorResponse struct {
	Code   ResponseCode `json:"code"`
	Detail string       `json:"detail,omitempty"`
}
