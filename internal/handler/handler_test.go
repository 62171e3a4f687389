// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package handler

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/pairing"
	"github.com/linkrelay/linkrelay/internal/presence"
	"github.com/linkrelay/linkrelay/internal/relay"
	"github.com/linkrelay/linkrelay/internal/store"
)

const (
	alice = domain.Identity("ALICE001")
	bob   = domain.Identity("BOBBY002")
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
	os.Exit(m.Run())
}

type recordingHandle struct {
	mu     sync.Mutex
	id     string
	frames []domain.Push
}

func (h *recordingHandle) ID() string { return h.id }

func (h *recordingHandle) TrySend(frame domain.Push) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
	return true
}

func (h *recordingHandle) pushes() []domain.Push {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Push, len(h.frames))
	copy(out, h.frames)
	return out
}

type fixture struct {
	dispatcher *Dispatcher
	reg        *presence.Registry
	st         *store.MemoryStore
	aliceH     *recordingHandle
	bobH       *recordingHandle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, "a", []domain.Identity{alice}))
	require.NoError(t, st.CreateAccount(ctx, "b", []domain.Identity{bob}))

	reg := presence.NewRegistry(0)
	aliceH := &recordingHandle{id: "alice"}
	bobH := &recordingHandle{id: "bob"}
	reg.Add(alice, aliceH)
	reg.Add(bob, bobH)

	rl := relay.New(reg, st, 3)
	pr := pairing.NewService(st, reg)
	chat := NewChat(reg, 100, 100)

	return &fixture{
		dispatcher: NewDispatcher(rl, pr, chat, 8*1024, 64*1024),
		reg:        reg,
		st:         st,
		aliceH:     aliceH,
		bobH:       bobH,
	}
}

func (f *fixture) grantTo(t *testing.T, granter, grantee domain.Identity, g domain.Grant) {
	t.Helper()
	_, err := f.st.CreatePermissions(context.Background(), granter, grantee, g)
	require.NoError(t, err)
}

func call(t *testing.T, method string, payload any) domain.Call {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Call{ID: 1, Method: method, Payload: raw}
}

func TestDispatchUnknownMethod(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatcher.Dispatch(context.Background(), alice, domain.Call{Method: "bogus"})
	errResp, ok := resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ResponseBadRequest, errResp.Code)
	assert.Contains(t, errResp.Detail, "bogus")
}

func TestDispatchSpeakEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.ChannelSay})

	resp := f.dispatcher.Dispatch(context.Background(), alice,
		call(t, domain.MethodSpeak, domain.SpeakRequest{
			Targets: []domain.Identity{bob},
			Message: "hello there",
			Channel: domain.ChanSay,
		}))

	action, ok := resp.(domain.ActionResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ResponseSuccess, action.Code)
	assert.Equal(t, domain.ActionSuccess, action.Results[bob])

	frames := f.bobH.pushes()
	require.Len(t, frames, 1)
	assert.Equal(t, domain.MethodSpeak, frames[0].Method)
	cmd := frames[0].Payload.(domain.SpeakCommand)
	assert.Equal(t, alice, cmd.Sender, "sender is stamped from the session")
	assert.Equal(t, "hello there", cmd.Message)
}

func TestDispatchSpeakLinkshellSuffix(t *testing.T) {
	f := newFixture(t)
	f.grantTo(t, bob, alice, domain.Grant{Channels: domain.LinkshellBit(domain.ChannelLs1, 3)})
	ctx := context.Background()

	speak := func(extra string) domain.ActionResponse {
		resp := f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodSpeak, domain.SpeakRequest{
			Targets: []domain.Identity{bob},
			Message: "ls",
			Channel: domain.ChanLinkshell,
			Extra:   extra,
		}))
		action, ok := resp.(domain.ActionResponse)
		require.True(t, ok, "got %T", resp)
		return action
	}

	assert.Equal(t, domain.ActionSuccess, speak("3").Results[bob])
	assert.Equal(t, domain.ActionPermissionDenied, speak("4").Results[bob], "grant covers linkshell 3 only")

	resp := f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodSpeak, domain.SpeakRequest{
		Targets: []domain.Identity{bob},
		Message: "ls",
		Channel: domain.ChanLinkshell,
		Extra:   "9",
	}))
	errResp, ok := resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ResponseBadRequest, errResp.Code, "suffix out of range")
}

func TestDispatchEmoteVocabulary(t *testing.T) {
	f := newFixture(t)
	f.grantTo(t, bob, alice, domain.Grant{Primary: domain.PrimaryEmote})
	ctx := context.Background()

	resp := f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodEmote, domain.EmoteRequest{
		Targets: []domain.Identity{bob},
		Emote:   "Wave",
	}))
	action, ok := resp.(domain.ActionResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ActionSuccess, action.Results[bob], "emote names are case-insensitive")

	resp = f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodEmote, domain.EmoteRequest{
		Targets: []domain.Identity{bob},
		Emote:   "backflip360",
	}))
	errResp, ok := resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Contains(t, errResp.Detail, "unknown emote")
}

func TestDispatchMoodleOpCapabilities(t *testing.T) {
	f := newFixture(t)
	// Bob lets alice apply her own moodles, nothing else.
	f.grantTo(t, bob, alice, domain.Grant{Moodles: domain.MoodleApplyOwn})
	ctx := context.Background()

	send := func(op domain.MoodleOp) any {
		return f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodSetMoodle, domain.MoodleRequest{
			Targets: []domain.Identity{bob},
			Op:      op,
			Info:    json.RawMessage(`{"moodle":"sleepy"}`),
		}))
	}

	action := send(domain.MoodleOpApplyOwn).(domain.ActionResponse)
	assert.Equal(t, domain.ActionSuccess, action.Results[bob])

	action = send(domain.MoodleOpRemove).(domain.ActionResponse)
	assert.Equal(t, domain.ActionPermissionDenied, action.Results[bob])
}

func TestDispatchMoodleRejectsOversizedInfo(t *testing.T) {
	f := newFixture(t)
	big := `{"pad":"` + strings.Repeat("x", 9*1024) + `"}`

	resp := f.dispatcher.Dispatch(context.Background(), alice,
		call(t, domain.MethodSetMoodle, domain.MoodleRequest{
			Targets: []domain.Identity{bob},
			Op:      domain.MoodleOpApplyOwn,
			Info:    json.RawMessage(big),
		}))
	errResp, ok := resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Contains(t, errResp.Detail, "exceeds")
}

func TestDispatchCustomizationRejectsBadProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := json.RawMessage(`{"targets":["BOBBY002"],"profile":{broken}}`)
	resp := f.dispatcher.Dispatch(ctx, alice,
		domain.Call{Method: domain.MethodSetCustomization, Payload: raw})
	errResp, ok := resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ResponseBadRequest, errResp.Code)

	big := `{"targets":["BOBBY002"],"profile":{"pad":"` + strings.Repeat("x", 65*1024) + `"}}`
	resp = f.dispatcher.Dispatch(ctx, alice,
		domain.Call{Method: domain.MethodSetCustomization, Payload: json.RawMessage(big)})
	errResp, ok = resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Contains(t, errResp.Detail, "exceeds")
}

func TestDispatchHonorific(t *testing.T) {
	f := newFixture(t)
	f.grantTo(t, bob, alice, domain.Grant{Primary: domain.PrimaryHonorific})

	resp := f.dispatcher.Dispatch(context.Background(), alice,
		call(t, domain.MethodSetHonorific, domain.HonorificRequest{
			Targets: []domain.Identity{bob},
			Title:   "the Kind",
		}))
	action, ok := resp.(domain.ActionResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ActionSuccess, action.Results[bob])

	frames := f.bobH.pushes()
	cmd := frames[len(frames)-1].Payload.(domain.HonorificCommand)
	assert.Equal(t, "the Kind", cmd.Title)
}

func TestDispatchPairingMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodAddPair,
		domain.AddPairRequest{Target: bob}))
	pairResp, ok := resp.(domain.PairResponse)
	require.True(t, ok)
	assert.Equal(t, domain.PairPending, pairResp.Code)

	resp = f.dispatcher.Dispatch(ctx, bob, call(t, domain.MethodAddPair,
		domain.AddPairRequest{Target: alice}))
	pairResp = resp.(domain.PairResponse)
	assert.Equal(t, domain.PairPaired, pairResp.Code)
	assert.Equal(t, domain.PeerOnline, pairResp.Status)

	resp = f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodGetAccountData,
		domain.GetAccountDataRequest{}))
	data, ok := resp.(domain.AccountData)
	require.True(t, ok)
	require.Len(t, data.Relationships, 1)
	assert.Equal(t, bob, data.Relationships[0].Peer)

	resp = f.dispatcher.Dispatch(ctx, alice, call(t, domain.MethodRemovePair,
		domain.RemovePairRequest{Target: bob}))
	stateResp, ok := resp.(domain.PairStateResponse)
	require.True(t, ok)
	assert.Equal(t, domain.PairDone, stateResp.Code)
}

func TestDispatchRejectsMalformedPairPayload(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Dispatch(context.Background(), alice, call(t, domain.MethodAddPair,
		domain.AddPairRequest{Target: "nope"}))
	errResp, ok := resp.(domain.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ResponseBadRequest, errResp.Code)
}

func TestChatBroadcast(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Dispatch(context.Background(), alice,
		call(t, domain.MethodSendChatMessage, domain.ChatMessageRequest{
			Message: "hello world",
			Title:   "Duchess",
		}))
	chatResp, ok := resp.(domain.ChatMessageResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ResponseSuccess, chatResp.Code)

	// Both sessions receive the broadcast, sender included.
	for _, h := range []*recordingHandle{f.aliceH, f.bobH} {
		frames := h.pushes()
		require.Len(t, frames, 1)
		assert.Equal(t, domain.PushChatMessageReceived, frames[0].Method)
		msg := frames[0].Payload.(domain.ChatMessageReceived)
		assert.Equal(t, "Duchess#E001", msg.Alias)
		assert.Equal(t, "hello world", msg.Message)
	}
}

func TestChatRejectsLineBreaks(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Dispatch(context.Background(), alice,
		call(t, domain.MethodSendChatMessage, domain.ChatMessageRequest{
			Message: "line one\nline two",
		}))
	chatResp := resp.(domain.ChatMessageResponse)
	assert.Equal(t, domain.ResponseBadRequest, chatResp.Code)
	assert.Empty(t, f.bobH.pushes())
}

func TestChatFloodLimit(t *testing.T) {
	reg := presence.NewRegistry(0)
	chat := NewChat(reg, 0, 2)
	chat.now = func() time.Time { return time.Unix(0, 0) }

	req := domain.ChatMessageRequest{Message: "spam"}
	assert.Equal(t, domain.ResponseSuccess, chat.Send(alice, req).Code)
	assert.Equal(t, domain.ResponseSuccess, chat.Send(alice, req).Code)
	assert.Equal(t, domain.ResponseRateLimited, chat.Send(alice, req).Code)
}

func TestAlias(t *testing.T) {
	assert.Equal(t, "Duchess#E001", Alias("Duchess", alice))
	assert.Equal(t, "Anon#Y002", Alias("", bob))
}
