// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package handler

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/linkrelay/linkrelay/internal/domain"
)

type emoteHandler struct{}

func (emoteHandler) Kind() string { return domain.MethodEmote }

func (emoteHandler) Parse(raw json.RawMessage) (*ParsedAction, error) {
	var req domain.EmoteRequest
	if err := unmarshalAction(raw, &req); err != nil {
		return nil, err
	}

	emote := strings.ToLower(req.Emote)
	if !knownEmotes[emote] {
		return nil, fmt.Errorf("unknown emote %q", req.Emote)
	}

	return &ParsedAction{
		Targets:    req.Targets,
		Capability: domain.Capability{Primary: domain.PrimaryEmote},
		Command: func(sender domain.Identity) any {
			return domain.EmoteCommand{
				Sender:            sender,
				Emote:             emote,
				DisplayLogMessage: req.DisplayLogMessage,
			}
		},
	}, nil
}

// knownEmotes is the vocabulary a relayed emote must belong to. The
// client executes emotes by name; anything outside this set would be
// rejected there anyway, so it is filtered before relaying.
var knownEmotes = map[string]bool{
	"angry": true, "blush": true, "bow": true, "cheer": true,
	"chuckle": true, "clap": true, "comfort": true, "cry": true,
	"dance": true, "doubt": true, "doze": true, "fume": true,
	"furious": true, "goodbye": true, "greet": true, "grovel": true,
	"happy": true, "hug": true, "huh": true, "joy": true,
	"kneel": true, "laugh": true, "lookout": true, "no": true,
	"nod": true, "panic": true, "pet": true, "point": true,
	"poke": true, "pray": true, "psych": true, "salute": true,
	"shocked": true, "shrug": true, "sit": true, "slap": true,
	"smile": true, "soothe": true, "stagger": true, "stretch": true,
	"sulk": true, "surprised": true, "thumbsup": true, "upset": true,
	"wave": true, "welcome": true, "yes": true,
}
