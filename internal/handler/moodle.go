// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package handler

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/linkrelay/linkrelay/internal/domain"
)

type moodleHandler struct {
	maxBytes int
}

func (moodleHandler) Kind() string { return domain.MethodSetMoodle }

func (h moodleHandler) Parse(raw json.RawMessage) (*ParsedAction, error) {
	var req domain.MoodleRequest
	if err := unmarshalAction(raw, &req); err != nil {
		return nil, err
	}
	if len(req.Info) > h.maxBytes {
		return nil, fmt.Errorf("moodle info exceeds %d bytes", h.maxBytes)
	}
	if len(req.Info) > 0 && !json.Valid(req.Info) {
		return nil, errors.New("moodle info is not valid JSON")
	}

	capability, err := moodleCapability(req.Op)
	if err != nil {
		return nil, err
	}

	return &ParsedAction{
		Targets:    req.Targets,
		Capability: capability,
		Command: func(sender domain.Identity) any {
			return domain.MoodleCommand{Sender: sender, Op: req.Op, Info: req.Info}
		},
	}, nil
}

// moodleCapability maps the request op to the moodle family bit it
// requires.
func moodleCapability(op domain.MoodleOp) (domain.Capability, error) {
	switch op {
	case domain.MoodleOpApplyOwn:
		return domain.Capability{Moodle: domain.MoodleApplyOwn}, nil
	case domain.MoodleOpApplyPairs:
		return domain.Capability{Moodle: domain.MoodleApplyPairs}, nil
	case domain.MoodleOpRemove:
		return domain.Capability{Moodle: domain.MoodleRemove}, nil
	default:
		return domain.Capability{}, fmt.Errorf("unknown moodle op %q", op)
	}
}
