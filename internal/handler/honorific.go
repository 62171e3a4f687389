// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package handler

import (
	"github.com/goccy/go-json"

	"github.com/linkrelay/linkrelay/internal/domain"
)

type honorificHandler struct{}

func (honorificHandler) Kind() string { return domain.MethodSetHonorific }

func (honorificHandler) Parse(raw json.RawMessage) (*ParsedAction, error) {
	var req domain.HonorificRequest
	if err := unmarshalAction(raw, &req); err != nil {
		return nil, err
	}

	// An empty title clears the target's honorific; that still needs
	// the capability.
	return &ParsedAction{
		Targets:    req.Targets,
		Capability: domain.Capability{Primary: domain.PrimaryHonorific},
		Command: func(sender domain.Identity) any {
			return domain.HonorificCommand{Sender: sender, Title: req.Title}
		},
	}, nil
}
