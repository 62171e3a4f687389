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

type customizationHandler struct {
	maxBytes int
}

func (customizationHandler) Kind() string { return domain.MethodSetCustomization }

func (h customizationHandler) Parse(raw json.RawMessage) (*ParsedAction, error) {
	var req domain.CustomizationRequest
	if err := unmarshalAction(raw, &req); err != nil {
		return nil, err
	}
	if len(req.Profile) > h.maxBytes {
		return nil, fmt.Errorf("customization profile exceeds %d bytes", h.maxBytes)
	}
	if !json.Valid(req.Profile) {
		return nil, errors.New("customization profile is not valid JSON")
	}

	return &ParsedAction{
		Targets:    req.Targets,
		Capability: domain.Capability{Primary: domain.PrimaryCustomization},
		Command: func(sender domain.Identity) any {
			return domain.CustomizationCommand{Sender: sender, Profile: req.Profile}
		},
	}, nil
}
