// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package handler

import (
	"errors"

	"github.com/goccy/go-json"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/validation"
)

type speakHandler struct{}

func (speakHandler) Kind() string { return domain.MethodSpeak }

func (speakHandler) Parse(raw json.RawMessage) (*ParsedAction, error) {
	var req domain.SpeakRequest
	if err := unmarshalAction(raw, &req); err != nil {
		return nil, err
	}
	if !req.Channel.Known() {
		return nil, errors.New("unknown channel")
	}

	// Linkshell family channels need the numeric suffix to resolve to a
	// concrete capability bit.
	bit := req.Channel.SpeakCapability(req.Extra)
	if bit == 0 {
		return nil, errors.New("channel selection does not resolve to a capability")
	}

	return &ParsedAction{
		Targets:    req.Targets,
		Capability: domain.Capability{Channel: bit},
		Command: func(sender domain.Identity) any {
			return domain.SpeakCommand{
				Sender:  sender,
				Message: req.Message,
				Channel: req.Channel,
				Extra:   req.Extra,
			}
		},
	}, nil
}

// unmarshalAction decodes and struct-validates an action payload.
func unmarshalAction(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errors.New("malformed payload")
	}
	if err := validation.ValidateStruct(into); err != nil {
		return err
	}
	return nil
}
