// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package store

import (
	"io"
	"os"
	"testing"

	"github.com/linkrelay/linkrelay/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
	os.Exit(m.Run())
}
