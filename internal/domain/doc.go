// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package domain holds the shared value types of the relay core:
// identities, capability bitsets, directed grants, and the wire
// protocol frames exchanged over a session.
//
// Everything here is plain data. Behavior lives in the presence,
// pairing, relay, handler, and gateway packages.
package domain
