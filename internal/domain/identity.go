// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package domain

// IdentityLength is the fixed length of a friend code. Identities are
// issued at registration time by the registration bot and never change.
const IdentityLength = 8

// Identity is an opaque, globally unique friend code. Comparison is
// case-sensitive.
type Identity string

// Valid reports whether the identity is a well-formed friend code:
// exactly IdentityLength alphanumeric ASCII characters.
func (id Identity) Valid() bool {
	if len(id) != IdentityLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

// Suffix returns the last n characters of the identity, left-padded with
// zeros when the identity is shorter. Used for chat aliases.
func (id Identity) Suffix(n int) string {
	s := string(id)
	if len(s) >= n {
		return s[len(s)-n:]
	}
	for len(s) < n {
		s = "0" + s
	}
	return s
}
