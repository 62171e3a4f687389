// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package domain

import "time"

// Priority is the relationship tier carried on a grant. Higher tiers may
// overwrite locks placed by lower tiers on the client side; the server
// only stores and relays the value.
type Priority int

const (
	PriorityCasual Priority = iota
	PrioritySerious
	PriorityDevotional
)

// Grant is the set of capabilities one identity (the granter) extends to
// another (the grantee), describing what the grantee may do TO the
// granter. Grants are directed; a mutual pairing exists only when both
// directions have a grant row, independent of their contents.
type Grant struct {
	Channels ChannelSet  `json:"channels"`
	Wardrobe WardrobeSet `json:"wardrobe"`
	Moodles  MoodleSet   `json:"moodles"`
	Primary  PrimarySet  `json:"primary"`

	// Expires, when set, marks the grant as temporary. Expired grants
	// are removed by the expiry sweeper and never satisfy a check.
	Expires *time.Time `json:"expires,omitempty"`

	Priority Priority `json:"priority"`
}

// Permits reports whether the grant satisfies every bit the capability
// requires. An expired grant permits nothing.
func (g Grant) Permits(c Capability, now time.Time) bool {
	if g.ExpiredAt(now) {
		return false
	}
	return g.Channels.Has(c.Channel) &&
		g.Wardrobe.Has(c.Wardrobe) &&
		g.Moodles.Has(c.Moodle) &&
		g.Primary.Has(c.Primary)
}

// ExpiredAt reports whether the grant's expiry has passed.
func (g Grant) ExpiredAt(now time.Time) bool {
	return g.Expires != nil && !now.Before(*g.Expires)
}

// Union merges two grants, keeping the later expiry and the higher
// priority tier. Used for display projections, never for checks.
func (g Grant) Union(o Grant) Grant {
	out := Grant{
		Channels: g.Channels | o.Channels,
		Wardrobe: g.Wardrobe | o.Wardrobe,
		Moodles:  g.Moodles | o.Moodles,
		Primary:  g.Primary | o.Primary,
		Priority: g.Priority,
	}
	if o.Priority > out.Priority {
		out.Priority = o.Priority
	}
	switch {
	case g.Expires == nil || o.Expires == nil:
		out.Expires = nil
	case o.Expires.After(*g.Expires):
		out.Expires = o.Expires
	default:
		out.Expires = g.Expires
	}
	return out
}

// PairingState is the derived relationship between two identities. It is
// never stored; it is computed from which directed grant rows exist.
type PairingState int

const (
	// NoRelationship means neither direction has a grant.
	NoRelationship PairingState = iota

	// PendingFrom means exactly one direction has a grant; the holder
	// of that edge is waiting for the counterparty to reciprocate.
	PendingFrom

	// Paired means both directions have grants.
	Paired
)
