// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package domain

// Capability sets are plain bitsets grouped by family. A directed grant
// composes one value of each family; a relayed action names the bits it
// requires and the relay checks them against the grant the target has
// extended to the sender.

// ChannelSet is the speak-channel capability family. The linkshell and
// cross-world linkshell groups reserve eight contiguous bits each; a
// numeric channel suffix (1..8) selects the position within the group.
type ChannelSet uint32

const (
	ChannelSay ChannelSet = 1 << iota
	ChannelYell
	ChannelShout
	ChannelTell
	ChannelParty
	ChannelAlliance
	ChannelFreeCompany
	ChannelPvPTeam
	ChannelRoleplay
	ChannelEcho
	ChannelLs1 // first of eight linkshell bits
)

// ChannelCwl1 is the first of eight cross-world linkshell bits,
// directly above the linkshell block.
const ChannelCwl1 ChannelSet = ChannelLs1 << linkshellSlots

// linkshellSlots is the number of numbered channels in each linkshell group.
const linkshellSlots = 8

// Has reports whether every bit of want is present.
func (s ChannelSet) Has(want ChannelSet) bool { return s&want == want }

// With returns the set with the given bits added.
func (s ChannelSet) With(bits ChannelSet) ChannelSet { return s | bits }

// Without returns the set with the given bits removed.
func (s ChannelSet) Without(bits ChannelSet) ChannelSet { return s &^ bits }

// LinkshellBit selects the capability bit for a numbered linkshell
// channel. base must be ChannelLs1 or ChannelCwl1; number is 1..8.
// Returns 0 for an out-of-range number, which no grant can satisfy.
func LinkshellBit(base ChannelSet, number int) ChannelSet {
	if number < 1 || number > linkshellSlots {
		return 0
	}
	return base << (number - 1)
}

// WardrobeSet is the wardrobe capability family.
type WardrobeSet uint8

const (
	WardrobeApply WardrobeSet = 1 << iota
	WardrobeLock
	WardrobeUnlock
	WardrobeRemove
	WardrobeForceGlamour
)

func (s WardrobeSet) Has(want WardrobeSet) bool            { return s&want == want }
func (s WardrobeSet) With(bits WardrobeSet) WardrobeSet    { return s | bits }
func (s WardrobeSet) Without(bits WardrobeSet) WardrobeSet { return s &^ bits }

// MoodleSet is the moodle capability family. ApplyOwn allows the pair
// to apply the granter's own moodles; ApplyPairs allows applying the
// pair's moodles onto the granter.
type MoodleSet uint8

const (
	MoodleApplyOwn MoodleSet = 1 << iota
	MoodleApplyPairs
	MoodleLock
	MoodleUnlock
	MoodleRemove
)

func (s MoodleSet) Has(want MoodleSet) bool          { return s&want == want }
func (s MoodleSet) With(bits MoodleSet) MoodleSet    { return s | bits }
func (s MoodleSet) Without(bits MoodleSet) MoodleSet { return s &^ bits }

// PrimarySet holds the single-capability flags that gate one action
// kind each.
type PrimarySet uint8

const (
	PrimaryEmote PrimarySet = 1 << iota
	PrimaryHonorific
	PrimaryCustomization
)

func (s PrimarySet) Has(want PrimarySet) bool           { return s&want == want }
func (s PrimarySet) With(bits PrimarySet) PrimarySet    { return s | bits }
func (s PrimarySet) Without(bits PrimarySet) PrimarySet { return s &^ bits }

// Capability names the bits a single action requires, at most one
// family populated per action kind in practice. The zero value requires
// nothing and is satisfied by any grant.
type Capability struct {
	Channel  ChannelSet
	Wardrobe WardrobeSet
	Moodle   MoodleSet
	Primary  PrimarySet
}

// Empty reports whether the capability requires no bits at all.
func (c Capability) Empty() bool {
	return c.Channel == 0 && c.Wardrobe == 0 && c.Moodle == 0 && c.Primary == 0
}
