// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package domain

import "strconv"

// Channel identifies a chat channel a speak action may be directed at.
// Wire values are lowercase strings.
type Channel string

const (
	ChanSay                 Channel = "say"
	ChanYell                Channel = "yell"
	ChanShout               Channel = "shout"
	ChanTell                Channel = "tell"
	ChanParty               Channel = "party"
	ChanAlliance            Channel = "alliance"
	ChanFreeCompany         Channel = "free-company"
	ChanPvPTeam             Channel = "pvp-team"
	ChanRoleplay            Channel = "roleplay"
	ChanEcho                Channel = "echo"
	ChanLinkshell           Channel = "linkshell"
	ChanCrossWorldLinkshell Channel = "cross-world-linkshell"
)

// SpeakCapability maps a channel selection to the capability bit a
// speak action on it requires. The linkshell families carry multiple
// numbered instances and use extra (a numeric suffix "1".."8") to pick
// the bit position within the family. Returns the zero ChannelSet for
// unknown channels or out-of-range suffixes; no grant satisfies it.
func (ch Channel) SpeakCapability(extra string) ChannelSet {
	switch ch {
	case ChanSay:
		return ChannelSay
	case ChanYell:
		return ChannelYell
	case ChanShout:
		return ChannelShout
	case ChanTell:
		return ChannelTell
	case ChanParty:
		return ChannelParty
	case ChanAlliance:
		return ChannelAlliance
	case ChanFreeCompany:
		return ChannelFreeCompany
	case ChanPvPTeam:
		return ChannelPvPTeam
	case ChanRoleplay:
		return ChannelRoleplay
	case ChanEcho:
		return ChannelEcho
	case ChanLinkshell:
		return linkshellCapability(ChannelLs1, extra)
	case ChanCrossWorldLinkshell:
		return linkshellCapability(ChannelCwl1, extra)
	default:
		return 0
	}
}

func linkshellCapability(base ChannelSet, extra string) ChannelSet {
	number, err := strconv.Atoi(extra)
	if err != nil {
		return 0
	}
	return LinkshellBit(base, number)
}

// Known reports whether the channel is part of the speak vocabulary.
func (ch Channel) Known() bool {
	switch ch {
	case ChanSay, ChanYell, ChanShout, ChanTell, ChanParty, ChanAlliance,
		ChanFreeCompany, ChanPvPTeam, ChanRoleplay, ChanEcho,
		ChanLinkshell, ChanCrossWorldLinkshell:
		return true
	}
	return false
}
