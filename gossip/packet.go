// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import "github.com/luxfi/gossip-sim/pubkey"

// Packet is the wire message exchanged between nodes via the Router. It
// is a small closed interface with PushPacket and PrunePacket as its
// only implementations. Packets are immutable after construction and
// safe to share across every recipient of a single fanout.
type Packet interface {
	// From returns the sending node.
	From() pubkey.NodeID
	isPacket()
}

// PushPacket propagates a versioned CRDS value to a peer.
type PushPacket struct {
	FromID  pubkey.NodeID
	Key     CrdsKey
	Ordinal uint64
}

func (p *PushPacket) From() pubkey.NodeID { return p.FromID }
func (*PushPacket) isPacket()             {}

// PrunePacket instructs the recipient to stop forwarding values
// originated by the listed origins.
type PrunePacket struct {
	FromID  pubkey.NodeID
	Origins []pubkey.NodeID
}

func (p *PrunePacket) From() pubkey.NodeID { return p.FromID }
func (*PrunePacket) isPacket()             {}

var (
	_ Packet = (*PushPacket)(nil)
	_ Packet = (*PrunePacket)(nil)
)
