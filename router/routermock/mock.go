// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package routermock provides a hand-rolled mock of router.Router for
// driver and node tests that need to assert on exactly what was sent
// without standing up a router.Memory.
package routermock

import (
	"math/rand"
	"testing"

	"github.com/luxfi/gossip-sim/gossip"
	"github.com/luxfi/gossip-sim/pubkey"
)

var _ gossip.Router = (*Router)(nil)

// Sent records one call to Router.Send.
type Sent struct {
	Dst pubkey.NodeID
	Pkt gossip.Packet
}

// Router is a mock implementation of gossip.Router. The ctrl parameter
// mirrors the Cant/F mock shape used elsewhere in this tree; it is
// accepted for call-site symmetry but unused.
type Router struct {
	T        *testing.T
	CantSend bool

	SendF func(rng *rand.Rand, dst pubkey.NodeID, pkt gossip.Packet) error

	Sent []Sent
}

// New creates a new Router mock.
func New(ctrl interface{}) *Router {
	return &Router{}
}

// Send implements gossip.Router, recording every call in Sent.
func (r *Router) Send(rng *rand.Rand, dst pubkey.NodeID, pkt gossip.Packet) error {
	r.Sent = append(r.Sent, Sent{Dst: dst, Pkt: pkt})
	if r.SendF != nil {
		return r.SendF(rng, dst, pkt)
	}
	if r.CantSend && r.T != nil {
		r.T.Fatal("unexpected Send")
	}
	return nil
}

// ToDst returns every packet sent to dst, in send order.
func (r *Router) ToDst(dst pubkey.NodeID) []gossip.Packet {
	var out []gossip.Packet
	for _, s := range r.Sent {
		if s.Dst == dst {
			out = append(out, s.Pkt)
		}
	}
	return out
}
