// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router provides the in-process packet delivery fabric nodes
// send through. There is no real network here: Memory is a lossy,
// mutex-guarded queue-per-node fabric driven entirely by an explicit
// *rand.Rand, so a whole simulation run is reproducible from a single
// seed.
package router

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/luxfi/gossip-sim/gossip"
	"github.com/luxfi/gossip-sim/pubkey"
)

// ErrUnknownDestination is returned by Memory.Send when dst was never
// registered via Register.
var ErrUnknownDestination = errors.New("router: unknown destination")

// Router is the destination-addressed delivery fabric gossip.Node sends
// through. It is a re-export of gossip.Router for callers that only
// import this package.
type Router = gossip.Router

// queue is a single node's inbound packet queue: a mutex-guarded slice
// rather than a Go channel, so Drain can take everything currently
// buffered without blocking or racing a concurrent send.
type queue struct {
	mu      sync.Mutex
	pending []gossip.Packet
}

func (q *queue) push(p gossip.Packet) {
	q.mu.Lock()
	q.pending = append(q.pending, p)
	q.mu.Unlock()
}

// Drain implements gossip.Inbox.
func (q *queue) Drain() []gossip.Packet {
	q.mu.Lock()
	drained := q.pending
	q.pending = nil
	q.mu.Unlock()
	return drained
}

// Memory is an in-process, lossy router. Every registered destination
// gets its own queue; Send drops the packet with probability dropRate
// instead of delivering it, modeling an unreliable network without
// ever blocking the caller.
type Memory struct {
	dropRate float64

	sent    atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	queues map[pubkey.NodeID]*queue
}

// NewMemory returns a Memory router with the given uniform packet drop
// rate in [0, 1].
func NewMemory(dropRate float64) *Memory {
	return &Memory{
		dropRate: dropRate,
		queues:   make(map[pubkey.NodeID]*queue),
	}
}

// Register creates dst's inbox if it does not already exist and
// returns it. Callers hand the returned Inbox to gossip.NewNode.
func (m *Memory) Register(dst pubkey.NodeID) gossip.Inbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[dst]
	if !ok {
		q = &queue{}
		m.queues[dst] = q
	}
	return q
}

// Send delivers pkt to dst's inbox, or drops it per the configured
// drop rate. Returns ErrUnknownDestination if dst was never
// registered.
func (m *Memory) Send(rng *rand.Rand, dst pubkey.NodeID, pkt gossip.Packet) error {
	m.mu.RLock()
	q, ok := m.queues[dst]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownDestination
	}
	if m.dropRate > 0 && rng.Float64() < m.dropRate {
		m.dropped.Add(1)
		return nil
	}
	q.push(pkt)
	m.sent.Add(1)
	return nil
}

// NumSent returns how many packets have been delivered so far.
func (m *Memory) NumSent() uint64 { return m.sent.Load() }

// NumDropped returns how many packets have been dropped so far.
func (m *Memory) NumDropped() uint64 { return m.dropped.Load() }
