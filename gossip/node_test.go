// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/gossip-sim/pubkey"
)

// queueInbox is a minimal test-only Inbox backed by a plain slice.
type queueInbox struct {
	pending []Packet
}

func (q *queueInbox) Push(p Packet) { q.pending = append(q.pending, p) }

func (q *queueInbox) Drain() []Packet {
	drained := q.pending
	q.pending = nil
	return drained
}

// recordingRouter captures every packet sent to it, keyed by
// destination, for assertions without exercising router.Memory.
type recordingRouter struct {
	sent map[pubkey.NodeID][]Packet
}

func newRecordingRouter() *recordingRouter {
	return &recordingRouter{sent: make(map[pubkey.NodeID][]Packet)}
}

func (r *recordingRouter) Send(_ *rand.Rand, dst pubkey.NodeID, pkt Packet) error {
	r.sent[dst] = append(r.sent[dst], pkt)
	return nil
}

func testConfig() Config {
	return Config{
		GossipPushFanout:           1,
		GossipPushWideFanout:       1,
		RotateActiveSetRounds:      1,
		GossipPruneMinIngressNodes: 2,
		NumCRDS:                    1,
		RefreshRate:                0,
	}
}

// A single injected push lands in the recipient's table with the
// pushed ordinal, counting neither a duplicate nor an outdated.
func TestScenarioTwoNodeSingleRefresh(t *testing.T) {
	a := pubkey.Deterministic(1)
	b := pubkey.Deterministic(2)
	stakes := StakeMap{a: 100, b: 100}

	inboxB := &queueInbox{}
	nodeB := NewNode(b, 100, inboxB, 16, nil)

	inboxB.Push(&PushPacket{FromID: a, Key: CrdsKey{Origin: a, Index: 0}, Ordinal: 5})

	rng := rand.New(rand.NewSource(1))
	out, err := nodeB.RunGossip(rng, testConfig(), stakes, newRecordingRouter())
	require.NoError(t, err)

	require.Equal(t, uint64(5), nodeB.Table()[CrdsKey{Origin: a, Index: 0}].Ordinal)
	require.Zero(t, out.NumDuplicates)
	require.Zero(t, out.NumOutdated)
}

// An outdated packet leaves the held ordinal untouched and is counted.
func TestScenarioOutdatedPacket(t *testing.T) {
	a := pubkey.Deterministic(1)
	b := pubkey.Deterministic(2)
	c := pubkey.Deterministic(3)
	stakes := StakeMap{a: 100, b: 100, c: 100}

	inboxB := &queueInbox{}
	nodeB := NewNode(b, 100, inboxB, 16, nil)
	key := CrdsKey{Origin: a, Index: 0}
	nodeB.table[key] = CrdsEntry{Ordinal: 7}

	inboxB.Push(&PushPacket{FromID: c, Key: key, Ordinal: 3})

	rng := rand.New(rand.NewSource(1))
	out, err := nodeB.RunGossip(rng, testConfig(), stakes, newRecordingRouter())
	require.NoError(t, err)

	require.Equal(t, uint64(7), nodeB.Table()[key].Ordinal)
	require.Equal(t, 1, out.NumOutdated)
}

// Repeated identical Push packets each count as a duplicate and bump
// NumDups (saturation is covered by TestUpsertSaturatesNumDups).
func TestScenarioDuplicateCounting(t *testing.T) {
	a := pubkey.Deterministic(1)
	b := pubkey.Deterministic(2)
	c := pubkey.Deterministic(3)
	key := CrdsKey{Origin: a, Index: 0}

	inbox := &queueInbox{}
	node := NewNode(b, 100, inbox, 16, nil)
	node.table[key] = CrdsEntry{Ordinal: 7}

	for i := 0; i < 3; i++ {
		inbox.Push(&PushPacket{FromID: c, Key: key, Ordinal: 7})
	}
	out := node.ConsumePackets(StakeMap{a: 100, b: 100, c: 100})
	require.Equal(t, 3, out.NumDuplicates)
	require.Equal(t, uint8(3), node.Table()[key].NumDups)
}

func TestUpsertSaturatesNumDups(t *testing.T) {
	inbox := &queueInbox{}
	node := NewNode(pubkey.Deterministic(1), 100, inbox, 16, nil)
	key := CrdsKey{Origin: pubkey.Deterministic(2), Index: 0}
	node.table[key] = CrdsEntry{Ordinal: 1, NumDups: 254}

	node.upsert(key, 1)
	require.Equal(t, uint8(255), node.Table()[key].NumDups)
	node.upsert(key, 1)
	require.Equal(t, uint8(255), node.Table()[key].NumDups, "must saturate, not wrap")
}

// Prune grouping: one packet per peer, not one per origin.
func TestScenarioPruneGrouping(t *testing.T) {
	n := pubkey.Deterministic(1)
	p := pubkey.Deterministic(2)
	x := pubkey.Deterministic(3)
	y := pubkey.Deterministic(4)

	inbox := &queueInbox{}
	node := NewNode(n, 100, inbox, 16, nil)
	stakes := StakeMap{n: 100, p: 1, x: 100, y: 100}

	// p is the worst-ranked ingress peer for both X and Y: record an
	// Outdated (infinite dup-weight) arrival from p for each origin,
	// plus two fresh peers so min_ingress_nodes=2 is satisfied without
	// keeping p.
	good1 := pubkey.Deterministic(5)
	good2 := pubkey.Deterministic(6)
	stakes[good1] = 100
	stakes[good2] = 100
	for _, origin := range []pubkey.NodeID{x, y} {
		node.receivedCache.Record(origin, p, dupWeightOutdated)
		node.receivedCache.Record(origin, good1, 0)
		node.receivedCache.Record(origin, good2, 0)
	}

	router := newRecordingRouter()
	rng := rand.New(rand.NewSource(1))
	err := node.sendPrunes(rng, []pubkey.NodeID{x, y}, Config{GossipPruneMinIngressNodes: 2}, stakes, router)
	require.NoError(t, err)

	require.Len(t, router.sent[p], 1, "p must receive exactly one Prune packet")
	prune, ok := router.sent[p][0].(*PrunePacket)
	require.True(t, ok)
	require.ElementsMatch(t, []pubkey.NodeID{x, y}, prune.Origins)
}

// An own-origin refresh uses the wide fanout, a relayed key uses the
// narrow fanout.
func TestScenarioWideVsNarrowFanout(t *testing.T) {
	self := pubkey.Deterministic(1)
	relayedOrigin := pubkey.Deterministic(2)
	stakes := StakeMap{self: 100, relayedOrigin: 100}

	var peers []pubkey.NodeID
	for i := uint64(10); i < 20; i++ {
		id := pubkey.Deterministic(i)
		peers = append(peers, id)
		stakes[id] = 100
	}

	inbox := &queueInbox{}
	node := NewNode(self, 100, inbox, 16, nil)
	inbox.Push(&PushPacket{FromID: relayedOrigin, Key: CrdsKey{Origin: relayedOrigin, Index: 0}, Ordinal: 1})

	cfg := Config{
		GossipPushFanout:           2.0,
		GossipPushWideFanout:       6.0,
		RotateActiveSetRounds:      1,
		GossipPruneMinIngressNodes: 2,
		NumCRDS:                    1,
		RefreshRate:                1.0, // force exactly one own refresh
	}

	router := newRecordingRouter()
	rng := rand.New(rand.NewSource(7))
	_, err := node.RunGossip(rng, cfg, stakes, router)
	require.NoError(t, err)

	totalSent := 0
	for _, pkts := range router.sent {
		totalSent += len(pkts)
	}
	// At most 2 pushes for the relayed key plus at most 6 for the own
	// refreshed key (prunes excluded since no origin was pruneable yet).
	require.LessOrEqual(t, totalSent, 8)
}

// Rotation cadence: a rotation resets every peer's pruned-origins
// filter, so pruning a peer and watching when it reappears in GetNodes
// pins down exactly which rounds rotated.
func TestScenarioRotationCadence(t *testing.T) {
	self := pubkey.Deterministic(1)
	peer := pubkey.Deterministic(2)
	origin := pubkey.Deterministic(3)
	stakes := StakeMap{self: 100, peer: 100, origin: 100}

	inbox := &queueInbox{}
	node := NewNode(self, 100, inbox, 16, nil)
	cfg := Config{
		GossipPushFanout:           1,
		GossipPushWideFanout:       1,
		RotateActiveSetRounds:      4,
		GossipPruneMinIngressNodes: 2,
		NumCRDS:                    1,
	}
	rng := rand.New(rand.NewSource(1))
	router := newRecordingRouter()

	require.Empty(t, node.activeSet.GetNodes(self, origin, nil, stakes),
		"active set starts empty before the first rotation")

	// Round 1: 1 mod 4 == 1, so the set rotates and picks up peer.
	_, err := node.RunGossip(rng, cfg, stakes, router)
	require.NoError(t, err)
	require.Contains(t, node.activeSet.GetNodes(self, origin, nil, stakes), peer)

	node.activeSet.Prune(self, peer, []pubkey.NodeID{origin}, stakes)

	// Rounds 2-4: no rotation, so the prune filter stays in effect.
	for round := 2; round <= 4; round++ {
		_, err := node.RunGossip(rng, cfg, stakes, router)
		require.NoError(t, err)
		require.NotContains(t, node.activeSet.GetNodes(self, origin, nil, stakes), peer,
			"round %d must not rotate", round)
	}

	// Round 5: 5 mod 4 == 1, rotation rebuilds the set with a fresh
	// (empty) filter for every peer.
	_, err = node.RunGossip(rng, cfg, stakes, router)
	require.NoError(t, err)
	require.Contains(t, node.activeSet.GetNodes(self, origin, nil, stakes), peer)
}

func TestSelfExclusionNeverPushedToSelf(t *testing.T) {
	self := pubkey.Deterministic(1)
	stakes := StakeMap{self: 100}
	inbox := &queueInbox{}
	node := NewNode(self, 100, inbox, 16, nil)
	cfg := testConfig()
	cfg.RefreshRate = 1.0

	router := newRecordingRouter()
	rng := rand.New(rand.NewSource(3))
	_, err := node.RunGossip(rng, cfg, stakes, router)
	require.NoError(t, err)
	require.Empty(t, router.sent[self], "node must never enqueue a push into its own inbox")
}

func TestGossipPushCapacityTruncates(t *testing.T) {
	self := pubkey.Deterministic(1)
	stakes := StakeMap{self: 100}
	for i := uint64(10); i < 15; i++ {
		stakes[pubkey.Deterministic(i)] = 50
	}

	inbox := &queueInbox{}
	node := NewNode(self, 100, inbox, 16, nil)
	for i := uint64(10); i < 15; i++ {
		inbox.Push(&PushPacket{FromID: pubkey.Deterministic(i), Key: CrdsKey{Origin: pubkey.Deterministic(i), Index: 0}, Ordinal: 1})
	}

	cfg := Config{GossipPushFanout: 0, GossipPushWideFanout: 0, RotateActiveSetRounds: 1, NumCRDS: 1, GossipPushCapacity: 2, GossipPruneMinIngressNodes: 100}
	router := newRecordingRouter()
	rng := rand.New(rand.NewSource(1))
	out, err := node.RunGossip(rng, cfg, stakes, router)
	require.NoError(t, err)
	require.Len(t, out.UpsertedKeys, 5, "ConsumeOutput reports the pre-truncation count")
}
