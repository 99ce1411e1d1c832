// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/luxfi/log"
	"golang.org/x/exp/maps"

	"github.com/luxfi/gossip-sim/pubkey"
)

// CRDSUniquePubkeyCapacity is the reference number of distinct origin
// pubkeys a cluster is expected to carry; ReceivedCache capacity is
// sized against it.
const CRDSUniquePubkeyCapacity = 8192

// pruneStakeThresholdPct is the fraction of total active stake the
// kept ingress peers must cover before the rest become prune targets.
const pruneStakeThresholdPct = 0.15

// Router is the destination-addressed delivery fabric a Node pushes
// packets through. It is the only external collaborator the core
// depends on; see the router package for a concrete in-memory
// implementation.
type Router interface {
	Send(rng *rand.Rand, dst pubkey.NodeID, pkt Packet) error
}

// Config holds the tunables for one simulation run.
type Config struct {
	GossipPushFanout           float64
	GossipPushWideFanout       float64
	RotateActiveSetRounds      int
	GossipPruneMinIngressNodes int
	GossipPushCapacity         int // 0 means unlimited
	PacketDropRate             float64
	NumCRDS                    int
	RefreshRate                float64
	NumThreads                 int
	RunDuration                time.Duration
	WarmUpRounds               int
}

// ConsumeOutput reports one round's worth of ingress traffic, returned
// by Node.ConsumePackets and folded into Node.RunGossip's return value.
type ConsumeOutput struct {
	UpsertedKeys  map[CrdsKey]struct{}
	NumPackets    int
	NumPrunes     int
	NumOutdated   int
	NumDuplicates int
}

// Node owns one cluster member's gossip state: its CRDS table, push
// active set, received-packet provenance cache, and inbound packet
// queue. A Node is single-writer — the driver never runs the same
// Node's RunGossip concurrently on two goroutines — so none of its
// fields are guarded by a lock.
type Node struct {
	clock           time.Time
	numGossipRounds int
	id              pubkey.NodeID
	stake           uint64
	table           Table
	activeSet       *PushActiveSet
	receivedCache   *ReceivedCache
	inbox           Inbox
	log             log.Logger
}

// Inbox is the receive end of a node's inbound packet queue. Router
// implementations supply the send end; ConsumePackets drains whatever
// is immediately available without blocking.
type Inbox interface {
	// Drain returns every packet currently queued, removing them, and
	// never blocks.
	Drain() []Packet
}

// NewNode constructs a Node for one cluster member. receivedCacheCap is
// typically 2*CRDSUniquePubkeyCapacity.
func NewNode(id pubkey.NodeID, stake uint64, inbox Inbox, receivedCacheCap int, logger log.Logger) *Node {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Node{
		clock:         time.Now(),
		id:            id,
		stake:         stake,
		table:         make(Table),
		activeSet:     NewPushActiveSet(),
		receivedCache: NewReceivedCache(receivedCacheCap),
		inbox:         inbox,
		log:           logger.New("node", id.String()[:8]),
	}
}

// ID returns the node's identity.
func (n *Node) ID() pubkey.NodeID { return n.id }

// Stake returns the node's stake.
func (n *Node) Stake() uint64 { return n.stake }

// Table returns the node's CRDS table for inspection (e.g. by
// cluster.Converge). Callers must not mutate the returned map.
func (n *Node) Table() Table { return n.table }

// NumGossipRounds returns how many rounds this node has executed.
func (n *Node) NumGossipRounds() int { return n.numGossipRounds }

// upsert applies an incoming (key, ordinal) pair to the table: insert
// or advance on a newer ordinal, count a duplicate on an equal one,
// and leave the entry alone when the incoming ordinal is behind.
func (n *Node) upsert(key CrdsKey, ordinal uint64) UpsertOutcome {
	entry, ok := n.table[key]
	if !ok {
		n.table[key] = CrdsEntry{Ordinal: ordinal}
		return UpsertOutcome{Result: Accepted}
	}
	switch {
	case entry.Ordinal < ordinal:
		n.table[key] = CrdsEntry{Ordinal: ordinal}
		return UpsertOutcome{Result: Accepted}
	case entry.Ordinal == ordinal:
		dups := entry.bumpDups()
		n.table[key] = entry
		return UpsertOutcome{Result: Duplicate, NumDups: dups}
	default:
		return UpsertOutcome{Result: Outdated}
	}
}

// ConsumePackets drains the inbox and applies every packet to the
// table/active-set, recording provenance for pushes and counting
// prunes. It never blocks.
func (n *Node) ConsumePackets(stakes StakeMap) ConsumeOutput {
	packets := n.inbox.Drain()
	out := ConsumeOutput{
		UpsertedKeys: make(map[CrdsKey]struct{}),
		NumPackets:   len(packets),
	}
	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *PushPacket:
			outcome := n.upsert(p.Key, p.Ordinal)
			switch outcome.Result {
			case Accepted:
				n.receivedCache.Record(p.Key.Origin, p.FromID, 0)
				out.UpsertedKeys[p.Key] = struct{}{}
			case Duplicate:
				n.receivedCache.Record(p.Key.Origin, p.FromID, uint64(outcome.NumDups))
				out.NumDuplicates++
			case Outdated:
				n.receivedCache.Record(p.Key.Origin, p.FromID, dupWeightOutdated)
				out.NumOutdated++
			}
		case *PrunePacket:
			out.NumPrunes++
			n.activeSet.Prune(n.id, p.FromID, p.Origins, stakes)
		}
	}
	return out
}

// sendPrunes groups prune targets by peer so each peer receives exactly
// one Prune packet per round even if multiple upserted origins prune
// it.
func (n *Node) sendPrunes(rng *rand.Rand, origins []pubkey.NodeID, cfg Config, stakes StakeMap, router Router) error {
	byPeer := make(map[pubkey.NodeID][]pubkey.NodeID)
	for _, origin := range origins {
		for _, peer := range n.receivedCache.Prune(n.id, origin, pruneStakeThresholdPct, cfg.GossipPruneMinIngressNodes, stakes) {
			byPeer[peer] = append(byPeer[peer], origin)
		}
	}
	for peer, prunedOrigins := range byPeer {
		pkt := &PrunePacket{FromID: n.id, Origins: prunedOrigins}
		if err := router.Send(rng, peer, pkt); err != nil {
			return err
		}
	}
	return nil
}

// bernoulliFanout converts a fractional fanout f into an integer draw:
// floor(f) plus an extra peer with probability frac(f).
func bernoulliFanout(rng *rand.Rand, f float64) int {
	n := int(f)
	frac := f - float64(n)
	if frac > 0 && rng.Float64() < frac {
		n++
	}
	return n
}

// RefreshEntries mints fresh own-origin entries: num_refresh draws of a
// uniformly random slot in [0, NumCRDS), each bumping that slot's
// ordinal by one. Returns the minted keys.
func (n *Node) RefreshEntries(rng *rand.Rand, cfg Config) []CrdsKey {
	numRefresh := bernoulliFanout(rng, cfg.RefreshRate)
	keys := make([]CrdsKey, 0, numRefresh)
	for i := 0; i < numRefresh; i++ {
		key := CrdsKey{Origin: n.id, Index: rng.Intn(cfg.NumCRDS)}
		entry := n.table[key]
		entry.Ordinal++
		entry.NumDups = 0
		n.table[key] = entry
		keys = append(keys, key)
	}
	return keys
}

// rotateActiveSet rebuilds the push active set from every known node:
// every stakes key plus every origin ever observed in the table,
// excluding self.
func (n *Node) rotateActiveSet(rng *rand.Rand, gossipPushFanout int, stakes StakeMap) {
	origins := make(map[pubkey.NodeID]struct{}, len(n.table))
	for key := range n.table {
		origins[key.Origin] = struct{}{}
	}

	pool := make(map[pubkey.NodeID]struct{}, len(stakes)+len(origins))
	for _, id := range maps.Keys(stakes) {
		pool[id] = struct{}{}
	}
	for _, id := range maps.Keys(origins) {
		pool[id] = struct{}{}
	}
	delete(pool, n.id)

	candidates := maps.Keys(pool)
	n.activeSet.Rotate(rng, gossipPushFanout*3, len(candidates), candidates, stakes)
}

// RunGossip executes exactly one gossip round: rotate (if due), consume
// inbound packets, send derived prunes, mint fresh own entries, and fan
// out pushes toward stake-weighted peers. It is synchronous and never
// blocks.
func (n *Node) RunGossip(rng *rand.Rand, cfg Config, stakes StakeMap, router Router) (ConsumeOutput, error) {
	elapsed := time.Since(n.clock)
	n.clock = time.Now()
	n.numGossipRounds++

	if cfg.RotateActiveSetRounds > 0 && (n.numGossipRounds-1)%cfg.RotateActiveSetRounds == 0 {
		n.rotateActiveSet(rng, int(cfg.GossipPushFanout), stakes)
	}

	out := n.ConsumePackets(stakes)

	origins := make([]pubkey.NodeID, 0, len(out.UpsertedKeys))
	for key := range out.UpsertedKeys {
		origins = append(origins, key.Origin)
	}
	if err := n.sendPrunes(rng, origins, cfg, stakes, router); err != nil {
		return out, err
	}

	keys := make([]CrdsKey, 0, len(out.UpsertedKeys))
	for key := range out.UpsertedKeys {
		keys = append(keys, key)
	}
	keys = append(keys, n.RefreshEntries(rng, cfg)...)

	sort.SliceStable(keys, func(i, j int) bool {
		return stakes.Stake(keys[i].Origin) > stakes.Stake(keys[j].Origin)
	})
	if cfg.GossipPushCapacity > 0 && len(keys) > cfg.GossipPushCapacity {
		keys = keys[:cfg.GossipPushCapacity]
	}

	for _, key := range keys {
		entry := n.table[key]
		pkt := &PushPacket{FromID: n.id, Key: key, Ordinal: entry.Ordinal}

		fanout := cfg.GossipPushFanout
		if key.Origin == n.id {
			fanout = cfg.GossipPushWideFanout
		}
		count := bernoulliFanout(rng, fanout)

		peers := n.activeSet.GetNodes(n.id, key.Origin, nil, stakes)
		if count > len(peers) {
			count = len(peers)
		}
		for _, peer := range peers[:count] {
			if peer == n.id {
				return out, fmt.Errorf("%w: fanout iterator yielded self", ErrInvariantViolation)
			}
			if err := router.Send(rng, peer, pkt); err != nil {
				return out, err
			}
		}
	}

	if rng.Float64() < 0.001 {
		ratio := func(num int) float64 {
			denom := out.NumPackets - out.NumPrunes
			if denom <= 0 {
				return 0
			}
			return float64(num) * 100.0 / float64(denom)
		}
		n.log.Trace("gossip round",
			"round", n.numGossipRounds,
			"elapsed", elapsed,
			"packets", out.NumPackets,
			"prunes", out.NumPrunes,
			"outdated", out.NumOutdated,
			"outdated_pct", ratio(out.NumOutdated),
			"duplicates", out.NumDuplicates,
			"duplicates_pct", ratio(out.NumDuplicates),
			"keys", len(keys),
		)
	}

	return out, nil
}
