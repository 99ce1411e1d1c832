// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/luxfi/gossip-sim/pubkey"
)

// peerRecord tracks one peer's ingress behavior for one origin: how
// many values it has forwarded in total, and the running sum of
// dup-weights those arrivals carried (see ReceivedCache.Record).
type peerRecord struct {
	arrivals     uint64
	dupWeightSum float64
}

func (r peerRecord) avgDupWeight() float64 {
	if r.arrivals == 0 {
		return 0
	}
	return r.dupWeightSum / float64(r.arrivals)
}

// ReceivedCache is a bounded, per-origin histogram of which peers
// deliver that origin's updates and how usefully they do so. It is
// strictly node-local. Capacity is fixed at construction; the
// least-recently-touched origin is evicted on overflow.
type ReceivedCache struct {
	origins *lru.Cache[pubkey.NodeID, map[pubkey.NodeID]*peerRecord]
}

// NewReceivedCache returns a ReceivedCache bounded to capacity distinct
// origins. The caller is expected to pass 2*CRDSUniquePubkeyCapacity.
func NewReceivedCache(capacity int) *ReceivedCache {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[pubkey.NodeID, map[pubkey.NodeID]*peerRecord](capacity)
	if err != nil {
		// Only returned for capacity <= 0, already guarded above.
		panic(err)
	}
	return &ReceivedCache{origins: c}
}

// dupWeightOutdated represents "infinity": an Outdated arrival should
// dominate every ranking comparison against a peer that ever forwarded
// something fresh.
const dupWeightOutdated = math.MaxUint64

// Record increments peer's arrival counters under origin. dupWeight is 0
// for an Accepted arrival, the post-bump NumDups for a Duplicate
// arrival, and dupWeightOutdated for an Outdated arrival.
func (c *ReceivedCache) Record(origin, peer pubkey.NodeID, dupWeight uint64) {
	peers, ok := c.origins.Get(origin)
	if !ok {
		peers = make(map[pubkey.NodeID]*peerRecord)
		c.origins.Add(origin, peers)
	}
	rec, ok := peers[peer]
	if !ok {
		rec = &peerRecord{}
		peers[peer] = rec
	}
	rec.arrivals++
	if dupWeight >= dupWeightOutdated {
		rec.dupWeightSum = math.Inf(1)
	} else if !math.IsInf(rec.dupWeightSum, 1) {
		rec.dupWeightSum += float64(dupWeight)
	}
}

// Prune returns the peers to instruct "stop forwarding values
// originated by origin", given the current ingress records for that
// origin.
//
// Algorithm: gather per-peer records for origin; if fewer than
// minIngressNodes peers have ever forwarded from origin, return
// nothing. Otherwise rank peers best-first (lower average dup-weight,
// then higher stake) and walk the ranking, keeping peers until the
// kept peers' cumulative stake reaches stakeThresholdPct of total
// active stake, always keeping at least minIngressNodes; the trailing,
// worst-ranked peers are the prune targets.
func (c *ReceivedCache) Prune(
	self, origin pubkey.NodeID,
	stakeThresholdPct float64,
	minIngressNodes int,
	stakes StakeMap,
) []pubkey.NodeID {
	peers, ok := c.origins.Get(origin)
	if !ok || len(peers) < minIngressNodes {
		return nil
	}

	type ranked struct {
		id        pubkey.NodeID
		avgWeight float64
		stake     uint64
	}
	ranking := make([]ranked, 0, len(peers))
	for id, rec := range peers {
		if id == self {
			continue
		}
		ranking = append(ranking, ranked{id: id, avgWeight: rec.avgDupWeight(), stake: stakes.Stake(id)})
	}
	if len(ranking) < minIngressNodes {
		return nil
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].avgWeight != ranking[j].avgWeight {
			return ranking[i].avgWeight < ranking[j].avgWeight // lower dup-weight first (best)
		}
		return ranking[i].stake > ranking[j].stake // higher stake first (best)
	})

	totalStake := float64(stakes.Total())
	threshold := stakeThresholdPct * totalStake

	var keptStake float64
	kept := 0
	for kept < len(ranking) {
		if kept >= minIngressNodes && keptStake >= threshold {
			break
		}
		keptStake += float64(ranking[kept].stake)
		kept++
	}

	pruned := make([]pubkey.NodeID, 0, len(ranking)-kept)
	for _, r := range ranking[kept:] {
		pruned = append(pruned, r.id)
	}
	return pruned
}
