// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"math/bits"
	"math/rand"

	"github.com/luxfi/gossip-sim/pubkey"
)

// NumStakeBuckets is the number of logarithmic stake buckets
// PushActiveSet partitions candidate nodes into.
const NumStakeBuckets = 25

// bucketFor returns the logarithmic stake bucket index for stake: bucket
// b holds nodes with stake in [2^b, 2^(b+1)), with bucket 0 additionally
// absorbing zero-stake nodes, clamped to [0, NumStakeBuckets-1].
func bucketFor(stake uint64) int {
	b := bits.Len64(stake) - 1
	if b < 0 {
		b = 0
	}
	if b > NumStakeBuckets-1 {
		b = NumStakeBuckets - 1
	}
	return b
}

// activePeer is one peer in the active set, together with the set of
// origins it has told us (via a Prune packet) to stop forwarding.
type activePeer struct {
	id            pubkey.NodeID
	prunedOrigins map[pubkey.NodeID]struct{}
}

func (p *activePeer) isPrunedFor(origin pubkey.NodeID) bool {
	_, ok := p.prunedOrigins[origin]
	return ok
}

// PushActiveSet is the fixed-size, stake-bucketed set of outgoing push
// peers. It is rebuilt in place every rotate_active_set_rounds rounds
// and strictly node-local.
type PushActiveSet struct {
	buckets [NumStakeBuckets][]*activePeer
}

// NewPushActiveSet returns an empty PushActiveSet.
func NewPushActiveSet() *PushActiveSet {
	return &PushActiveSet{}
}

// Rotate rebuilds the active set from candidateNodes. Candidates are
// partitioned into logarithmic stake buckets; from each bucket,
// sizePerBucket peers are drawn uniformly without replacement (or all
// of them if the bucket holds fewer). Each selected peer starts with an
// empty pruned-origins filter. clusterSize is informational only:
// bucket membership already partitions every candidate, so no further
// scaling by cluster size is needed.
func (s *PushActiveSet) Rotate(
	rng *rand.Rand,
	sizePerBucket int,
	clusterSize int,
	candidateNodes []pubkey.NodeID,
	stakes StakeMap,
) {
	_ = clusterSize

	var byBucket [NumStakeBuckets][]pubkey.NodeID
	for _, id := range candidateNodes {
		b := bucketFor(stakes.Stake(id))
		byBucket[b] = append(byBucket[b], id)
	}

	var newBuckets [NumStakeBuckets][]*activePeer
	for b, nodes := range byBucket {
		picked := sampleWithoutReplacement(rng, nodes, sizePerBucket)
		peers := make([]*activePeer, len(picked))
		for i, id := range picked {
			peers[i] = &activePeer{id: id, prunedOrigins: make(map[pubkey.NodeID]struct{})}
		}
		newBuckets[b] = peers
	}
	s.buckets = newBuckets
}

// sampleWithoutReplacement draws min(n, len(pool)) elements from pool
// uniformly without replacement, preserving no particular relation to
// input order.
func sampleWithoutReplacement(rng *rand.Rand, pool []pubkey.NodeID, n int) []pubkey.NodeID {
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return nil
	}
	// Partial Fisher-Yates shuffle over a copy of pool: n swaps.
	shuffled := make([]pubkey.NodeID, len(pool))
	copy(shuffled, pool)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	out := make([]pubkey.NodeID, n)
	copy(out, shuffled[:n])
	return out
}

// GetNodes returns, in stake-weighted order (highest bucket first), the
// peers eligible to receive a push about origin: every active peer
// except self, any peer whose pruned-origins filter contains origin,
// and any peer for which excluded returns true. The returned slice is
// finite and never contains self; callers take the first `fanout`
// elements.
func (s *PushActiveSet) GetNodes(
	self, origin pubkey.NodeID,
	excluded func(pubkey.NodeID) bool,
	stakes StakeMap,
) []pubkey.NodeID {
	_ = stakes // buckets are already stake-ordered by construction
	var out []pubkey.NodeID
	for b := NumStakeBuckets - 1; b >= 0; b-- {
		for _, peer := range s.buckets[b] {
			if peer.id == self {
				continue
			}
			if peer.isPrunedFor(origin) {
				continue
			}
			if excluded != nil && excluded(peer.id) {
				continue
			}
			out = append(out, peer.id)
		}
	}
	return out
}

// Prune marks, in fromPeer's filter, that each origin in origins is
// pruned: subsequent GetNodes(_, origin, ...) calls will skip fromPeer.
// Applying the same prune twice is idempotent since the filter is a
// set.
func (s *PushActiveSet) Prune(self, fromPeer pubkey.NodeID, origins []pubkey.NodeID, stakes StakeMap) {
	_ = self
	_ = stakes
	for b := range s.buckets {
		for _, peer := range s.buckets[b] {
			if peer.id != fromPeer {
				continue
			}
			for _, origin := range origins {
				peer.prunedOrigins[origin] = struct{}{}
			}
		}
	}
}
