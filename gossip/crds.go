// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip implements the per-node CRDS push/prune gossip state
// machine: the table, the received-packet provenance cache, the push
// active-set, and the per-round algorithm that ties them together.
package gossip

import "github.com/luxfi/gossip-sim/pubkey"

// CrdsKey identifies one of a node's num_crds value slots.
type CrdsKey struct {
	Origin pubkey.NodeID
	Index  int
}

// CrdsEntry is a versioned value: a monotonically nondecreasing ordinal
// owned by the key's origin, plus a saturating duplicate-arrival count.
type CrdsEntry struct {
	Ordinal uint64
	NumDups uint8
}

// maxNumDups is the saturation ceiling for CrdsEntry.NumDups.
const maxNumDups = 255

// bumpDups increments NumDups with saturation at maxNumDups and returns
// the new value.
func (e *CrdsEntry) bumpDups() uint8 {
	if e.NumDups < maxNumDups {
		e.NumDups++
	}
	return e.NumDups
}

// Table is the per-node CrdsKey -> CrdsEntry map.
type Table map[CrdsKey]CrdsEntry

// StakeMap is an immutable snapshot of NodeID -> stake shared read-only
// by every node in the cluster. A NodeID absent from the map carries
// stake 0.
type StakeMap map[pubkey.NodeID]uint64

// Stake returns stakes[id], or 0 if id is absent.
func (stakes StakeMap) Stake(id pubkey.NodeID) uint64 {
	return stakes[id]
}

// Total returns the sum of all stakes in the map.
func (stakes StakeMap) Total() uint64 {
	var total uint64
	for _, s := range stakes {
		total += s
	}
	return total
}

// UpsertResult describes the outcome of Node.upsert.
type UpsertResult int

const (
	// Accepted means the entry was inserted or its ordinal advanced.
	Accepted UpsertResult = iota
	// Outdated means the incoming ordinal was strictly behind the held one.
	Outdated
	// Duplicate means the incoming ordinal matched the held one exactly;
	// NumDups (post-bump) is carried by UpsertOutcome.NumDups.
	Duplicate
)

// UpsertOutcome is the full result of an upsert call, including the
// post-bump duplicate count needed by the Duplicate case.
type UpsertOutcome struct {
	Result  UpsertResult
	NumDups uint8
}
