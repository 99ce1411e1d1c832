// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cluster

import (
	"github.com/luxfi/gossip-sim/gossip"
)

// GroundTruth merges every node's table into the most recent ordinal
// observed cluster-wide per key.
func GroundTruth(nodes []*gossip.Node) map[gossip.CrdsKey]uint64 {
	out := make(map[gossip.CrdsKey]uint64)
	for _, n := range nodes {
		for key, entry := range n.Table() {
			if entry.Ordinal > out[key] {
				out[key] = entry.Ordinal
			}
		}
	}
	return out
}

// ConvergenceReport summarizes how close a cluster's per-node tables
// are to the cluster-wide ground truth.
type ConvergenceReport struct {
	NumNodes       int
	NumKeys        int
	TotalSlots     int
	ConvergedSlots int
	PerNodeMissing map[gossip.CrdsKey][]int

	// FirstConvergedRound is the first round at which the driver
	// observed every (node, key) slot holding the ground-truth ordinal,
	// or -1 if that never happened during the run. Converge itself only
	// snapshots table state; the driver fills this in as it checks
	// convergence between rounds.
	FirstConvergedRound int
}

// Fraction returns the share of (node, key) slots holding the
// ground-truth ordinal, in [0, 1].
func (r ConvergenceReport) Fraction() float64 {
	if r.TotalSlots == 0 {
		return 1
	}
	return float64(r.ConvergedSlots) / float64(r.TotalSlots)
}

// Converge compares every node's table against the cluster-wide
// ground truth and reports how many (node, key) slots already hold
// the latest ordinal.
func Converge(nodes []*gossip.Node) ConvergenceReport {
	truth := GroundTruth(nodes)
	report := ConvergenceReport{
		NumNodes:            len(nodes),
		NumKeys:             len(truth),
		TotalSlots:          len(nodes) * len(truth),
		PerNodeMissing:      make(map[gossip.CrdsKey][]int),
		FirstConvergedRound: -1,
	}
	for idx, n := range nodes {
		table := n.Table()
		for key, latest := range truth {
			entry, ok := table[key]
			if ok && entry.Ordinal == latest {
				report.ConvergedSlots++
				continue
			}
			report.PerNodeMissing[key] = append(report.PerNodeMissing[key], idx)
		}
	}
	return report
}
