// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cluster assembles a set of gossip.Node instances from a
// member list and reports on their convergence. Membership discovery
// is behind a pluggable, network-free MemberSource.
package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/luxfi/log"

	"github.com/luxfi/gossip-sim/gossip"
	"github.com/luxfi/gossip-sim/pubkey"
	"github.com/luxfi/gossip-sim/router"
)

// ErrBootstrapFailed is returned when the member source could not
// produce a usable member list. Bootstrap failures are fatal; there is
// no cluster to simulate without one.
var ErrBootstrapFailed = errors.New("cluster: bootstrap failed")

// Member describes one cluster participant prior to bootstrap: the
// fields a cluster-membership RPC endpoint would have returned.
type Member struct {
	ID           pubkey.NodeID `json:"id"`
	Stake        uint64        `json:"stake"`
	ShredVersion uint16        `json:"shred_version"`
}

// MemberSource supplies the member list a cluster is bootstrapped
// from.
type MemberSource interface {
	Members() ([]Member, error)
}

// StaticMemberSource is a MemberSource backed by an in-memory slice,
// used by tests and by synthetic cluster generation.
type StaticMemberSource []Member

// Members implements MemberSource.
func (s StaticMemberSource) Members() ([]Member, error) {
	return []Member(s), nil
}

// JSONFileSource reads a JSON array of Member from a file on disk.
type JSONFileSource struct {
	Path string
}

// Members implements MemberSource.
func (s JSONFileSource) Members() ([]Member, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("cluster: read member source %q: %w", s.Path, err)
	}
	var members []Member
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("cluster: decode member source %q: %w", s.Path, err)
	}
	return members, nil
}

// Cluster is a bootstrapped set of gossip nodes sharing one router.
type Cluster struct {
	Nodes  []*gossip.Node
	Stakes gossip.StakeMap
	Router *router.Memory
}

// Bootstrap builds a Cluster from src: one gossip.Node per member,
// each registered against a freshly created router.Memory. Logs the
// staked-node count, total cluster stake, and a shred-version sanity
// check.
func Bootstrap(src MemberSource, receivedCacheCap int, dropRate float64, logger log.Logger) (*Cluster, error) {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	members, err := src.Members()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
	}

	shredVersions := make(map[uint16]struct{})
	stakes := make(gossip.StakeMap, len(members))
	for _, m := range members {
		stakes[m.ID] = m.Stake
		shredVersions[m.ShredVersion] = struct{}{}
	}
	if len(shredVersions) > 1 {
		logger.Warn("multiple shred versions in cluster", "count", len(shredVersions))
	}

	mem := router.NewMemory(dropRate)
	nodes := make([]*gossip.Node, 0, len(members))
	numStaked := 0
	var clusterStake uint64
	for _, m := range members {
		if m.Stake != 0 {
			numStaked++
		}
		clusterStake += m.Stake
		inbox := mem.Register(m.ID)
		nodes = append(nodes, gossip.NewNode(m.ID, m.Stake, inbox, receivedCacheCap, logger))
	}

	logger.Info("bootstrapped gossip cluster",
		"num_cluster_nodes", len(nodes),
		"num_staked_nodes", numStaked,
		"cluster_stake", clusterStake,
	)

	return &Cluster{Nodes: nodes, Stakes: stakes, Router: mem}, nil
}
