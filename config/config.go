// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the tunables a gossip simulation run is
// configured with, along with the presets used by the CLI and tests.
package config

import (
	"errors"
	"time"

	"github.com/luxfi/gossip-sim/gossip"
)

// Validation errors for Config.Valid.
var (
	ErrInvalidFanout        = errors.New("config: gossip_push_fanout must be > 0")
	ErrInvalidWideFanout    = errors.New("config: gossip_push_wide_fanout must be >= gossip_push_fanout")
	ErrInvalidRotateRounds  = errors.New("config: rotate_active_set_rounds must be >= 1")
	ErrInvalidMinIngress    = errors.New("config: gossip_prune_min_ingress_nodes must be >= 1")
	ErrInvalidDropRate      = errors.New("config: packet_drop_rate must be in [0, 1]")
	ErrInvalidNumCRDS       = errors.New("config: num_crds must be >= 1")
	ErrInvalidRefreshRate   = errors.New("config: refresh_rate must be >= 0")
	ErrInvalidNumThreads    = errors.New("config: num_threads must be >= 1")
	ErrInvalidReceivedCache = errors.New("config: received_cache_capacity must be >= 1")
)

// Config is the full set of options a simulation run is configured
// with: gossip.Config plus the ambient options needed to drive the
// CLI (seed, cluster sizing, received-cache capacity).
type Config struct {
	Gossip gossip.Config

	// ReceivedCacheCapacity sizes each node's ReceivedCache, typically
	// 2*gossip.CRDSUniquePubkeyCapacity.
	ReceivedCacheCapacity int

	// Seed is a run seed; Seed == 0 means time-derived
	// (non-reproducible). cmd/gossip-sim does not read this field: it
	// takes its seed from the -seed flag.
	Seed int64

	// ClusterSize is used by synthetic cluster generation when no
	// member source file is given.
	ClusterSize int
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Gossip: gossip.Config{
			GossipPushFanout:           6,
			GossipPushWideFanout:       12,
			RotateActiveSetRounds:      4,
			GossipPruneMinIngressNodes: 2,
			GossipPushCapacity:         0,
			PacketDropRate:             0.0,
			NumCRDS:                    1,
			RefreshRate:                0.01,
			NumThreads:                 4,
			RunDuration:                60 * time.Second,
			WarmUpRounds:               10,
		},
		ReceivedCacheCapacity: 2 * gossip.CRDSUniquePubkeyCapacity,
		ClusterSize:           100,
	}
}

// Local returns a scaled-down configuration suited to fast unit tests
// and small synthetic clusters.
func Local() Config {
	c := Default()
	c.Gossip.RunDuration = time.Second
	c.Gossip.WarmUpRounds = 1
	c.Gossip.NumThreads = 1
	c.ReceivedCacheCapacity = 256
	c.ClusterSize = 10
	return c
}

// Valid reports whether c's fields satisfy the invariants RunGossip
// assumes.
func (c Config) Valid() error {
	g := c.Gossip
	if g.GossipPushFanout <= 0 {
		return ErrInvalidFanout
	}
	if g.GossipPushWideFanout < g.GossipPushFanout {
		return ErrInvalidWideFanout
	}
	if g.RotateActiveSetRounds < 1 {
		return ErrInvalidRotateRounds
	}
	if g.GossipPruneMinIngressNodes < 1 {
		return ErrInvalidMinIngress
	}
	if g.PacketDropRate < 0 || g.PacketDropRate > 1 {
		return ErrInvalidDropRate
	}
	if g.NumCRDS < 1 {
		return ErrInvalidNumCRDS
	}
	if g.RefreshRate < 0 {
		return ErrInvalidRefreshRate
	}
	if g.NumThreads < 1 {
		return ErrInvalidNumThreads
	}
	if c.ReceivedCacheCapacity < 1 {
		return ErrInvalidReceivedCache
	}
	return nil
}
