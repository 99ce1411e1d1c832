// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command gossip-sim runs a discrete-round simulation of a
// stake-weighted push/prune gossip cluster and reports how quickly it
// converges.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/gossip-sim/cluster"
	"github.com/luxfi/gossip-sim/config"
	gsimmetrics "github.com/luxfi/gossip-sim/metrics"
	"github.com/luxfi/gossip-sim/pubkey"
)

func main() {
	clusterSize := flag.Int("nodes", 0, "Synthetic cluster size (0 uses the preset default)")
	profile := flag.String("profile", "default", "Configuration profile: default or local")
	membersFile := flag.String("members", "", "Path to a JSON member list (overrides -nodes)")
	rounds := flag.Int("rounds", 200, "Number of gossip rounds to execute")
	seed := flag.Int64("seed", 0, "Random seed (0 derives one from the current time)")
	metricsAddr := flag.String("metrics", "", "Address to serve Prometheus metrics on, e.g. :9090 (empty disables)")
	flag.Parse()

	logger := log.New("component", "gossip-sim")

	cfg := loadProfile(*profile)
	if *clusterSize > 0 {
		cfg.ClusterSize = *clusterSize
	}
	if err := cfg.Valid(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	logger.Info("starting gossip simulation",
		"seed", *seed,
		"rounds", *rounds,
		"cluster_size", cfg.ClusterSize,
		"gossip_push_fanout", cfg.Gossip.GossipPushFanout,
	)

	var src cluster.MemberSource
	if *membersFile != "" {
		src = cluster.JSONFileSource{Path: *membersFile}
	} else {
		src = syntheticMembers(cfg.ClusterSize, *seed)
	}

	c, err := cluster.Bootstrap(src, cfg.ReceivedCacheCapacity, cfg.Gossip.PacketDropRate, logger)
	if err != nil {
		logger.Error("failed to bootstrap cluster", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	stats, err := gsimmetrics.NewRegistry(reg)
	if err != nil {
		logger.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg, logger)
	}

	firstConverged := runCluster(ctx, c, cfg, *rounds, *seed, stats, logger)

	report := cluster.Converge(c.Nodes)
	report.FirstConvergedRound = firstConverged
	stats.ConvergedFraction.Set(report.Fraction())
	logger.Info("simulation complete",
		"rounds", *rounds,
		"num_keys", report.NumKeys,
		"converged_fraction", report.Fraction(),
		"first_converged_round", report.FirstConvergedRound,
	)
	fmt.Printf("converged: %.4f (%d/%d slots)\n", report.Fraction(), report.ConvergedSlots, report.TotalSlots)
	if report.FirstConvergedRound >= 0 {
		fmt.Printf("first fully converged round: %d\n", report.FirstConvergedRound)
	}
}

func loadProfile(name string) config.Config {
	switch name {
	case "local":
		return config.Local()
	default:
		return config.Default()
	}
}

// runCluster drives every node through numRounds gossip rounds, or
// until cfg.Gossip.RunDuration elapses, whichever comes first. Nodes
// are sharded across cfg.Gossip.NumThreads worker goroutines; within a
// round, each node is still only ever touched by the one goroutine
// that owns its shard, so gossip.Node needs no internal locking. Stats
// collection starts after cfg.Gossip.WarmUpRounds rounds.
//
// Returns the first 1-based round at which every node's table matched
// the cluster-wide ground truth (checked between rounds, once the
// warm-up has passed), or -1 if the run ended before that happened.
func runCluster(ctx context.Context, c *cluster.Cluster, cfg config.Config, numRounds int, seed int64, stats *gsimmetrics.Registry, logger log.Logger) int {
	numThreads := cfg.Gossip.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}
	shards := make([][]int, numThreads)
	for i := range c.Nodes {
		shard := i % numThreads
		shards[shard] = append(shards[shard], i)
	}

	start := time.Now()
	firstConverged := -1
	var sentBefore, droppedBefore uint64
	for round := 0; round < numRounds; round++ {
		select {
		case <-ctx.Done():
			logger.Info("simulation interrupted", "rounds_completed", round)
			return firstConverged
		default:
		}
		if cfg.Gossip.RunDuration > 0 && time.Since(start) >= cfg.Gossip.RunDuration {
			logger.Info("run duration elapsed", "rounds_completed", round)
			return firstConverged
		}
		if round == cfg.Gossip.WarmUpRounds {
			sentBefore = c.Router.NumSent()
			droppedBefore = c.Router.NumDropped()
		}
		warm := round >= cfg.Gossip.WarmUpRounds

		roundStart := time.Now()
		var wg sync.WaitGroup
		for shard, indices := range shards {
			if len(indices) == 0 {
				continue
			}
			wg.Add(1)
			go func(shard int, indices []int) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed + int64(shard)<<32 + int64(round)))
				for _, idx := range indices {
					node := c.Nodes[idx]
					out, err := node.RunGossip(rng, cfg.Gossip, c.Stakes, c.Router)
					if err != nil {
						logger.Warn("gossip round failed", "node", node.ID().String()[:8], "err", err)
						continue
					}
					if !warm {
						continue
					}
					stats.Rounds.Inc()
					stats.Duplicates.Add(int64(out.NumDuplicates))
					stats.Outdated.Add(int64(out.NumOutdated))
					stats.Prunes.Add(int64(out.NumPrunes))
				}
			}(shard, indices)
		}
		wg.Wait()
		if warm {
			stats.RoundDuration.Observe(time.Since(roundStart).Seconds())
			if firstConverged < 0 {
				if r := cluster.Converge(c.Nodes); r.NumKeys > 0 && r.Fraction() == 1 {
					firstConverged = round + 1
					logger.Info("cluster fully converged", "round", firstConverged)
				}
			}
		}
	}
	stats.PacketsSent.Add(int64(c.Router.NumSent() - sentBefore))
	stats.PacketsDropped.Add(int64(c.Router.NumDropped() - droppedBefore))
	return firstConverged
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

// syntheticMembers builds a deterministic cluster.StaticMemberSource of
// size n, with a Zipf-ish stake distribution so the stake-bucketed
// active set actually exercises more than one bucket.
func syntheticMembers(n int, seed int64) cluster.StaticMemberSource {
	rng := rand.New(rand.NewSource(seed))
	members := make(cluster.StaticMemberSource, n)
	for i := 0; i < n; i++ {
		members[i] = cluster.Member{
			ID:           pubkey.Deterministic(uint64(i) + 1),
			Stake:        uint64(rng.Int63n(1<<20) + 1),
			ShredVersion: 1,
		}
	}
	return members
}
