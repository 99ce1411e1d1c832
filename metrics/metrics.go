// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics provides the Counter/Gauge/Averager registry a
// running simulation reports through, backed directly by
// prometheus.Counter/prometheus.Gauge so a run can be scraped like any
// other service.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter tracks a monotonically increasing count.
type Counter interface {
	Inc()
	Add(delta int64)
	Read() int64
}

type counter struct {
	mu    sync.RWMutex
	value int64
	prom  prometheus.Counter
}

// NewCounter returns a new Counter, registering its backing prometheus
// counter with reg.
func NewCounter(name, help string, reg prometheus.Registerer) (Counter, error) {
	prom := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := reg.Register(prom); err != nil {
		return nil, err
	}
	return &counter{prom: prom}, nil
}

func (c *counter) Inc() { c.Add(1) }

func (c *counter) Add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	if delta > 0 {
		c.prom.Add(float64(delta))
	}
}

func (c *counter) Read() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Gauge tracks a value that can move in either direction.
type Gauge interface {
	Set(value float64)
	Add(delta float64)
	Read() float64
}

type gauge struct {
	mu    sync.RWMutex
	value float64
	prom  prometheus.Gauge
}

// NewGauge returns a new Gauge, registering its backing prometheus
// gauge with reg.
func NewGauge(name, help string, reg prometheus.Registerer) (Gauge, error) {
	prom := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	if err := reg.Register(prom); err != nil {
		return nil, err
	}
	return &gauge{prom: prom}, nil
}

func (g *gauge) Set(value float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = value
	g.prom.Set(value)
}

func (g *gauge) Add(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value += delta
	g.prom.Add(delta)
}

func (g *gauge) Read() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Averager tracks a running average of observed values. It is a thin
// composition of a Counter (observation count) and a Gauge (running
// sum), exposed to scrapers as the conventional name_count/name_sum
// metric pair.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	count Counter
	sum   Gauge
}

// NewAverager returns a new Averager, registering its backing
// count/sum metrics with reg.
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	count, err := NewCounter(name+"_count", "Total # of observations of "+help, reg)
	if err != nil {
		return nil, err
	}
	sum, err := NewGauge(name+"_sum", "Sum of "+help, reg)
	if err != nil {
		return nil, err
	}
	return &averager{count: count, sum: sum}, nil
}

func (a *averager) Observe(value float64) {
	a.count.Inc()
	a.sum.Add(value)
}

func (a *averager) Read() float64 {
	n := a.count.Read()
	if n == 0 {
		return 0
	}
	return a.sum.Read() / float64(n)
}

// Registry is the set of metrics a single simulation run reports.
// Names are namespaced under "gossip_sim_" and registered against a
// caller-supplied prometheus.Registerer so cmd/gossip-sim can expose
// them over HTTP.
type Registry struct {
	reg prometheus.Registerer

	Rounds            Counter
	PacketsSent       Counter
	PacketsDropped    Counter
	Duplicates        Counter
	Outdated          Counter
	Prunes            Counter
	ConvergedFraction Gauge
	RoundDuration     Averager
}

// NewRegistry constructs a Registry and registers every metric against
// reg. Returns an error on the first failed registration (e.g. a name
// collision).
func NewRegistry(reg prometheus.Registerer) (*Registry, error) {
	r := &Registry{reg: reg}
	var err error
	if r.Rounds, err = NewCounter("gossip_sim_rounds_total", "Total gossip rounds executed", reg); err != nil {
		return nil, fmt.Errorf("metrics: rounds: %w", err)
	}
	if r.PacketsSent, err = NewCounter("gossip_sim_packets_sent_total", "Total packets sent", reg); err != nil {
		return nil, fmt.Errorf("metrics: packets_sent: %w", err)
	}
	if r.PacketsDropped, err = NewCounter("gossip_sim_packets_dropped_total", "Total packets dropped by the router", reg); err != nil {
		return nil, fmt.Errorf("metrics: packets_dropped: %w", err)
	}
	if r.Duplicates, err = NewCounter("gossip_sim_duplicates_total", "Total duplicate push packets observed", reg); err != nil {
		return nil, fmt.Errorf("metrics: duplicates: %w", err)
	}
	if r.Outdated, err = NewCounter("gossip_sim_outdated_total", "Total outdated push packets observed", reg); err != nil {
		return nil, fmt.Errorf("metrics: outdated: %w", err)
	}
	if r.Prunes, err = NewCounter("gossip_sim_prunes_total", "Total prune packets received", reg); err != nil {
		return nil, fmt.Errorf("metrics: prunes: %w", err)
	}
	if r.ConvergedFraction, err = NewGauge("gossip_sim_converged_fraction", "Fraction of (node, key) slots holding the latest ordinal", reg); err != nil {
		return nil, fmt.Errorf("metrics: converged_fraction: %w", err)
	}
	if r.RoundDuration, err = NewAverager("gossip_sim_round_duration_seconds", "wall-clock seconds per gossip round", reg); err != nil {
		return nil, fmt.Errorf("metrics: round_duration: %w", err)
	}
	return r, nil
}
