// Package cluster maintains a growing set of density-based clusters over
// streaming feature vectors, with no fixed cluster count and no retraining
// from scratch.
package cluster

import (
	"sync"
	"time"

	"github.com/introspectai/learnloop/pkg/core"
)

// Cluster is one discovered group of vectors. Clusters are never physically
// removed: consolidation folds them into a survivor and staleness only
// excludes them from scoring, so the full history stays auditable.
type Cluster struct {
	ID            int
	Centroid      []float64
	MemberCount   int
	DegradedCount int
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	Stale         bool
	MergedInto    int // surviving cluster id, 0 if never merged

	lastGrowthAt int // insertion counter at the last member add
}

// Active reports whether the cluster participates in scoring.
func (c *Cluster) Active() bool {
	return !c.Stale && c.MergedInto == 0
}

// Options are the tunable thresholds. They are configuration, not
// invariants; zero values fall back to the documented defaults.
type Options struct {
	// Epsilon is the density radius for assignment.
	Epsilon float64
	// ConsolidateEvery runs the merge pass every M insertions.
	ConsolidateEvery int
	// StaleWindow is the insertion count without growth after which a
	// small cluster goes stale.
	StaleWindow int
	// MinMembers protects clusters at or above this size from staleness.
	MinMembers int
}

func (o Options) withDefaults() Options {
	if o.Epsilon <= 0 {
		o.Epsilon = 0.35
	}
	if o.ConsolidateEvery <= 0 {
		o.ConsolidateEvery = 50
	}
	if o.StaleWindow <= 0 {
		o.StaleWindow = 200
	}
	if o.MinMembers <= 0 {
		o.MinMembers = 3
	}
	return o
}

// Clusterer incrementally assigns vectors to density clusters. All mutation
// is serialized behind one mutex, so concurrent producers queue rather than
// race on a cluster's representative.
type Clusterer struct {
	mu         sync.Mutex
	opts       Options
	clusters   []*Cluster
	insertions int
	nextID     int
}

// New creates an empty clusterer.
func New(opts Options) *Clusterer {
	return &Clusterer{
		opts:   opts.withDefaults(),
		nextID: 1,
	}
}

// Assign places one vector: into the nearest active cluster within epsilon,
// updating its streaming centroid, or into a fresh cluster otherwise. Every
// vector lands in exactly one cluster. The returned id is stable for the
// life of the process; consolidation records merges rather than renumbering.
func (c *Clusterer) Assign(vec core.FeatureVector) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.insertions++

	target := c.nearestActive(vec.Values)
	if target == nil {
		target = &Cluster{
			ID:           c.nextID,
			Centroid:     append([]float64(nil), vec.Values...),
			CreatedAt:    time.Now(),
			lastGrowthAt: c.insertions,
		}
		c.nextID++
		c.clusters = append(c.clusters, target)
	} else {
		// Streaming centroid update:
		// centroid += (vector - centroid) / (memberCount + 1)
		n := float64(target.MemberCount + 1)
		for i := range target.Centroid {
			target.Centroid[i] += (vec.Values[i] - target.Centroid[i]) / n
		}
		target.lastGrowthAt = c.insertions
	}

	target.MemberCount++
	if vec.Degraded {
		target.DegradedCount++
	}
	target.LastUpdatedAt = time.Now()

	c.sweepStale()

	if c.insertions%c.opts.ConsolidateEvery == 0 {
		c.consolidate()
	}

	return c.resolve(target.ID)
}

func (c *Clusterer) nearestActive(values []float64) *Cluster {
	var best *Cluster
	bestDist := c.opts.Epsilon
	for _, cl := range c.clusters {
		if !cl.Active() {
			continue
		}
		if d := core.EuclideanDistance(values, cl.Centroid); d <= bestDist {
			best = cl
			bestDist = d
		}
	}
	return best
}

// sweepStale marks small clusters that have stopped growing. Stale clusters
// are excluded from assignment and scoring but retained for audit.
func (c *Clusterer) sweepStale() {
	for _, cl := range c.clusters {
		if !cl.Active() {
			continue
		}
		if cl.MemberCount < c.opts.MinMembers && c.insertions-cl.lastGrowthAt > c.opts.StaleWindow {
			cl.Stale = true
		}
	}
}

// consolidate merges active clusters whose centroids drifted within
// epsilon/2 of each other, iterating to a fixed point so a second pass with
// no new insertions changes nothing.
func (c *Clusterer) consolidate() {
	for {
		merged := false
		for i := 0; i < len(c.clusters) && !merged; i++ {
			a := c.clusters[i]
			if !a.Active() {
				continue
			}
			for j := i + 1; j < len(c.clusters); j++ {
				b := c.clusters[j]
				if !b.Active() {
					continue
				}
				if core.EuclideanDistance(a.Centroid, b.Centroid) >= c.opts.Epsilon/2 {
					continue
				}

				total := float64(a.MemberCount + b.MemberCount)
				wa := float64(a.MemberCount) / total
				wb := float64(b.MemberCount) / total
				for k := range a.Centroid {
					a.Centroid[k] = a.Centroid[k]*wa + b.Centroid[k]*wb
				}
				a.MemberCount += b.MemberCount
				a.DegradedCount += b.DegradedCount
				if b.lastGrowthAt > a.lastGrowthAt {
					a.lastGrowthAt = b.lastGrowthAt
				}
				a.LastUpdatedAt = time.Now()
				b.MergedInto = a.ID
				merged = true
				break
			}
		}
		if !merged {
			return
		}
	}
}

// Consolidate runs the merge pass on demand.
func (c *Clusterer) Consolidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consolidate()
}

// resolve follows merge links to the surviving cluster id.
func (c *Clusterer) resolve(id int) int {
	for {
		cl := c.byID(id)
		if cl == nil || cl.MergedInto == 0 {
			return id
		}
		id = cl.MergedInto
	}
}

func (c *Clusterer) byID(id int) *Cluster {
	for _, cl := range c.clusters {
		if cl.ID == id {
			return cl
		}
	}
	return nil
}

// Get returns a copy of the cluster with the given id, if it exists.
func (c *Clusterer) Get(id int) (Cluster, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl := c.byID(id)
	if cl == nil {
		return Cluster{}, false
	}
	return snapshotOf(cl), true
}

// Count returns the total number of clusters ever created.
func (c *Clusterer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clusters)
}

// ActiveCount returns the number of clusters participating in scoring.
func (c *Clusterer) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, cl := range c.clusters {
		if cl.Active() {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all clusters, active and stale alike.
func (c *Clusterer) Snapshot() []Cluster {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Cluster, 0, len(c.clusters))
	for _, cl := range c.clusters {
		out = append(out, snapshotOf(cl))
	}
	return out
}

func snapshotOf(cl *Cluster) Cluster {
	cp := *cl
	cp.Centroid = append([]float64(nil), cl.Centroid...)
	return cp
}
