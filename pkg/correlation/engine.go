// Package correlation tracks co-occurrence between behavior clusters and
// outcome clusters and turns the counts into ranked, confidence-weighted
// links.
package correlation

import (
	"math"
	"sort"
	"sync"
	"time"
)

type pairKey struct {
	behavior int
	outcome  int
}

type pairCount struct {
	total    int
	sampled  int // excludes degraded observations
	lastSeen time.Time
}

// Link is one behavior-to-outcome association. Strength is the fraction of
// the behavior's observations that landed in this outcome, so it stays in
// [0, 1] without normalization. Confidence grows monotonically with
// non-degraded sample count and never reaches 1.
type Link struct {
	BehaviorID int
	OutcomeID  int
	Strength   float64
	Confidence float64
	Count      int
}

// Engine accumulates co-occurrence counts. Reads compute strength and
// confidence on the fly; nothing is cached, so Record stays cheap.
type Engine struct {
	mu            sync.Mutex
	pairs         map[pairKey]*pairCount
	behaviorTotal map[int]int
}

// NewEngine creates an empty correlation engine.
func NewEngine() *Engine {
	return &Engine{
		pairs:         make(map[pairKey]*pairCount),
		behaviorTotal: make(map[int]int),
	}
}

// Record counts one observation that was assigned to both clusters.
// Degraded observations still shift strength, since the structural features
// that drove their assignment are sound, but they do not grow confidence.
func (e *Engine) Record(behaviorID, outcomeID int, degraded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pairKey{behavior: behaviorID, outcome: outcomeID}
	pc := e.pairs[key]
	if pc == nil {
		pc = &pairCount{}
		e.pairs[key] = pc
	}
	pc.total++
	if !degraded {
		pc.sampled++
	}
	pc.lastSeen = time.Now()
	e.behaviorTotal[behaviorID]++
}

func confidence(samples int) float64 {
	if samples <= 0 {
		return 0
	}
	return 1 - 1/math.Sqrt(float64(samples))
}

func (e *Engine) link(key pairKey, pc *pairCount) Link {
	return Link{
		BehaviorID: key.behavior,
		OutcomeID:  key.outcome,
		Strength:   float64(pc.total) / float64(e.behaviorTotal[key.behavior]),
		Confidence: confidence(pc.sampled),
		Count:      pc.total,
	}
}

// TopOutcomesFor returns the links from one behavior cluster whose
// confidence meets the floor, strongest first. Ties break on raw count so
// the ordering is stable.
func (e *Engine) TopOutcomesFor(behaviorID int, minConfidence float64) []Link {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Link
	for key, pc := range e.pairs {
		if key.behavior != behaviorID {
			continue
		}
		l := e.link(key, pc)
		if l.Confidence < minConfidence {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].OutcomeID < out[j].OutcomeID
	})
	return out
}

// LinkFor returns the association for one specific pair, if recorded.
func (e *Engine) LinkFor(behaviorID, outcomeID int) (Link, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pairKey{behavior: behaviorID, outcome: outcomeID}
	pc := e.pairs[key]
	if pc == nil {
		return Link{}, false
	}
	return e.link(key, pc), true
}

// Links returns every tracked association, unfiltered and unsorted.
func (e *Engine) Links() []Link {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Link, 0, len(e.pairs))
	for key, pc := range e.pairs {
		out = append(out, e.link(key, pc))
	}
	return out
}

// PairCount returns the number of distinct behavior-outcome pairs seen.
func (e *Engine) PairCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pairs)
}

// Decay drops pairs not reinforced since the cutoff, subtracting their
// counts from the behavior totals so remaining strengths re-normalize.
func (e *Engine) Decay(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for key, pc := range e.pairs {
		if pc.lastSeen.After(cutoff) {
			continue
		}
		e.behaviorTotal[key.behavior] -= pc.total
		if e.behaviorTotal[key.behavior] <= 0 {
			delete(e.behaviorTotal, key.behavior)
		}
		delete(e.pairs, key)
		removed++
	}
	return removed
}
