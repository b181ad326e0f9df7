package strategy

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/introspectai/learnloop/pkg/errors"
)

// Record tracks the running effectiveness of one named strategy.
type Record struct {
	Name          string
	SampleCount   int
	LastUpdatedAt time.Time

	weightedSum float64
	weightTotal float64
}

func (r *Record) score() float64 {
	if r.weightTotal == 0 {
		return 0
	}
	return r.weightedSum / r.weightTotal
}

// Scored is one strategy with enough samples to carry an opinion.
type Scored struct {
	Name        string
	Score       float64
	SampleCount int
}

// Scorer aggregates outcome positivity per strategy name, weighted by
// correlation confidence. Scores live in [-1, 1].
type Scorer struct {
	mu         sync.Mutex
	minSamples int
	records    map[string]*Record
}

// NewScorer creates an empty scorer. Strategies below minSamples matches
// report InsufficientData instead of a number.
func NewScorer(minSamples int) *Scorer {
	if minSamples <= 0 {
		minSamples = 10
	}
	return &Scorer{
		minSamples: minSamples,
		records:    make(map[string]*Record),
	}
}

// Update folds one observation's outcome into every strategy it matched.
// Positivity is in [-1, 1]; confidence in [0, 1] weights the sample.
func (s *Scorer) Update(names []string, positivity, confidence float64) {
	if len(names) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, name := range names {
		r := s.records[name]
		if r == nil {
			r = &Record{Name: name}
			s.records[name] = r
		}
		r.SampleCount++
		r.weightedSum += positivity * confidence
		r.weightTotal += confidence
		r.LastUpdatedAt = now
	}
}

// Score returns the strategy's effectiveness in [-1, 1], or
// InsufficientData when there are too few matching observations to mean
// anything. InsufficientData is a refusal to guess, not a fault.
func (s *Scorer) Score(name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[name]
	samples := 0
	if r != nil {
		samples = r.SampleCount
	}
	if samples < s.minSamples {
		return 0, errors.WithFields(
			errors.New(errors.InsufficientData, "too few samples to score strategy"),
			errors.Fields{"strategy": name, "samples": samples, "min_samples": s.minSamples})
	}
	return r.score(), nil
}

// Scores returns every strategy with enough samples, best first.
func (s *Scorer) Scores() []Scored {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Scored
	for _, r := range s.records {
		if r.SampleCount < s.minSamples {
			continue
		}
		out = append(out, Scored{Name: r.Name, Score: r.score(), SampleCount: r.SampleCount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Count returns the number of strategies seen at least once.
func (s *Scorer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Positivity labels an outcome cluster from its member statistics alone.
// The first outcome feature is the success flag, so the centroid's first
// component is the cluster's success rate; mapping it to [-1, 1] keeps the
// labeling a pure function, independent of how the cluster formed.
func Positivity(centroid []float64) float64 {
	if len(centroid) == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, 2*centroid[0]-1))
}
