// Package learning runs the asynchronous pipeline that turns recorded
// observations into clusters, correlations and strategy scores. The control
// loop hands observations over a bounded queue and never waits on any of
// this work.
package learning

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/introspectai/learnloop/pkg/cluster"
	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/correlation"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/features"
	"github.com/introspectai/learnloop/pkg/logging"
	"github.com/introspectai/learnloop/pkg/obslog"
	"github.com/introspectai/learnloop/pkg/strategy"
)

// windowSize bounds the per-task history kept for signature extraction.
const windowSize = 8

// Service owns the learning-side state: the projector, one clusterer per
// vector kind, the correlation engine and the strategy scorer. A single
// consumer goroutine drains the queue, so cluster and score mutations are
// naturally serialized without cross-task races.
type Service struct {
	projector *features.Projector
	behavior  *cluster.Clusterer
	outcome   *cluster.Clusterer
	engine    *correlation.Engine
	scorer    *strategy.Scorer
	gate      *strategy.Gate
	logger    *logging.Logger

	queue chan *core.Observation
	stop  chan struct{}
	wg    conc.WaitGroup

	mu      sync.Mutex
	windows map[string][]*core.Observation

	enqueued  atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	started   atomic.Bool
}

// NewService wires the pipeline from configuration and an embedder. A nil
// embedder is allowed; every vector is then degraded but the pipeline still
// learns from structural features.
func NewService(cfg config.LearningConfig, embedder core.Embedder, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetLogger()
	}
	clusterOpts := cluster.Options{
		Epsilon:          cfg.Clustering.Epsilon,
		ConsolidateEvery: cfg.Clustering.ConsolidateEvery,
		StaleWindow:      cfg.Clustering.StaleWindow,
		MinMembers:       cfg.Clustering.MinMembers,
	}
	scorer := strategy.NewScorer(cfg.Strategy.MinSamples)
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Service{
		projector: features.NewProjector(embedder),
		behavior:  cluster.New(clusterOpts),
		outcome:   cluster.New(clusterOpts),
		engine:    correlation.NewEngine(),
		scorer:    scorer,
		gate:      strategy.NewGate(scorer, cfg.Strategy.MaxHints),
		logger:    logger,
		queue:     make(chan *core.Observation, queueSize),
		stop:      make(chan struct{}),
		windows:   make(map[string][]*core.Observation),
	}
}

// Start launches the consumer goroutine. Calling it twice is a no-op.
func (s *Service) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Go(s.consume)
}

// Stop drains whatever is already queued, then shuts the consumer down.
func (s *Service) Stop() {
	if !s.started.Load() {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

// Enqueue hands one observation to the pipeline without blocking. When the
// queue is full the observation is dropped and logged; the log still holds
// it, so a later WarmStart recovers the lost learning.
func (s *Service) Enqueue(obs *core.Observation) {
	select {
	case s.queue <- obs:
		s.enqueued.Add(1)
	default:
		s.dropped.Add(1)
		s.logger.Warn(context.Background(),
			"learning queue full, dropping observation %s (task %s)", obs.ID, obs.TaskID)
	}
}

// Drain blocks until every enqueued observation has been processed or the
// context expires. Intended for tests and orderly shutdown.
func (s *Service) Drain(ctx context.Context) error {
	for {
		if s.processed.Load() >= s.enqueued.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WithFields(
				errors.Wrap(ctx.Err(), errors.Timeout, "learning pipeline did not drain"),
				errors.Fields{"pending": s.enqueued.Load() - s.processed.Load()})
		case <-time.After(time.Millisecond):
		}
	}
}

func (s *Service) consume() {
	for {
		select {
		case obs := <-s.queue:
			s.ingest(obs)
		case <-s.stop:
			for {
				select {
				case obs := <-s.queue:
					s.ingest(obs)
				default:
					return
				}
			}
		}
	}
}

// ingest runs the full pipeline for one observation. Any failure is logged
// and the observation skipped; nothing here may surface into a task's
// control loop.
func (s *Service) ingest(obs *core.Observation) {
	defer s.processed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(),
				"learning pipeline panic on observation %s: %v", obs.ID, r)
		}
	}()

	ctx := logging.WithObservationID(logging.WithTaskID(context.Background(), obs.TaskID), obs.ID)

	behaviorVec, outcomeVec := s.projector.Project(ctx, obs)
	behaviorID := s.behavior.Assign(behaviorVec)
	outcomeID := s.outcome.Assign(outcomeVec)

	degraded := behaviorVec.Degraded || outcomeVec.Degraded
	s.engine.Record(behaviorID, outcomeID, degraded)

	window := s.appendWindow(obs)
	names := strategy.Extract(window)
	if len(names) == 0 {
		return
	}

	outcomeCluster, ok := s.outcome.Get(outcomeID)
	if !ok {
		s.logger.Warn(ctx, "outcome cluster %d vanished before scoring", outcomeID)
		return
	}
	positivity := strategy.Positivity(outcomeCluster.Centroid)

	confidence := 0.0
	if link, ok := s.engine.LinkFor(behaviorID, outcomeID); ok {
		confidence = link.Confidence
	}
	s.scorer.Update(names, positivity, confidence)

	s.logger.Debug(ctx, "ingested observation: behavior=%d outcome=%d strategies=%v",
		behaviorID, outcomeID, names)
}

func (s *Service) appendWindow(obs *core.Observation) []*core.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := append(s.windows[obs.TaskID], obs)
	if len(w) > windowSize {
		w = w[len(w)-windowSize:]
	}
	s.windows[obs.TaskID] = w

	out := make([]*core.Observation, len(w))
	copy(out, w)
	return out
}

// ForgetTask releases the signature window of a finished task.
func (s *Service) ForgetTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, taskID)
}

// Hints returns the current adaptation hints for prompt injection.
func (s *Service) Hints() []core.StrategyHint {
	return s.gate.Hints()
}

// WarmStart replays a persisted observation log through the pipeline so a
// restarted process resumes with its learned state instead of from zero.
// Call before Start; replay runs synchronously on the caller.
func (s *Service) WarmStart(ctx context.Context, log *obslog.Log) (int, error) {
	replayed := 0
	for obs, err := range log.Observations(ctx, obslog.Filter{}) {
		if err != nil {
			return replayed, errors.Wrap(err, errors.Unknown, "warm start replay failed")
		}
		s.ingest(obs)
		s.enqueued.Add(1)
		replayed++
	}
	s.logger.Info(ctx, "warm start replayed %d observations", replayed)
	return replayed, nil
}

// ClusterCounts is the per-kind cluster tally in Stats.
type ClusterCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Stats is the read-only aggregate surface for external reporting.
type Stats struct {
	ObservationsProcessed int64             `json:"observations_processed"`
	ObservationsDropped   int64             `json:"observations_dropped"`
	BehaviorClusters      ClusterCounts     `json:"behavior_clusters"`
	OutcomeClusters       ClusterCounts     `json:"outcome_clusters"`
	CorrelationPairs      int               `json:"correlation_pairs"`
	StrategiesSeen        int               `json:"strategies_seen"`
	StrategyScores        []strategy.Scored `json:"strategy_scores"`
}

// Stats snapshots the pipeline's aggregate state. Read-only, no side
// effects.
func (s *Service) Stats() Stats {
	return Stats{
		ObservationsProcessed: s.processed.Load(),
		ObservationsDropped:   s.dropped.Load(),
		BehaviorClusters: ClusterCounts{
			Total:  s.behavior.Count(),
			Active: s.behavior.ActiveCount(),
		},
		OutcomeClusters: ClusterCounts{
			Total:  s.outcome.Count(),
			Active: s.outcome.ActiveCount(),
		},
		CorrelationPairs: s.engine.PairCount(),
		StrategiesSeen:   s.scorer.Count(),
		StrategyScores:   s.scorer.Scores(),
	}
}
