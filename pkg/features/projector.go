// Package features turns Observations into fixed-length numeric vectors for
// the clustering pipeline: a behavior vector describing what the agent did
// and an outcome vector describing what happened.
package features

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
)

const (
	// DegradedDim is the embedding width used when no embedder is
	// configured, so vector lengths stay fixed either way.
	DegradedDim = 32

	// maxEmbedChars bounds the text handed to the embedding capability.
	maxEmbedChars = 512

	maxArgCount  = 8.0
	maxPathDepth = 8.0
	maxDurationMs = 60_000.0
	maxDiffSize   = 500.0
)

// Projector derives feature vectors from observations. Projection is
// recomputed on demand and never persisted as authoritative.
type Projector struct {
	embedder core.Embedder
	embedDim int
}

// NewProjector creates a projector over the given embedder. A nil embedder
// yields permanently degraded vectors built from structural features only.
func NewProjector(embedder core.Embedder) *Projector {
	dim := DegradedDim
	if embedder != nil {
		dim = embedder.Dimension()
	}
	return &Projector{embedder: embedder, embedDim: dim}
}

// BehaviorDim returns the fixed length of behavior vectors.
func (p *Projector) BehaviorDim() int {
	return len(core.ToolVocabulary) + 2 + 2 + p.embedDim
}

// OutcomeDim returns the fixed length of outcome vectors.
func (p *Projector) OutcomeDim() int {
	return 3 + p.embedDim
}

// Project computes the (behavior, outcome) pair for one observation. When the
// embedding capability fails, both vectors fall back to structural features
// and are flagged degraded; projection itself never fails.
func (p *Projector) Project(ctx context.Context, obs *core.Observation) (behavior, outcome core.FeatureVector) {
	behaviorText := obs.PlanText
	if behaviorText == "" && obs.ToolCall != nil {
		behaviorText = serializeArgs(obs.ToolCall)
	}
	outcomeText := resultSummary(obs)

	planEmb, planDegraded := p.embed(ctx, behaviorText)
	resultEmb, resultDegraded := p.embed(ctx, outcomeText)

	behavior = core.FeatureVector{
		Values:   append(p.structuralBehavior(obs), planEmb...),
		Degraded: planDegraded,
	}
	outcome = core.FeatureVector{
		Values:   append(p.structuralOutcome(obs), resultEmb...),
		Degraded: resultDegraded,
	}
	return behavior, outcome
}

// structuralBehavior encodes tool type (one-hot plus "other" and "none"
// slots), argument count and target path depth.
func (p *Projector) structuralBehavior(obs *core.Observation) []float64 {
	vocab := core.ToolVocabulary
	v := make([]float64, 0, len(vocab)+4)

	oneHot := make([]float64, len(vocab)+2)
	switch {
	case obs.ToolCall == nil:
		oneHot[len(vocab)+1] = 1 // none
	default:
		idx := len(vocab) // other
		for i, name := range vocab {
			if name == obs.ToolCall.Name {
				idx = i
				break
			}
		}
		oneHot[idx] = 1
	}
	v = append(v, oneHot...)

	argCount, pathDepth := 0.0, 0.0
	if obs.ToolCall != nil {
		argCount = float64(len(obs.ToolCall.Args))
		pathDepth = float64(targetPathDepth(obs.ToolCall))
	}
	v = append(v, clamp(argCount/maxArgCount), clamp(pathDepth/maxPathDepth))
	return v
}

// structuralOutcome encodes the success flag and normalized duration and
// diff size.
func (p *Projector) structuralOutcome(obs *core.Observation) []float64 {
	success := 0.0
	if obs.Success {
		success = 1.0
	}
	return []float64{
		success,
		clamp(float64(obs.DurationMs) / maxDurationMs),
		clamp(float64(obs.DiffSize) / maxDiffSize),
	}
}

// embed returns the embedding for text, or a zero vector flagged degraded
// when the capability is absent or unavailable.
func (p *Projector) embed(ctx context.Context, text string) ([]float64, bool) {
	zero := make([]float64, p.embedDim)
	if p.embedder == nil || text == "" {
		return zero, true
	}

	normalized := norm.NFC.String(text)
	if len(normalized) > maxEmbedChars {
		normalized = normalized[:maxEmbedChars]
	}

	vec, err := p.embedder.Embed(ctx, normalized)
	if err != nil {
		if errors.HasCode(err, errors.EmbeddingUnavailable) {
			logging.GetLogger().Warn(ctx, "embedding unavailable, using degraded vector: %v", err)
		} else {
			logging.GetLogger().Error(ctx, "embedding failed, using degraded vector: %v", err)
		}
		return zero, true
	}
	if len(vec) != p.embedDim {
		logging.GetLogger().Error(ctx, "embedder returned %d dims, expected %d", len(vec), p.embedDim)
		return zero, true
	}
	return vec, false
}

func resultSummary(obs *core.Observation) string {
	if obs.ToolResult != nil {
		if obs.ToolResult.Err != "" {
			return obs.ToolResult.Err
		}
		if obs.ToolResult.Rejected {
			return "tool call rejected by user"
		}
		return obs.ToolResult.Output
	}
	return obs.PlanText
}

func serializeArgs(call *core.ToolCall) string {
	data, err := json.Marshal(call.Args)
	if err != nil {
		return call.Name
	}
	return call.Name + " " + string(data)
}

func targetPathDepth(call *core.ToolCall) int {
	for _, key := range []string{"path", "file_path", "dir_path"} {
		if raw, ok := call.Args[key]; ok {
			if s, ok := raw.(string); ok {
				return strings.Count(strings.Trim(s, "/"), "/") + 1
			}
		}
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
