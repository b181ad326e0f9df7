package strategy

import (
	"github.com/introspectai/learnloop/pkg/core"
)

// Gate turns scorer output into the short, ranked hint list injected into
// the next prompt. Hints are advisory; the orchestrator may ignore them.
type Gate struct {
	scorer   *Scorer
	maxHints int
}

// NewGate wraps a scorer with a hint budget.
func NewGate(scorer *Scorer, maxHints int) *Gate {
	if maxHints <= 0 {
		maxHints = 3
	}
	return &Gate{scorer: scorer, maxHints: maxHints}
}

// Hints returns up to maxHints strategies, best score first. Strategies
// without enough samples never appear, so an empty slice early in a
// process's life is the normal case.
func (g *Gate) Hints() []core.StrategyHint {
	scored := g.scorer.Scores()
	if len(scored) > g.maxHints {
		scored = scored[:g.maxHints]
	}
	hints := make([]core.StrategyHint, 0, len(scored))
	for _, s := range scored {
		hints = append(hints, core.StrategyHint{Name: s.Name, Score: s.Score})
	}
	return hints
}
