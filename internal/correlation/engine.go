package correlation

import (
	"log"
	"sync/atomic"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// Decision is the outcome of classifying an alert.
type Decision struct {
	// GroupKey is the issue grouping key the alert belongs under.
	GroupKey string
	// PatternID identifies the pattern that produced the key.
	PatternID string
}

// Engine classifies alerts against the active pattern snapshot.
type Engine struct {
	source      PatternSource
	stats       EngineStats
	onEvalError func()
}

// EngineStats tracks classification counters with atomic access.
type EngineStats struct {
	Classified atomic.Int64
	Matched    atomic.Int64
	EvalErrors atomic.Int64
}

// NewEngine creates an engine reading patterns from the given source.
func NewEngine(source PatternSource) *Engine {
	return &Engine{source: source}
}

// WithEvalErrorHook registers a callback invoked on every predicate
// evaluation error, used for metrics.
func (e *Engine) WithEvalErrorHook(hook func()) *Engine {
	e.onEvalError = hook
	return e
}

// Classify evaluates active patterns against the alert in priority
// order and returns the first match's grouping key. A predicate that
// fails to evaluate is logged and treated as a non-match; a tag-sourced
// grouping key whose tag is absent likewise falls through. ok=false
// means the alert stays unlinked.
func (e *Engine) Classify(alert *models.Alert) (Decision, bool) {
	e.stats.Classified.Add(1)

	for _, pattern := range e.source.Patterns() {
		if !pattern.IsActive() {
			continue
		}
		matched, err := pattern.Match.Eval(alert)
		if err != nil {
			e.stats.EvalErrors.Add(1)
			if e.onEvalError != nil {
				e.onEvalError()
			}
			log.Printf("correlation: pattern %s: eval: %v", pattern.ID, err)
			continue
		}
		if !matched {
			continue
		}
		key, ok := pattern.GroupKey(alert)
		if !ok {
			continue
		}
		e.stats.Matched.Add(1)
		return Decision{GroupKey: key, PatternID: pattern.ID}, true
	}
	return Decision{}, false
}

// EngineStatsSnapshot is a point-in-time copy of the engine counters.
type EngineStatsSnapshot struct {
	Classified int64
	Matched    int64
	EvalErrors int64
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		Classified: e.stats.Classified.Load(),
		Matched:    e.stats.Matched.Load(),
		EvalErrors: e.stats.EvalErrors.Load(),
	}
}
