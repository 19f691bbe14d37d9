package engine

import (
	"time"

	"go.uber.org/zap"
)

// Engine evaluates events against rule sets. Evaluation is a pure
// computation over one event and one immutable rule-set snapshot: no I/O,
// no shared mutable state, safe to run for arbitrarily many events in
// parallel.
type Engine struct {
	matcher *Matcher
	logger  *zap.Logger
}

// New creates an Engine.
func New(logger *zap.Logger) *Engine {
	return &Engine{
		matcher: NewMatcher(logger),
		logger:  logger,
	}
}

// Evaluate runs every enabled rule against the event and aggregates the
// fired rules into one decision. The enabled-rule count is snapshotted
// before matching starts, so a rule set edited concurrently with an
// in-flight call cannot skew "all" logic mid-evaluation.
func (e *Engine) Evaluate(ev *Event, rs *RuleSet) MatchResult {
	enabled := rs.EnabledCount()
	fired := e.matcher.Match(ev, rs)
	return Aggregate(fired, enabled, rs.Logic)
}

// TestRules evaluates a rule set against ad-hoc text with no side effects.
// Used by the interactive dry-run surface for rule verification.
func (e *Engine) TestRules(content string, rs *RuleSet) MatchResult {
	ev := &Event{
		ID:        "test",
		Timestamp: time.Now(),
		Source:    "test",
		Type:      "test",
		Content:   content,
	}
	return e.Evaluate(ev, rs)
}
