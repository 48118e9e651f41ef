package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// DebugEntry records the outcome of a single leaf comparison when tracing is
// enabled.
type DebugEntry struct {
	Field      string `json:"field"`
	Operator   string `json:"operator"`
	FieldValue any    `json:"field_value"`
	Expected   any    `json:"expected"`
	Matched    bool   `json:"matched"`
	Reason     string `json:"reason,omitempty"`
}

// Result is the outcome of evaluating a condition tree.
type Result struct {
	Matches bool
	Trace   []DebugEntry
}

// Options tunes evaluator behavior.
type Options struct {
	// Debug attaches a per-leaf trace to results and bypasses the cache.
	Debug bool
	// CacheEnabled memoizes whole-tree outcomes keyed by condition and data.
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheEntries int
}

// Evaluator walks a condition tree against an event payload and an optional
// flat context. Evaluation never returns an error; malformed nodes simply do
// not match.
type Evaluator struct {
	registry *Registry
	cache    *resultCache
	debug    bool
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator backed by the given operator registry.
func NewEvaluator(registry *Registry, logger *slog.Logger, opts Options) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{
		registry: registry,
		debug:    opts.Debug,
		logger:   logger,
	}
	if opts.CacheEnabled {
		e.cache = newResultCache(opts.CacheTTL, opts.CacheEntries)
	}
	return e
}

// Evaluate resolves the condition tree against data, falling back to context
// for fields absent from the payload. A nil condition never matches.
func (e *Evaluator) Evaluate(condition *domain.Condition, data, context map[string]any) Result {
	if condition == nil {
		return Result{Matches: false}
	}

	useCache := e.cache != nil && !e.debug
	var key string
	if useCache {
		var ok bool
		key, ok = cacheKey(condition, data)
		if !ok {
			useCache = false
		} else if matches, hit := e.cache.get(key); hit {
			return Result{Matches: matches}
		}
	}

	var trace []DebugEntry
	matches := e.evaluate(*condition, data, context, &trace)

	if useCache {
		e.cache.set(key, matches)
	}
	return Result{Matches: matches, Trace: trace}
}

// PurgeCache clears memoized outcomes.
func (e *Evaluator) PurgeCache() {
	if e.cache != nil {
		e.cache.purge()
	}
}

// CacheSize reports the number of live memo entries.
func (e *Evaluator) CacheSize() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.size()
}

func (e *Evaluator) evaluate(condition domain.Condition, data, context map[string]any, trace *[]DebugEntry) bool {
	switch {
	case condition.And != nil:
		// A vacuous conjunction holds.
		for _, child := range condition.And {
			if !e.evaluate(child, data, context, trace) {
				return false
			}
		}
		return true
	case condition.Or != nil:
		// A vacuous disjunction does not.
		for _, child := range condition.Or {
			if e.evaluate(child, data, context, trace) {
				return true
			}
		}
		return false
	case condition.Not != nil:
		return !e.evaluate(*condition.Not, data, context, trace)
	case condition.IsLeaf():
		return e.evaluateLeaf(condition, data, context, trace)
	default:
		e.logger.Warn("condition node is neither a leaf nor a composite")
		return false
	}
}

func (e *Evaluator) evaluateLeaf(condition domain.Condition, data, context map[string]any, trace *[]DebugEntry) bool {
	fieldValue := resolveField(condition.Field, data, context)
	matched := e.registry.Apply(condition.Operator, fieldValue, condition.Value)

	if e.debug {
		entry := DebugEntry{
			Field:      condition.Field,
			Operator:   condition.Operator,
			FieldValue: fieldValue,
			Expected:   condition.Value,
			Matched:    matched,
		}
		if !e.registry.Has(condition.Operator) {
			entry.Reason = fmt.Sprintf("operator %q is not registered", condition.Operator)
		} else if fieldValue == nil && !e.registry.IsUnary(condition.Operator) {
			entry.Reason = fmt.Sprintf("field %q resolved to no value", condition.Field)
		}
		*trace = append(*trace, entry)
	}
	return matched
}

// resolveField walks a dot-notation path through the payload. When any path
// segment is missing, the full field name is looked up flat in the context
// map instead; context keys are not traversed.
func resolveField(field string, data, context map[string]any) any {
	if field == "" {
		return nil
	}
	current := any(data)
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return contextFallback(field, context)
		}
		current, ok = obj[part]
		if !ok {
			return contextFallback(field, context)
		}
	}
	return current
}

func contextFallback(field string, context map[string]any) any {
	if context == nil {
		return nil
	}
	return context[field]
}
