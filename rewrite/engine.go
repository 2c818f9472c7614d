// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/harmony-design/graphcore/events"
	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/telemetry"
	"github.com/harmony-design/graphcore/txlog"
)

const (
	// DefaultMaxIterations bounds a session when the caller does not
	// override it.
	DefaultMaxIterations = 10

	// DefaultIterationBudget is the soft per-iteration wall budget.
	// Exceeding it logs a warning; it never stops the session.
	DefaultIterationBudget = 100 * time.Millisecond

	// AuditEntryType is the transaction log entry type for committed
	// transformations when an audit log is attached.
	AuditEntryType = "graph.rewrite"
)

// Options control a single Rewrite call.
type Options struct {
	// Include, when non-empty, restricts the session to these rule ids.
	Include []string

	// Exclude removes rule ids from the session.
	Exclude []string

	// MaxIterations overrides the engine default for this session
	// (0 = use the default).
	MaxIterations int

	// Metadata is passed through to matchers and transformers via the
	// context.
	Metadata map[string]any
}

// Result is the outcome of one Rewrite call.
type Result struct {
	// Graph is the final snapshot. The input graph is never mutated.
	Graph *graph.Graph

	// Session is the full session report.
	Session *Session

	// Converged mirrors Session.Converged for convenience.
	Converged bool

	// Iterations mirrors Session.Iterations.
	Iterations int

	// Duration is the session wall-clock time.
	Duration time.Duration
}

// Engine runs rewrite sessions against a registry's rule set.
//
// # Thread Safety
//
// The engine itself is safe for concurrent Rewrite calls, but a single
// graph instance must not be passed to concurrent sessions: graphs
// assume single-writer access. Each session works on its own clone of
// the input.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
	emitter  *events.Emitter
	audit    *txlog.Log
	metrics  *telemetry.Metrics

	maxIterations   int
	iterationBudget time.Duration
	trackHistory    bool
	retainSessions  bool

	mu       sync.Mutex
	sessions map[string]*Session
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEmitter attaches the notification bus; rule-applied and
// session-completed events are published to it.
func WithEmitter(emitter *events.Emitter) EngineOption {
	return func(e *Engine) { e.emitter = emitter }
}

// WithAuditLog attaches a transaction log; every committed
// transformation is appended to it as a "graph.rewrite" entry keyed by
// the matched node id. Append failures are logged and do not abort the
// session.
func WithAuditLog(log *txlog.Log) EngineOption {
	return func(e *Engine) { e.audit = log }
}

// WithMetrics attaches pre-registered telemetry instruments.
func WithMetrics(metrics *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

// WithMaxIterations sets the default iteration cap.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithIterationBudget sets the soft per-iteration wall budget.
func WithIterationBudget(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.iterationBudget = d
		}
	}
}

// WithHistoryTracking controls whether sessions record their full
// transformation list (default on).
func WithHistoryTracking(enabled bool) EngineOption {
	return func(e *Engine) { e.trackHistory = enabled }
}

// WithSessionRetention keeps completed sessions for later lookup by id
// (default off).
func WithSessionRetention(enabled bool) EngineOption {
	return func(e *Engine) { e.retainSessions = enabled }
}

// New creates a rewrite engine over the given registry.
func New(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:        registry,
		logger:          slog.Default().With(slog.String("component", "rewrite.engine")),
		maxIterations:   DefaultMaxIterations,
		iterationBudget: DefaultIterationBudget,
		trackHistory:    true,
		sessions:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns a retained session by id.
//
// # Outputs
//
//   - *Session: Nil when retention is off or the id is unknown.
func (e *Engine) Session(id string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id]
}

// Rewrite runs a bounded fixed-point session over a clone of g.
//
// # Description
//
// Per iteration, active rules run in priority order (ties by
// registration order); within a rule, nodes are scanned in the
// snapshot's node order. The first rule to produce an applied change
// for a node claims that node for the iteration. Accepted changes are
// applied atomically at iteration end; an iteration with zero accepted
// changes establishes convergence and counts toward the iteration
// total. Reaching the cap without convergence is reported, not an
// error.
//
// # Inputs
//
//   - ctx: Context for tracing and audit appends. There is no
//     mid-iteration cancellation; pass a lower iteration cap for early
//     termination.
//   - g: The input snapshot. Never mutated.
//   - opts: Rule filters, iteration cap override, caller metadata.
//
// # Outputs
//
//   - *Result: Final graph plus the session report.
//   - error: Non-nil only for invalid inputs.
func (e *Engine) Rewrite(ctx context.Context, g *graph.Graph, opts Options) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if g == nil {
		return nil, errors.New("graph is required")
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.maxIterations
	}

	ctx, span := otel.Tracer("rewrite").Start(ctx, "rewrite.Rewrite",
		trace.WithAttributes(
			attribute.Int("nodes", g.NodeCount()),
			attribute.Int("edges", g.EdgeCount()),
			attribute.Int("max_iterations", maxIterations),
		))
	defer span.End()

	rules := e.activeRules(opts)
	session := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	rc := &Context{Metadata: opts.Metadata}

	current := g.Clone()
	converged := false

	for session.Iterations < maxIterations {
		session.Iterations++
		iterStart := time.Now()

		rc.Graph = current
		rc.Iteration = session.Iterations

		cs := e.runIteration(ctx, rules, rc, session)
		if cs.empty() {
			converged = true
			break
		}
		current = cs.apply(current, &session.Stats, e.logger)

		if elapsed := time.Since(iterStart); elapsed > e.iterationBudget {
			e.logger.Warn("iteration exceeded soft budget",
				slog.String("session_id", session.ID),
				slog.Int("iteration", session.Iterations),
				slog.Duration("elapsed", elapsed),
				slog.Duration("budget", e.iterationBudget))
		}
	}

	session.Converged = converged
	session.EndedAt = time.Now().UTC()
	duration := session.EndedAt.Sub(session.StartedAt)

	e.finishSession(ctx, session, duration)

	return &Result{
		Graph:      current,
		Session:    session,
		Converged:  converged,
		Iterations: session.Iterations,
		Duration:   duration,
	}, nil
}

// activeRules snapshots the rules participating in this session.
func (e *Engine) activeRules(opts Options) []*Rule {
	all := e.registry.Rules()
	out := make([]*Rule, 0, len(all))
	for _, rule := range all {
		if !rule.Enabled {
			continue
		}
		if len(opts.Include) > 0 && !slices.Contains(opts.Include, rule.ID) {
			continue
		}
		if slices.Contains(opts.Exclude, rule.ID) {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// runIteration scans the current snapshot and accumulates accepted
// changes. A node claimed by a higher-priority rule is skipped by the
// rest of the rules for this iteration.
func (e *Engine) runIteration(ctx context.Context, rules []*Rule, rc *Context, session *Session) *changeset {
	cs := newChangeset()
	claimed := make(map[string]bool)
	nodes := rc.Graph.Nodes()

	for _, rule := range rules {
		for _, node := range nodes {
			if claimed[node.ID] {
				continue
			}

			matched := e.safeMatch(ctx, rule, node, rc)
			if !matched {
				continue
			}
			if !rule.Constraints.permits(rule.ID, node, rc) {
				continue
			}

			result := e.safeTransform(ctx, rule, node, rc)
			if result == nil || !result.Applied {
				continue
			}

			claimed[node.ID] = true
			cs.add(node.ID, result)
			rc.Applied = append(rc.Applied, rule.ID)
			session.Stats.RulesApplied++

			e.recordTransformation(ctx, rule, node, result, rc, session)
		}
	}
	return cs
}

// recordTransformation handles the bookkeeping for one accepted change:
// session history, events, audit log, metrics.
func (e *Engine) recordTransformation(ctx context.Context, rule *Rule, node *graph.Node, result *TransformResult, rc *Context, session *Session) {
	tf := Transformation{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		NodeID:    node.ID,
		Iteration: rc.Iteration,
		Reason:    result.Reason,
		Timestamp: time.Now().UTC(),
	}
	if e.trackHistory {
		session.Transformations = append(session.Transformations, tf)
	}

	e.logger.Debug("rule applied",
		slog.String("session_id", session.ID),
		slog.String("rule_id", rule.ID),
		slog.String("node_id", node.ID),
		slog.Int("iteration", rc.Iteration))

	if e.metrics != nil {
		e.metrics.RulesAppliedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("rule_id", rule.ID)))
	}

	if e.emitter != nil {
		e.emitter.Emit(events.TypeRuleApplied, events.RuleAppliedData{
			SessionID: session.ID,
			RuleID:    rule.ID,
			NodeID:    node.ID,
			Iteration: rc.Iteration,
			Reason:    result.Reason,
		})
	}

	if e.audit != nil {
		_, err := e.audit.Append(ctx, txlog.Record{
			Type:     AuditEntryType,
			EntityID: node.ID,
			Payload:  tf,
			Metadata: map[string]string{"session_id": session.ID},
		})
		if err != nil {
			e.logger.Error("audit append failed",
				slog.String("session_id", session.ID),
				slog.String("rule_id", rule.ID),
				slog.String("node_id", node.ID),
				slog.Any("error", err))
		}
	}
}

// finishSession publishes the session outcome and retains the session
// when retention is on.
func (e *Engine) finishSession(ctx context.Context, session *Session, duration time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Bool("converged", session.Converged),
		attribute.Int("iterations", session.Iterations),
		attribute.Int("rules_applied", session.Stats.RulesApplied),
	)

	if e.metrics != nil {
		outcome := "converged"
		if !session.Converged {
			outcome = "capped"
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		e.metrics.RewriteSessionsTotal.Add(ctx, 1, attrs)
		e.metrics.RewriteIterations.Record(ctx, int64(session.Iterations), attrs)
		e.metrics.RewriteDuration.Record(ctx, duration.Seconds(), attrs)
	}

	if e.emitter != nil {
		e.emitter.Emit(events.TypeSessionCompleted, events.SessionCompletedData{
			SessionID:  session.ID,
			Iterations: session.Iterations,
			Converged:  session.Converged,
			Applied:    session.Stats.RulesApplied,
		})
	}

	if e.retainSessions {
		e.mu.Lock()
		e.sessions[session.ID] = session
		e.mu.Unlock()
	}

	e.logger.Info("rewrite session completed",
		slog.String("session_id", session.ID),
		slog.Bool("converged", session.Converged),
		slog.Int("iterations", session.Iterations),
		slog.Int("rules_applied", session.Stats.RulesApplied),
		slog.Duration("duration", duration))
}

// safeMatch runs a matcher, converting errors and panics into "no
// match" so a faulty rule never aborts the session.
func (e *Engine) safeMatch(ctx context.Context, rule *Rule, node *graph.Node, rc *Context) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.ruleFailure(ctx, "matcher panicked", rule, node, slog.Any("panic", r))
			matched = false
		}
	}()

	matched, err := rule.Match(node, rc)
	if err != nil {
		e.ruleFailure(ctx, "matcher failed", rule, node, slog.Any("error", err))
		return false
	}
	return matched
}

// safeTransform runs a transformer, converting errors and panics into
// "not applied".
func (e *Engine) safeTransform(ctx context.Context, rule *Rule, node *graph.Node, rc *Context) (result *TransformResult) {
	defer func() {
		if r := recover(); r != nil {
			e.ruleFailure(ctx, "transformer panicked", rule, node, slog.Any("panic", r))
			result = nil
		}
	}()

	result, err := rule.Transform(node, rc)
	if err != nil {
		e.ruleFailure(ctx, "transformer failed", rule, node, slog.Any("error", err))
		return nil
	}
	return result
}

func (e *Engine) ruleFailure(ctx context.Context, msg string, rule *Rule, node *graph.Node, detail slog.Attr) {
	e.logger.Error(msg,
		slog.String("rule_id", rule.ID),
		slog.String("node_id", node.ID),
		detail)
	if e.metrics != nil {
		e.metrics.RuleErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("rule_id", rule.ID)))
	}
}
