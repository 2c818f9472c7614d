// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined instruments for the rewrite engine and
// the transaction log. All metrics use the "graphcore_" prefix.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// --- Rewrite Engine ---

	// RewriteSessionsTotal counts rewrite sessions by convergence outcome.
	RewriteSessionsTotal metric.Int64Counter

	// RewriteIterations records iterations per session.
	RewriteIterations metric.Int64Histogram

	// RewriteDuration records session duration in seconds.
	RewriteDuration metric.Float64Histogram

	// RulesAppliedTotal counts committed rule applications by rule id.
	RulesAppliedTotal metric.Int64Counter

	// RuleErrorsTotal counts recovered matcher/transformer failures.
	RuleErrorsTotal metric.Int64Counter

	// --- Transaction Log ---

	// LogAppendsTotal counts append operations by status.
	LogAppendsTotal metric.Int64Counter

	// LogAppendDuration records append latency in seconds.
	LogAppendDuration metric.Float64Histogram

	// LogQueriesTotal counts queries by serving path (memory/store).
	LogQueriesTotal metric.Int64Counter

	// LogEvictionsTotal counts entries evicted from the in-memory window.
	LogEvictionsTotal metric.Int64Counter
}

// NewMetrics registers all pre-defined instruments with the given meter.
//
// # Inputs
//
//   - meter: The OTel meter, e.g. otel.Meter("graphcore").
//
// # Outputs
//
//   - *Metrics: Instance with all instruments initialized.
//   - error: Non-nil if any instrument registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.RewriteSessionsTotal, err = meter.Int64Counter(
		"graphcore_rewrite_sessions_total",
		metric.WithDescription("Total rewrite sessions by convergence outcome"),
	); err != nil {
		return nil, fmt.Errorf("create rewrite_sessions_total: %w", err)
	}

	if m.RewriteIterations, err = meter.Int64Histogram(
		"graphcore_rewrite_iterations",
		metric.WithDescription("Iterations per rewrite session"),
	); err != nil {
		return nil, fmt.Errorf("create rewrite_iterations: %w", err)
	}

	if m.RewriteDuration, err = meter.Float64Histogram(
		"graphcore_rewrite_duration_seconds",
		metric.WithDescription("Rewrite session duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create rewrite_duration_seconds: %w", err)
	}

	if m.RulesAppliedTotal, err = meter.Int64Counter(
		"graphcore_rules_applied_total",
		metric.WithDescription("Committed rule applications by rule id"),
	); err != nil {
		return nil, fmt.Errorf("create rules_applied_total: %w", err)
	}

	if m.RuleErrorsTotal, err = meter.Int64Counter(
		"graphcore_rule_errors_total",
		metric.WithDescription("Recovered matcher/transformer failures"),
	); err != nil {
		return nil, fmt.Errorf("create rule_errors_total: %w", err)
	}

	if m.LogAppendsTotal, err = meter.Int64Counter(
		"graphcore_log_appends_total",
		metric.WithDescription("Transaction log appends by status"),
	); err != nil {
		return nil, fmt.Errorf("create log_appends_total: %w", err)
	}

	if m.LogAppendDuration, err = meter.Float64Histogram(
		"graphcore_log_append_duration_seconds",
		metric.WithDescription("Transaction log append latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create log_append_duration_seconds: %w", err)
	}

	if m.LogQueriesTotal, err = meter.Int64Counter(
		"graphcore_log_queries_total",
		metric.WithDescription("Transaction log queries by serving path"),
	); err != nil {
		return nil, fmt.Errorf("create log_queries_total: %w", err)
	}

	if m.LogEvictionsTotal, err = meter.Int64Counter(
		"graphcore_log_evictions_total",
		metric.WithDescription("Entries evicted from the in-memory window"),
	); err != nil {
		return nil, fmt.Errorf("create log_evictions_total: %w", err)
	}

	return m, nil
}
