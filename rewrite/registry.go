// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"log/slog"
	"sort"
	"sync"
)

// registered pairs a rule with its registration sequence number, which
// breaks priority ties.
type registered struct {
	rule *Rule
	seq  uint64
}

// Registry holds the installed rule set, keyed by rule id.
//
// # Thread Safety
//
// Safe for concurrent use. Changes have no effect on in-flight sessions:
// the engine snapshots the active rule list at session start.
type Registry struct {
	mu      sync.RWMutex
	rules   map[string]*registered
	nextSeq uint64
	sorted  []*Rule
	logger  *slog.Logger
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:  make(map[string]*registered),
		logger: slog.Default().With(slog.String("component", "rewrite.registry")),
	}
}

// Register validates and inserts a rule, replacing any existing rule
// with the same id. Replacement keeps the original registration order,
// so a re-registered rule does not move within its priority tier.
//
// # Outputs
//
//   - error: ValidationError when the rule is malformed.
func (r *Registry) Register(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		if r.logger != nil {
			r.logger.Error("rule registration rejected", slog.Any("error", err))
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rules[rule.ID]; ok {
		existing.rule = rule
	} else {
		r.rules[rule.ID] = &registered{rule: rule, seq: r.nextSeq}
		r.nextSeq++
	}
	r.rebuild()
	return nil
}

// Unregister removes a rule by id.
//
// # Outputs
//
//   - bool: False if no rule with that id was registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return false
	}
	delete(r.rules, id)
	r.rebuild()
	return true
}

// SetEnabled flips a rule's enabled flag. Disabling is the preferred way
// to deactivate a rule temporarily; Unregister removes it for good.
//
// # Outputs
//
//   - bool: False if no rule with that id was registered.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.rules[id]
	if !ok {
		return false
	}
	reg.rule.Enabled = enabled
	return true
}

// Rule returns the rule with the given id, or nil.
func (r *Registry) Rule(id string) *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.rules[id]; ok {
		return reg.rule
	}
	return nil
}

// Rules returns all registered rules in evaluation order: priority
// descending, ties by registration order. The slice is a copy.
func (r *Registry) Rules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Rule, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Clear removes every rule.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = make(map[string]*registered)
	r.sorted = nil
}

// rebuild recomputes the evaluation order. Caller must hold mu.
func (r *Registry) rebuild() {
	regs := make([]*registered, 0, len(r.rules))
	for _, reg := range r.rules {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].rule.Priority != regs[j].rule.Priority {
			return regs[i].rule.Priority > regs[j].rule.Priority
		}
		return regs[i].seq < regs[j].seq
	})

	r.sorted = make([]*Rule, len(regs))
	for i, reg := range regs {
		r.sorted[i] = reg.rule
	}
}
