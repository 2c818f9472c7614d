// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, t.TempDir(), `
rules:
  - id: remove-orphans
    enabled: false
  - id: merge-parallel-edges
    priority: 99
    max_applications: 5
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.Len(t, s.Rules, 2)

	require.NotNil(t, s.Rules[0].Enabled)
	assert.False(t, *s.Rules[0].Enabled)
	assert.Nil(t, s.Rules[0].Priority)

	require.NotNil(t, s.Rules[1].Priority)
	assert.Equal(t, 99, *s.Rules[1].Priority)
	require.NotNil(t, s.Rules[1].MaxApplications)
	assert.Equal(t, 5, *s.Rules[1].MaxApplications)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	badYAML := writeSettings(t, t.TempDir(), "rules: [\n")
	_, err = LoadSettings(badYAML)
	assert.Error(t, err)

	noID := writeSettings(t, t.TempDir(), "rules:\n  - enabled: true\n")
	_, err = LoadSettings(noID)
	assert.Error(t, err)
}

func TestSettingsApply(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(noopRule("a", 10)))
	require.NoError(t, reg.Register(noopRule("b", 20)))

	enabled := false
	priority := 50
	maxApps := 3
	s := &Settings{Rules: []RuleSetting{
		{ID: "a", Enabled: &enabled, Priority: &priority, MaxApplications: &maxApps},
		{ID: "unknown", Priority: &priority},
	}}

	applied := s.Apply(reg)
	assert.Equal(t, 1, applied)

	a := reg.Rule("a")
	require.NotNil(t, a)
	assert.False(t, a.Enabled)
	assert.Equal(t, 50, a.Priority)
	require.NotNil(t, a.Constraints)
	assert.Equal(t, 3, a.Constraints.MaxApplications)

	// Priority change reorders evaluation: "a" (50) now precedes "b" (20).
	rules := reg.Rules()
	assert.Equal(t, "a", rules[0].ID)
}

func TestSettingsWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "rules:\n  - id: a\n    priority: 1\n")

	reg := NewRegistry()
	require.NoError(t, reg.Register(noopRule("a", 1)))

	w := NewSettingsWatcher(path, reg, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - id: a\n    priority: 42\n"), 0o644))

	require.Eventually(t, func() bool {
		return reg.Rule("a").Priority == 42
	}, 3*time.Second, 25*time.Millisecond)
}

func TestSettingsWatcherStartFailsOnMissingFile(t *testing.T) {
	reg := NewRegistry()
	w := NewSettingsWatcher(filepath.Join(t.TempDir(), "missing.yml"), reg)
	assert.Error(t, w.Start())
}
