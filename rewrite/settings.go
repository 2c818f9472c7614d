// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RuleSetting is one per-rule override from a settings file. Nil fields
// leave the registered value untouched.
type RuleSetting struct {
	ID              string `yaml:"id"`
	Enabled         *bool  `yaml:"enabled"`
	Priority        *int   `yaml:"priority"`
	MaxApplications *int   `yaml:"max_applications"`
}

// Settings is the rule settings file shape:
//
//	rules:
//	  - id: remove-orphans
//	    enabled: true
//	    priority: 50
//	    max_applications: 10
type Settings struct {
	Rules []RuleSetting `yaml:"rules"`
}

// LoadSettings reads and parses a YAML rule settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	for i, rs := range s.Rules {
		if rs.ID == "" {
			return nil, fmt.Errorf("parse settings %s: rule %d has no id", path, i)
		}
	}
	return &s, nil
}

// Apply overlays the settings onto registered rules. Settings for rules
// that are not registered are skipped (the rule may register later and
// pick up the next reload).
//
// # Outputs
//
//   - int: Number of rules updated.
func (s *Settings) Apply(registry *Registry) int {
	applied := 0
	for _, rs := range s.Rules {
		rule := registry.Rule(rs.ID)
		if rule == nil {
			continue
		}

		updated := *rule
		if rs.Enabled != nil {
			updated.Enabled = *rs.Enabled
		}
		if rs.Priority != nil {
			updated.Priority = *rs.Priority
		}
		if rs.MaxApplications != nil {
			c := Constraints{}
			if updated.Constraints != nil {
				c = *updated.Constraints
			}
			c.MaxApplications = *rs.MaxApplications
			updated.Constraints = &c
		}

		// Re-register so the evaluation order reflects any priority
		// change. Replacement keeps the original registration order.
		if err := registry.Register(&updated); err == nil {
			applied++
		}
	}
	return applied
}

// SettingsWatcher hot-reloads a rule settings file into a registry.
//
// # Description
//
// Watches the file's parent directory so editors that replace the file
// (write-to-temp-then-rename) keep triggering reloads. Bursts of events
// are debounced into a single reload.
type SettingsWatcher struct {
	path     string
	registry *Registry
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures a SettingsWatcher.
type WatcherOption func(*SettingsWatcher)

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *SettingsWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the reload debounce interval (default 200ms).
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *SettingsWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewSettingsWatcher creates a watcher for the given settings file.
// Start must be called to load the file and begin watching.
func NewSettingsWatcher(path string, registry *Registry, opts ...WatcherOption) *SettingsWatcher {
	w := &SettingsWatcher{
		path:     path,
		registry: registry,
		logger:   slog.Default().With(slog.String("component", "rewrite.settings")),
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start performs an initial load and begins watching for changes.
func (w *SettingsWatcher) Start() error {
	if err := w.reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.run()

	w.logger.Info("watching rule settings", slog.String("path", w.path))
	return nil
}

// Stop ends watching. Safe to call once after a successful Start.
func (w *SettingsWatcher) Stop() {
	close(w.done)
	w.wg.Wait()
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *SettingsWatcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.reload(); err != nil {
				w.logger.Error("settings reload failed",
					slog.String("path", w.path),
					slog.Any("error", err))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("settings watcher error", slog.Any("error", err))
		}
	}
}

func (w *SettingsWatcher) reload() error {
	settings, err := LoadSettings(w.path)
	if err != nil {
		return err
	}
	applied := settings.Apply(w.registry)
	w.logger.Info("rule settings applied",
		slog.String("path", w.path),
		slog.Int("rules", applied))
	return nil
}
