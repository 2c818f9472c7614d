// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/rewrite"
	"github.com/harmony-design/graphcore/rewrite/stdrules"
	"github.com/harmony-design/graphcore/txlog"
)

func newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Run rewrite sessions over graph snapshots",
	}
	cmd.AddCommand(newRewriteRunCmd())
	return cmd
}

func newRewriteRunCmd() *cobra.Command {
	var (
		graphPath     string
		rulesConfig   string
		auditPath     string
		maxIterations int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rewrite a JSON graph with the standard rule set",
		Long: `Loads a graph snapshot from a JSON file, runs a rewrite session with
the standard rule library (optionally tuned by a YAML rule settings
file), prints the resulting graph to stdout, and reports the session
summary on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(graphPath)
			if err != nil {
				return fmt.Errorf("read graph: %w", err)
			}
			var g graph.Graph
			if err := json.Unmarshal(data, &g); err != nil {
				return fmt.Errorf("parse graph: %w", err)
			}

			registry := rewrite.NewRegistry()
			for _, rule := range []*rewrite.Rule{
				stdrules.RemoveOrphans(),
				stdrules.CollapsePassthrough(),
				stdrules.MergeParallelEdges(),
			} {
				if err := registry.Register(rule); err != nil {
					return err
				}
			}

			if rulesConfig != "" {
				settings, err := rewrite.LoadSettings(rulesConfig)
				if err != nil {
					return err
				}
				settings.Apply(registry)
			}

			opts := []rewrite.EngineOption{rewrite.WithLogger(logger.Slog())}
			if auditPath != "" {
				cfg := txlog.DefaultConfig()
				cfg.Path = auditPath
				cfg.Logger = logger.Slog()
				auditLog, err := txlog.New(cfg)
				if err != nil {
					return err
				}
				if err := auditLog.Initialize(ctx); err != nil {
					return err
				}
				defer auditLog.Close()
				opts = append(opts, rewrite.WithAuditLog(auditLog))
			}

			engine := rewrite.New(registry, opts...)
			result, err := engine.Rewrite(ctx, &g, rewrite.Options{MaxIterations: maxIterations})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result.Graph, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			fmt.Fprintf(os.Stderr, "session %s: converged=%t iterations=%d applied=%d duration=%s\n",
				result.Session.ID, result.Converged, result.Iterations,
				result.Session.Stats.RulesApplied, result.Duration)
			return nil
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "path to the JSON graph snapshot (required)")
	cmd.Flags().StringVar(&rulesConfig, "rules-config", "", "YAML rule settings file")
	cmd.Flags().StringVar(&auditPath, "audit-path", "", "transaction log directory for audit entries")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (0 = engine default)")
	cmd.MarkFlagRequired("graph")
	return cmd
}
