// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harmony-design/graphcore/txlog"
)

type logFlags struct {
	path     string
	fromID   uint64
	toID     uint64
	typeTag  string
	entityID string
	limit    int
	reverse  bool
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the transaction log",
	}
	cmd.AddCommand(newLogDumpCmd())
	cmd.AddCommand(newLogStatsCmd())
	return cmd
}

func openLog(ctx context.Context, path string) (*txlog.Log, error) {
	cfg := txlog.DefaultConfig()
	cfg.Path = path
	cfg.Logger = logger.Slog()

	l, err := txlog.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := l.Initialize(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func newLogDumpCmd() *cobra.Command {
	flags := logFlags{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Query log entries and print them as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := openLog(ctx, flags.path)
			if err != nil {
				return err
			}
			defer l.Close()

			entries, err := l.Query(ctx, txlog.QueryOptions{
				FromID:   flags.fromID,
				ToID:     flags.toID,
				Type:     flags.typeTag,
				EntityID: flags.entityID,
				Limit:    flags.limit,
				Reverse:  flags.reverse,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for _, entry := range entries {
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.path, "path", "", "transaction log directory (required)")
	cmd.Flags().Uint64Var(&flags.fromID, "from", 0, "inclusive lower entry id bound")
	cmd.Flags().Uint64Var(&flags.toID, "to", 0, "inclusive upper entry id bound (0 = latest)")
	cmd.Flags().StringVar(&flags.typeTag, "type", "", "filter by entry type")
	cmd.Flags().StringVar(&flags.entityID, "entity", "", "filter by entity id")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "max results (0 = unlimited)")
	cmd.Flags().BoolVar(&flags.reverse, "reverse", false, "newest first")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newLogStatsCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print log counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer l.Close()

			fmt.Printf("entries:   %d\n", l.Count())
			fmt.Printf("latest id: %d\n", l.LatestID())
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "transaction log directory (required)")
	cmd.MarkFlagRequired("path")
	return cmd
}
