// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// graphcore is the command line interface to the Harmony graph engine:
// it runs rewrite sessions over JSON graph snapshots and inspects the
// transaction log.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/harmony-design/graphcore/pkg/logging"
)

var (
	flagLogLevel string
	flagLogDir   string

	logger *logging.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphcore",
		Short:         "Harmony design-graph rewrite engine and transaction log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(flagLogLevel),
				LogDir:  flagLogDir,
				Service: "graphcore-cli",
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for JSON log files (disabled when empty)")

	root.AddCommand(newLogCmd())
	root.AddCommand(newRewriteCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if logger != nil {
			logger.Slog().Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}
