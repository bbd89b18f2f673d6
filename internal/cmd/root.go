// Copyright 2026 wsqueeze authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nilcompute/wsqueeze/internal/logger"
	"github.com/nilcompute/wsqueeze/internal/updater"
)

// Version is set by ldflags at release build time; "dev" otherwise.
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wsqueeze",
	Short: "Post-link size optimizer for WebAssembly modules",
	Long: `wsqueeze compresses a WebAssembly module's active data segment and
splices a decompressor into the module so the original memory image is
reconstructed at instantiation time.

Examples:
  wsqueeze squeeze in.wasm -o out.wasm
  wsqueeze squeeze --dir ./carts -o ./carts-out
  wsqueeze serve --addr 127.0.0.1:8791
  wsqueeze cache stats`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyLogLevel(); err != nil {
			return err
		}
		checkForUpdatesAsync()
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; child commands and flags are registered
// by the init functions of this package. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func checkForUpdatesAsync() {
	go func() {
		updater.NewChecker(Version).CheckForUpdates()
	}()
}

var logLevelFlag string

func applyLogLevel() error {
	switch logLevelFlag {
	case "debug":
		logger.SetLevel(slog.LevelDebug)
	case "info":
		logger.SetLevel(slog.LevelInfo)
	case "warn":
		logger.SetLevel(slog.LevelWarn)
	case "error":
		logger.SetLevel(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level %q (debug, info, warn, error)", logLevelFlag)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "utility", Title: "Utility commands:"})
}
