// Copyright (c) 2026 wsqueeze authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nilcompute/wsqueeze/internal/cache"
	"github.com/nilcompute/wsqueeze/internal/config"
)

var cacheForceFlag bool

func openCacheFromConfig() (*cache.Manager, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	mgr, err := cache.Open(cfg.CachePath, cache.Config{MaxSizeBytes: cfg.CacheMaxBytes})
	if err != nil {
		return nil, "", err
	}
	return mgr, cfg.CachePath, nil
}

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "utility",
	Short:   "Manage the squeeze result cache",
	Long: `Manage the local cache of squeezed modules. Squeezing is deterministic
for a given input, level, and host profile, so results are stored by a
content-address and replayed on repeat invocations.

Available subcommands:
  stats  - View entry count and disk usage
  clear  - Delete all cached results`,
	Example: `  # Check cache statistics
  wsqueeze cache stats

  # Clear the cache without confirmation
  wsqueeze cache clear --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, path, err := openCacheFromConfig()
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer func() { _ = mgr.Close() }()

		stats, err := mgr.GetStats()
		if err != nil {
			return err
		}

		fmt.Printf("Cache database: %s\n", path)
		fmt.Printf("Entries:        %d\n", stats.Entries)
		fmt.Printf("Size:           %s\n", humanize.Bytes(uint64(stats.TotalBytes)))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, path, err := openCacheFromConfig()
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer func() { _ = mgr.Close() }()

		if !cacheForceFlag {
			fmt.Printf("This will delete ALL cached results in %s\n", path)
			fmt.Print("Are you sure? (yes/no): ")
			var response string
			if _, err := fmt.Scanln(&response); err != nil {
				return fmt.Errorf("failed to read confirmation input: %w", err)
			}
			if response != "yes" && response != "y" {
				fmt.Println("Cache clear cancelled")
				return nil
			}
		}

		if err := mgr.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared successfully")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().BoolVarP(&cacheForceFlag, "force", "f", false, "Skip confirmation prompt")

	rootCmd.AddCommand(cacheCmd)
}
