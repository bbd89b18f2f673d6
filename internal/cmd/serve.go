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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nilcompute/wsqueeze/internal/cache"
	"github.com/nilcompute/wsqueeze/internal/config"
	"github.com/nilcompute/wsqueeze/internal/daemon"
	"github.com/nilcompute/wsqueeze/internal/pack"
	"github.com/nilcompute/wsqueeze/internal/telemetry"
)

var (
	serveAddr      string
	serveAuthToken string
	serveUnpacker  string
	serveTracing   bool
	serveOTLPURL   string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "core",
	Short:   "Start a JSON-RPC server for build-pipeline integration",
	Long: `Start a JSON-RPC 2.0 server that exposes the squeeze engine to remote
tools, keeping one long-lived process and one warm result cache.

Endpoints:
  - Squeeze.Run: squeeze a base64-encoded module

Example:
  wsqueeze serve --addr 127.0.0.1:8791
  wsqueeze serve --addr 127.0.0.1:8791 --auth-token secret123`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("addr") && cfg.DaemonAddr != "" {
			serveAddr = cfg.DaemonAddr
		}
		if serveUnpacker == "" {
			serveUnpacker = cfg.UnpackerPath
		}

		if serveTracing {
			otlpURL := serveOTLPURL
			if !cmd.Flags().Changed("otlp-url") && cfg.TelemetryURL != "" {
				otlpURL = cfg.TelemetryURL
			}
			cleanup, err := telemetry.Init(ctx, telemetry.Config{
				Enabled:     true,
				ExporterURL: otlpURL,
				ServiceName: "wsqueeze-daemon",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer cleanup()
		}

		var mgr *cache.Manager
		if cfg.CachePath != "" {
			mgr, err = cache.Open(cfg.CachePath, cache.Config{MaxSizeBytes: cfg.CacheMaxBytes})
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: cache disabled: %v\n", err)
				mgr = nil
			} else {
				defer func() { _ = mgr.Close() }()
			}
		}

		server, err := daemon.NewServer(daemon.Config{
			Addr:        serveAddr,
			AuthToken:   serveAuthToken,
			Level:       cfg.CompressionLevel,
			HostProfile: string(cfg.HostProfile),
			Packer:      pack.ZstdPacker{},
			Unpacker:    unpackerLoader(serveUnpacker),
			Cache:       mgr,
		})
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Println("\nReceived interrupt signal, shutting down...")
			cancel()
		}()

		fmt.Printf("Starting wsqueeze daemon on %s\n", serveAddr)
		if serveAuthToken != "" {
			fmt.Println("Authentication: enabled")
		}

		return server.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8791", "Address to listen on")
	serveCmd.Flags().StringVar(&serveAuthToken, "auth-token", "", "Authentication token for API access")
	serveCmd.Flags().StringVar(&serveUnpacker, "unpacker", "", "Path to a prebuilt decompressor module")
	serveCmd.Flags().BoolVar(&serveTracing, "tracing", false, "Enable OpenTelemetry tracing")
	serveCmd.Flags().StringVar(&serveOTLPURL, "otlp-url", "http://localhost:4318", "OTLP exporter URL")

	rootCmd.AddCommand(serveCmd)
}
