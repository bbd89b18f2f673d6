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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nilcompute/wsqueeze/internal/cache"
	"github.com/nilcompute/wsqueeze/internal/config"
	"github.com/nilcompute/wsqueeze/internal/pack"
	"github.com/nilcompute/wsqueeze/internal/squeeze"
)

var (
	squeezeOutput   string
	squeezeDir      string
	squeezeLevel    int
	squeezeProfile  string
	squeezeUnpacker string
	squeezeNoCache  bool
)

var squeezeCmd = &cobra.Command{
	Use:     "squeeze [wasm-file]",
	GroupID: "core",
	Short:   "Compress a module's data segment and splice in a decompressor",
	Long: `Compress a WebAssembly module's active data segments and splice a
decompressor into the module so the original memory image is rebuilt at
instantiation time. Modules with no data, or whose data does not shrink,
pass through unchanged.

Use "-" for stdin/stdout, or --dir to squeeze every .wasm file in a
directory.

Examples:
  wsqueeze squeeze cart.wasm -o cart-squeezed.wasm
  wsqueeze squeeze - < cart.wasm > cart-squeezed.wasm
  wsqueeze squeeze --dir ./carts -o ./carts-out`,
	Args: cobra.MaximumNArgs(1),
	RunE: squeezeExec,
}

func squeezeExec(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("level") {
		squeezeLevel = cfg.CompressionLevel
	}
	if !cmd.Flags().Changed("profile") {
		squeezeProfile = string(cfg.HostProfile)
	}
	if squeezeUnpacker == "" {
		squeezeUnpacker = cfg.UnpackerPath
	}

	opts := squeeze.Options{
		Level:       squeezeLevel,
		HostProfile: squeezeProfile,
		Packer:      pack.ZstdPacker{},
		Unpacker:    unpackerLoader(squeezeUnpacker),
	}

	var mgr *cache.Manager
	if !squeezeNoCache && cfg.CachePath != "" {
		mgr, err = cache.Open(cfg.CachePath, cache.Config{MaxSizeBytes: cfg.CacheMaxBytes})
		if err != nil {
			// A broken cache never blocks the actual work.
			fmt.Fprintf(os.Stderr, "warning: cache disabled: %v\n", err)
			mgr = nil
		} else {
			defer func() { _ = mgr.Close() }()
		}
	}

	if squeezeDir != "" {
		if len(args) != 0 {
			return fmt.Errorf("cannot combine --dir with a file argument")
		}
		return squeezeDirectory(squeezeDir, squeezeOutput, opts, mgr)
	}

	if len(args) == 0 {
		return fmt.Errorf("missing input: pass a wasm file, \"-\" for stdin, or --dir")
	}
	return squeezeOne(args[0], squeezeOutput, opts, mgr)
}

func squeezeOne(inPath, outPath string, opts squeeze.Options, mgr *cache.Manager) error {
	input, err := readInput(inPath)
	if err != nil {
		return err
	}

	result, hit, err := squeezeCached(input, opts, mgr)
	if err != nil {
		return err
	}

	if err := writeOutput(outPath, result.Module); err != nil {
		return err
	}

	printSqueezeReport(inPath, input, result, hit)
	return nil
}

// squeezeDirectory squeezes every .wasm file under dir into outDir,
// keeping file names. It continues past per-file failures and reports
// them at the end.
func squeezeDirectory(dir, outDir string, opts squeeze.Options, mgr *cache.Manager) error {
	if outDir == "" {
		return fmt.Errorf("--dir requires -o naming an output directory")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading input directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wasm") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no .wasm files in %s", dir)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	bar := progressbar.NewOptions(len(names),
		progressbar.OptionSetDescription("squeezing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var failed []string
	var inTotal, outTotal int
	for _, name := range names {
		input, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			var result squeeze.Result
			result, _, err = squeezeCached(input, opts, mgr)
			if err == nil {
				err = os.WriteFile(filepath.Join(outDir, name), result.Module, 0644)
				inTotal += len(input)
				outTotal += len(result.Module)
			}
		}
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Printf("Squeezed %d/%d modules: %s -> %s\n",
		len(names)-len(failed), len(names),
		humanize.Bytes(uint64(inTotal)), humanize.Bytes(uint64(outTotal)))
	if len(failed) > 0 {
		for _, f := range failed {
			fmt.Fprintf(os.Stderr, "failed: %s\n", f)
		}
		return fmt.Errorf("%d of %d modules failed", len(failed), len(names))
	}
	return nil
}

// squeezeCached consults the result cache before running the engine.
func squeezeCached(input []byte, opts squeeze.Options, mgr *cache.Manager) (squeeze.Result, bool, error) {
	if mgr != nil {
		key := cache.Key(input, opts.Level, opts.HostProfile)
		if cached, found, err := mgr.Get(key); err == nil && found {
			return squeeze.Result{Module: cached, Applied: len(cached) < len(input)}, true, nil
		}
	}

	result, err := squeeze.RunBytes(context.Background(), input, opts)
	if err != nil {
		return squeeze.Result{}, false, err
	}

	if mgr != nil {
		key := cache.Key(input, opts.Level, opts.HostProfile)
		if err := mgr.Put(key, result.Module); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to cache result: %v\n", err)
		}
	}
	return result, false, nil
}

func unpackerLoader(path string) squeeze.Loader {
	if path != "" {
		return squeeze.PathLoader(path)
	}
	return squeeze.PlaceholderLoader{}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading WASM file: %w", err)
	}
	return data, nil
}

func writeOutput(path string, module []byte) error {
	if path == "" || path == "-" {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("refusing to write binary output to a terminal; pass -o or redirect stdout")
		}
		if _, err := os.Stdout.Write(module); err != nil {
			return fmt.Errorf("writing stdout: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, module, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func printSqueezeReport(inPath string, input []byte, result squeeze.Result, cacheHit bool) {
	in := len(input)
	out := len(result.Module)

	fmt.Fprintf(os.Stderr, "Input:          %s (%s)\n", inPath, humanize.Bytes(uint64(in)))
	if cacheHit {
		fmt.Fprintf(os.Stderr, "Cache:          hit\n")
	}
	if !result.Applied {
		fmt.Fprintf(os.Stderr, "Result:         %s\n", color.YellowString("passthrough (no saving possible)"))
		return
	}

	saved := in - out
	pct := float64(saved) / float64(in) * 100
	fmt.Fprintf(os.Stderr, "Data image:     %s -> %s packed\n",
		humanize.Bytes(uint64(result.OriginalSize)), humanize.Bytes(uint64(result.PackedSize)))
	fmt.Fprintf(os.Stderr, "Output:         %s\n", humanize.Bytes(uint64(out)))
	fmt.Fprintf(os.Stderr, "Result:         %s\n",
		color.GreenString("saved %s (%.1f%%)", humanize.Bytes(uint64(saved)), pct))
}

func init() {
	squeezeCmd.Flags().StringVarP(&squeezeOutput, "output", "o", "", "Output file, directory (with --dir), or \"-\" for stdout")
	squeezeCmd.Flags().StringVar(&squeezeDir, "dir", "", "Squeeze every .wasm file in a directory")
	squeezeCmd.Flags().IntVar(&squeezeLevel, "level", 19, "Compression level (1-22)")
	squeezeCmd.Flags().StringVar(&squeezeProfile, "profile", "wasm4", "Host profile for register defaults (wasm4, generic)")
	squeezeCmd.Flags().StringVar(&squeezeUnpacker, "unpacker", "", "Path to a prebuilt decompressor module")
	squeezeCmd.Flags().BoolVar(&squeezeNoCache, "no-cache", false, "Bypass the result cache")
	rootCmd.AddCommand(squeezeCmd)
}
