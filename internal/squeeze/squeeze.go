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

package squeeze

import (
	"bytes"
	"context"
	"errors"
	"io"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
	"github.com/nilcompute/wsqueeze/internal/logger"
	"github.com/nilcompute/wsqueeze/internal/telemetry"
)

// Options configures a single Run.
type Options struct {
	Level       int
	HostProfile string
	Packer      Packer
	Unpacker    Loader
}

// Result reports the outcome of one Run.
type Result struct {
	// Module is always the bytes to write out: either the optimized
	// module, or — when optimization was skipped — the original input
	// bytes unchanged, satisfying wsqueeze's idempotence guarantee.
	Module []byte
	// Applied is true only when a decompressor was spliced in.
	Applied bool
	// OriginalSize and PackedSize describe the merged data image before
	// and after compression; both are zero when Applied is false (no
	// active data segments, or the Planner declined to compress).
	OriginalSize int
	PackedSize   int
}

// consumer adapts builder to the SectionConsumer interface Scan expects,
// discarding the payloadOffset argument except for the Data Count
// section, which the builder needs for its legacy-mitigation bookkeeping.
type consumer struct{ b *builder }

func (c consumer) Consume(sec Section, payloadOffset int) error {
	return c.b.consume(sec, payloadOffset)
}

// Run executes the full scan/plan/encode pipeline over r, producing the
// optimized module in Result.Module. A module with no active data
// segments, or one the Planner declines to compress, passes through
// byte-for-byte unchanged.
func Run(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.Start(ctx, "squeeze_run")
	defer span.End()

	b := newBuilder()
	_, scanSpan := tracer.Start(ctx, "scan")
	raw, err := Scan(r, consumer{b})
	scanSpan.End()
	if err != nil {
		return Result{}, err
	}
	logger.Logger.Debug("first pass complete", "module_bytes", len(raw))

	info, err := b.build()
	if err != nil {
		if errors.Is(err, wsqerrors.ErrNoData) {
			logger.Logger.Info("module has no active data segments; passing through unchanged")
			return Result{Module: raw, Applied: false}, nil
		}
		return Result{}, err
	}

	profile, err := LookupProfile(opts.HostProfile)
	if err != nil {
		return Result{}, err
	}

	_, planSpan := tracer.Start(ctx, "plan")
	decision, err := Plan(info.Data.Data, opts.Level, opts.Packer)
	planSpan.End()
	if err != nil {
		return Result{}, err
	}
	if !decision.Active {
		logger.Logger.Info("compression declined by planner; passing through unchanged",
			"original_bytes", len(info.Data.Data))
		return Result{Module: raw, Applied: false}, nil
	}

	MitigateDataCount(raw, info.DataCountRange)

	unpackerBytes, err := opts.Unpacker.Load()
	if err != nil {
		return Result{}, err
	}
	unpacker, err := ParseUnpacker(unpackerBytes)
	if err != nil {
		return Result{}, err
	}

	sections, err := ParseSections(raw)
	if err != nil {
		return Result{}, err
	}

	_, encodeSpan := tracer.Start(ctx, "encode")
	out, err := Reencode(sections, info, decision, unpacker, profile)
	encodeSpan.End()
	if err != nil {
		return Result{}, err
	}

	logger.Logger.Info("module squeezed",
		"original_bytes", len(info.Data.Data),
		"packed_bytes", len(decision.Packed),
		"input_module_bytes", len(raw),
		"output_module_bytes", len(out),
	)

	return Result{
		Module:       out,
		Applied:      true,
		OriginalSize: len(info.Data.Data),
		PackedSize:   len(decision.Packed),
	}, nil
}

// RunBytes is a convenience wrapper around Run for already-buffered input.
func RunBytes(ctx context.Context, data []byte, opts Options) (Result, error) {
	return Run(ctx, bytes.NewReader(data), opts)
}
