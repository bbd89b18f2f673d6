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

// Package pack implements the Packer the squeeze Planner invokes,
// compressing a module's merged data image with zstd.
package pack

import (
	"github.com/klauspost/compress/zstd"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

// ZstdPacker compresses with klauspost/compress's zstd implementation.
// It satisfies squeeze.Packer without importing the squeeze package,
// avoiding a cycle between the engine and its compression backend.
type ZstdPacker struct{}

// Pack compresses data at the given level (clamped into zstd's four
// named levels: 1-6 speed, 7-12 default, 13-19 better, 20+ best).
func (ZstdPacker) Pack(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, wsqerrors.WrapIO("create zstd encoder", err)
	}
	defer enc.Close()

	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 6:
		return zstd.SpeedFastest
	case level <= 12:
		return zstd.SpeedDefault
	case level <= 19:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
