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

package pack

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestZstdPackerRoundTrips(t *testing.T) {
	data := bytes.Repeat([]byte("wasm-game-asset-bytes"), 512)

	packed, err := ZstdPacker{}.Pack(data, 19)
	require.NoError(t, err)
	require.Less(t, len(packed), len(data))

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()

	roundTripped, err := dec.DecodeAll(packed, nil)
	require.NoError(t, err)
	require.Equal(t, data, roundTripped)
}

func TestZstdPackerLevelMapping(t *testing.T) {
	require.Equal(t, zstd.SpeedFastest, zstdLevel(1))
	require.Equal(t, zstd.SpeedDefault, zstdLevel(10))
	require.Equal(t, zstd.SpeedBetterCompression, zstdLevel(19))
	require.Equal(t, zstd.SpeedBestCompression, zstdLevel(22))
}
