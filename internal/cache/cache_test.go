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

package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, config Config) *Manager {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "cache.db"), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base := Key([]byte("module"), 19, "wasm4")

	assert.NotEqual(t, base, Key([]byte("other"), 19, "wasm4"))
	assert.NotEqual(t, base, Key([]byte("module"), 20, "wasm4"))
	assert.NotEqual(t, base, Key([]byte("module"), 19, "generic"))
	assert.Equal(t, base, Key([]byte("module"), 19, "wasm4"))
}

func TestGetMissingKey(t *testing.T) {
	m := openTestCache(t, DefaultConfig())

	_, found, err := m.Get(Key([]byte("absent"), 19, "wasm4"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutAndGet(t *testing.T) {
	m := openTestCache(t, DefaultConfig())

	key := Key([]byte("input module"), 19, "wasm4")
	output := []byte("squeezed module bytes")

	require.NoError(t, m.Put(key, output))

	got, found, err := m.Get(key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, bytes.Equal(output, got))
}

func TestPutSameKeyTwice(t *testing.T) {
	m := openTestCache(t, DefaultConfig())

	key := Key([]byte("input"), 19, "wasm4")
	require.NoError(t, m.Put(key, []byte("output")))
	require.NoError(t, m.Put(key, []byte("output")))

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestGetStats(t *testing.T) {
	m := openTestCache(t, DefaultConfig())

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Entries)
	assert.Equal(t, int64(0), stats.TotalBytes)

	require.NoError(t, m.Put(Key([]byte("a"), 19, "wasm4"), make([]byte, 100)))
	require.NoError(t, m.Put(Key([]byte("b"), 19, "wasm4"), make([]byte, 50)))

	stats, err = m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(150), stats.TotalBytes)
}

func TestClear(t *testing.T) {
	m := openTestCache(t, DefaultConfig())

	require.NoError(t, m.Put(Key([]byte("a"), 19, "wasm4"), []byte("x")))
	require.NoError(t, m.Clear())

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Entries)
}

func TestEvictionKeepsCacheUnderLimit(t *testing.T) {
	m := openTestCache(t, Config{MaxSizeBytes: 300})

	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Put(Key([]byte(name), 19, "wasm4"), make([]byte, 100)))
	}

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.TotalBytes, int64(300))
	assert.Less(t, stats.Entries, int64(4))
}
