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

// Package cache is a content-addressed result cache: squeezing the same
// module at the same level and host profile is deterministic, so the
// output can be keyed by a hash of the inputs and replayed on repeat
// invocations.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"github.com/nilcompute/wsqueeze/internal/logger"
)

// Config holds cache configuration
type Config struct {
	// MaxSizeBytes is the maximum total size of stored outputs (default 1GB)
	MaxSizeBytes int64
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes: 1024 * 1024 * 1024, // 1GB
	}
}

// Manager handles cache operations including LRU cleanup
type Manager struct {
	db     *sql.DB
	path   string
	config Config
}

const schema = `
CREATE TABLE IF NOT EXISTS modules (
	key        TEXT PRIMARY KEY,
	output     BLOB NOT NULL,
	size       INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	last_used  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS modules_last_used ON modules (last_used);
`

// Open opens (creating if necessary) the cache database at path.
func Open(path string, config Config) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Manager{db: db, path: path, config: config}, nil
}

// Close releases the underlying database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Key derives the content address for one squeeze invocation.
func Key(input []byte, level int, hostProfile string) string {
	h := sha256.New()
	h.Write(input)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(level)))
	h.Write([]byte{0})
	h.Write([]byte(hostProfile))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached output for key, if present, and bumps its
// last-used time.
func (m *Manager) Get(key string) ([]byte, bool, error) {
	var output []byte
	err := m.db.QueryRow(`SELECT output FROM modules WHERE key = ?`, key).Scan(&output)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if _, err := m.db.Exec(`UPDATE modules SET last_used = ? WHERE key = ?`, time.Now().Unix(), key); err != nil {
		logger.Logger.Warn("failed to bump cache entry last-used time", "key", key, "error", err)
	}

	return output, true, nil
}

// Put stores output under key, then evicts least-recently-used entries
// if the cache has grown past its configured limit.
func (m *Manager) Put(key string, output []byte) error {
	now := time.Now().Unix()
	_, err := m.db.Exec(
		`INSERT INTO modules (key, output, size, created_at, last_used) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET last_used = excluded.last_used`,
		key, output, int64(len(output)), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return m.evictLRU()
}

// Stats describes the cache's current contents.
type Stats struct {
	Entries    int64
	TotalBytes int64
}

// GetStats returns entry and size counts.
func (m *Manager) GetStats() (Stats, error) {
	var s Stats
	err := m.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM modules`).Scan(&s.Entries, &s.TotalBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return s, nil
}

// Clear deletes every cached entry.
func (m *Manager) Clear() error {
	if _, err := m.db.Exec(`DELETE FROM modules`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	logger.Logger.Info("cache cleared", "path", m.path)
	return nil
}

// evictLRU deletes least-recently-used entries until total size drops to
// half the configured maximum. A no-op while the cache is within limits.
func (m *Manager) evictLRU() error {
	stats, err := m.GetStats()
	if err != nil {
		return err
	}
	if stats.TotalBytes <= m.config.MaxSizeBytes {
		return nil
	}

	logger.Logger.Info("cache size exceeds limit, evicting LRU entries",
		"current", humanize.Bytes(uint64(stats.TotalBytes)),
		"limit", humanize.Bytes(uint64(m.config.MaxSizeBytes)))

	targetSize := m.config.MaxSizeBytes / 2
	currentSize := stats.TotalBytes
	deleted := 0

	rows, err := m.db.Query(`SELECT key, size FROM modules ORDER BY last_used ASC`)
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	type victim struct {
		key  string
		size int64
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.key, &v.size); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan cache entry: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("failed to iterate cache entries: %w", err)
	}
	_ = rows.Close()

	for _, v := range victims {
		if currentSize <= targetSize {
			break
		}
		if _, err := m.db.Exec(`DELETE FROM modules WHERE key = ?`, v.key); err != nil {
			logger.Logger.Warn("failed to evict cache entry", "key", v.key, "error", err)
			continue
		}
		currentSize -= v.size
		deleted++
	}

	logger.Logger.Info("cache eviction completed",
		"entries_deleted", deleted,
		"final_size", humanize.Bytes(uint64(currentSize)))

	return nil
}
