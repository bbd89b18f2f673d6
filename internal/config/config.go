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

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nilcompute/wsqueeze/internal/errors"
)

// HostProfile names a memory-mapped register layout the prologue
// synthesizer should install defaults for. "generic" disables the
// domain extension entirely.
type HostProfile string

const (
	HostProfileGeneric HostProfile = "generic"
	HostProfileWasm4   HostProfile = "wasm4"
)

var validHostProfiles = map[string]bool{
	string(HostProfileGeneric): true,
	string(HostProfileWasm4):   true,
}

// Config is the general configuration for wsqueeze.
type Config struct {
	CompressionLevel int         `json:"compression_level,omitempty"`
	HostProfile      HostProfile `json:"host_profile,omitempty"`
	LogLevel         string      `json:"log_level,omitempty"`
	CachePath        string      `json:"cache_path,omitempty"`
	CacheMaxBytes    int64       `json:"cache_max_bytes,omitempty"`
	DaemonAddr       string      `json:"daemon_addr,omitempty"`
	UnpackerPath     string      `json:"unpacker_path,omitempty"`
	TelemetryURL     string      `json:"telemetry_url,omitempty"`
}

var defaultConfig = &Config{
	CompressionLevel: 19,
	HostProfile:      HostProfileWasm4,
	LogLevel:         "info",
	CachePath:        filepath.Join(os.ExpandEnv("$HOME"), ".wsqueeze", "cache.db"),
	CacheMaxBytes:    1 << 30,
	DaemonAddr:       "127.0.0.1:8791",
}

// DefaultConfig returns a copy of the built-in defaults.
func DefaultConfig() *Config {
	cfg := *defaultConfig
	return &cfg
}

// GetConfigPath returns the directory wsqueeze stores its config and
// state under, honoring the OS config-dir convention with a home-dir
// fallback.
func GetConfigPath() (string, error) {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "wsqueeze"), nil
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "wsqueeze"), nil
	}
	return "", errors.WrapIO("no config directory available", os.ErrNotExist)
}

// Load builds a Config from environment variables and an optional TOML
// file, falling back to defaults, then runs the standard validators.
func Load() (*Config, error) {
	cfg := &Config{
		CompressionLevel: defaultConfig.CompressionLevel,
		HostProfile:      HostProfile(getEnv("WSQUEEZE_HOST_PROFILE", string(defaultConfig.HostProfile))),
		LogLevel:         getEnv("WSQUEEZE_LOG_LEVEL", defaultConfig.LogLevel),
		CachePath:        getEnv("WSQUEEZE_CACHE_PATH", defaultConfig.CachePath),
		CacheMaxBytes:    defaultConfig.CacheMaxBytes,
		DaemonAddr:       getEnv("WSQUEEZE_DAEMON_ADDR", defaultConfig.DaemonAddr),
		UnpackerPath:     getEnv("WSQUEEZE_UNPACKER_PATH", ""),
		TelemetryURL:     getEnv("WSQUEEZE_TELEMETRY_URL", ""),
	}

	if lvl := os.Getenv("WSQUEEZE_COMPRESSION_LEVEL"); lvl != "" {
		if n, err := strconv.Atoi(lvl); err == nil {
			cfg.CompressionLevel = n
		}
	}
	if max := os.Getenv("WSQUEEZE_CACHE_MAX_BYTES"); max != "" {
		if n, err := strconv.ParseInt(max, 10, 64); err == nil {
			cfg.CacheMaxBytes = n
		}
	}

	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}

	if err := RunValidators(cfg, DefaultValidators()); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	paths := []string{
		".wsqueeze.toml",
		filepath.Join(os.ExpandEnv("$HOME"), ".wsqueeze.toml"),
		"/etc/wsqueeze/config.toml",
	}

	for _, path := range paths {
		if err := c.loadTOML(path); err == nil {
			return nil
		}
	}

	return nil
}

func (c *Config) loadTOML(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return c.parseTOML(string(data))
}

// parseTOML is a deliberately minimal key = value line parser, matching
// the shape of an ini-like subset of TOML: no tables, no arrays beyond a
// bare comma list. Anything fancier belongs to a real TOML library, but
// this tool's config surface never needs one.
func (c *Config) parseTOML(content string) error {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")

		switch key {
		case "compression_level":
			if n, err := strconv.Atoi(value); err == nil {
				c.CompressionLevel = n
			}
		case "host_profile":
			c.HostProfile = HostProfile(value)
		case "log_level":
			c.LogLevel = value
		case "cache_path":
			c.CachePath = value
		case "cache_max_bytes":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				c.CacheMaxBytes = n
			}
		case "daemon_addr":
			c.DaemonAddr = value
		case "unpacker_path":
			c.UnpackerPath = value
		case "telemetry_url":
			c.TelemetryURL = value
		}
	}

	return nil
}

// Save writes the configuration as JSON to its canonical path.
func Save(cfg *Config) error {
	dir, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.WrapIO("failed to create config directory", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.WrapIO("failed to marshal config", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0600); err != nil {
		return errors.WrapIO("failed to write config file", err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) String() string {
	return "Config{Level: " + strconv.Itoa(c.CompressionLevel) + ", Profile: " + string(c.HostProfile) + ", LogLevel: " + c.LogLevel + "}"
}
