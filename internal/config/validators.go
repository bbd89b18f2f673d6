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
	"path/filepath"
	"strings"

	"github.com/nilcompute/wsqueeze/internal/errors"
)

// Validator validates a specific aspect of the configuration.
type Validator interface {
	Validate(cfg *Config) error
}

// CompressionLevelValidator bounds the zstd compression level the
// Planner will request from the packer.
type CompressionLevelValidator struct{}

func (v CompressionLevelValidator) Validate(cfg *Config) error {
	if cfg.CompressionLevel < 1 || cfg.CompressionLevel > 22 {
		return errors.WrapUnsupported("compression_level must be between 1 and 22")
	}
	return nil
}

// HostProfileValidator checks that the configured host profile is
// recognized by the Prologue Synthesizer.
type HostProfileValidator struct{}

func (v HostProfileValidator) Validate(cfg *Config) error {
	if cfg.HostProfile != "" && !validHostProfiles[string(cfg.HostProfile)] {
		return errors.WrapUnsupported("unknown host_profile: " + string(cfg.HostProfile))
	}
	return nil
}

// CachePathValidator checks that a non-empty cache path, when set, is
// absolute so relative-cwd surprises don't silently fragment the cache.
type CachePathValidator struct{}

func (v CachePathValidator) Validate(cfg *Config) error {
	if cfg.CachePath == "" {
		return nil
	}
	if !filepath.IsAbs(cfg.CachePath) {
		return errors.WrapUnsupported("cache_path must be an absolute path")
	}
	return nil
}

// LogLevelValidator checks that the log level is a known value.
type LogLevelValidator struct{}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func (v LogLevelValidator) Validate(cfg *Config) error {
	if cfg.LogLevel == "" {
		return nil
	}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return errors.WrapUnsupported("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// DefaultValidators returns the standard set of validators.
func DefaultValidators() []Validator {
	return []Validator{
		CompressionLevelValidator{},
		HostProfileValidator{},
		CachePathValidator{},
		LogLevelValidator{},
	}
}

// RunValidators executes each validator against the config, returning the
// first error encountered.
func RunValidators(cfg *Config, validators []Validator) error {
	for _, v := range validators {
		if err := v.Validate(cfg); err != nil {
			return err
		}
	}
	return nil
}
