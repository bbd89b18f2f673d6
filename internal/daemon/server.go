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

// Package daemon exposes the squeeze engine over JSON-RPC 2.0 so build
// pipelines can keep one long-lived process (and one warm result cache)
// instead of spawning the CLI per module.
package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nilcompute/wsqueeze/internal/cache"
	"github.com/nilcompute/wsqueeze/internal/logger"
	"github.com/nilcompute/wsqueeze/internal/squeeze"
	"github.com/nilcompute/wsqueeze/internal/telemetry"
)

// Server represents the JSON-RPC daemon server
type Server struct {
	config Config
	cache  *cache.Manager
}

// Config holds daemon configuration
type Config struct {
	Addr        string
	AuthToken   string
	Level       int
	HostProfile string
	Packer      squeeze.Packer
	Unpacker    squeeze.Loader
	Cache       *cache.Manager
}

// SqueezeRequest represents the Squeeze.Run RPC request
type SqueezeRequest struct {
	// ModuleBase64 is the input module, base64-encoded.
	ModuleBase64 string `json:"module_base64"`
	// Level overrides the daemon's configured compression level when set.
	Level *int `json:"level,omitempty"`
	// HostProfile overrides the daemon's configured host profile when set.
	HostProfile *string `json:"host_profile,omitempty"`
}

// SqueezeResponse represents the Squeeze.Run RPC response
type SqueezeResponse struct {
	RequestID    string `json:"request_id"`
	ModuleBase64 string `json:"module_base64"`
	Applied      bool   `json:"applied"`
	OriginalSize int    `json:"original_size"`
	PackedSize   int    `json:"packed_size"`
	InputBytes   int    `json:"input_bytes"`
	OutputBytes  int    `json:"output_bytes"`
	CacheHit     bool   `json:"cache_hit"`
}

// NewServer creates a new JSON-RPC server
func NewServer(config Config) (*Server, error) {
	if config.Packer == nil {
		return nil, fmt.Errorf("daemon requires a packer")
	}
	if config.Unpacker == nil {
		return nil, fmt.Errorf("daemon requires an unpacker loader")
	}
	return &Server{
		config: config,
		cache:  config.Cache,
	}, nil
}

// authenticate validates the authorization token
func (s *Server) authenticate(r *http.Request) bool {
	if s.config.AuthToken == "" {
		return true // No auth required
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}

	if strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		return token == s.config.AuthToken
	}

	return auth == s.config.AuthToken
}

// Run handles Squeeze.Run RPC calls
func (s *Server) Run(r *http.Request, req *SqueezeRequest, resp *SqueezeResponse) error {
	if !s.authenticate(r) {
		return fmt.Errorf("unauthorized")
	}

	requestID := uuid.NewString()

	tracer := telemetry.GetTracer()
	_, span := tracer.Start(r.Context(), "rpc_squeeze_run")
	span.SetAttributes(attribute.String("request.id", requestID))
	defer span.End()

	input, err := base64.StdEncoding.DecodeString(req.ModuleBase64)
	if err != nil {
		return fmt.Errorf("invalid module_base64: %w", err)
	}

	level := s.config.Level
	if req.Level != nil {
		level = *req.Level
	}
	profile := s.config.HostProfile
	if req.HostProfile != nil {
		profile = *req.HostProfile
	}
	span.SetAttributes(
		attribute.Int("squeeze.level", level),
		attribute.String("squeeze.host_profile", profile),
		attribute.Int("squeeze.input_bytes", len(input)),
	)

	logger.Logger.Info("processing Squeeze.Run RPC",
		"request_id", requestID, "input_bytes", len(input), "level", level)

	if s.cache != nil {
		key := cache.Key(input, level, profile)
		if cached, found, err := s.cache.Get(key); err == nil && found {
			*resp = SqueezeResponse{
				RequestID:    requestID,
				ModuleBase64: base64.StdEncoding.EncodeToString(cached),
				Applied:      len(cached) < len(input),
				InputBytes:   len(input),
				OutputBytes:  len(cached),
				CacheHit:     true,
			}
			return nil
		}
	}

	result, err := squeeze.RunBytes(r.Context(), input, squeeze.Options{
		Level:       level,
		HostProfile: profile,
		Packer:      s.config.Packer,
		Unpacker:    s.config.Unpacker,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("squeeze failed: %w", err)
	}

	if s.cache != nil {
		key := cache.Key(input, level, profile)
		if err := s.cache.Put(key, result.Module); err != nil {
			logger.Logger.Warn("failed to store result in cache", "error", err)
		}
	}

	span.SetAttributes(
		attribute.Bool("squeeze.applied", result.Applied),
		attribute.Int("squeeze.output_bytes", len(result.Module)),
	)

	*resp = SqueezeResponse{
		RequestID:    requestID,
		ModuleBase64: base64.StdEncoding.EncodeToString(result.Module),
		Applied:      result.Applied,
		OriginalSize: result.OriginalSize,
		PackedSize:   result.PackedSize,
		InputBytes:   len(input),
		OutputBytes:  len(result.Module),
	}

	return nil
}

// Start starts the JSON-RPC server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")

	if err := server.RegisterService(s, "Squeeze"); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	logger.Logger.Info("starting JSON-RPC server", "addr", s.config.Addr)

	srv := &http.Server{
		Addr:    s.config.Addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("shutting down JSON-RPC server")
	return srv.Shutdown(context.Background())
}
