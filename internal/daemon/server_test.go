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

package daemon

import (
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/nilcompute/wsqueeze/internal/pack"
	"github.com/nilcompute/wsqueeze/internal/squeeze"
)

// emptyModule is a well-formed module with no sections at all: the
// engine's NoData passthrough path.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	server, err := NewServer(Config{
		Addr:        "127.0.0.1:0",
		AuthToken:   authToken,
		Level:       19,
		HostProfile: "generic",
		Packer:      pack.ZstdPacker{},
		Unpacker:    squeeze.PlaceholderLoader{},
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return server
}

func TestServer_RunPassthrough(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/rpc", nil)

	var resp SqueezeResponse
	err := server.Run(req, &SqueezeRequest{
		ModuleBase64: base64.StdEncoding.EncodeToString(emptyModule),
	}, &resp)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if resp.Applied {
		t.Error("expected no compression applied to an empty module")
	}
	out, err := base64.StdEncoding.DecodeString(resp.ModuleBase64)
	if err != nil {
		t.Fatalf("invalid response base64: %v", err)
	}
	if string(out) != string(emptyModule) {
		t.Error("expected byte-identical passthrough for an empty module")
	}
	if resp.RequestID == "" {
		t.Error("expected a request id")
	}
}

func TestServer_RunRejectsBadBase64(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/rpc", nil)

	var resp SqueezeResponse
	err := server.Run(req, &SqueezeRequest{ModuleBase64: "not base64!!!"}, &resp)
	if err == nil {
		t.Error("expected error for malformed base64 input")
	}
}

func TestServer_Authentication(t *testing.T) {
	server := newTestServer(t, "secret123")

	req := httptest.NewRequest("POST", "/rpc", nil)
	var resp SqueezeResponse
	err := server.Run(req, &SqueezeRequest{
		ModuleBase64: base64.StdEncoding.EncodeToString(emptyModule),
	}, &resp)
	if err == nil {
		t.Error("expected unauthorized error without a token")
	}

	req = httptest.NewRequest("POST", "/rpc", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	err = server.Run(req, &SqueezeRequest{
		ModuleBase64: base64.StdEncoding.EncodeToString(emptyModule),
	}, &resp)
	if err != nil {
		t.Errorf("expected bearer token to authenticate, got %v", err)
	}
}
