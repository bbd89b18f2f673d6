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
	"testing"
)

func TestPlan_AcceptsProfitableAndFeasible(t *testing.T) {
	data := make([]byte, 8192)
	packed := make([]byte, 100)

	decision, err := Plan(data, 19, stubPacker{out: packed})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !decision.Active {
		t.Fatal("expected compression to be accepted")
	}
	if !bytes.Equal(decision.Packed, packed) {
		t.Fatal("decision must carry the packed payload")
	}
	if len(decision.Packed)+ContextSize+len(data) > MemSize {
		t.Fatal("accepted decision violates the memory budget")
	}
}

func TestPlan_DeclinesWhenNotProfitable(t *testing.T) {
	data := make([]byte, 100)

	decision, err := Plan(data, 19, identityPacker{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if decision.Active {
		t.Fatal("expected decline when packed size equals original")
	}
}

func TestPlan_DeclinesWhenMemoryBudgetExceeded(t *testing.T) {
	// Packed is smaller, but context + packed + reconstruction exceeds
	// the one-page working window.
	data := make([]byte, 40000)
	packed := make([]byte, 30000)

	decision, err := Plan(data, 19, stubPacker{out: packed})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if decision.Active {
		t.Fatal("expected decline when decompression cannot fit in one page")
	}
}
