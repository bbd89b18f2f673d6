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
	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
	"github.com/nilcompute/wsqueeze/internal/logger"
)

// Packer is the external compression primitive the Planner invokes. The
// core does not constrain its algorithm; see internal/pack for the
// concrete zstd-backed implementation.
type Packer interface {
	Pack(data []byte, level int) ([]byte, error)
}

// Decision is the Planner's verdict: either a packed payload to splice
// in, or a decline that leaves the module untouched.
type Decision struct {
	Packed []byte
	Active bool
}

// Plan invokes packer against the merged data image and decides whether
// compressing is both profitable (strictly smaller) and feasible (fits
// alongside the decompressor's scratch context in one memory page).
func Plan(data []byte, level int, packer Packer) (Decision, error) {
	packed, err := packer.Pack(data, level)
	if err != nil {
		return Decision{}, wsqerrors.WrapIO("pack data image", err)
	}

	profitable := len(packed) < len(data)
	feasible := len(packed)+ContextSize+len(data) <= MemSize

	logger.Logger.Debug("compression planning decision",
		"original_bytes", len(data),
		"packed_bytes", len(packed),
		"profitable", profitable,
		"feasible", feasible,
	)

	if profitable && feasible {
		return Decision{Packed: packed, Active: true}, nil
	}
	return Decision{Active: false}, nil
}
