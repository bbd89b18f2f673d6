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

import wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"

// Registers describes the memory-mapped host registers the Prologue
// Synthesizer should install defaults for after reconstructing the
// original data image. A nil *Registers disables the domain extension
// entirely (the "generic" profile).
type Registers struct {
	PaletteOffset     uint32
	PaletteDefault    [2]uint64
	DrawColorsOffset  uint32
	DrawColorsDefault uint16
	MouseXYOffset     uint32
	MouseXYDefault    uint32
}

// builtinProfiles maps a config host-profile name to its register
// layout. "wasm4" reproduces the fantasy-console target the original
// tool hardwired; any host without a memory-mapped register block
// should use "generic" (absent from this map, nil registers).
var builtinProfiles = map[string]*Registers{
	"wasm4": {
		// WASM-4's well-known memory map: PALETTE at 0x04 (4 x u32),
		// DRAW_COLORS at 0x14 (u16), MOUSE_X/MOUSE_Y as two packed i16
		// at 0x22, read/written together as one u32.
		PaletteOffset:     0x04,
		PaletteDefault:    [2]uint64{0x86c06cffe0f8cf, 0x071821ff306850},
		DrawColorsOffset:  0x14,
		DrawColorsDefault: 0x1203,
		MouseXYOffset:     0x22,
		MouseXYDefault:    0x00000000,
	},
}

// LookupProfile resolves a host-profile name to its register layout.
// "" and "generic" both disable the domain extension.
func LookupProfile(name string) (*Registers, error) {
	if name == "" || name == "generic" {
		return nil, nil
	}
	regs, ok := builtinProfiles[name]
	if !ok {
		return nil, wsqerrors.WrapUnsupported("unknown host profile: " + name)
	}
	return regs, nil
}
