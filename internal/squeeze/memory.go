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

// Memory layout contract shared by the Planner, Re-Encoder, and Prologue
// Synthesizer. Must stay in lockstep with the decompressor's own
// expectations: these are the offsets it is built against.
const (
	// ContextOffset is where the decompressor's adaptive probability
	// model state lives at the low end of memory.
	ContextOffset = 0
	// ContextSize reserves bytes for that state.
	ContextSize = 2048
	// CompressedDataOffset is where packed bytes are placed as the
	// output module's single active data segment.
	CompressedDataOffset = ContextSize
	// MemSize is the single working WebAssembly page (64 KiB) the
	// prologue operates within.
	MemSize = 0x10000
)
