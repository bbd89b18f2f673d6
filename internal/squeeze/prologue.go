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

import "bytes"

// Instruction opcodes the Prologue Synthesizer emits.
const (
	opI32Const   = 0x41
	opI64Const   = 0x42
	opCall       = 0x10
	opDrop       = 0x1a
	opI32Store   = 0x36
	opI32Store16 = 0x3b
	opI64Store   = 0x37
	opMiscPrefix = 0xfc
	miscMemCopy  = 0x0a
	miscMemFill  = 0x0b
)

// PrologueParams carries everything BuildPrologue needs to synthesize
// the decompress-and-reconstruct instruction sequence.
type PrologueParams struct {
	UnpackFnIdxCombined uint32
	DestOffset          uint32
	CompressedDataOff   uint32
	OriginalDataOffset  int32
	OriginalDataLen     uint32
	Registers           *Registers
}

// BuildPrologue emits, in order: a call into the grafted decompressor,
// a bulk copy of its output to the original data offset, zero-fills of
// everything outside that window, and (when a host profile is active)
// default register initialization for memory-mapped host state.
func BuildPrologue(p PrologueParams) []byte {
	var out bytes.Buffer

	emitI32Const(&out, int32(ContextOffset))
	emitI32Const(&out, int32(p.DestOffset))
	emitI32Const(&out, int32(p.CompressedDataOff))
	emitCall(&out, p.UnpackFnIdxCombined)
	out.WriteByte(opDrop)

	emitI32Const(&out, p.OriginalDataOffset)
	emitI32Const(&out, int32(p.DestOffset))
	emitI32Const(&out, int32(p.OriginalDataLen))
	emitMemCopy(&out)

	if p.OriginalDataOffset > 0 {
		emitI32Const(&out, 0)
		emitI32Const(&out, 0)
		emitI32Const(&out, p.OriginalDataOffset)
		emitMemFill(&out)
	}

	tailStart := p.OriginalDataOffset + int32(p.OriginalDataLen)
	if tailStart < MemSize {
		emitI32Const(&out, tailStart)
		emitI32Const(&out, 0)
		emitI32Const(&out, MemSize-tailStart)
		emitMemFill(&out)
	}

	if regs := p.Registers; regs != nil {
		emitI32Const(&out, int32(regs.PaletteOffset))
		emitI64Const(&out, int64(regs.PaletteDefault[0]))
		emitI64Store(&out, regs.PaletteOffset)

		emitI32Const(&out, int32(regs.PaletteOffset+8))
		emitI64Const(&out, int64(regs.PaletteDefault[1]))
		emitI64Store(&out, regs.PaletteOffset+8)

		emitI32Const(&out, int32(regs.DrawColorsOffset))
		emitI32Const(&out, int32(regs.DrawColorsDefault))
		emitI32Store16(&out, regs.DrawColorsOffset)

		emitI32Const(&out, int32(regs.MouseXYOffset))
		emitI32Const(&out, int32(regs.MouseXYDefault))
		emitI32Store(&out, regs.MouseXYOffset)
	}

	return out.Bytes()
}

func emitI32Const(out *bytes.Buffer, v int32) {
	out.WriteByte(opI32Const)
	out.Write(EncodeSLEB32(v))
}

func emitI64Const(out *bytes.Buffer, v int64) {
	out.WriteByte(opI64Const)
	out.Write(EncodeSLEB64(v))
}

func emitCall(out *bytes.Buffer, fnIdx uint32) {
	out.WriteByte(opCall)
	out.Write(EncodeU32(fnIdx))
}

func emitMemCopy(out *bytes.Buffer) {
	out.WriteByte(opMiscPrefix)
	out.Write(EncodeU32(miscMemCopy))
	out.WriteByte(0x00) // destination memory index
	out.WriteByte(0x00) // source memory index
}

func emitMemFill(out *bytes.Buffer) {
	out.WriteByte(opMiscPrefix)
	out.Write(EncodeU32(miscMemFill))
	out.WriteByte(0x00) // memory index
}

// emitStore writes a store opcode followed by the immediates every store
// instruction carries: an alignment hint (log2 of bytes) and a byte
// offset, here always 0 since the address is already pushed onto the stack.
func emitStore(out *bytes.Buffer, op byte, align uint32) {
	out.WriteByte(op)
	out.Write(EncodeU32(align))
	out.Write(EncodeU32(0))
}

func emitI64Store(out *bytes.Buffer, _ uint32)   { emitStore(out, opI64Store, 3) }
func emitI32Store16(out *bytes.Buffer, _ uint32) { emitStore(out, opI32Store16, 1) }
func emitI32Store(out *bytes.Buffer, _ uint32)   { emitStore(out, opI32Store, 2) }
