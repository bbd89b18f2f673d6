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
	"fmt"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

// prologueFuncType is the () -> () type appended after the decompressor's
// types in every rewritten module; the synthesized prologue function uses
// it when the host module carries no defined start function of its own.
var prologueFuncType = []byte{0x60, 0x00, 0x00}

// Reencode grafts the decompressor's types, functions, and code into the
// host module, replaces its data section with the single packed active
// segment, and wires a prologue — either prepended to the existing start
// function's body or installed as a freshly synthesized one — so the
// original memory image is rebuilt before any other code runs.
//
// sections is the full section list parsed from the input buffer after
// MitigateDataCount has rewritten it; info and decision are the first
// pass's RelevantInfo and Planner verdict, and decision.Active must be
// true.
func Reencode(sections []Section, info RelevantInfo, decision Decision, unpacker *UnpackerComponents, profile *Registers) ([]byte, error) {
	if !decision.Active {
		return nil, wsqerrors.WrapUnsupported("reencode called with an inactive compression decision")
	}

	rebase := Rebase{TypeBase: info.OldTypeCount, FuncBase: info.ImportFunctionCount + info.OldFunctionCount}
	hasStart := info.StartFnIdx != nil
	// A start function that names an imported function has no body we
	// can splice into; it is handled like "no start" but with a trailing
	// call to the original import appended to the synthesized function.
	hasDefinedStart := hasStart && *info.StartFnIdx >= info.ImportFunctionCount
	needsSynthesizedStart := !hasDefinedStart

	newTypeCount := info.OldTypeCount + unpacker.TypesCount + 1
	newFuncCount := info.OldFunctionCount + unpacker.FunctionCount
	if needsSynthesizedStart {
		newFuncCount++
	}
	prologueFuncIdx := info.ImportFunctionCount + info.OldFunctionCount + unpacker.FunctionCount

	oldTypeEntries, err := sectionEntriesBody(sections, SectionType)
	if err != nil {
		return nil, wsqerrors.WrapParse("reencode type section", err)
	}

	var typeOut bytes.Buffer
	typeOut.Write(EncodeU32(newTypeCount))
	typeOut.Write(oldTypeEntries)
	typeOut.Write(unpacker.TypesRaw)
	typeOut.Write(prologueFuncType)

	oldFuncEntries, err := sectionEntriesBody(sections, SectionFunction)
	if err != nil {
		return nil, wsqerrors.WrapParse("reencode function section", err)
	}

	var funcOut bytes.Buffer
	funcOut.Write(EncodeU32(newFuncCount))
	funcOut.Write(oldFuncEntries)
	for _, t := range unpacker.FuncTypeIdxs {
		funcOut.Write(EncodeU32(rebase.Type(t)))
	}
	if needsSynthesizedStart {
		funcOut.Write(EncodeU32(newTypeCount - 1))
	}

	var oldCodeBodies [][]byte
	if oldCodePayload, ok := FindSection(sections, SectionCode); ok {
		var err error
		oldCodeBodies, err = ParseCodeSection(oldCodePayload)
		if err != nil {
			return nil, wsqerrors.WrapParse("reencode code section", err)
		}
	}

	unpackFnIdxCombined := rebase.Func(unpacker.UnpackFnIdx)
	packedOffset := uint32(CompressedDataOffset)
	// Reconstruct at the top of the working page; the planner's
	// feasibility check guarantees this clears the context and the
	// packed bytes during decompression.
	destOffset := uint32(MemSize) - uint32(len(info.Data.Data))

	prologueBytes := BuildPrologue(PrologueParams{
		UnpackFnIdxCombined: unpackFnIdxCombined,
		DestOffset:          destOffset,
		CompressedDataOff:   packedOffset,
		OriginalDataOffset:  info.Data.Offset,
		OriginalDataLen:     uint32(len(info.Data.Data)),
		Registers:           profile,
	})

	var codeOut bytes.Buffer
	newBodyCount := len(oldCodeBodies) + len(unpacker.CodeBodies)
	if needsSynthesizedStart {
		newBodyCount++
	}
	codeOut.Write(EncodeU32(uint32(newBodyCount)))

	for i, body := range oldCodeBodies {
		if hasDefinedStart && uint32(i) == *info.StartFnIdx-info.ImportFunctionCount {
			body, err = prependPrologue(body, prologueBytes)
			if err != nil {
				return nil, wsqerrors.WrapEncode("splice prologue into start function", err)
			}
		}
		writeCodeBody(&codeOut, body)
	}
	for _, body := range unpacker.CodeBodies {
		renumbered, err := renumberCodeBody(body, rebase)
		if err != nil {
			return nil, wsqerrors.WrapEncode("renumber decompressor code body", err)
		}
		writeCodeBody(&codeOut, renumbered)
	}
	if needsSynthesizedStart {
		var body bytes.Buffer
		body.Write(EncodeU32(0)) // no locals
		body.Write(prologueBytes)
		if hasStart {
			// Original start named an imported function; preserve its
			// effect by calling it after reconstruction completes.
			body.WriteByte(0x10) // call
			body.Write(EncodeU32(*info.StartFnIdx))
		}
		body.WriteByte(0x0b)
		writeCodeBody(&codeOut, body.Bytes())
	}

	var dataOut bytes.Buffer
	dataOut.Write(EncodeU32(1))
	dataOut.Write(EncodeU32(0)) // flag 0: active, memory 0
	dataOut.WriteByte(0x41)     // i32.const
	dataOut.Write(EncodeSLEB32(int32(CompressedDataOffset)))
	dataOut.WriteByte(0x0b) // end
	dataOut.Write(EncodeU32(uint32(len(decision.Packed))))
	dataOut.Write(decision.Packed)

	newStartFnIdx := prologueFuncIdx
	if hasDefinedStart {
		newStartFnIdx = *info.StartFnIdx
	}

	var out bytes.Buffer
	WriteHeader(&out)
	WriteSection(&out, SectionType, typeOut.Bytes())
	if payload, ok := FindSection(sections, SectionImport); ok {
		WriteSection(&out, SectionImport, payload)
	}
	WriteSection(&out, SectionFunction, funcOut.Bytes())
	if payload, ok := FindSection(sections, SectionTable); ok {
		WriteSection(&out, SectionTable, payload)
	}
	if payload, ok := FindSection(sections, SectionMemory); ok {
		WriteSection(&out, SectionMemory, payload)
	}
	if payload, ok := FindSection(sections, 13); ok { // tag section (exception handling)
		WriteSection(&out, 13, payload)
	}
	if payload, ok := FindSection(sections, SectionGlobal); ok {
		WriteSection(&out, SectionGlobal, payload)
	}
	if payload, ok := FindSection(sections, SectionExport); ok {
		WriteSection(&out, SectionExport, payload)
	}
	WriteSection(&out, SectionStart, EncodeU32(newStartFnIdx))
	if payload, ok := FindSection(sections, SectionElement); ok {
		WriteSection(&out, SectionElement, payload)
	}
	if payload, ok := FindSection(sections, SectionDataCount); ok {
		// Already mitigated to read 1; copied verbatim so the output
		// keeps the input's LEB128 width.
		WriteSection(&out, SectionDataCount, payload)
	}
	WriteSection(&out, SectionCode, codeOut.Bytes())
	WriteSection(&out, SectionData, dataOut.Bytes())

	return out.Bytes(), nil
}

func writeCodeBody(out *bytes.Buffer, body []byte) {
	out.Write(EncodeU32(uint32(len(body))))
	out.Write(body)
}

// sectionEntriesBody returns a section's payload with its leading vector
// count stripped, or an empty slice if the section is absent (an empty
// Type/Function vector, which the binary format allows to be omitted
// entirely rather than written with a zero count).
func sectionEntriesBody(sections []Section, id byte) ([]byte, error) {
	payload, ok := FindSection(sections, id)
	if !ok {
		return nil, nil
	}
	_, n, err := ReadU32(payload, 0)
	if err != nil {
		return nil, err
	}
	return payload[n:], nil
}

// prependPrologue splices prologueBytes immediately after a function
// body's local-declarations prefix, ahead of its original instructions.
func prependPrologue(body, prologueBytes []byte) ([]byte, error) {
	prefix, expr, err := splitLocalsAndExpr(body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(prologueBytes)+len(expr))
	out = append(out, prefix...)
	out = append(out, prologueBytes...)
	out = append(out, expr...)
	return out, nil
}

// renumberCodeBody rebases call/call_indirect/return_call/
// return_call_indirect/ref.func immediates within a decompressor-local
// function body into the combined output module's index space, leaving
// the local-declarations prefix untouched.
func renumberCodeBody(body []byte, rebase Rebase) ([]byte, error) {
	prefix, expr, err := splitLocalsAndExpr(body)
	if err != nil {
		return nil, err
	}
	renumbered, err := renumberExpr(expr, rebase)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(renumbered))
	out = append(out, prefix...)
	out = append(out, renumbered...)
	return out, nil
}

// renumberExpr walks a WebAssembly instruction stream byte by byte,
// copying every instruction through unchanged except call, call_indirect,
// return_call, return_call_indirect, and ref.func, whose function- or
// type-index immediates are rewritten through rebase. Grounded on the
// teacher's wasmopt rewriteExpr instruction-stream walker.
func renumberExpr(expr []byte, rebase Rebase) ([]byte, error) {
	var out bytes.Buffer
	pos := 0
	for pos < len(expr) {
		op := expr[pos]
		out.WriteByte(op)
		pos++

		switch {
		case op == 0x00 || op == 0x01 || op == 0x05 || op == 0x0b || op == 0x0f ||
			op == 0x1a || op == 0x1b || op == 0xd1:
			// no immediate

		case op == 0x02 || op == 0x03 || op == 0x04: // block, loop, if
			_, n, err := ReadSLEB33(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(expr[pos : pos+n])
			pos += n

		case op == 0x0c || op == 0x0d: // br, br_if
			idx, n, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(EncodeU32(idx))
			pos += n

		case op == 0x0e: // br_table
			count, n, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(EncodeU32(count))
			pos += n
			for i := uint32(0); i <= count; i++ {
				idx, n, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx))
				pos += n
			}

		case op == 0x10 || op == 0x12: // call, return_call
			idx, n, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(EncodeU32(rebase.Func(idx)))
			pos += n

		case op == 0x11 || op == 0x13: // call_indirect, return_call_indirect
			typeIdx, n1, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			pos += n1
			tableIdx, n2, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			pos += n2
			out.Write(EncodeU32(rebase.Type(typeIdx)))
			out.Write(EncodeU32(tableIdx))

		case op >= 0x20 && op <= 0x26: // local/global get/set/tee, table.get/set
			idx, n, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(EncodeU32(idx))
			pos += n

		case op >= 0x28 && op <= 0x3e: // loads/stores: align, offset
			_, n1, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			_, n2, err := ReadU32(expr, pos+n1)
			if err != nil {
				return nil, err
			}
			out.Write(expr[pos : pos+n1+n2])
			pos += n1 + n2

		case op == 0x3f || op == 0x40: // memory.size, memory.grow
			if pos >= len(expr) {
				return nil, fmt.Errorf("truncated memory.size/grow")
			}
			out.WriteByte(expr[pos])
			pos++

		case op == 0x41: // i32.const
			_, n, err := ReadSLEB32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(expr[pos : pos+n])
			pos += n

		case op == 0x42: // i64.const
			_, n, err := ReadSLEB64(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(expr[pos : pos+n])
			pos += n

		case op == 0x43: // f32.const
			if pos+4 > len(expr) {
				return nil, fmt.Errorf("truncated f32.const")
			}
			out.Write(expr[pos : pos+4])
			pos += 4

		case op == 0x44: // f64.const
			if pos+8 > len(expr) {
				return nil, fmt.Errorf("truncated f64.const")
			}
			out.Write(expr[pos : pos+8])
			pos += 8

		case op >= 0x45 && op <= 0xc4:
			// comparison/numeric opcodes: no immediate

		case op == 0xd0: // ref.null
			if pos >= len(expr) {
				return nil, fmt.Errorf("truncated ref.null")
			}
			out.WriteByte(expr[pos])
			pos++

		case op == 0xd2: // ref.func
			idx, n, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(EncodeU32(rebase.Func(idx)))
			pos += n

		case op == 0xfc: // misc prefix: bulk memory / table / saturating conversions
			sub, n, err := ReadU32(expr, pos)
			if err != nil {
				return nil, err
			}
			out.Write(EncodeU32(sub))
			pos += n
			switch sub {
			case 0, 1, 2, 3, 4, 5, 6, 7:
				// trunc_sat ops: no immediate
			case 8: // memory.init
				idx, n, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx))
				pos += n
				if pos >= len(expr) {
					return nil, fmt.Errorf("truncated memory.init")
				}
				out.WriteByte(expr[pos])
				pos++
			case 9: // data.drop
				idx, n, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx))
				pos += n
			case 10: // memory.copy
				if pos+2 > len(expr) {
					return nil, fmt.Errorf("truncated memory.copy")
				}
				out.Write(expr[pos : pos+2])
				pos += 2
			case 11: // memory.fill
				if pos >= len(expr) {
					return nil, fmt.Errorf("truncated memory.fill")
				}
				out.WriteByte(expr[pos])
				pos++
			case 12: // table.init
				idx1, n1, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				idx2, n2, err := ReadU32(expr, pos+n1)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx1))
				out.Write(EncodeU32(idx2))
				pos += n1 + n2
			case 13: // elem.drop
				idx, n, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx))
				pos += n
			case 14: // table.copy
				idx1, n1, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				idx2, n2, err := ReadU32(expr, pos+n1)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx1))
				out.Write(EncodeU32(idx2))
				pos += n1 + n2
			case 15, 16, 17: // table.grow, table.size, table.fill
				idx, n, err := ReadU32(expr, pos)
				if err != nil {
					return nil, err
				}
				out.Write(EncodeU32(idx))
				pos += n
			default:
				return nil, fmt.Errorf("unsupported misc opcode 0xfc %d", sub)
			}

		case op == 0xfd:
			return nil, fmt.Errorf("SIMD instructions are not supported")
		case op == 0xfe:
			return nil, fmt.Errorf("threads/atomics instructions are not supported")

		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x", op)
		}
	}
	return out.Bytes(), nil
}
