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
	"os"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

// UnpackerComponents holds the parsed contents of the prebuilt
// decompressor module: its type entries, its defined function bodies,
// and the local index of its sole export.
type UnpackerComponents struct {
	TypesCount    uint32
	TypesRaw      []byte
	FuncTypeIdxs  []uint32
	CodeBodies    [][]byte
	FunctionCount uint32
	UnpackFnIdx   uint32
}

// Rebase renumbers a decompressor-local type or function index into the
// combined output module's index space. It is a stateless transform
// parameterized by two bases captured from the first pass.
type Rebase struct {
	TypeBase uint32
	FuncBase uint32
}

func (r Rebase) Type(t uint32) uint32 { return t + r.TypeBase }
func (r Rebase) Func(f uint32) uint32 { return f + r.FuncBase }

// Loader supplies the prebuilt decompressor module's bytes. Building the
// real decompressor blob is out of scope for this package (an external,
// wasi-sdk based build step); Loader lets callers substitute a real
// compiled artifact without touching the Adapter.
type Loader interface {
	Load() ([]byte, error)
}

// PathLoader reads the decompressor module from a file.
type PathLoader string

func (p PathLoader) Load() ([]byte, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return nil, wsqerrors.WrapIO("read unpacker module", err)
	}
	return data, nil
}

// BytesLoader returns an in-memory decompressor module unchanged.
type BytesLoader []byte

func (b BytesLoader) Load() ([]byte, error) { return []byte(b), nil }

// PlaceholderLoader returns a deterministic, structurally valid stand-in
// decompressor module. It satisfies every invariant ParseUnpacker checks
// (imported memory, one export, no start, no custom sections) but does
// not implement real decompression: a decompressor matching the packer
// this tool compresses with is an out-of-scope external collaborator.
type PlaceholderLoader struct{}

func (PlaceholderLoader) Load() ([]byte, error) { return buildPlaceholderUnpacker(), nil }

// ParseUnpacker parses a decompressor module once and validates the
// invariants the Adapter relies on when grafting it into a host module.
func ParseUnpacker(data []byte) (*UnpackerComponents, error) {
	sections, err := ParseSections(data)
	if err != nil {
		return nil, wsqerrors.WrapParse("parse unpacker module", err)
	}

	if _, hasCustom := FindSection(sections, SectionCustom); hasCustom {
		return nil, wsqerrors.WrapUnsupported("unpacker module must not carry custom sections")
	}
	if _, hasStart := FindSection(sections, SectionStart); hasStart {
		return nil, wsqerrors.WrapUnsupported("unpacker module must not declare a start function")
	}
	if _, hasLocalMemory := FindSection(sections, SectionMemory); hasLocalMemory {
		return nil, wsqerrors.WrapUnsupported("unpacker module must import its memory, not define one")
	}

	importPayload, _ := FindSection(sections, SectionImport)
	importSummary, err := ParseImportSummary(importPayload)
	if err != nil {
		return nil, wsqerrors.WrapParse("unpacker import section", err)
	}
	if !importSummary.HasMemory {
		return nil, wsqerrors.WrapUnsupported("unpacker module must import its memory")
	}
	if importSummary.FuncCount != 0 {
		return nil, wsqerrors.WrapUnsupported("unpacker module must not import functions")
	}

	typePayload, hasType := FindSection(sections, SectionType)
	if !hasType {
		return nil, wsqerrors.WrapUnsupported("unpacker module has no type section")
	}
	typeCount, n, err := ReadU32(typePayload, 0)
	if err != nil {
		return nil, wsqerrors.WrapParse("unpacker type section", err)
	}

	functionPayload, hasFunction := FindSection(sections, SectionFunction)
	if !hasFunction {
		return nil, wsqerrors.WrapUnsupported("unpacker module has no function section")
	}
	funcTypeIdxs, err := ParseFunctionSection(functionPayload)
	if err != nil {
		return nil, wsqerrors.WrapParse("unpacker function section", err)
	}

	codePayload, hasCode := FindSection(sections, SectionCode)
	if !hasCode {
		return nil, wsqerrors.WrapUnsupported("unpacker module has no code section")
	}
	codeBodies, err := ParseCodeSection(codePayload)
	if err != nil {
		return nil, wsqerrors.WrapParse("unpacker code section", err)
	}
	if len(codeBodies) != len(funcTypeIdxs) {
		return nil, wsqerrors.WrapUnsupported("unpacker function/code section length mismatch")
	}

	exportPayload, hasExport := FindSection(sections, SectionExport)
	if !hasExport {
		return nil, wsqerrors.WrapUnsupported("unpacker module has no export section")
	}
	unpackFnIdx, err := soleFuncExport(exportPayload)
	if err != nil {
		return nil, err
	}
	if unpackFnIdx >= uint32(len(codeBodies)) {
		return nil, wsqerrors.WrapUnsupported("unpacker export references a nonexistent function")
	}

	return &UnpackerComponents{
		TypesCount:    typeCount,
		TypesRaw:      typePayload[n:],
		FuncTypeIdxs:  funcTypeIdxs,
		CodeBodies:    codeBodies,
		FunctionCount: uint32(len(codeBodies)),
		UnpackFnIdx:   unpackFnIdx,
	}, nil
}

func soleFuncExport(payload []byte) (uint32, error) {
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return 0, wsqerrors.WrapParse("unpacker export section", err)
	}
	pos += n
	var found *uint32
	for i := uint32(0); i < count; i++ {
		_, newPos, err := readName(payload, pos)
		if err != nil {
			return 0, wsqerrors.WrapParse("unpacker export section", err)
		}
		pos = newPos
		if pos+1 > len(payload) {
			return 0, wsqerrors.WrapParseMsg("unpacker export entry truncated")
		}
		kind := payload[pos]
		pos++
		idx, n, err := ReadU32(payload, pos)
		if err != nil {
			return 0, wsqerrors.WrapParse("unpacker export section", err)
		}
		pos += n
		if kind != ExportKindFunc {
			return 0, wsqerrors.WrapUnsupported("unpacker module must export only its unpack function")
		}
		if found != nil {
			return 0, wsqerrors.WrapUnsupported("unpacker module must export exactly one function")
		}
		v := idx
		found = &v
	}
	if found == nil {
		return 0, wsqerrors.WrapUnsupported("unpacker module must export exactly one function")
	}
	return *found, nil
}

// buildPlaceholderUnpacker constructs a minimal decompressor module with
// one type `(i32, i32, i32) -> i32`, one import (its memory), one
// defined function exported as "upkr_unpack", no start function, and no
// custom sections.
func buildPlaceholderUnpacker() []byte {
	var out bytes.Buffer
	WriteHeader(&out)

	// type 0: (i32, i32, i32) -> i32
	var typePayload bytes.Buffer
	typePayload.Write(EncodeU32(1))
	typePayload.WriteByte(0x60)
	typePayload.Write(EncodeU32(3))
	typePayload.Write([]byte{0x7f, 0x7f, 0x7f})
	typePayload.Write(EncodeU32(1))
	typePayload.WriteByte(0x7f)
	WriteSection(&out, SectionType, typePayload.Bytes())

	// import 0: env.memory, 1 page minimum.
	var importPayload bytes.Buffer
	importPayload.Write(EncodeU32(1))
	writeName(&importPayload, "env")
	writeName(&importPayload, "memory")
	importPayload.WriteByte(ImportKindMemory)
	importPayload.WriteByte(0x00) // limits: no max
	importPayload.Write(EncodeU32(1))
	WriteSection(&out, SectionImport, importPayload.Bytes())

	// function 0: type 0
	WriteSection(&out, SectionFunction, encodeU32Vector([]uint32{0}))

	// export 0: "upkr_unpack" -> func 0
	var exportPayload bytes.Buffer
	exportPayload.Write(EncodeU32(1))
	writeName(&exportPayload, "upkr_unpack")
	exportPayload.WriteByte(ExportKindFunc)
	exportPayload.Write(EncodeU32(0))
	WriteSection(&out, SectionExport, exportPayload.Bytes())

	// code 0: no locals; i32.const 0; end
	body := []byte{0x00, 0x41, 0x00, 0x0b}
	WriteSection(&out, SectionCode, encodeCodeSectionPayload([][]byte{body}))

	return out.Bytes()
}

func writeName(buf *bytes.Buffer, name string) {
	buf.Write(EncodeU32(uint32(len(name))))
	buf.WriteString(name)
}

func encodeU32Vector(vals []uint32) []byte {
	var b bytes.Buffer
	b.Write(EncodeU32(uint32(len(vals))))
	for _, v := range vals {
		b.Write(EncodeU32(v))
	}
	return b.Bytes()
}

func encodeCodeSectionPayload(bodies [][]byte) []byte {
	var b bytes.Buffer
	b.Write(EncodeU32(uint32(len(bodies))))
	for _, body := range bodies {
		b.Write(EncodeU32(uint32(len(body))))
		b.Write(body)
	}
	return b.Bytes()
}
