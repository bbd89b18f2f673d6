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

// Package squeeze implements the module-rewriting engine: the two-pass
// scan/re-encode pipeline that compresses a WebAssembly module's active
// data segment and splices a decompressor into the module.
package squeeze

import (
	"bytes"
	"fmt"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

// Section ids, per the core WebAssembly binary format.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// Import kinds.
const (
	ImportKindFunc   byte = 0x00
	ImportKindTable  byte = 0x01
	ImportKindMemory byte = 0x02
	ImportKindGlobal byte = 0x03
	ImportKindTag    byte = 0x04
)

// ExportKindFunc identifies a function export entry.
const ExportKindFunc byte = 0x00

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}
var wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}

// Section is a single (id, payload) pair as it appears in the binary.
type Section struct {
	ID      byte
	Payload []byte
}

// ParseSections splits a module's bytes (past the 8-byte preamble) into
// its constituent sections, in file order. It does not interpret
// payloads beyond finding their boundaries.
func ParseSections(module []byte) ([]Section, error) {
	if len(module) < 8 || !bytes.Equal(module[:4], wasmMagic) || !bytes.Equal(module[4:8], wasmVersion) {
		return nil, wsqerrors.WrapParseMsg("invalid wasm header")
	}
	pos := 8
	var sections []Section
	for pos < len(module) {
		id := module[pos]
		pos++
		size, n, err := ReadU32(module, pos)
		if err != nil {
			return nil, wsqerrors.WrapParse("read section size", err)
		}
		pos += n
		if pos+int(size) > len(module) {
			return nil, wsqerrors.WrapParseMsg("section length out of bounds")
		}
		payload := make([]byte, int(size))
		copy(payload, module[pos:pos+int(size)])
		sections = append(sections, Section{ID: id, Payload: payload})
		pos += int(size)
	}
	return sections, nil
}

// WriteSection appends one encoded (id, size, payload) section to out.
func WriteSection(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	out.Write(EncodeU32(uint32(len(payload))))
	out.Write(payload)
}

// WriteHeader appends the WebAssembly magic number and version.
func WriteHeader(out *bytes.Buffer) {
	out.Write(wasmMagic)
	out.Write(wasmVersion)
}

// FindSection returns the first section with the given id.
func FindSection(sections []Section, id byte) ([]byte, bool) {
	for _, s := range sections {
		if s.ID == id {
			return s.Payload, true
		}
	}
	return nil, false
}

// ImportSummary describes the function- and memory-relevant facts of an
// Import section, independent of table/global/tag imports.
type ImportSummary struct {
	FuncCount  uint32
	HasMemory  bool
	MemoryKind bool // true if at least one memory import was seen
}

// ParseImportSummary walks an Import section counting function imports
// and detecting a memory import, grounded on the same byte-level walk
// the teacher uses for dead-code-elimination's import accounting.
func ParseImportSummary(payload []byte) (ImportSummary, error) {
	var sum ImportSummary
	if len(payload) == 0 {
		return sum, nil
	}
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return sum, err
	}
	pos += n
	for i := uint32(0); i < count; i++ {
		pos, err = skipName(payload, pos)
		if err != nil {
			return sum, err
		}
		pos, err = skipName(payload, pos)
		if err != nil {
			return sum, err
		}
		if pos >= len(payload) {
			return sum, fmt.Errorf("import section truncated")
		}
		kind := payload[pos]
		pos++
		switch kind {
		case ImportKindFunc:
			_, n, err := ReadU32(payload, pos)
			if err != nil {
				return sum, err
			}
			pos += n
			sum.FuncCount++
		case ImportKindTable:
			pos, err = skipTableType(payload, pos)
			if err != nil {
				return sum, err
			}
		case ImportKindMemory:
			pos, err = skipLimits(payload, pos)
			if err != nil {
				return sum, err
			}
			sum.HasMemory = true
			sum.MemoryKind = true
		case ImportKindGlobal:
			if pos+2 > len(payload) {
				return sum, fmt.Errorf("global import truncated")
			}
			pos += 2
		case ImportKindTag:
			if pos >= len(payload) {
				return sum, fmt.Errorf("tag import truncated")
			}
			pos++
			_, n, err := ReadU32(payload, pos)
			if err != nil {
				return sum, err
			}
			pos += n
		default:
			return sum, fmt.Errorf("unsupported import kind %d", kind)
		}
	}
	if pos != len(payload) {
		return sum, fmt.Errorf("import section has trailing bytes")
	}
	return sum, nil
}

func skipTableType(data []byte, pos int) (int, error) {
	if pos >= len(data) {
		return 0, fmt.Errorf("table type truncated")
	}
	pos++
	return skipLimits(data, pos)
}

func skipLimits(data []byte, pos int) (int, error) {
	flags, n, err := ReadU32(data, pos)
	if err != nil {
		return 0, err
	}
	pos += n
	_, n, err = ReadU32(data, pos)
	if err != nil {
		return 0, err
	}
	pos += n
	if flags&0x01 != 0 {
		_, n, err = ReadU32(data, pos)
		if err != nil {
			return 0, err
		}
		pos += n
	}
	return pos, nil
}

func skipName(data []byte, pos int) (int, error) {
	l, n, err := ReadU32(data, pos)
	if err != nil {
		return 0, err
	}
	pos += n
	if pos+int(l) > len(data) {
		return 0, fmt.Errorf("name out of bounds")
	}
	return pos + int(l), nil
}

// ParseFunctionSection decodes a Function section's vector of type indices.
func ParseFunctionSection(payload []byte) ([]uint32, error) {
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	out := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		v, n, err := ReadU32(payload, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		out = append(out, v)
	}
	if pos != len(payload) {
		return nil, fmt.Errorf("function section has trailing bytes")
	}
	return out, nil
}

// ParseCodeSection decodes a Code section into its raw function bodies.
func ParseCodeSection(payload []byte) ([][]byte, error) {
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		sz, n, err := ReadU32(payload, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if pos+int(sz) > len(payload) {
			return nil, fmt.Errorf("code body %d out of bounds", i)
		}
		body := make([]byte, int(sz))
		copy(body, payload[pos:pos+int(sz)])
		out = append(out, body)
		pos += int(sz)
	}
	if pos != len(payload) {
		return nil, fmt.Errorf("code section has trailing bytes")
	}
	return out, nil
}

// splitLocalsAndExpr separates a function body's local-declarations
// prefix from its instruction stream.
func splitLocalsAndExpr(body []byte) (prefix, expr []byte, err error) {
	pos := 0
	declCount, n, err := ReadU32(body, pos)
	if err != nil {
		return nil, nil, err
	}
	pos += n
	for i := uint32(0); i < declCount; i++ {
		_, n, err := ReadU32(body, pos)
		if err != nil {
			return nil, nil, err
		}
		pos += n
		if pos >= len(body) {
			return nil, nil, fmt.Errorf("local decl truncated")
		}
		pos++
	}
	if pos > len(body) {
		return nil, nil, fmt.Errorf("invalid body local decls")
	}
	return body[:pos], body[pos:], nil
}
