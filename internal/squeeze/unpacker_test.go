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
	"errors"
	"testing"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

func TestParseUnpacker_Placeholder(t *testing.T) {
	blob, err := PlaceholderLoader{}.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	u, err := ParseUnpacker(blob)
	if err != nil {
		t.Fatalf("ParseUnpacker failed: %v", err)
	}
	if u.TypesCount != 1 {
		t.Fatalf("expected 1 type, got %d", u.TypesCount)
	}
	if u.FunctionCount != 1 {
		t.Fatalf("expected 1 function, got %d", u.FunctionCount)
	}
	if u.UnpackFnIdx != 0 {
		t.Fatalf("expected unpack entry at index 0, got %d", u.UnpackFnIdx)
	}
	if len(u.CodeBodies) != 1 {
		t.Fatalf("expected 1 code body, got %d", len(u.CodeBodies))
	}
}

func TestParseUnpacker_RejectsLocalMemory(t *testing.T) {
	module := buildTestModule(
		buildTypeSectionEmptyFuncs(1),
		buildFunctionSection([]uint32{0}),
		buildMemorySection(),
		buildCodeSection([][]byte{buildBodyNoop()}),
	)
	_, err := ParseUnpacker(module)
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for a local memory, got %v", err)
	}
}

func TestParseUnpacker_RejectsStartFunction(t *testing.T) {
	blob, _ := PlaceholderLoader{}.Load()
	sections, err := ParseSections(blob)
	if err != nil {
		t.Fatalf("ParseSections: %v", err)
	}
	sections = append(sections, Section{ID: SectionStart, Payload: EncodeU32(0)})
	_, err = ParseUnpacker(buildTestModule(sections...))
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for a start function, got %v", err)
	}
}

func TestParseUnpacker_RejectsCustomSections(t *testing.T) {
	blob, _ := PlaceholderLoader{}.Load()
	sections, err := ParseSections(blob)
	if err != nil {
		t.Fatalf("ParseSections: %v", err)
	}
	var namePayload bytes.Buffer
	namePayload.Write(EncodeU32(4))
	namePayload.WriteString("name")
	sections = append(sections, Section{ID: SectionCustom, Payload: namePayload.Bytes()})
	_, err = ParseUnpacker(buildTestModule(sections...))
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for a custom section, got %v", err)
	}
}

func TestParseUnpacker_RejectsWrongExportCounts(t *testing.T) {
	importedMemory := func() Section {
		var p bytes.Buffer
		p.Write(EncodeU32(1))
		p.Write(EncodeU32(3))
		p.WriteString("env")
		p.Write(EncodeU32(6))
		p.WriteString("memory")
		p.WriteByte(ImportKindMemory)
		p.WriteByte(0x00)
		p.Write(EncodeU32(1))
		return Section{ID: SectionImport, Payload: p.Bytes()}
	}
	exports := func(names ...string) Section {
		var p bytes.Buffer
		p.Write(EncodeU32(uint32(len(names))))
		for _, name := range names {
			p.Write(EncodeU32(uint32(len(name))))
			p.WriteString(name)
			p.WriteByte(ExportKindFunc)
			p.Write(EncodeU32(0))
		}
		return Section{ID: SectionExport, Payload: p.Bytes()}
	}

	zero := buildTestModule(
		buildTypeSectionEmptyFuncs(1),
		importedMemory(),
		buildFunctionSection([]uint32{0}),
		exports(),
		buildCodeSection([][]byte{buildBodyNoop()}),
	)
	if _, err := ParseUnpacker(zero); !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for zero exports, got %v", err)
	}

	two := buildTestModule(
		buildTypeSectionEmptyFuncs(1),
		importedMemory(),
		buildFunctionSection([]uint32{0}),
		exports("unpack", "extra"),
		buildCodeSection([][]byte{buildBodyNoop()}),
	)
	if _, err := ParseUnpacker(two); !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for two exports, got %v", err)
	}
}

func TestRebase(t *testing.T) {
	r := Rebase{TypeBase: 7, FuncBase: 11}
	if r.Type(0) != 7 || r.Type(3) != 10 {
		t.Fatal("type rebase must add the type base")
	}
	if r.Func(0) != 11 || r.Func(2) != 13 {
		t.Fatal("function rebase must add the function base")
	}
}

func TestBytesAndPathLoaders(t *testing.T) {
	blob := []byte{1, 2, 3}
	got, err := BytesLoader(blob).Load()
	if err != nil || !bytes.Equal(got, blob) {
		t.Fatalf("BytesLoader must return its bytes unchanged, got %v (err %v)", got, err)
	}

	if _, err := PathLoader("/nonexistent/unpacker.wasm").Load(); !errors.Is(err, wsqerrors.ErrIO) {
		t.Fatalf("expected IoError for a missing file, got %v", err)
	}
}
