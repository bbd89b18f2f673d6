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

func scanIntoBuilder(t *testing.T, module []byte) (*builder, []byte) {
	t.Helper()
	b := newBuilder()
	raw, err := Scan(bytes.NewReader(module), consumer{b})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return b, raw
}

func TestBuilder_NoData(t *testing.T) {
	module := buildTestModule(buildTypeSectionEmptyFuncs(1))
	b, _ := scanIntoBuilder(t, module)
	_, err := b.build()
	if !errors.Is(err, wsqerrors.ErrNoData) {
		t.Fatalf("expected NoData, got %v", err)
	}
}

func TestBuilder_MergesGappedSegments(t *testing.T) {
	module := buildTestModule(
		buildTypeSectionEmptyFuncs(1),
		buildDataSection(
			seg{offset: 1024, data: bytes.Repeat([]byte{0x01}, 100)},
			seg{offset: 1300, data: bytes.Repeat([]byte{0x02}, 100)},
		),
	)
	b, _ := scanIntoBuilder(t, module)
	info, err := b.build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if info.Data.Offset != 1024 {
		t.Fatalf("expected merged offset 1024, got %d", info.Data.Offset)
	}
	if len(info.Data.Data) != 376 {
		t.Fatalf("expected merged image of 376 bytes, got %d", len(info.Data.Data))
	}
	for i := 0; i < 100; i++ {
		if info.Data.Data[i] != 0x01 {
			t.Fatalf("byte %d: expected first segment content", i)
		}
	}
	for i := 100; i < 276; i++ {
		if info.Data.Data[i] != 0x00 {
			t.Fatalf("byte %d: gap must be zero-filled", i)
		}
	}
	for i := 276; i < 376; i++ {
		if info.Data.Data[i] != 0x02 {
			t.Fatalf("byte %d: expected second segment content", i)
		}
	}
}

func TestBuilder_SegmentsSortedBeforeMerge(t *testing.T) {
	module := buildTestModule(
		buildDataSection(
			seg{offset: 1300, data: bytes.Repeat([]byte{0x02}, 100)},
			seg{offset: 1024, data: bytes.Repeat([]byte{0x01}, 100)},
		),
	)
	b, _ := scanIntoBuilder(t, module)
	info, err := b.build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if info.Data.Offset != 1024 || len(info.Data.Data) != 376 {
		t.Fatalf("out-of-order segments must merge identically, got offset %d len %d",
			info.Data.Offset, len(info.Data.Data))
	}
}

func TestBuilder_RejectsOverlappingSegments(t *testing.T) {
	module := buildTestModule(
		buildDataSection(
			seg{offset: 1024, data: make([]byte, 100)},
			seg{offset: 1100, data: make([]byte, 100)},
		),
	)
	b, _ := scanIntoBuilder(t, module)
	_, err := b.build()
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for overlapping segments, got %v", err)
	}
}

func TestBuilder_RejectsPassiveSegments(t *testing.T) {
	var p bytes.Buffer
	p.Write(EncodeU32(1))
	p.Write(EncodeU32(1)) // passive
	p.Write(EncodeU32(4))
	p.Write([]byte{1, 2, 3, 4})
	module := buildTestModule(Section{ID: SectionData, Payload: p.Bytes()})

	b := newBuilder()
	_, err := Scan(bytes.NewReader(module), consumer{b})
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for passive segment, got %v", err)
	}
}

func TestBuilder_RejectsNonZeroMemoryIndex(t *testing.T) {
	var p bytes.Buffer
	p.Write(EncodeU32(1))
	p.Write(EncodeU32(2)) // explicit memory index
	p.Write(EncodeU32(1)) // memory 1
	p.WriteByte(0x41)
	p.Write(EncodeSLEB32(0))
	p.WriteByte(0x0b)
	p.Write(EncodeU32(1))
	p.WriteByte(0xff)
	module := buildTestModule(Section{ID: SectionData, Payload: p.Bytes()})

	b := newBuilder()
	_, err := Scan(bytes.NewReader(module), consumer{b})
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for memory index 1, got %v", err)
	}
}

func TestBuilder_RejectsNonConstOffset(t *testing.T) {
	var p bytes.Buffer
	p.Write(EncodeU32(1))
	p.Write(EncodeU32(0))
	p.WriteByte(0x23) // global.get instead of i32.const
	p.Write(EncodeU32(0))
	p.WriteByte(0x0b)
	p.Write(EncodeU32(1))
	p.WriteByte(0xff)
	module := buildTestModule(Section{ID: SectionData, Payload: p.Bytes()})

	b := newBuilder()
	_, err := Scan(bytes.NewReader(module), consumer{b})
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for non-const offset, got %v", err)
	}
}

func TestBuilder_RejectsMultipleMutableGlobals(t *testing.T) {
	var p bytes.Buffer
	p.Write(EncodeU32(2))
	for i := 0; i < 2; i++ {
		p.WriteByte(0x7f) // i32
		p.WriteByte(0x01) // mutable
		p.WriteByte(0x41) // i32.const
		p.Write(EncodeSLEB32(0x1000))
		p.WriteByte(0x0b)
	}
	module := buildTestModule(Section{ID: SectionGlobal, Payload: p.Bytes()})

	b := newBuilder()
	_, err := Scan(bytes.NewReader(module), consumer{b})
	if !errors.Is(err, wsqerrors.ErrUnsupported) {
		t.Fatalf("expected Unsupported for two mutable globals, got %v", err)
	}
}

func TestBuilder_RecordsStackPointerGlobal(t *testing.T) {
	var p bytes.Buffer
	p.Write(EncodeU32(1))
	p.WriteByte(0x7f)
	p.WriteByte(0x01)
	p.WriteByte(0x41)
	p.Write(EncodeSLEB32(0x8000))
	p.WriteByte(0x0b)
	module := buildTestModule(
		Section{ID: SectionGlobal, Payload: p.Bytes()},
		buildDataSection(seg{offset: 0, data: []byte{1}}),
	)

	b, _ := scanIntoBuilder(t, module)
	info, err := b.build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if info.MutableGlobalIdx == nil || *info.MutableGlobalIdx != 0 {
		t.Fatal("expected mutable global index 0 recorded")
	}
	if info.MutableGlobalInitVal == nil || *info.MutableGlobalInitVal != 0x8000 {
		t.Fatal("expected stack-top initial value recorded")
	}
}

func TestBuilder_RecordsDataCountRangeOnlyWhenNotOne(t *testing.T) {
	withThree := buildTestModule(
		Section{ID: SectionDataCount, Payload: []byte{0x03}},
		buildDataSection(seg{offset: 0, data: []byte{1}}),
	)
	b, _ := scanIntoBuilder(t, withThree)
	info, err := b.build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if info.DataCountRange == nil {
		t.Fatal("expected a data count range for count != 1")
	}

	withOne := buildTestModule(
		Section{ID: SectionDataCount, Payload: []byte{0x01}},
		buildDataSection(seg{offset: 0, data: []byte{1}}),
	)
	b, _ = scanIntoBuilder(t, withOne)
	info, err = b.build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if info.DataCountRange != nil {
		t.Fatal("count of 1 needs no mitigation")
	}
}

func TestMitigateDataCount(t *testing.T) {
	raw := []byte{0xde, 0x83, 0x80, 0x00, 0xad}
	MitigateDataCount(raw, &ByteRange{Start: 1, End: 4})
	if !bytes.Equal(raw, []byte{0xde, 0x81, 0x80, 0x00, 0xad}) {
		t.Fatalf("unexpected multi-byte mitigation: % x", raw)
	}
	count, n, err := ReadU32(raw, 1)
	if err != nil || count != 1 || n != 3 {
		t.Fatalf("mitigated field must decode as 1 in 3 bytes, got %d in %d (err %v)", count, n, err)
	}

	single := []byte{0x07}
	MitigateDataCount(single, &ByteRange{Start: 0, End: 1})
	if single[0] != 0x01 {
		t.Fatalf("unexpected single-byte mitigation: % x", single)
	}

	// nil range is a no-op
	MitigateDataCount(raw, nil)
}

func TestBuilder_LegacyStartExportProbe(t *testing.T) {
	var p bytes.Buffer
	p.Write(EncodeU32(1))
	p.Write(EncodeU32(5))
	p.WriteString("start")
	p.WriteByte(ExportKindFunc)
	p.Write(EncodeU32(7))
	module := buildTestModule(
		Section{ID: SectionExport, Payload: p.Bytes()},
		buildDataSection(seg{offset: 0, data: []byte{1}}),
	)

	b, _ := scanIntoBuilder(t, module)
	info, err := b.build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if info.LegacyStartExport == nil || *info.LegacyStartExport != 7 {
		t.Fatal("expected the legacy start export probe to record function 7")
	}
	if info.StartFnIdx != nil {
		t.Fatal("the export probe must never populate the start function")
	}
}
