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
	"sort"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
	"github.com/nilcompute/wsqueeze/internal/logger"
)

// ByteRange is a half-open [Start, End) span into a module's byte buffer.
type ByteRange struct {
	Start, End int
}

// MergedData is the single contiguous linear-memory image produced by
// merging all active data segments on memory 0.
type MergedData struct {
	Offset int32
	Data   []byte
}

// RelevantInfo is the fact record the Scanner/Builder extracts from a
// first pass over a module, consumed by the Planner and Re-Encoder.
type RelevantInfo struct {
	OldTypeCount         uint32
	OldFunctionCount     uint32
	ImportFunctionCount  uint32
	Data                 MergedData
	StartFnIdx           *uint32
	DataCountRange       *ByteRange
	LegacyStartExport    *uint32
	MutableGlobalIdx     *uint32
	MutableGlobalInitVal *int32
}

type rawSegment struct {
	offset int32
	data   []byte
}

// builder accumulates RelevantInfo facts as sections are handed to it,
// one call per section kind, in file order.
type builder struct {
	sawType, sawImport, sawFunction, sawData, sawStart, sawDataCount bool

	typeCount  uint32
	funcCount  uint32
	importFunc uint32

	segments []rawSegment

	startIdx       *uint32
	dataCountRange *ByteRange
	legacyStart    *uint32

	mutableGlobalSeen bool
	mutableGlobalIdx  *uint32
	mutableGlobalInit *int32
}

func newBuilder() *builder {
	return &builder{}
}

// consume dispatches one section to the appropriate accumulator. offset
// is the byte position of sec.Payload's first byte within the buffer the
// section was parsed from, used to compute DataCountRange.
func (b *builder) consume(sec Section, offset int) error {
	switch sec.ID {
	case SectionType:
		return b.onType(sec.Payload)
	case SectionImport:
		return b.onImport(sec.Payload)
	case SectionFunction:
		return b.onFunction(sec.Payload)
	case SectionGlobal:
		return b.onGlobal(sec.Payload)
	case SectionExport:
		return b.onExport(sec.Payload)
	case SectionStart:
		return b.onStart(sec.Payload)
	case SectionData:
		return b.onData(sec.Payload)
	case SectionDataCount:
		return b.onDataCount(sec.Payload, offset)
	default:
		return nil
	}
}

func (b *builder) onType(payload []byte) error {
	if b.sawType {
		return wsqerrors.WrapUnsupported("multiple type sections")
	}
	b.sawType = true
	count, _, err := ReadU32(payload, 0)
	if err != nil {
		return wsqerrors.WrapParse("type section", err)
	}
	b.typeCount = count
	return nil
}

func (b *builder) onImport(payload []byte) error {
	if b.sawImport {
		return wsqerrors.WrapUnsupported("multiple import sections")
	}
	if b.sawFunction {
		return wsqerrors.WrapUnsupported("import section after function section")
	}
	b.sawImport = true
	sum, err := ParseImportSummary(payload)
	if err != nil {
		return wsqerrors.WrapParse("import section", err)
	}
	b.importFunc = sum.FuncCount
	return nil
}

func (b *builder) onFunction(payload []byte) error {
	if b.sawFunction {
		return wsqerrors.WrapUnsupported("multiple function sections")
	}
	b.sawFunction = true
	idxs, err := ParseFunctionSection(payload)
	if err != nil {
		return wsqerrors.WrapParse("function section", err)
	}
	b.funcCount = uint32(len(idxs))
	return nil
}

// onGlobal is an integrity check that the module conforms to the typical
// compiler ABI this tool targets: at most one mutable i32 global (the
// stack pointer). It does not influence rewriting decisions.
func (b *builder) onGlobal(payload []byte) error {
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return wsqerrors.WrapParse("global section", err)
	}
	pos += n
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(payload) {
			return wsqerrors.WrapParseMsg("global section truncated")
		}
		valType := payload[pos]
		mutable := payload[pos+1] == 0x01
		pos += 2
		exprStart := pos
		for pos < len(payload) && payload[pos] != 0x0b {
			pos++
		}
		if pos >= len(payload) {
			return wsqerrors.WrapParseMsg("global init expr unterminated")
		}
		expr := payload[exprStart:pos]
		pos++ // consume 0x0b

		if !mutable {
			continue
		}
		if b.mutableGlobalSeen {
			return wsqerrors.WrapUnsupported("multiple mutable globals")
		}
		if valType != 0x7f {
			return wsqerrors.WrapUnsupported("mutable global is not i32")
		}
		b.mutableGlobalSeen = true
		idx := i
		b.mutableGlobalIdx = &idx
		if len(expr) > 0 && expr[0] == 0x41 {
			v, _, err := ReadSLEB32(expr, 1)
			if err == nil {
				b.mutableGlobalInit = &v
			}
		}
	}
	if pos != len(payload) {
		return wsqerrors.WrapParseMsg("global section has trailing bytes")
	}
	return nil
}

// onExport probes for the legacy "start"-named function export. It never
// influences rewriting decisions; see RelevantInfo.LegacyStartExport.
func (b *builder) onExport(payload []byte) error {
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return wsqerrors.WrapParse("export section", err)
	}
	pos += n
	for i := uint32(0); i < count; i++ {
		name, newPos, err := readName(payload, pos)
		if err != nil {
			return wsqerrors.WrapParse("export section", err)
		}
		pos = newPos
		if pos+1 > len(payload) {
			return wsqerrors.WrapParseMsg("export entry truncated")
		}
		kind := payload[pos]
		pos++
		idx, n, err := ReadU32(payload, pos)
		if err != nil {
			return wsqerrors.WrapParse("export section", err)
		}
		pos += n
		if kind == ExportKindFunc && name == "start" {
			v := idx
			b.legacyStart = &v
		}
	}
	if pos != len(payload) {
		return wsqerrors.WrapParseMsg("export section has trailing bytes")
	}
	return nil
}

func readName(data []byte, pos int) (string, int, error) {
	l, n, err := ReadU32(data, pos)
	if err != nil {
		return "", 0, err
	}
	pos += n
	if pos+int(l) > len(data) {
		return "", 0, wsqerrors.WrapParseMsg("name out of bounds")
	}
	return string(data[pos : pos+int(l)]), pos + int(l), nil
}

func (b *builder) onStart(payload []byte) error {
	if b.sawStart {
		return wsqerrors.WrapUnsupported("multiple start sections")
	}
	b.sawStart = true
	idx, n, err := ReadU32(payload, 0)
	if err != nil || n != len(payload) {
		return wsqerrors.WrapParseMsg("malformed start section")
	}
	b.startIdx = &idx
	return nil
}

func (b *builder) onDataCount(payload []byte, offset int) error {
	if b.sawDataCount {
		return wsqerrors.WrapUnsupported("multiple data count sections")
	}
	b.sawDataCount = true
	count, n, err := ReadU32(payload, 0)
	if err != nil || n != len(payload) {
		return wsqerrors.WrapParseMsg("malformed data count section")
	}
	if count != 1 {
		b.dataCountRange = &ByteRange{Start: offset, End: offset + len(payload)}
	}
	return nil
}

func (b *builder) onData(payload []byte) error {
	if b.sawData {
		return wsqerrors.WrapUnsupported("multiple data sections")
	}
	b.sawData = true
	pos := 0
	count, n, err := ReadU32(payload, pos)
	if err != nil {
		return wsqerrors.WrapParse("data section", err)
	}
	pos += n
	for i := uint32(0); i < count; i++ {
		flag, n, err := ReadU32(payload, pos)
		if err != nil {
			return wsqerrors.WrapParse("data segment flag", err)
		}
		pos += n

		var memIdx uint32
		switch flag {
		case 0:
			memIdx = 0
		case 1:
			return wsqerrors.WrapUnsupported("passive data segments are not supported")
		case 2:
			memIdx, n, err = ReadU32(payload, pos)
			if err != nil {
				return wsqerrors.WrapParse("data segment memory index", err)
			}
			pos += n
		default:
			return wsqerrors.WrapUnsupported("unsupported data segment kind")
		}
		if memIdx != 0 {
			return wsqerrors.WrapUnsupported("only memory index 0 is supported")
		}

		offsetStart := pos
		if offsetStart >= len(payload) || payload[offsetStart] != 0x41 {
			return wsqerrors.WrapUnsupported("data segment offset must be i32.const")
		}
		offVal, n, err := ReadSLEB32(payload, offsetStart+1)
		if err != nil {
			return wsqerrors.WrapParse("data segment offset", err)
		}
		exprPos := offsetStart + 1 + n
		if exprPos >= len(payload) || payload[exprPos] != 0x0b {
			return wsqerrors.WrapUnsupported("data segment offset must be exactly i32.const N; end")
		}
		pos = exprPos + 1

		size, n, err := ReadU32(payload, pos)
		if err != nil {
			return wsqerrors.WrapParse("data segment size", err)
		}
		pos += n
		if pos+int(size) > len(payload) {
			return wsqerrors.WrapParseMsg("data segment bytes out of bounds")
		}
		segData := make([]byte, int(size))
		copy(segData, payload[pos:pos+int(size)])
		pos += int(size)

		b.segments = append(b.segments, rawSegment{offset: offVal, data: segData})
	}
	if pos != len(payload) {
		return wsqerrors.WrapParseMsg("data section has trailing bytes")
	}
	return nil
}

// build merges accumulated segments and produces the final RelevantInfo.
// Returns ErrNoData if no active data segments were observed.
func (b *builder) build() (RelevantInfo, error) {
	if len(b.segments) == 0 {
		return RelevantInfo{}, wsqerrors.NoData()
	}

	sort.Slice(b.segments, func(i, j int) bool {
		return b.segments[i].offset < b.segments[j].offset
	})

	lo := b.segments[0].offset
	hi := b.segments[0].offset + int32(len(b.segments[0].data))
	for i := 1; i < len(b.segments); i++ {
		s := b.segments[i]
		prev := b.segments[i-1]
		if s.offset < prev.offset+int32(len(prev.data)) {
			return RelevantInfo{}, wsqerrors.WrapUnsupported("overlapping active data segments")
		}
		end := s.offset + int32(len(s.data))
		if end > hi {
			hi = end
		}
	}

	merged := make([]byte, hi-lo)
	initBytes := 0
	for _, s := range b.segments {
		copy(merged[s.offset-lo:], s.data)
		initBytes += len(s.data)
	}

	if len(merged) > 0 {
		logger.Logger.Info("merged active data segments",
			"segments", len(b.segments),
			"init_bytes", initBytes,
			"merged_bytes", len(merged),
			"padding_ratio", 1.0-float64(initBytes)/float64(len(merged)),
		)
	}

	if b.legacyStart != nil && (b.startIdx == nil || *b.startIdx != *b.legacyStart) {
		// Deprecated detection mechanism; recorded for diagnostics only.
		logger.Logger.Debug("legacy \"start\" export disagrees with start section",
			"export_fn_idx", *b.legacyStart)
	}

	return RelevantInfo{
		OldTypeCount:         b.typeCount,
		OldFunctionCount:     b.funcCount,
		ImportFunctionCount:  b.importFunc,
		Data:                 MergedData{Offset: lo, Data: merged},
		StartFnIdx:           b.startIdx,
		DataCountRange:       b.dataCountRange,
		LegacyStartExport:    b.legacyStart,
		MutableGlobalIdx:     b.mutableGlobalIdx,
		MutableGlobalInitVal: b.mutableGlobalInit,
	}, nil
}
