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

import "fmt"

// ReadU32 decodes an unsigned LEB128 value, matching WebAssembly's
// varuint32 encoding. encoding/binary.Uvarint is bit-compatible but
// operates on a byte slice cursor rather than a (data, pos) pair, so we
// keep the hand-rolled form the teacher's own wasmopt package uses.
func ReadU32(data []byte, pos int) (uint32, int, error) {
	var v uint32
	shift := uint(0)
	for i := 0; i < 5; i++ {
		if pos+i >= len(data) {
			return 0, 0, fmt.Errorf("uleb128 out of bounds")
		}
		b := data[pos+i]
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("uleb128 overflow")
}

// EncodeU32 encodes v as unsigned LEB128.
func EncodeU32(v uint32) []byte {
	var out [5]byte
	i := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out[i] = b
		i++
		if v == 0 {
			break
		}
	}
	return out[:i]
}

// ReadSLEB32 decodes a signed LEB128 i32 immediate. encoding/binary.Varint
// is zigzag-encoded and not wire-compatible with WebAssembly's sleb128,
// so this is hand-rolled, matching the teacher's readSLEB32/readSLEB64.
func ReadSLEB32(data []byte, pos int) (int32, int, error) {
	v, n, err := readSLEB(data, pos, 32)
	return int32(v), n, err
}

// ReadSLEB64 decodes a signed LEB128 i64 immediate.
func ReadSLEB64(data []byte, pos int) (int64, int, error) {
	return readSLEB(data, pos, 64)
}

// ReadSLEB33 decodes a signed LEB128 value as used by block-type
// immediates (33-bit signed range to disambiguate from valtype bytes).
func ReadSLEB33(data []byte, pos int) (int64, int, error) {
	return readSLEB(data, pos, 33)
}

func readSLEB(data []byte, pos int, bits uint) (int64, int, error) {
	var result int64
	shift := uint(0)
	var b byte
	for i := 0; i < 10; i++ {
		if pos+i >= len(data) {
			return 0, 0, fmt.Errorf("sleb128 out of bounds")
		}
		b = data[pos+i]
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < bits && (b&0x40) != 0 {
				result |= ^int64(0) << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("sleb128 overflow")
}

// EncodeSLEB32 encodes v as signed LEB128.
func EncodeSLEB32(v int32) []byte {
	return encodeSLEB(int64(v))
}

// EncodeSLEB64 encodes v as signed LEB128.
func EncodeSLEB64(v int64) []byte {
	return encodeSLEB(v)
}

func encodeSLEB(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
