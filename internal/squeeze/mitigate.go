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

// MitigateDataCount overwrites the Data Count section's LEB128 count
// field in place so it reads as 1, preserving the original encoding
// width. Section offsets stay intact, so the second pass can stream the
// same buffer without re-shifting. rng is nil when no mitigation is
// needed (no Data Count section, or one that already claims 1).
//
// A multi-byte encoding becomes 0x81 0x80 ... 0x00; a single byte
// becomes 0x01. Both decode to 1.
func MitigateDataCount(raw []byte, rng *ByteRange) {
	if rng == nil {
		return
	}
	if rng.End-rng.Start == 1 {
		raw[rng.Start] = 0x01
		return
	}
	raw[rng.Start] = 0x81
	for i := rng.Start + 1; i < rng.End-1; i++ {
		raw[i] = 0x80
	}
	raw[rng.End-1] = 0x00
}
