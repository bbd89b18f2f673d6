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
	"io"

	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

// SectionConsumer receives each section payload as the Scanner discovers
// it, along with the byte offset of the payload within the accumulated
// buffer (used to locate the Data Count field for later mitigation).
type SectionConsumer interface {
	Consume(sec Section, payloadOffset int) error
}

// Scan reads a WebAssembly module from r in incremental chunks, handing
// each section to consumer as soon as its bytes are fully buffered, and
// returns every byte read. A short read is not an error; a read that
// returns (0, nil) is treated as end of stream, matching an io.Reader
// that signals EOF without the sentinel error.
func Scan(r io.Reader, consumer SectionConsumer) ([]byte, error) {
	buf := make([]byte, 0, 4096)

	for len(buf) < 8 {
		grown, eof, err := grow(r, buf, 8-len(buf))
		if err != nil {
			return nil, wsqerrors.WrapIO("read module header", err)
		}
		buf = grown
		if eof && len(buf) < 8 {
			return nil, wsqerrors.WrapParseMsg("truncated module header")
		}
	}
	if !bytes.Equal(buf[:4], wasmMagic) || !bytes.Equal(buf[4:8], wasmVersion) {
		return nil, wsqerrors.WrapParseMsg("invalid wasm header")
	}

	pos := 8
	for {
		sec, newPos, need, err := parseOneSection(buf, pos)
		if err != nil {
			return nil, wsqerrors.WrapParse("parse section", err)
		}
		if need > 0 {
			grown, eof, err := grow(r, buf, need)
			if err != nil {
				return nil, wsqerrors.WrapIO("read module", err)
			}
			if len(grown) == len(buf) && eof {
				if pos == len(buf) {
					return buf, nil // clean end of stream at a section boundary
				}
				return nil, wsqerrors.WrapParseMsg("truncated module")
			}
			buf = grown
			continue
		}
		if err := consumer.Consume(sec, pos+sectionHeaderLen(buf, pos)); err != nil {
			return nil, err
		}
		pos = newPos
		if pos == len(buf) {
			// Try one more read to confirm end of stream, tolerating a
			// reader that has more sections to deliver in a later call.
			grown, eof, err := grow(r, buf, 1)
			if err != nil {
				return nil, wsqerrors.WrapIO("read module", err)
			}
			if eof && len(grown) == len(buf) {
				return buf, nil
			}
			buf = grown
		}
	}
}

// grow extends buf by reading up to n more bytes from r, retrying on
// interrupted reads. eof is true once r reports end of stream (either
// via io.EOF or a zero-byte, nil-error read).
func grow(r io.Reader, buf []byte, n int) (grown []byte, eof bool, err error) {
	chunk := make([]byte, n)
	for {
		read, rerr := r.Read(chunk)
		if read > 0 {
			buf = append(buf, chunk[:read]...)
		}
		if rerr == nil {
			if read == 0 {
				return buf, true, nil
			}
			return buf, false, nil
		}
		if errors.Is(rerr, io.EOF) {
			return buf, true, nil
		}
		if isRetryable(rerr) {
			continue
		}
		return buf, false, rerr
	}
}

func isRetryable(err error) bool {
	type temporary interface{ Temporary() bool }
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// parseOneSection attempts to decode one section starting at pos. If the
// buffer does not yet hold enough bytes, need reports (a lower bound on)
// how many additional bytes to read before retrying.
func parseOneSection(buf []byte, pos int) (sec Section, newPos int, need int, err error) {
	if pos >= len(buf) {
		return Section{}, pos, 1, nil
	}
	id := buf[pos]
	n, status := varintLen(buf, pos+1)
	switch status {
	case varintNeedMore:
		return Section{}, pos, 1, nil
	case varintMalformed:
		return Section{}, pos, 0, errMalformedVarint
	}
	size, _, err := ReadU32(buf, pos+1)
	if err != nil {
		return Section{}, pos, 0, err
	}
	bodyStart := pos + 1 + n
	if bodyStart+int(size) > len(buf) {
		return Section{}, pos, bodyStart + int(size) - len(buf), nil
	}
	payload := make([]byte, int(size))
	copy(payload, buf[bodyStart:bodyStart+int(size)])
	return Section{ID: id, Payload: payload}, bodyStart + int(size), 0, nil
}

// sectionHeaderLen returns the number of bytes occupied by a section's id
// and size fields, so callers can compute the payload's absolute offset.
func sectionHeaderLen(buf []byte, pos int) int {
	if pos >= len(buf) {
		return 0
	}
	n, status := varintLen(buf, pos+1)
	if status != varintOK {
		return 0
	}
	return 1 + n
}

const (
	varintOK = iota
	varintNeedMore
	varintMalformed
)

var errMalformedVarint = errUnreachable("malformed section-size varint")

type errUnreachable string

func (e errUnreachable) Error() string { return string(e) }

// varintLen reports how many bytes a LEB128 varint starting at pos
// occupies, or that the buffer doesn't yet hold enough of it, or that it
// has exceeded the 5-byte width a valid uint32 varint can take (which no
// amount of additional buffered data would fix).
func varintLen(data []byte, pos int) (n int, status int) {
	for i := 0; i < 5; i++ {
		if pos+i >= len(data) {
			return 0, varintNeedMore
		}
		if data[pos+i]&0x80 == 0 {
			return i + 1, varintOK
		}
	}
	return 0, varintMalformed
}
