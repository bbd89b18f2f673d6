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

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per taxonomy kind. Compare with errors.Is, never
// by message, so wrapping with additional context never breaks dispatch.
var (
	ErrParse       = errors.New("malformed module")
	ErrUnsupported = errors.New("unsupported module feature")
	ErrNoData      = errors.New("no active data segments")
	ErrEncode      = errors.New("module re-encoding failed")
	ErrIO          = errors.New("i/o failure")
)

func WrapParse(msg string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrParse, msg, cause)
}

func WrapParseMsg(msg string) error {
	return fmt.Errorf("%w: %s", ErrParse, msg)
}

func WrapUnsupported(msg string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, msg)
}

func WrapEncode(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrEncode, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrEncode, msg, cause)
}

func WrapIO(msg string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, msg, cause)
}

// NoData returns the sentinel NoData condition. It is not an error in the
// ordinary sense: the top-level driver identifies it with errors.Is and
// treats it as "nothing to do" rather than a failure.
func NoData() error {
	return ErrNoData
}

// Kind classifies err into one of the taxonomy names for logging and
// exit-code purposes. Returns "unknown" for errors outside the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNoData):
		return "NoData"
	case errors.Is(err, ErrParse):
		return "ParseError"
	case errors.Is(err, ErrUnsupported):
		return "Unsupported"
	case errors.Is(err, ErrEncode):
		return "EncodeError"
	case errors.Is(err, ErrIO):
		return "IoError"
	default:
		return "unknown"
	}
}
