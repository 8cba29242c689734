// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import (
	"strings"
	"unicode/utf8"
)

// accumulator collects response body chunks in arrival order. Chunks
// are kept as raw bytes and decoded once, so a multi-byte character
// split across two chunks survives intact.
type accumulator struct {
	buf []byte
	max int64 // zero means unlimited
}

// append adds a copy of p. It reports false, without appending, if
// doing so would exceed the size limit.
func (a *accumulator) append(p []byte) bool {
	if a.max > 0 && int64(len(a.buf))+int64(len(p)) > a.max {
		return false
	}
	a.buf = append(a.buf, p...)
	return true
}

func (a *accumulator) len() int64 {
	return int64(len(a.buf))
}

// text returns the accumulated bytes decoded as UTF-8, replacing each
// run of invalid bytes with utf8.RuneError.
func (a *accumulator) text() string {
	return strings.ToValidUTF8(string(a.buf), string(utf8.RuneError))
}
