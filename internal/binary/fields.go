// Copyright (c) 2025 The chdstream Authors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of chdstream.
//
// chdstream is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chdstream is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with chdstream.  If not, see <https://www.gnu.org/licenses/>.

// Package binary provides helpers for decoding big-endian fields from
// disc-image structures.
package binary

import "encoding/binary"

// Fields reads consecutive big-endian fields from a byte slice.
// Callers must validate the slice length before reading; reads past the
// end panic like any out-of-range slice access.
type Fields struct {
	buf []byte
	pos int
}

// NewFields returns a Fields cursor over buf starting at offset 0.
func NewFields(buf []byte) *Fields {
	return &Fields{buf: buf}
}

// Uint8 reads a single byte.
func (f *Fields) Uint8() uint8 {
	v := f.buf[f.pos]
	f.pos++
	return v
}

// Uint16 reads a big-endian 16-bit field.
func (f *Fields) Uint16() uint16 {
	v := binary.BigEndian.Uint16(f.buf[f.pos:])
	f.pos += 2
	return v
}

// Uint24 reads a big-endian 24-bit field into a uint32.
func (f *Fields) Uint24() uint32 {
	v := uint32(f.buf[f.pos])<<16 | uint32(f.buf[f.pos+1])<<8 | uint32(f.buf[f.pos+2])
	f.pos += 3
	return v
}

// Uint32 reads a big-endian 32-bit field.
func (f *Fields) Uint32() uint32 {
	v := binary.BigEndian.Uint32(f.buf[f.pos:])
	f.pos += 4
	return v
}

// Uint48 reads a big-endian 48-bit field into a uint64.
func (f *Fields) Uint48() uint64 {
	v := uint64(f.buf[f.pos])<<40 | uint64(f.buf[f.pos+1])<<32 |
		uint64(f.buf[f.pos+2])<<24 | uint64(f.buf[f.pos+3])<<16 |
		uint64(f.buf[f.pos+4])<<8 | uint64(f.buf[f.pos+5])
	f.pos += 6
	return v
}

// Uint64 reads a big-endian 64-bit field.
func (f *Fields) Uint64() uint64 {
	v := binary.BigEndian.Uint64(f.buf[f.pos:])
	f.pos += 8
	return v
}

// Bytes copies the next n bytes into dst and advances past them.
func (f *Fields) Bytes(dst []byte) {
	f.pos += copy(dst, f.buf[f.pos:f.pos+len(dst)])
}

// Skip advances the cursor by n bytes without reading them.
func (f *Fields) Skip(n int) {
	f.pos += n
}

// Remaining returns the number of unread bytes.
func (f *Fields) Remaining() int {
	return len(f.buf) - f.pos
}
