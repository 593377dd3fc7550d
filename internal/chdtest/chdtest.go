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

// Package chdtest builds minimal uncompressed V5 CHD images in memory
// for tests. The images carry a real compressed hunk map (all entries
// stored uncompressed) and a CD track v2 metadata chain.
package chdtest

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Track describes one CD track to record in the image metadata.
type Track struct {
	Number  int
	Type    string
	SubType string
	PgType  string
	PgSub   string
	Frames  uint32
	Pregap  uint32
	Postgap uint32
}

// Image describes a synthetic CHD image.
type Image struct {
	HunkBytes uint32
	UnitBytes uint32
	Tracks    []Track
	// Data is the raw uncompressed content of all hunks, in unit
	// layout. It is zero-padded to a whole number of hunks.
	Data []byte
}

const (
	headerSize = 124
	mapHeader  = 16
)

// bitWriter appends big-endian bit fields to a byte slice.
type bitWriter struct {
	out  []byte
	acc  uint
	fill int
}

func (bw *bitWriter) put(v uint32, bits int) {
	for i := bits - 1; i >= 0; i-- {
		bw.acc = bw.acc<<1 | uint(v>>i&1)
		bw.fill++
		if bw.fill == 8 {
			bw.out = append(bw.out, byte(bw.acc))
			bw.acc = 0
			bw.fill = 0
		}
	}
}

func (bw *bitWriter) bytes() []byte {
	if bw.fill > 0 {
		bw.out = append(bw.out, byte(bw.acc<<(8-bw.fill)))
		bw.acc = 0
		bw.fill = 0
	}
	return bw.out
}

// buildMap encodes a V5 hunk map whose entries are all stored
// uncompressed. The Huffman table assigns a single 1-bit code to the
// "uncompressed" entry kind, so each hunk costs one kind bit plus a
// 16-bit placeholder CRC.
func buildMap(numHunks uint32, firstOffset uint64) []byte {
	bw := &bitWriter{}

	// Code length table, 4-bit fields for 16 symbols: length 1 for kind
	// 4 (uncompressed), zero for the rest. Length value 1 is escaped as
	// a double 1.
	for sym := 0; sym < 16; sym++ {
		if sym == 4 {
			bw.put(1, 4)
			bw.put(1, 4)
			continue
		}
		bw.put(0, 4)
	}

	// First map pass: one kind symbol (code 0, 1 bit) per hunk. Second
	// pass: a 16-bit placeholder CRC per uncompressed entry.
	for i := uint32(0); i < numHunks; i++ {
		bw.put(0, 1)
	}
	for i := uint32(0); i < numHunks; i++ {
		bw.put(0, 16)
	}

	body := bw.bytes()

	out := make([]byte, mapHeader, mapHeader+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	out[4] = byte(firstOffset >> 40)
	out[5] = byte(firstOffset >> 32)
	out[6] = byte(firstOffset >> 24)
	out[7] = byte(firstOffset >> 16)
	out[8] = byte(firstOffset >> 8)
	out[9] = byte(firstOffset)
	// CRC16 at 10:12 left zero.
	out[12] = 24 // length bits
	out[13] = 24 // self bits
	out[14] = 24 // parent bits
	return append(out, body...)
}

// trackText renders a track as CD track v2 metadata text.
func trackText(tr Track) string {
	orNone := func(s string) string {
		if s == "" {
			return "NONE"
		}
		return s
	}
	return fmt.Sprintf("TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d PREGAP:%d PGTYPE:%s PGSUB:%s POSTGAP:%d",
		tr.Number, tr.Type, orNone(tr.SubType), tr.Frames,
		tr.Pregap, orNone(tr.PgType), orNone(tr.PgSub), tr.Postgap)
}

// metaTagCDTrack2 is the "CHT2" metadata tag.
const metaTagCDTrack2 uint32 = 0x43485432

// buildMeta encodes the metadata chain at base, one CHT2 entry per
// track.
func buildMeta(tracks []Track, base uint64) []byte {
	var out []byte
	for i, tr := range tracks {
		text := append([]byte(trackText(tr)), 0)

		entry := make([]byte, 16, 16+len(text))
		binary.BigEndian.PutUint32(entry[0:4], metaTagCDTrack2)
		entry[4] = 0x01 // checksum flag, unused here
		entry[5] = byte(len(text) >> 16)
		entry[6] = byte(len(text) >> 8)
		entry[7] = byte(len(text))
		if i < len(tracks)-1 {
			next := base + uint64(len(out)) + uint64(16+len(text))
			binary.BigEndian.PutUint64(entry[8:16], next)
		}
		out = append(out, append(entry, text...)...)
	}
	return out
}

// Build assembles the image bytes.
func (img Image) Build() []byte {
	numHunks := (uint32(len(img.Data)) + img.HunkBytes - 1) / img.HunkBytes
	padded := make([]byte, int(numHunks)*int(img.HunkBytes))
	copy(padded, img.Data)

	// Layout: header, hunk map, hunk data, metadata chain.
	hmap := buildMap(numHunks, 0) // first offset patched below
	dataStart := uint64(headerSize + len(hmap))
	hmap = buildMap(numHunks, dataStart)
	metaStart := uint64(0)
	if len(img.Tracks) > 0 {
		metaStart = dataStart + uint64(len(padded))
	}

	header := make([]byte, headerSize)
	copy(header[0:8], "MComprHD")
	binary.BigEndian.PutUint32(header[8:12], headerSize)
	binary.BigEndian.PutUint32(header[12:16], 5)
	// Compressor tags 16:32 stay zero: uncompressed image.
	binary.BigEndian.PutUint64(header[32:40], uint64(len(padded)))
	binary.BigEndian.PutUint64(header[40:48], headerSize)
	binary.BigEndian.PutUint64(header[48:56], metaStart)
	binary.BigEndian.PutUint32(header[56:60], img.HunkBytes)
	binary.BigEndian.PutUint32(header[60:64], img.UnitBytes)
	// SHA1 fields stay zero.

	out := append(header, hmap...)
	out = append(out, padded...)
	return append(out, buildMeta(img.Tracks, metaStart)...)
}

// Write builds the image and writes it to a file under t.TempDir,
// returning its path.
func Write(t *testing.T, img Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.chd")
	if err := os.WriteFile(path, img.Build(), 0o600); err != nil {
		t.Fatalf("write test image: %v", err)
	}
	return path
}
