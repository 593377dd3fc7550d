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

package chd

// bitstream reads big-endian bit fields from a byte slice. Reading past
// the end yields zero bits, matching the reference decoder.
type bitstream struct {
	data  []byte
	next  int  // next unread byte
	acc   uint // bit accumulator
	avail int  // bits available in acc
}

func newBitstream(data []byte) *bitstream {
	return &bitstream{data: data}
}

// take reads count bits (at most 32) from the stream.
func (bs *bitstream) take(count int) uint32 {
	for bs.avail < count {
		if bs.next >= len(bs.data) {
			bs.acc <<= 8
		} else {
			bs.acc = bs.acc<<8 | uint(bs.data[bs.next])
			bs.next++
		}
		bs.avail += 8
	}
	bs.avail -= count
	//nolint:gosec // count is at most 32, so the masked value fits uint32.
	return uint32(bs.acc>>bs.avail) & (1<<count - 1)
}

// unread returns count bits to the stream. Only bits just consumed by
// take may be returned.
func (bs *bitstream) unread(count int) {
	bs.avail += count
}

// huffman is a canonical Huffman decoder for the small alphabets used by
// V5 hunk maps.
type huffman struct {
	lookup   []uint16 // symbol<<5 | codelen, indexed by maxBits-bit peek
	codeLens []uint8
	numCodes int
	maxBits  int
}

func newHuffman(numCodes, maxBits int) *huffman {
	return &huffman{
		numCodes: numCodes,
		maxBits:  maxBits,
		codeLens: make([]uint8, numCodes),
		lookup:   make([]uint16, 1<<maxBits),
	}
}

// importRLE reads an RLE-encoded table of code lengths from bs and
// builds the decode table. A length value of 1 escapes either a literal
// 1 or a run: value, then repeat count minus 3.
func (h *huffman) importRLE(bs *bitstream) error {
	var fieldBits int
	switch {
	case h.maxBits >= 16:
		fieldBits = 5
	case h.maxBits >= 8:
		fieldBits = 4
	default:
		fieldBits = 3
	}

	for sym := 0; sym < h.numCodes; {
		v := bs.take(fieldBits)
		if v != 1 {
			//nolint:gosec // Field width caps v well below 256.
			h.codeLens[sym] = uint8(v)
			sym++
			continue
		}
		v = bs.take(fieldBits)
		if v == 1 {
			h.codeLens[sym] = 1
			sym++
			continue
		}
		run := int(bs.take(fieldBits)) + 3
		for i := 0; i < run && sym < h.numCodes; i++ {
			//nolint:gosec // Field width caps v well below 256.
			h.codeLens[sym] = uint8(v)
			sym++
		}
	}

	return h.assignCodes()
}

// assignCodes derives canonical codes from the code lengths and fills
// the peek lookup table. Codes are assigned from the longest length
// down, following the reference implementation.
func (h *huffman) assignCodes() error {
	histo := make([]uint32, 33)
	for _, l := range h.codeLens {
		if l <= 32 {
			histo[l]++
		}
	}

	var start uint32
	for l := 32; l > 0; l-- {
		next := (start + histo[l]) >> 1
		histo[l] = start
		start = next
	}

	codes := make([]uint32, h.numCodes)
	for i, l := range h.codeLens {
		if l > 0 {
			codes[i] = histo[l]
			histo[l]++
		}
	}

	for i, l := range h.codeLens {
		if l == 0 {
			continue
		}
		//nolint:gosec // numCodes is at most 16 and l at most maxBits.
		entry := uint16(i<<5) | uint16(l)
		shift := h.maxBits - int(l)
		lo := int(codes[i]) << shift
		hi := int(codes[i]+1)<<shift - 1
		for j := lo; j <= hi; j++ {
			h.lookup[j] = entry
		}
	}

	return nil
}

// decode reads one symbol from bs.
func (h *huffman) decode(bs *bitstream) uint8 {
	peek := bs.take(h.maxBits)
	entry := h.lookup[peek]
	used := int(entry & 0x1f)
	if used < h.maxBits {
		bs.unread(h.maxBits - used)
	}
	//nolint:gosec // Symbol bounded by numCodes.
	return uint8(entry >> 5)
}
