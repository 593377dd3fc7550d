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

import "testing"

func TestBitstreamTake(t *testing.T) {
	t.Parallel()

	bs := newBitstream([]byte{0b1011_0010, 0b0100_1111})
	if got := bs.take(3); got != 0b101 {
		t.Errorf("take(3) = %b, want 101", got)
	}
	if got := bs.take(5); got != 0b10010 {
		t.Errorf("take(5) = %b, want 10010", got)
	}
	if got := bs.take(8); got != 0b0100_1111 {
		t.Errorf("take(8) = %b, want 01001111", got)
	}
}

func TestBitstreamUnread(t *testing.T) {
	t.Parallel()

	bs := newBitstream([]byte{0b1100_0011})
	if got := bs.take(8); got != 0b1100_0011 {
		t.Fatalf("take(8) = %b", got)
	}
	bs.unread(4)
	if got := bs.take(4); got != 0b0011 {
		t.Errorf("take(4) after unread = %b, want 0011", got)
	}
}

func TestBitstreamPastEnd(t *testing.T) {
	t.Parallel()

	bs := newBitstream([]byte{0xff})
	if got := bs.take(8); got != 0xff {
		t.Fatalf("take(8) = %#x", got)
	}
	// Reads past the end of the data yield zero bits.
	if got := bs.take(16); got != 0 {
		t.Errorf("take(16) past end = %#x, want 0", got)
	}
}

func TestHuffmanSingleCode(t *testing.T) {
	t.Parallel()

	// Length table with a single 1-bit code for symbol 4, then three
	// coded symbols.
	bw := &tableWriter{}
	for sym := 0; sym < 16; sym++ {
		if sym == 4 {
			bw.put(1, 4) // escape
			bw.put(1, 4) // length 1
			continue
		}
		bw.put(0, 4)
	}
	for n := 0; n < 3; n++ {
		bw.put(0, 1)
	}

	bs := newBitstream(bw.bytes())
	dec := newHuffman(16, 8)
	if err := dec.importRLE(bs); err != nil {
		t.Fatalf("importRLE failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := dec.decode(bs); got != 4 {
			t.Errorf("decode %d = %d, want 4", i, got)
		}
	}
}

func TestHuffmanTwoCodes(t *testing.T) {
	t.Parallel()

	// 1-bit codes for symbols 0 and 4. Canonical assignment gives
	// symbol 0 code 0 and symbol 4 code 1.
	bw := &tableWriter{}
	bw.put(1, 4) // escape
	bw.put(1, 4) // symbol 0: length 1
	for n := 0; n < 3; n++ {
		bw.put(0, 4)
	}
	bw.put(1, 4)
	bw.put(1, 4) // symbol 4: length 1
	for n := 0; n < 11; n++ {
		bw.put(0, 4)
	}
	bw.put(0b0110, 4) // coded symbols: 0, 4, 4, 0

	bs := newBitstream(bw.bytes())
	dec := newHuffman(16, 8)
	if err := dec.importRLE(bs); err != nil {
		t.Fatalf("importRLE failed: %v", err)
	}

	want := []uint8{0, 4, 4, 0}
	for i, w := range want {
		if got := dec.decode(bs); got != w {
			t.Errorf("decode %d = %d, want %d", i, got, w)
		}
	}
}

// tableWriter appends big-endian bit fields for building test streams.
type tableWriter struct {
	out  []byte
	acc  uint
	fill int
}

func (w *tableWriter) put(v uint32, bits int) {
	for i := bits - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | uint(v>>i&1)
		w.fill++
		if w.fill == 8 {
			w.out = append(w.out, byte(w.acc))
			w.acc = 0
			w.fill = 0
		}
	}
}

func (w *tableWriter) bytes() []byte {
	if w.fill > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.fill)))
		w.acc = 0
		w.fill = 0
	}
	return w.out
}
