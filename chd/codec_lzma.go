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

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterCodec(CodecLZMA, func() Codec { return &lzmaCodec{} })
	RegisterCodec(CodecCDLZMA, func() Codec { return &cdLZMACodec{} })
}

// lzmaCodec expands headerless LZMA hunks. CHD stores the raw LZMA
// stream only; the encoder properties are fixed (lc=3 lp=0 pb=2) and the
// dictionary size is derived from the hunk size, so a standard 13-byte
// header is synthesized for the decoder.
type lzmaCodec struct {
	hunkBytes uint32
}

// lzmaDictSize mirrors the reference encoder's property normalization
// for level 8 with the reduce size set to the hunk size: the smallest
// 2<<i or 3<<i that covers it.
func lzmaDictSize(hunkBytes uint32) uint32 {
	for i := uint32(11); i <= 30; i++ {
		if hunkBytes <= 2<<i {
			return 2 << i
		}
		if hunkBytes <= 3<<i {
			return 3 << i
		}
	}
	return 1 << 26
}

func (c *lzmaCodec) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: lzma: empty source", ErrDecompressFailed)
	}

	hunkBytes := c.hunkBytes
	if hunkBytes == 0 {
		//nolint:gosec // dst is sized to one hunk.
		hunkBytes = uint32(len(dst))
	}

	// Properties byte lc + lp*9 + pb*45 for lc=3 lp=0 pb=2.
	const props = 0x5d

	header := make([]byte, 13, 13+len(src))
	header[0] = props
	binary.LittleEndian.PutUint32(header[1:5], lzmaDictSize(hunkBytes))
	binary.LittleEndian.PutUint64(header[5:13], uint64(len(dst)))

	r, err := lzma.NewReader(bytes.NewReader(append(header, src...)))
	if err != nil {
		return 0, fmt.Errorf("%w: lzma init: %w", ErrDecompressFailed, err)
	}

	n, err := io.ReadFull(r, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: lzma read: %w", ErrDecompressFailed, err)
	}
	return n, nil
}

// cdLZMACodec expands CD hunks with LZMA sector data and deflate
// subchannel data.
type cdLZMACodec struct{}

func (c *cdLZMACodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/defaultUnitBytes)
}

func (*cdLZMACodec) DecompressCD(dst, src []byte, hunkBytes, frames int) (int, error) {
	payload, err := splitCDPayload(src, hunkBytes, frames)
	if err != nil {
		return 0, err
	}

	sectorBytes := frames * cdSectorSize
	sectors := make([]byte, sectorBytes)
	// The sector stream's dictionary size derives from the sector byte
	// count, not the full hunk size.
	//nolint:gosec // sectorBytes is bounded by the hunk size.
	inner := &lzmaCodec{hunkBytes: uint32(sectorBytes)}
	if _, err := inner.Decompress(sectors, payload.sectors); err != nil {
		return 0, fmt.Errorf("%w: cdlz sectors: %w", ErrDecompressFailed, err)
	}

	sub := inflateSubchannel(payload.sub, frames*cdSubSize)

	return interleaveCD(dst, sectors, sub, payload.ecc, frames), nil
}
