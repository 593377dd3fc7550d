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
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

func init() {
	RegisterCodec(CodecZstd, func() Codec { return &zstdCodec{} })
	RegisterCodec(CodecCDZstd, func() Codec { return &cdZstdCodec{} })
}

// zstdCodec expands Zstandard-compressed hunks.
type zstdCodec struct {
	decoder *zstd.Decoder
}

func (z *zstdCodec) Decompress(dst, src []byte) (int, error) {
	if z.decoder == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return 0, fmt.Errorf("%w: zstd init: %w", ErrDecompressFailed, err)
		}
		z.decoder = dec
	}

	out, err := z.decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, fmt.Errorf("%w: zstd: %w", ErrDecompressFailed, err)
	}
	if len(out) > len(dst) {
		return 0, fmt.Errorf("%w: zstd: output exceeds hunk size", ErrDecompressFailed)
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return len(out), nil
}

// cdZstdCodec expands CD hunks with Zstandard sector data and deflate
// subchannel data. Unlike the deflate and LZMA CD codecs, the framing is
// a plain 4-byte big-endian sector stream length with no ECC bitmap.
type cdZstdCodec struct {
	inner zstdCodec
}

func (c *cdZstdCodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/defaultUnitBytes)
}

func (c *cdZstdCodec) DecompressCD(dst, src []byte, _, frames int) (int, error) {
	if len(src) < 4 {
		return 0, fmt.Errorf("%w: cdzs: source too small", ErrDecompressFailed)
	}

	sectorLen := binary.BigEndian.Uint32(src[:4])
	if int(sectorLen) > len(src)-4 {
		return 0, fmt.Errorf("%w: cdzs: sector stream length %d out of range", ErrDecompressFailed, sectorLen)
	}

	sectors := make([]byte, frames*cdSectorSize)
	if _, err := c.inner.Decompress(sectors, src[4:4+sectorLen]); err != nil {
		return 0, fmt.Errorf("%w: cdzs sectors: %w", ErrDecompressFailed, err)
	}

	sub := inflateSubchannel(src[4+sectorLen:], frames*cdSubSize)

	return interleaveCD(dst, sectors, sub, nil, frames), nil
}
