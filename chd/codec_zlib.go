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

func init() {
	RegisterCodec(CodecZlib, func() Codec { return &zlibCodec{} })
	RegisterCodec(CodecCDZlib, func() Codec { return &cdZlibCodec{} })
}

// zlibCodec expands deflate-compressed hunks. Despite the tag name, CHD
// stores raw deflate (RFC 1951) with no zlib wrapper.
type zlibCodec struct{}

func (*zlibCodec) Decompress(dst, src []byte) (int, error) {
	out, err := inflate(src, len(dst))
	if err != nil {
		return 0, err
	}
	return copy(dst, out), nil
}

// cdZlibCodec expands CD hunks whose sector and subchannel streams are
// both deflate compressed.
type cdZlibCodec struct{}

func (c *cdZlibCodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/defaultUnitBytes)
}

func (*cdZlibCodec) DecompressCD(dst, src []byte, hunkBytes, frames int) (int, error) {
	payload, err := splitCDPayload(src, hunkBytes, frames)
	if err != nil {
		return 0, err
	}

	sectors, err := inflate(payload.sectors, frames*cdSectorSize)
	if err != nil {
		return 0, err
	}
	sub := inflateSubchannel(payload.sub, frames*cdSubSize)

	return interleaveCD(dst, sectors, sub, payload.ecc, frames), nil
}
