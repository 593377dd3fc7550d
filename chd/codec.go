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
	"fmt"
	"sync"
)

// Codec tags, 4-byte big-endian ASCII identifiers. The cd-prefixed
// variants compress CD sector payload and subchannel data separately.
const (
	// CodecNone marks uncompressed data.
	CodecNone uint32 = 0x00000000

	// CodecZlib is raw deflate ("zlib").
	CodecZlib uint32 = 0x7a6c6962

	// CodecLZMA is headerless LZMA ("lzma").
	CodecLZMA uint32 = 0x6c7a6d61

	// CodecFLAC is FLAC audio ("flac").
	CodecFLAC uint32 = 0x666c6163

	// CodecZstd is Zstandard ("zstd").
	CodecZstd uint32 = 0x7a737464

	// CodecCDZlib is CD deflate ("cdzl"): sectors and subchannel both deflate.
	CodecCDZlib uint32 = 0x63647a6c

	// CodecCDLZMA is CD LZMA ("cdlz"): sectors LZMA, subchannel deflate.
	CodecCDLZMA uint32 = 0x63646c7a

	// CodecCDFLAC is CD FLAC ("cdfl"): sectors FLAC, subchannel deflate.
	CodecCDFLAC uint32 = 0x6364666c

	// CodecCDZstd is CD Zstandard ("cdzs"): sectors zstd, subchannel deflate.
	CodecCDZstd uint32 = 0x63647a73
)

// Codec expands compressed hunk data.
type Codec interface {
	// Decompress expands src into dst, which is pre-sized to the
	// expected output length. It returns the number of bytes written.
	Decompress(dst, src []byte) (int, error)
}

// CDCodec expands CD-specific hunk data, where sector payload and
// subchannel bytes are compressed as separate streams and reinterleaved.
type CDCodec interface {
	Codec

	// DecompressCD expands src into dst. hunkBytes is the decoded hunk
	// size and frames the number of CD frames it holds.
	DecompressCD(dst, src []byte, hunkBytes, frames int) (int, error)
}

var (
	codecFactories = make(map[uint32]func() Codec)
	codecMu        sync.RWMutex
)

// RegisterCodec registers a codec factory under tag, replacing any
// previous registration.
func RegisterCodec(tag uint32, factory func() Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecFactories[tag] = factory
}

// GetCodec instantiates the codec registered for tag.
func GetCodec(tag uint32) (Codec, error) {
	codecMu.RLock()
	factory, ok := codecFactories[tag]
	codecMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x (%s)", ErrUnsupportedCodec, tag, tagString(tag))
	}
	return factory(), nil
}

// tagString renders a codec tag as its ASCII name.
func tagString(tag uint32) string {
	if tag == 0 {
		return "none"
	}
	return string([]byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)})
}
