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
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

// CD frame geometry.
const (
	cdSectorSize = 2352
	cdSubSize    = 96
)

// cdSyncHeader is the 12-byte sync pattern opening every raw CD sector.
var cdSyncHeader = [12]byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// cdPayload is a CD hunk split into its compressed parts. The cdzl and
// cdlz codecs share this framing: an ECC bitmap flagging frames whose
// sync/ECC bytes were stripped before compression, a 2- or 3-byte length
// of the compressed sector stream, then the sector stream followed by
// the deflate-compressed subchannel stream.
type cdPayload struct {
	ecc     []byte
	sectors []byte
	sub     []byte
}

// splitCDPayload parses the shared CD codec framing from src.
func splitCDPayload(src []byte, destLen, frames int) (cdPayload, error) {
	lenBytes := 2
	if destLen >= 65536 {
		lenBytes = 3
	}
	eccBytes := (frames + 7) / 8
	headerBytes := eccBytes + lenBytes

	if len(src) < headerBytes {
		return cdPayload{}, fmt.Errorf("%w: cd payload shorter than header", ErrDecompressFailed)
	}

	var sectorLen int
	if lenBytes == 3 {
		sectorLen = int(src[eccBytes])<<16 | int(src[eccBytes+1])<<8 | int(src[eccBytes+2])
	} else {
		sectorLen = int(src[eccBytes])<<8 | int(src[eccBytes+1])
	}
	if headerBytes+sectorLen > len(src) {
		return cdPayload{}, fmt.Errorf("%w: cd sector stream length %d out of range", ErrDecompressFailed, sectorLen)
	}

	return cdPayload{
		ecc:     src[:eccBytes],
		sectors: src[headerBytes : headerBytes+sectorLen],
		sub:     src[headerBytes+sectorLen:],
	}, nil
}

// inflate expands a raw deflate stream into a buffer of exactly n bytes.
// A short stream leaves the tail zeroed.
func inflate(src []byte, n int) ([]byte, error) {
	dst := make([]byte, n)
	if len(src) == 0 || n == 0 {
		return dst, nil
	}
	r := flate.NewReader(bytes.NewReader(src))
	defer func() { _ = r.Close() }()

	if _, err := io.ReadFull(r, dst); err != nil &&
		!errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return dst, fmt.Errorf("%w: inflate: %w", ErrDecompressFailed, err)
	}
	return dst, nil
}

// inflateSubchannel expands subchannel data, substituting zeros when the
// stream is absent or damaged. Subchannel loss is tolerable: the payload
// bytes are what callers stream.
func inflateSubchannel(src []byte, n int) []byte {
	dst, err := inflate(src, n)
	if err != nil {
		return make([]byte, n)
	}
	return dst
}

// interleaveCD rebuilds the on-disc hunk layout from decoded sector and
// subchannel streams: per frame, sector payload then subchannel bytes.
// Frames flagged in the ECC bitmap get their sync header restored; the
// ECC bytes themselves are not regenerated.
func interleaveCD(dst, sectors, sub, ecc []byte, frames int) int {
	n := 0
	for i := 0; i < frames; i++ {
		so := i * cdSectorSize
		if so+cdSectorSize <= len(sectors) {
			copy(dst[n:], sectors[so:so+cdSectorSize])
		}
		if len(ecc) > i/8 && ecc[i/8]&(1<<(i%8)) != 0 {
			copy(dst[n:], cdSyncHeader[:])
		}
		n += cdSectorSize

		bo := i * cdSubSize
		if bo+cdSubSize <= len(sub) {
			copy(dst[n:], sub[bo:bo+cdSubSize])
		}
		n += cdSubSize
	}
	return n
}
