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
	"io"

	"github.com/chdtools/chdstream/internal/binary"
)

// CHD format magic word.
var chdMagic = [8]byte{'M', 'C', 'o', 'm', 'p', 'r', 'H', 'D'}

// Header sizes per CHD version.
const (
	headerSizeV3 = 120
	headerSizeV4 = 108
	headerSizeV5 = 124
)

// defaultUnitBytes is the unit size assumed for V3/V4 images, which do
// not record one: a raw CD sector plus subchannel.
const defaultUnitBytes = 2448

// Header is a parsed CHD file header. All fields are stored big-endian
// on disk. V5 is the current format; the Flags, Compression and
// TotalHunks fields are only populated for V3/V4 images.
type Header struct {
	Magic        [8]byte
	HeaderSize   uint32
	Version      uint32
	Compressors  [4]uint32 // V5 codec tags
	LogicalBytes uint64    // total uncompressed size
	MapOffset    uint64    // offset of the hunk map
	MetaOffset   uint64    // offset of the first metadata entry
	HunkBytes    uint32    // bytes per hunk
	UnitBytes    uint32    // bytes per unit (sector)
	RawSHA1      [20]byte
	SHA1         [20]byte
	ParentSHA1   [20]byte

	Flags       uint32 // V3/V4
	Compression uint32 // V3/V4
	TotalHunks  uint32 // V3/V4
}

// readHeader parses a CHD header from r, which must be positioned at the
// start of the file.
func readHeader(r io.Reader) (*Header, error) {
	intro := make([]byte, 12)
	if _, err := io.ReadFull(r, intro); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	var h Header
	copy(h.Magic[:], intro[:8])
	if h.Magic != chdMagic {
		return nil, ErrInvalidMagic
	}

	f := binary.NewFields(intro[8:])
	h.HeaderSize = f.Uint32()

	rest := int(h.HeaderSize) - len(intro)
	if rest <= 0 || h.HeaderSize > headerSizeV5 {
		return nil, fmt.Errorf("%w: header size %d", ErrInvalidHeader, h.HeaderSize)
	}

	body := make([]byte, rest)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read header body: %w", err)
	}

	f = binary.NewFields(body)
	h.Version = f.Uint32()

	switch h.Version {
	case 5:
		if err := h.readV5(f); err != nil {
			return nil, err
		}
	case 3, 4:
		if err := h.readV3V4(f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, h.Version)
	}

	return &h, nil
}

// readV5 parses the V5 header body following the version field:
// four codec tags, logical size, map offset, metadata offset, hunk and
// unit sizes, then the three SHA1 digests.
func (h *Header) readV5(f *binary.Fields) error {
	if f.Remaining() < headerSizeV5-16 {
		return fmt.Errorf("%w: truncated V5 header", ErrInvalidHeader)
	}
	for i := range h.Compressors {
		h.Compressors[i] = f.Uint32()
	}
	h.LogicalBytes = f.Uint64()
	h.MapOffset = f.Uint64()
	h.MetaOffset = f.Uint64()
	h.HunkBytes = f.Uint32()
	h.UnitBytes = f.Uint32()
	f.Bytes(h.RawSHA1[:])
	f.Bytes(h.SHA1[:])
	f.Bytes(h.ParentSHA1[:])
	return nil
}

// readV3V4 parses the shared V3/V4 header body following the version
// field. V3 carries MD5 digests before the hunk size, V4 carries its
// digests after it. Neither records a unit size or a map offset: the
// unit defaults to a raw CD sector plus subchannel, and the map starts
// immediately after the header.
func (h *Header) readV3V4(f *binary.Fields) error {
	minSize := headerSizeV4
	if h.Version == 3 {
		minSize = headerSizeV3
	}
	if f.Remaining() < minSize-16 {
		return fmt.Errorf("%w: truncated V%d header", ErrInvalidHeader, h.Version)
	}

	h.Flags = f.Uint32()
	h.Compression = f.Uint32()
	h.TotalHunks = f.Uint32()
	h.LogicalBytes = f.Uint64()
	h.MetaOffset = f.Uint64()

	if h.Version == 3 {
		f.Skip(32) // MD5 and parent MD5
		h.HunkBytes = f.Uint32()
		f.Bytes(h.SHA1[:])
		f.Bytes(h.ParentSHA1[:])
	} else {
		h.HunkBytes = f.Uint32()
		f.Bytes(h.SHA1[:])
		f.Bytes(h.ParentSHA1[:])
		f.Bytes(h.RawSHA1[:])
	}

	h.UnitBytes = defaultUnitBytes
	h.MapOffset = uint64(h.HeaderSize)
	return nil
}

// NumHunks returns the total number of hunks in the image.
func (h *Header) NumHunks() uint32 {
	if h.TotalHunks > 0 {
		return h.TotalHunks
	}
	if h.HunkBytes == 0 {
		return 0
	}
	//nolint:gosec // Result bounded by file size for valid CHD images.
	return uint32((h.LogicalBytes + uint64(h.HunkBytes) - 1) / uint64(h.HunkBytes))
}

// IsCompressed reports whether the image uses any compression.
func (h *Header) IsCompressed() bool {
	if h.Version == 5 {
		return h.Compressors[0] != 0
	}
	return h.Compression != 0
}
