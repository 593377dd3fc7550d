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

// Well-known metadata tags, 4-byte big-endian ASCII identifiers.
const (
	// MetaTagCDTrack2 is the CD track v2 tag ("CHT2"), a text record
	// with pregap and postgap fields.
	MetaTagCDTrack2 uint32 = 0x43485432

	// MetaTagCDTrack is the CD track v1 tag ("CHTR"), a text record
	// carrying track, type, subtype and frame count only.
	MetaTagCDTrack uint32 = 0x43485452

	// MetaTagGDROMTrack is the GD-ROM track tag ("CHGT"), the v2 record
	// plus a pad field.
	MetaTagGDROMTrack uint32 = 0x43484754
)

// metaEntry is one node of the metadata chain.
type metaEntry struct {
	data []byte
	tag  uint32
	flag uint8
}

// readMetadata walks the metadata chain starting at offset and returns
// the entries in chain order. Chain format per entry: tag (4 bytes),
// flags (1), data length (3), offset of the next entry (8), then the
// data itself.
func readMetadata(r io.ReaderAt, offset uint64) ([]metaEntry, error) {
	var entries []metaEntry
	seen := make(map[uint64]bool)

	for offset != 0 {
		if seen[offset] {
			return entries, fmt.Errorf("%w: circular metadata chain at offset %d", ErrInvalidMetadata, offset)
		}
		seen[offset] = true

		if len(entries) >= MaxMetadataEntries {
			return entries, fmt.Errorf("%w: metadata chain longer than %d entries", ErrInvalidMetadata, MaxMetadataEntries)
		}

		raw := make([]byte, 16)
		//nolint:gosec // Offset comes from the header or a prior entry.
		if _, err := r.ReadAt(raw, int64(offset)); err != nil {
			return entries, fmt.Errorf("read metadata header at %d: %w", offset, err)
		}

		f := binary.NewFields(raw)
		entry := metaEntry{tag: f.Uint32(), flag: f.Uint8()}
		length := f.Uint24()
		next := f.Uint64()

		if length > MaxMetadataLen {
			return entries, fmt.Errorf("%w: metadata entry of %d bytes", ErrInvalidMetadata, length)
		}
		if length > 0 {
			entry.data = make([]byte, length)
			//nolint:gosec // Offset comes from the header or a prior entry.
			if _, err := r.ReadAt(entry.data, int64(offset)+16); err != nil {
				return entries, fmt.Errorf("read metadata data at %d: %w", offset, err)
			}
		}

		entries = append(entries, entry)
		offset = next
	}

	return entries, nil
}

// findMetadata returns the index-th entry carrying tag, in chain order.
func findMetadata(entries []metaEntry, tag uint32, index int) ([]byte, error) {
	n := 0
	for _, e := range entries {
		if e.tag != tag {
			continue
		}
		if n == index {
			return e.data, nil
		}
		n++
	}
	return nil, fmt.Errorf("%w: tag %s index %d", ErrMetadataNotFound, tagString(tag), index)
}
