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

// Hunk map entry kinds (V5 map entry types).
const (
	entryCodec0   = 0  // compressed with compressor 0
	entryCodec1   = 1  // compressed with compressor 1
	entryCodec2   = 2  // compressed with compressor 2
	entryCodec3   = 3  // compressed with compressor 3
	entryNone     = 4  // stored uncompressed
	entrySelf     = 5  // copy of another hunk in this image
	entryParent   = 6  // copy of a hunk in the parent image
	entryRLESmall = 7  // map RLE: repeat last kind (small count)
	entryRLELarge = 8  // map RLE: repeat last kind (large count)
	entrySelf0    = 9  // self reference, same target as last
	entrySelf1    = 10 // self reference, last target + 1
	entryParSelf  = 11 // parent reference to own position
	entryPar0     = 12 // parent reference, same target as last
	entryPar1     = 13 // parent reference, last target + 1
)

// mapEntry locates one hunk's stored data.
type mapEntry struct {
	offset uint64 // file offset, or referenced hunk/unit for self/parent
	length uint32 // compressed length
	kind   uint8
}

// hunkMap resolves hunk indices to stored data and decompresses hunks on
// demand. It performs no caching of its own: decoded hunks go straight
// into the caller's buffer.
type hunkMap struct {
	r       io.ReaderAt
	header  *Header
	entries []mapEntry
	codecs  []Codec
}

func newHunkMap(r io.ReaderAt, header *Header) (*hunkMap, error) {
	hm := &hunkMap{r: r, header: header}
	hm.initCodecs()

	numHunks := header.NumHunks()
	if numHunks > MaxNumHunks {
		return nil, fmt.Errorf("%w: too many hunks (%d > %d)", ErrInvalidHeader, numHunks, MaxNumHunks)
	}
	hm.entries = make([]mapEntry, numHunks)

	var err error
	switch header.Version {
	case 5:
		err = hm.readMapV5()
	case 3, 4:
		err = hm.readMapV4()
	default:
		err = fmt.Errorf("%w: version %d", ErrUnsupportedVersion, header.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("parse hunk map: %w", err)
	}

	return hm, nil
}

// initCodecs resolves the image's codec tags. A tag without a registered
// codec leaves a nil slot; decompression of a hunk needing it fails with
// a clear error rather than failing the whole open.
func (hm *hunkMap) initCodecs() {
	if hm.header.Version == 5 {
		for _, tag := range hm.header.Compressors {
			if tag == 0 {
				hm.codecs = append(hm.codecs, nil)
				continue
			}
			codec, err := GetCodec(tag)
			if err != nil {
				hm.codecs = append(hm.codecs, nil)
				continue
			}
			hm.codecs = append(hm.codecs, codec)
		}
		return
	}

	// V3/V4 record a numeric compression type: 0 none, 1 and 2 zlib.
	if hm.header.Compression == 1 || hm.header.Compression == 2 {
		if codec, err := GetCodec(CodecZlib); err == nil {
			hm.codecs = append(hm.codecs, codec)
		}
	}
}

// readMapV5 parses the compressed V5 hunk map. The map header is 16
// bytes: compressed length, 48-bit offset of the first stored block, a
// CRC16, and the bit widths used for length, self-reference and
// parent-reference fields. The map body is Huffman coded: first one kind
// per hunk with RLE, then per-hunk lengths and offsets.
func (hm *hunkMap) readMapV5() error {
	raw := make([]byte, 16)
	//nolint:gosec // MapOffset comes from a validated header.
	if _, err := hm.r.ReadAt(raw, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read map header: %w", err)
	}

	f := binary.NewFields(raw)
	compLen := f.Uint32()
	firstOffset := f.Uint48()
	f.Skip(2) // map CRC16
	lengthBits := int(f.Uint8())
	selfBits := int(f.Uint8())
	parentBits := int(f.Uint8())

	if compLen > MaxCompMapLen {
		return fmt.Errorf("%w: compressed map too large (%d > %d)", ErrInvalidHeader, compLen, MaxCompMapLen)
	}

	compMap := make([]byte, compLen)
	//nolint:gosec // MapOffset comes from a validated header.
	if _, err := hm.r.ReadAt(compMap, int64(hm.header.MapOffset)+16); err != nil {
		return fmt.Errorf("read compressed map: %w", err)
	}

	bs := newBitstream(compMap)
	dec := newHuffman(16, 8)
	if err := dec.importRLE(bs); err != nil {
		return fmt.Errorf("import map huffman tree: %w", err)
	}

	kinds := hm.decodeEntryKinds(bs, dec)
	hm.decodeEntryBodies(bs, kinds, firstOffset, lengthBits, selfBits, parentBits)
	return nil
}

// decodeEntryKinds runs the first map pass: one entry kind per hunk,
// with the two RLE symbols expanding runs of the previous kind.
func (hm *hunkMap) decodeEntryKinds(bs *bitstream, dec *huffman) []uint8 {
	kinds := make([]uint8, len(hm.entries))
	var last uint8
	var run int

	for i := range kinds {
		if run > 0 {
			kinds[i] = last
			run--
			continue
		}
		switch v := dec.decode(bs); v {
		case entryRLESmall:
			kinds[i] = last
			run = 2 + int(dec.decode(bs))
		case entryRLELarge:
			kinds[i] = last
			run = 2 + 16 + int(dec.decode(bs))<<4
			run += int(dec.decode(bs))
		default:
			kinds[i] = v
			last = v
		}
	}
	return kinds
}

// decodeEntryBodies runs the second map pass, reading the length/offset
// fields appropriate to each entry kind and folding the shorthand
// self/parent kinds into their canonical forms.
func (hm *hunkMap) decodeEntryBodies(bs *bitstream, kinds []uint8, firstOffset uint64, lengthBits, selfBits, parentBits int) {
	hunkUnits := uint64(hm.header.HunkBytes) / uint64(hm.header.UnitBytes)
	cur := firstOffset
	var lastSelf uint32
	var lastParent uint64

	for i := range hm.entries {
		kind := kinds[i]
		var length uint32
		var offset uint64

		switch kind {
		case entryCodec0, entryCodec1, entryCodec2, entryCodec3:
			length = bs.take(lengthBits)
			offset = cur
			cur += uint64(length)
			bs.take(16) // hunk CRC16
		case entryNone:
			length = hm.header.HunkBytes
			offset = cur
			cur += uint64(length)
			bs.take(16) // hunk CRC16
		case entrySelf:
			lastSelf = bs.take(selfBits)
			offset = uint64(lastSelf)
		case entryParent:
			lastParent = uint64(bs.take(parentBits))
			offset = lastParent
		case entrySelf0:
			offset = uint64(lastSelf)
			kind = entrySelf
		case entrySelf1:
			lastSelf++
			offset = uint64(lastSelf)
			kind = entrySelf
		case entryParSelf:
			lastParent = uint64(i) * hunkUnits
			offset = lastParent
			kind = entryParent
		case entryPar0:
			offset = lastParent
			kind = entryParent
		case entryPar1:
			lastParent += hunkUnits
			offset = lastParent
			kind = entryParent
		}

		hm.entries[i] = mapEntry{offset: offset, length: length, kind: kind}
	}
}

// readMapV4 parses the uncompressed V3/V4 hunk map: 16 bytes per entry
// holding a 64-bit offset, a CRC32, a 16-bit compressed length and
// 16 bits of flags.
func (hm *hunkMap) readMapV4() error {
	const entrySize = 16
	raw := make([]byte, len(hm.entries)*entrySize)
	//nolint:gosec // MapOffset comes from a validated header.
	if _, err := hm.r.ReadAt(raw, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read V%d map: %w", hm.header.Version, err)
	}

	f := binary.NewFields(raw)
	for i := range hm.entries {
		offset := f.Uint64()
		f.Skip(4) // CRC32
		length := f.Uint16()
		flags := f.Uint16()

		kind := uint8(entryNone)
		if flags&1 != 0 {
			kind = entryCodec0
		}
		hm.entries[i] = mapEntry{offset: offset, length: uint32(length), kind: kind}
	}
	return nil
}

// numHunks returns the number of mapped hunks.
func (hm *hunkMap) numHunks() uint32 {
	//nolint:gosec // Entry count is bounded by MaxNumHunks.
	return uint32(len(hm.entries))
}

// read decodes hunk index into dst, which must hold a full hunk.
func (hm *hunkMap) read(index uint32, dst []byte) error {
	//nolint:gosec // Entry count is bounded by MaxNumHunks.
	if index >= uint32(len(hm.entries)) {
		return fmt.Errorf("%w: %d >= %d", ErrInvalidHunk, index, len(hm.entries))
	}
	if len(dst) < int(hm.header.HunkBytes) {
		return fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(dst), hm.header.HunkBytes)
	}

	entry := hm.entries[index]
	switch entry.kind {
	case entryNone:
		//nolint:gosec // Offset comes from the parsed map.
		if _, err := hm.r.ReadAt(dst[:hm.header.HunkBytes], int64(entry.offset)); err != nil {
			return fmt.Errorf("read stored hunk %d: %w", index, err)
		}
		return nil
	case entryCodec0, entryCodec1, entryCodec2, entryCodec3:
		if err := hm.decompress(entry, dst); err != nil {
			return fmt.Errorf("decompress hunk %d: %w", index, err)
		}
		return nil
	case entrySelf:
		//nolint:gosec // Referenced index is validated by the recursive call.
		return hm.read(uint32(entry.offset), dst)
	case entryParent:
		return ErrParentUnsupported
	default:
		return fmt.Errorf("%w: map entry kind %d", ErrUnsupportedCodec, entry.kind)
	}
}

// decompress reads a compressed hunk and expands it into dst.
func (hm *hunkMap) decompress(entry mapEntry, dst []byte) error {
	idx := int(entry.kind)
	if idx >= len(hm.codecs) || hm.codecs[idx] == nil {
		return fmt.Errorf("%w: codec slot %d not available", ErrUnsupportedCodec, idx)
	}

	src := make([]byte, entry.length)
	//nolint:gosec // Offset comes from the parsed map.
	if _, err := hm.r.ReadAt(src, int64(entry.offset)); err != nil {
		return fmt.Errorf("read compressed data: %w", err)
	}

	hunkBytes := int(hm.header.HunkBytes)
	codec := hm.codecs[idx]

	if cd, ok := codec.(CDCodec); ok {
		unitBytes := int(hm.header.UnitBytes)
		if unitBytes == 0 {
			unitBytes = defaultUnitBytes
		}
		if _, err := cd.DecompressCD(dst[:hunkBytes], src, hunkBytes, hunkBytes/unitBytes); err != nil {
			return err
		}
		return nil
	}

	if _, err := codec.Decompress(dst[:hunkBytes], src); err != nil {
		return err
	}
	return nil
}
