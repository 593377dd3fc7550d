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

// Package chd reads CHD (MAME "Compressed Hunks of Data") disc images:
// header, hunk map, metadata chain and hunk decompression for V3, V4 and
// V5 files.
package chd

import (
	"fmt"
	"os"
)

// File is an open CHD image.
type File struct {
	f      *os.File
	header *Header
	hmap   *hunkMap
	meta   []metaEntry
}

// Open opens the CHD image at path and parses its header, hunk map and
// metadata chain.
func Open(path string) (*File, error) {
	f, err := os.Open(path) //nolint:gosec // Path is caller supplied by design.
	if err != nil {
		return nil, fmt.Errorf("open CHD file: %w", err)
	}

	c := &File{f: f}
	if err := c.init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

func (c *File) init() error {
	header, err := readHeader(c.f)
	if err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	c.header = header

	hmap, err := newHunkMap(c.f, header)
	if err != nil {
		return err
	}
	c.hmap = hmap

	if header.MetaOffset > 0 {
		// A damaged chain is not fatal: keep whatever parsed, lookups
		// beyond it report not-found.
		entries, _ := readMetadata(c.f, header.MetaOffset)
		c.meta = entries
	}
	return nil
}

// Close closes the underlying file.
func (c *File) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	if err != nil {
		return fmt.Errorf("close CHD file: %w", err)
	}
	return nil
}

// Header returns the parsed image header.
func (c *File) Header() *Header {
	return c.header
}

// HunkBytes returns the decoded size of one hunk.
func (c *File) HunkBytes() uint32 {
	return c.header.HunkBytes
}

// UnitBytes returns the size of one addressable unit within a hunk.
func (c *File) UnitBytes() uint32 {
	return c.header.UnitBytes
}

// NumHunks returns the number of hunks in the image.
func (c *File) NumHunks() uint32 {
	return c.hmap.numHunks()
}

// Metadata returns the index-th metadata entry carrying tag, or
// ErrMetadataNotFound when the chain holds fewer matches.
func (c *File) Metadata(tag uint32, index int) ([]byte, error) {
	return findMetadata(c.meta, tag, index)
}

// ReadHunk decodes hunk index into dst, which must hold at least
// HunkBytes bytes.
func (c *File) ReadHunk(index uint32, dst []byte) error {
	return c.hmap.read(index, dst)
}
