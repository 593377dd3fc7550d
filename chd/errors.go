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

import "errors"

// Allocation limits to prevent runaway allocation from malicious images.
const (
	// MaxCompMapLen is the maximum compressed hunk map size (100MB).
	MaxCompMapLen = 100 * 1024 * 1024

	// MaxNumHunks is the maximum number of hunks (10M, ~200GB uncompressed).
	MaxNumHunks = 10_000_000

	// MaxMetadataLen is the maximum metadata entry size (16MB, the 24-bit limit).
	MaxMetadataLen = 16 * 1024 * 1024

	// MaxMetadataEntries is the maximum metadata chain length (prevents loops).
	MaxMetadataEntries = 1000
)

// Common errors for CHD parsing.
var (
	// ErrInvalidMagic indicates the file does not start with the CHD magic word.
	ErrInvalidMagic = errors.New("invalid CHD magic: expected MComprHD")

	// ErrInvalidHeader indicates the header structure is invalid.
	ErrInvalidHeader = errors.New("invalid CHD header")

	// ErrUnsupportedVersion indicates an unsupported CHD version.
	ErrUnsupportedVersion = errors.New("unsupported CHD version")

	// ErrUnsupportedCodec indicates an unsupported compression codec.
	ErrUnsupportedCodec = errors.New("unsupported compression codec")

	// ErrInvalidHunk indicates an out-of-range hunk index.
	ErrInvalidHunk = errors.New("invalid hunk index")

	// ErrDecompressFailed indicates hunk decompression failed.
	ErrDecompressFailed = errors.New("decompression failed")

	// ErrInvalidMetadata indicates a malformed metadata chain.
	ErrInvalidMetadata = errors.New("invalid metadata format")

	// ErrMetadataNotFound indicates no metadata entry exists for the
	// requested tag and index.
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrParentUnsupported indicates the hunk references a parent image,
	// which this package does not resolve.
	ErrParentUnsupported = errors.New("parent-referenced hunks not supported")

	// ErrShortBuffer indicates the destination buffer is smaller than a hunk.
	ErrShortBuffer = errors.New("destination buffer smaller than hunk size")
)
