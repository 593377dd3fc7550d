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

package chdstream

import "errors"

var (
	// ErrTrackNotFound indicates the selector matched no track in the image.
	ErrTrackNotFound = errors.New("track not found")

	// ErrInvalidWhence indicates an unrecognized seek whence value.
	ErrInvalidWhence = errors.New("invalid seek whence")

	// ErrNegativeOffset indicates a seek that would land before the
	// start of the track.
	ErrNegativeOffset = errors.New("seek to negative offset")

	// ErrInvalidGeometry indicates the container's hunk and unit sizes
	// cannot describe a track layout.
	ErrInvalidGeometry = errors.New("invalid hunk geometry")
)
