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

// Package chdstream streams the byte content of a single track out of a
// CHD disc image. A Stream behaves like a read-only file over the
// track's logical bytes: pregap frames read as zeros when they are not
// physically stored, raw-sector track types are addressed in 2352-byte
// frames, and audio samples are byte-swapped to little-endian. One
// decoded hunk is cached at a time, so sequential reads decompress each
// hunk once.
//
// A Stream is not safe for concurrent use; callers needing parallel
// access should open one stream per goroutine.
package chdstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/chdtools/chdstream/chd"
)

// sectorSize is the raw CD sector frame size used by the RAW and AUDIO
// track types.
const sectorSize = 2352

// noHunk is the cache sentinel meaning no hunk is loaded.
const noHunk = -1

// Container is the service a Stream reads from. *chd.File satisfies it.
type Container interface {
	// HunkBytes returns the decoded size of one hunk.
	HunkBytes() uint32

	// UnitBytes returns the size of one addressable unit within a hunk.
	UnitBytes() uint32

	// Metadata returns the index-th metadata entry carrying tag, or an
	// error when the container holds fewer matches.
	Metadata(tag uint32, index int) ([]byte, error)

	// ReadHunk decodes hunk index into dst.
	ReadHunk(index uint32, dst []byte) error

	// Close releases the container.
	Close() error
}

// Stream reads one track of a CHD image as a byte stream. It implements
// io.Reader, io.Seeker, io.ByteReader and io.Closer over the track's
// logical bytes.
type Stream struct {
	c     Container
	track TrackInfo

	swab          bool   // swap 16-bit byte order after decode
	frameSize     uint32 // bytes per frame for this track type
	frameOffset   uint32 // byte offset of payload within a frame
	unitBytes     uint32 // container unit size
	framesPerHunk uint32
	trackFrame    uint32 // first frame of the track in the container

	trackStart int64 // byte offset where stored data begins
	trackEnd   int64 // byte offset where the track ends
	offset     int64 // read cursor

	hunknum int32 // cached hunk index, noHunk when empty
	hunkmem []byte
}

// Open opens the CHD image at path and returns a stream over the track
// matched by sel. On failure nothing stays open.
func Open(path string, sel Selector) (*Stream, error) {
	c, err := chd.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}

	s, err := New(c, sel)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

// New returns a stream over the track of c matched by sel. The stream
// takes ownership of c only on success; on failure the caller still owns
// it.
func New(c Container, sel Selector) (*Stream, error) {
	track, ok := findTrack(c, sel)
	if !ok {
		return nil, fmt.Errorf("%w: selector %d", ErrTrackNotFound, sel)
	}

	hunkBytes := c.HunkBytes()
	unitBytes := c.UnitBytes()
	if unitBytes == 0 || hunkBytes < unitBytes {
		return nil, fmt.Errorf("%w: hunk %d unit %d", ErrInvalidGeometry, hunkBytes, unitBytes)
	}

	s := &Stream{
		c:             c,
		track:         track,
		unitBytes:     unitBytes,
		framesPerHunk: hunkBytes / unitBytes,
		trackFrame:    track.FrameOffset,
		hunknum:       noHunk,
		hunkmem:       make([]byte, hunkBytes),
	}

	switch track.Type {
	case "MODE1_RAW", "MODE2_RAW":
		s.frameSize = sectorSize
	case audioType:
		s.frameSize = sectorSize
		s.swab = true
	default:
		s.frameSize = unitBytes
	}

	// Pregap bytes are readable data only when they were stored in the
	// source track file, which the metadata marks by giving the pregap
	// the track's own type.
	var pregap uint32
	if track.PgType == track.Type {
		pregap = track.Pregap
	}

	s.trackStart = int64(pregap) * int64(s.frameSize)
	s.trackEnd = s.trackStart + int64(track.Frames)*int64(s.frameSize)

	return s, nil
}

// Close releases the stream and its container. Closing a nil or already
// closed stream is a no-op.
func (s *Stream) Close() error {
	if s == nil || s.c == nil {
		return nil
	}
	err := s.c.Close()
	s.c = nil
	s.hunkmem = nil
	return err
}

// Track returns the metadata record of the streamed track.
func (s *Stream) Track() TrackInfo {
	return s.track
}

// Size returns the track's logical length in bytes, including any
// readable pregap.
func (s *Stream) Size() int64 {
	return s.trackEnd
}

// loadHunk makes hunk the cached hunk. Loading the cached hunk again is
// free. On failure the cache keeps its previous content.
func (s *Stream) loadHunk(hunk uint32) error {
	//nolint:gosec // hunknum is non-negative here.
	if s.hunknum != noHunk && uint32(s.hunknum) == hunk {
		return nil
	}

	if err := s.c.ReadHunk(hunk, s.hunkmem); err != nil {
		return err
	}

	if s.swab {
		swapPairs(s.hunkmem)
	}

	//nolint:gosec // Hunk indices are bounded well below int32 max.
	s.hunknum = int32(hunk)
	return nil
}

// swapPairs swaps the byte order of every 16-bit unit in buf.
func swapPairs(buf []byte) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
}

// Read reads up to len(p) bytes at the cursor, never past the end of the
// track. Reads are assembled frame by frame, so a single large read is
// byte-identical to any sequence of smaller reads covering the same
// range. Offsets below trackStart yield zeros (virtual pregap). A hunk
// decode failure is returned as an error along with the bytes already
// assembled; io.EOF is returned only at the end of the track.
func (s *Stream) Read(p []byte) (int, error) {
	remain := s.trackEnd - s.offset
	if remain <= 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	want := int64(len(p))
	if want > remain {
		want = remain
	}

	var n int64
	end := s.offset + want
	for s.offset < end {
		frameOff := s.offset % int64(s.frameSize)
		amount := int64(s.frameSize) - frameOff
		if amount > end-s.offset {
			amount = end - s.offset
		}

		if s.offset < s.trackStart {
			// Virtual pregap: no stored data to decode.
			clear(p[n : n+amount])
		} else {
			frame := int64(s.trackFrame) + (s.offset-s.trackStart)/int64(s.frameSize)
			hunk := frame / int64(s.framesPerHunk)
			hunkOff := (frame % int64(s.framesPerHunk)) * int64(s.unitBytes)

			//nolint:gosec // Hunk indices are bounded by the container.
			if err := s.loadHunk(uint32(hunk)); err != nil {
				return int(n), fmt.Errorf("load hunk %d: %w", hunk, err)
			}

			src := hunkOff + int64(s.frameOffset) + frameOff
			copy(p[n:n+amount], s.hunkmem[src:src+amount])
		}

		n += amount
		s.offset += amount
	}

	return int(n), nil
}

// ReadByte reads and returns the next byte of the track.
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return b[0], nil
}

// ReadLine fills buf from the cursor, stopping early at the end of the
// track, and returns the filled prefix. io.EOF is reported only when no
// bytes were available at all.
func (s *Stream) ReadLine(buf []byte) ([]byte, error) {
	n := 0
	for n < len(buf) {
		b, err := s.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n == 0 {
					return buf[:0], io.EOF
				}
				return buf[:n], nil
			}
			return buf[:n], err
		}
		buf[n] = b
		n++
	}
	return buf[:n], nil
}

// Seek moves the cursor per io.Seeker. A target past the end of the
// track clamps to the end; a negative target or unknown whence fails
// without moving the cursor.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.offset + offset
	case io.SeekEnd:
		target = s.trackEnd + offset
	default:
		return s.offset, fmt.Errorf("%w: %d", ErrInvalidWhence, whence)
	}

	if target < 0 {
		return s.offset, fmt.Errorf("%w: %d", ErrNegativeOffset, target)
	}
	if target > s.trackEnd {
		target = s.trackEnd
	}

	s.offset = target
	return target, nil
}

// Tell returns the cursor position.
func (s *Stream) Tell() int64 {
	return s.offset
}

// Rewind moves the cursor back to the start of the track.
func (s *Stream) Rewind() {
	s.offset = 0
}
