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

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chdtools/chdstream/chd"
	"github.com/chdtools/chdstream/internal/chdtest"
)

// fillUnits fills a fake container's flat unit array with a
// deterministic per-byte pattern across frames frames.
func fillUnits(c *fakeContainer, frames int) {
	c.data = make([]byte, frames*int(c.unitBytes))
	for i := range c.data {
		c.data[i] = byte(i * 31 / 7)
	}
}

// trackPayload extracts the expected stream bytes for a track starting
// at frame trackFrame with the given frame count and size.
func trackPayload(c *fakeContainer, trackFrame, frames, frameSize int, swab bool) []byte {
	out := make([]byte, 0, frames*frameSize)
	for f := trackFrame; f < trackFrame+frames; f++ {
		unit := c.data[f*int(c.unitBytes) : f*int(c.unitBytes)+frameSize]
		out = append(out, unit...)
	}
	if swab {
		swapped := make([]byte, len(out))
		copy(swapped, out)
		swapPairs(swapped)
		return swapped
	}
	return out
}

func TestStreamReadAll(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 10)))
	fillUnits(c, 12)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 10, sectorSize, false)
	require.Equal(t, int64(len(want)), s.Size())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Follow-up reads report end of track.
	n, err := s.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReadChunked(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 9)))
	fillUnits(c, 12)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 9, sectorSize, false)

	// Odd chunk sizes force reads to split within and across frame and
	// hunk boundaries.
	var got []byte
	buf := make([]byte, 611)
	for {
		n, err := s.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, want, got)
}

func TestStreamSecondTrack(t *testing.T) {
	t.Parallel()

	// Track 2 starts after track 1's frames plus alignment padding.
	c := newFake(
		rec(chd.MetaTagCDTrack2, cht2(1, "AUDIO", 6)),
		rec(chd.MetaTagCDTrack2, cht2(2, "MODE1_RAW", 5)),
	)
	fillUnits(c, 16)

	s, err := New(c, 2)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, uint32(8), s.Track().FrameOffset)

	want := trackPayload(c, 8, 5, sectorSize, false)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStreamAudioByteSwap(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "AUDIO", 4)))
	fillUnits(c, 4)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 4, sectorSize, true)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStreamPregap(t *testing.T) {
	t.Parallel()

	// A pregap sharing the track's type extends the stream with zero
	// frames before the stored data.
	c := newFake(rec(chd.MetaTagCDTrack2,
		cht2Pregap(1, "MODE1_RAW", 8, 2, "MODE1_RAW")))
	fillUnits(c, 8)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.Equal(t, int64(10*sectorSize), s.Size())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Len(t, got, 10*sectorSize)

	assert.Equal(t, make([]byte, 2*sectorSize), got[:2*sectorSize])
	assert.Equal(t, trackPayload(c, 0, 8, sectorSize, false), got[2*sectorSize:])
}

func TestStreamPregapDifferentType(t *testing.T) {
	t.Parallel()

	// A pregap of a different type is not part of the stream.
	c := newFake(rec(chd.MetaTagCDTrack2,
		cht2Pregap(1, "MODE1_RAW", 8, 2, "VAUDIO")))
	fillUnits(c, 8)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, int64(8*sectorSize), s.Size())
}

func TestStreamSeek(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 8)))
	fillUnits(c, 8)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 8, sectorSize, false)

	pos, err := s.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	buf := make([]byte, 50)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, want[100:150], buf)

	pos, err = s.Seek(-50, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	pos, err = s.Seek(-sectorSize, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, s.Size()-sectorSize, pos)

	// Past the end clamps, and the next read reports EOF.
	pos, err = s.Seek(s.Size()+5000, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, s.Size(), pos)
	_, err = s.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamSeekErrors(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 8)))
	fillUnits(c, 8)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Seek(64, io.SeekStart)
	require.NoError(t, err)

	// Failed seeks leave the cursor where it was.
	_, err = s.Seek(-1000, io.SeekStart)
	assert.ErrorIs(t, err, ErrNegativeOffset)
	assert.Equal(t, int64(64), s.Tell())

	_, err = s.Seek(0, 99)
	assert.ErrorIs(t, err, ErrInvalidWhence)
	assert.Equal(t, int64(64), s.Tell())
}

func TestStreamTellRewind(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 8)))
	fillUnits(c, 8)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, int64(0), s.Tell())

	buf := make([]byte, 777)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, int64(777), s.Tell())

	s.Rewind()
	assert.Equal(t, int64(0), s.Tell())

	again := make([]byte, 777)
	_, err = io.ReadFull(s, again)
	require.NoError(t, err)
	assert.Equal(t, buf, again)
}

func TestStreamReadByte(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 1)))
	fillUnits(c, 1)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 1, sectorSize, false)
	for i := 0; i < 4; i++ {
		b, err := s.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, want[i], b, "byte %d", i)
	}

	_, err = s.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = s.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReadLine(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 1)))
	fillUnits(c, 1)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 1, sectorSize, false)

	buf := make([]byte, 100)
	line, err := s.ReadLine(buf)
	require.NoError(t, err)
	assert.Equal(t, want[:100], line)

	// Near the end the line is truncated to what remains.
	_, err = s.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	line, err = s.ReadLine(buf)
	require.NoError(t, err)
	assert.Equal(t, want[len(want)-10:], line)

	// At the end there is nothing to fill.
	_, err = s.ReadLine(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamHunkFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 10)))
	fillUnits(c, 12)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Frames 4-7 live in hunk 1. A decode failure there surfaces as an
	// error carrying the bytes read so far.
	c.failHunk = 1

	buf := make([]byte, 6*sectorSize)
	n, err := s.Read(buf)
	require.ErrorIs(t, err, chd.ErrDecompressFailed)
	assert.Equal(t, 4*sectorSize, n)

	want := trackPayload(c, 0, 10, sectorSize, false)
	assert.Equal(t, want[:4*sectorSize], buf[:n])

	// The stream stays usable once the hunk decodes again.
	c.failHunk = -1
	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want[4*sectorSize:], rest)
}

func TestStreamCachedHunkSurvivesFailure(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 10)))
	fillUnits(c, 12)

	s, err := New(c, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := trackPayload(c, 0, 10, sectorSize, false)

	// Load hunk 0 into the cache.
	buf := make([]byte, sectorSize)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)

	// Reads served from the cached hunk never touch the container.
	c.failHunk = 0
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, want[sectorSize:2*sectorSize], buf)
}

func TestNewSelectorMiss(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "AUDIO", 10)))

	_, err := New(c, TrackFirstData)
	assert.ErrorIs(t, err, ErrTrackNotFound)
	assert.False(t, c.closed, "New must not close a container it does not own")
}

func TestNewInvalidGeometry(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 10)))
	c.unitBytes = 0

	_, err := New(c, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestStreamCloseIdempotent(t *testing.T) {
	t.Parallel()

	c := newFake(rec(chd.MetaTagCDTrack2, cht2(1, "MODE1_RAW", 4)))
	fillUnits(c, 4)

	s, err := New(c, 1)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, c.closed)
	require.NoError(t, s.Close())

	var nilStream *Stream
	assert.NoError(t, nilStream.Close())
}

func TestOpenFromFile(t *testing.T) {
	t.Parallel()

	data := make([]byte, 8*2448)
	for i := range data {
		data[i] = byte(i % 253)
	}
	img := chdtest.Image{
		HunkBytes: 4 * 2448,
		UnitBytes: 2448,
		Tracks: []chdtest.Track{
			{Number: 1, Type: "AUDIO", SubType: "NONE", Frames: 4},
			{Number: 2, Type: "MODE1_RAW", SubType: "NONE", Frames: 4},
		},
		Data: data,
	}

	s, err := Open(chdtest.Write(t, img), TrackFirstData)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, 2, s.Track().Number)
	assert.Equal(t, int64(4*sectorSize), s.Size())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Len(t, got, 4*sectorSize)

	// Frame 4 opens track 2; each frame is the payload prefix of its
	// 2448-byte unit.
	for f := 0; f < 4; f++ {
		unit := data[(4+f)*2448:]
		if !bytes.Equal(got[f*sectorSize:(f+1)*sectorSize], unit[:sectorSize]) {
			t.Fatalf("frame %d payload mismatch", f)
		}
	}
}

func TestOpenBadSelector(t *testing.T) {
	t.Parallel()

	img := chdtest.Image{
		HunkBytes: 2448,
		UnitBytes: 2448,
		Tracks:    []chdtest.Track{{Number: 1, Type: "AUDIO", SubType: "NONE", Frames: 1}},
		Data:      make([]byte, 2448),
	}

	_, err := Open(chdtest.Write(t, img), 9)
	assert.ErrorIs(t, err, ErrTrackNotFound)
}
