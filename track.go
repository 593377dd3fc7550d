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
	"fmt"
	"strings"

	"github.com/chdtools/chdstream/chd"
)

// Selector identifies the track to stream: a track number as recorded in
// the image, or one of the negative symbolic values.
type Selector int32

const (
	// TrackFirstData selects the first track that is not an audio track.
	TrackFirstData Selector = -1

	// TrackLast selects the track with the highest metadata index.
	TrackLast Selector = -2

	// TrackPrimary selects the longest non-audio track. Ties go to the
	// earlier track.
	TrackPrimary Selector = -3
)

// audioType is the track type string marking CD audio tracks.
const audioType = "AUDIO"

// trackPad is the frame alignment of track starts within the image.
const trackPad = 4

// TrackInfo describes one track as recorded in the image's metadata.
type TrackInfo struct {
	// Number is the 1-based track number recorded in the metadata.
	Number int

	// Type and SubType describe the sector encoding ("AUDIO",
	// "MODE1_RAW", ...) and subchannel layout.
	Type    string
	SubType string

	// PgType and PgSub describe the pregap's own encoding, which may
	// differ from the track's.
	PgType string
	PgSub  string

	// Frames is the track length in sector frames.
	Frames uint32

	// Pregap and Postgap are frame counts of filler surrounding the
	// track's content. Pad is the GD-ROM pad field.
	Pregap  uint32
	Postgap uint32
	Pad     uint32

	// Extra is the padding that rounds Frames up to a trackPad boundary.
	Extra uint32

	// FrameOffset is the cumulative frame count of all preceding tracks
	// including their padding. It is filled in during selection, not by
	// the metadata scan itself.
	FrameOffset uint32
}

// IsAudio reports whether the track holds CD audio.
func (ti *TrackInfo) IsAudio() bool {
	return ti.Type == audioType
}

// paddingFrames returns the frames needed to round count up to a
// trackPad boundary.
func paddingFrames(count uint32) uint32 {
	return (count+trackPad-1)&^(trackPad-1) - count
}

// Track metadata text formats, in lookup priority order.
const (
	cdTrack2Format   = "TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d PREGAP:%d PGTYPE:%s PGSUB:%s POSTGAP:%d"
	cdTrackFormat    = "TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d"
	gdROMTrackFormat = "TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d PAD:%d PREGAP:%d PGTYPE:%s PGSUB:%s POSTGAP:%d"
)

// metaText converts a raw metadata record to text, dropping the trailing
// NUL and whitespace.
func metaText(data []byte) string {
	return strings.TrimRight(string(data), "\x00 \t\r\n")
}

// readTrackInfo reads the index-th track record from c, trying the CD v2,
// CD v1 and GD-ROM metadata formats in that order. The second return is
// false when no track metadata exists at index, which ends the track
// list for callers.
func readTrackInfo(c Container, index int) (TrackInfo, bool) {
	var ti TrackInfo

	if data, err := c.Metadata(chd.MetaTagCDTrack2, index); err == nil {
		_, err = fmt.Sscanf(metaText(data), cdTrack2Format,
			&ti.Number, &ti.Type, &ti.SubType, &ti.Frames,
			&ti.Pregap, &ti.PgType, &ti.PgSub, &ti.Postgap)
		if err != nil {
			return TrackInfo{}, false
		}
		ti.Extra = paddingFrames(ti.Frames)
		return ti, true
	}

	if data, err := c.Metadata(chd.MetaTagCDTrack, index); err == nil {
		_, err = fmt.Sscanf(metaText(data), cdTrackFormat,
			&ti.Number, &ti.Type, &ti.SubType, &ti.Frames)
		if err != nil {
			return TrackInfo{}, false
		}
		ti.Extra = paddingFrames(ti.Frames)
		return ti, true
	}

	if data, err := c.Metadata(chd.MetaTagGDROMTrack, index); err == nil {
		_, err = fmt.Sscanf(metaText(data), gdROMTrackFormat,
			&ti.Number, &ti.Type, &ti.SubType, &ti.Frames,
			&ti.Pad, &ti.Pregap, &ti.PgType, &ti.PgSub, &ti.Postgap)
		if err != nil {
			return TrackInfo{}, false
		}
		ti.Extra = paddingFrames(ti.Frames)
		return ti, true
	}

	return TrackInfo{}, false
}

// findTrackNumber scans the track list for the track numbered number,
// accumulating the frame offset of everything before it.
func findTrackNumber(c Container, number int) (TrackInfo, bool) {
	var frameOffset uint32
	for i := 0; ; i++ {
		ti, ok := readTrackInfo(c, i)
		if !ok {
			return TrackInfo{}, false
		}
		if ti.Number == number {
			ti.FrameOffset = frameOffset
			return ti, true
		}
		frameOffset += ti.Frames + ti.Extra
	}
}

// findSpecialTrack resolves the symbolic selectors by scanning track
// numbers upward until the lookup fails.
func findSpecialTrack(c Container, sel Selector) (TrackInfo, bool) {
	var last TrackInfo
	seen := false
	largestTrack := 0
	var largestFrames uint32

	for number := 1; ; number++ {
		ti, ok := findTrackNumber(c, number)
		if !ok {
			switch {
			case sel == TrackLast && seen:
				return last, true
			case sel == TrackPrimary && largestTrack != 0:
				// Re-run the numbered lookup so the result carries its
				// own frame offset.
				return findTrackNumber(c, largestTrack)
			}
			return TrackInfo{}, false
		}

		switch sel {
		case TrackFirstData:
			if !ti.IsAudio() {
				return ti, true
			}
		case TrackPrimary:
			if !ti.IsAudio() && ti.Frames > largestFrames {
				largestFrames = ti.Frames
				largestTrack = ti.Number
			}
		}

		last = ti
		seen = true
	}
}

// findTrack resolves sel to a track record, or reports failure when the
// selector matches nothing.
func findTrack(c Container, sel Selector) (TrackInfo, bool) {
	if sel < 0 {
		return findSpecialTrack(c, sel)
	}
	return findTrackNumber(c, int(sel))
}

// Tracks enumerates every track recorded in the image at path, in
// metadata order, with frame offsets filled in.
func Tracks(path string) ([]TrackInfo, error) {
	c, err := chd.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer func() { _ = c.Close() }()

	var tracks []TrackInfo
	var frameOffset uint32
	for i := 0; ; i++ {
		ti, ok := readTrackInfo(c, i)
		if !ok {
			return tracks, nil
		}
		ti.FrameOffset = frameOffset
		frameOffset += ti.Frames + ti.Extra
		tracks = append(tracks, ti)
	}
}
