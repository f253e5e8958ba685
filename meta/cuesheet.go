package meta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lorev/flac/internal/ioutilx"
)

// CueSheet describes how tracks of the audio stream are laid out,
// as stored in the table of contents of a Compact Disc,
// or for other storage media.
type CueSheet struct {
	// Media catalog number.
	MCN string
	// Number of lead-in samples;
	// this field only has meaning for Compact Disc cue sheets.
	NLeadInSamples uint64
	// Specifies if the cue sheet corresponds to a Compact Disc.
	IsCompactDisc bool
	// One or more tracks.
	// The last track of a cue sheet is always the lead-out track.
	Tracks []CueSheetTrack
}

// CueSheetTrack contains the start offset of
// a track and other track specific metadata.
type CueSheetTrack struct {
	// Track offset in samples,
	// relative to the beginning of the FLAC audio stream.
	Offset uint64
	// Track number; never 0, always unique within a cue sheet.
	Num uint8
	// International Standard Recording Code;
	// empty if not present.
	ISRC string
	// Specifies if the track contains audio or data.
	IsAudio bool
	// Specifies if the track has been recorded with pre-emphasis.
	HasPreEmphasis bool
	// Every track has one or more track index points,
	// except for the lead-out track which has zero.
	// Each index point specifies a position within the track.
	Indices []CueSheetTrackIndex
}

// A CueSheetTrackIndex specifies a position within a track.
type CueSheetTrackIndex struct {
	// Index point offset in samples, relative to the track offset.
	Offset uint64
	// Index point number;
	// subsequently incrementing by 1 and always unique within a track.
	Num uint8
}

// parseCueSheet reads and parses the body of a CueSheet metadata block.
func (block *Block) parseCueSheet() error {
	// 128 bytes: MCN.
	buf, err := readString(block.lr, 128)
	if err != nil {
		return unexpected(err)
	}

	cs := new(CueSheet)
	block.Body = cs
	cs.MCN = strings.TrimRight(buf, "\x00")

	// 64 bits: NLeadInSamples.
	if err := binary.Read(block.lr, binary.BigEndian, &cs.NLeadInSamples); err != nil {
		return unexpected(err)
	}

	// 1 bit: IsCompactDisc.
	// 7 bits: reserved.
	flags, err := ioutilx.ReadByte(block.lr)
	if err != nil {
		return unexpected(err)
	}
	cs.IsCompactDisc = flags&0x80 != 0
	if flags&0x7F != 0 {
		return errors.New("meta.Block.parseCueSheet: non-zero reserved value")
	}

	// 258 bytes: reserved.
	if _, err := io.CopyN(io.Discard, block.lr, 258); err != nil {
		return unexpected(err)
	}

	// 8 bits: (number of tracks).
	n, err := ioutilx.ReadByte(block.lr)
	if err != nil {
		return unexpected(err)
	}
	if n < 1 {
		return errors.New("meta.Block.parseCueSheet: at least one track is required")
	}
	if cs.IsCompactDisc && n > 100 {
		return fmt.Errorf("meta.Block.parseCueSheet: number of tracks (%d) on a Compact Disc exceeds 100", n)
	}

	// parse cue sheet tracks;
	// the last track is always the lead-out track.
	cs.Tracks = make([]CueSheetTrack, n)
	for i := range cs.Tracks {
		track := &cs.Tracks[i]

		// 64 bits: Offset.
		if err := binary.Read(block.lr, binary.BigEndian, &track.Offset); err != nil {
			return unexpected(err)
		}
		// Each track offset of a Compact Disc has to
		// be evenly divisible by 588 samples,
		// as 44100 samples/second * 1/75th of a second equals 588 samples.
		if cs.IsCompactDisc && track.Offset%588 != 0 {
			return fmt.Errorf("meta.Block.parseCueSheet: track offset (%d) on a Compact Disc is not evenly divisible by 588", track.Offset)
		}

		// 8 bits: Num.
		if track.Num, err = ioutilx.ReadByte(block.lr); err != nil {
			return unexpected(err)
		}
		if track.Num == 0 {
			return errors.New("meta.Block.parseCueSheet: invalid track number (0)")
		}

		// 12 bytes: ISRC.
		isrc, err := readString(block.lr, 12)
		if err != nil {
			return unexpected(err)
		}
		track.ISRC = strings.TrimRight(isrc, "\x00")

		// 1 bit: IsAudio.
		// 1 bit: HasPreEmphasis.
		// 6 bits: reserved.
		flags, err := ioutilx.ReadByte(block.lr)
		if err != nil {
			return unexpected(err)
		}
		track.IsAudio = flags&0x80 == 0
		track.HasPreEmphasis = flags&0x40 != 0
		if flags&0x3F != 0 {
			return errors.New("meta.Block.parseCueSheet: non-zero reserved value")
		}

		// 13 bytes: reserved.
		if _, err := io.CopyN(io.Discard, block.lr, 13); err != nil {
			return unexpected(err)
		}

		// 8 bits: (number of index points).
		nindices, err := ioutilx.ReadByte(block.lr)
		if err != nil {
			return unexpected(err)
		}
		if i == len(cs.Tracks)-1 {
			// The lead-out track has zero index points.
			if nindices != 0 {
				return fmt.Errorf("meta.Block.parseCueSheet: lead-out track has %d index points; expected 0", nindices)
			}
			continue
		}
		if nindices < 1 {
			return errors.New("meta.Block.parseCueSheet: at least one track index point is required")
		}

		// parse the index points of the track.
		track.Indices = make([]CueSheetTrackIndex, nindices)
		for j := range track.Indices {
			index := &track.Indices[j]

			// 64 bits: Offset.
			if err := binary.Read(block.lr, binary.BigEndian, &index.Offset); err != nil {
				return unexpected(err)
			}

			// 8 bits: Num.
			if index.Num, err = ioutilx.ReadByte(block.lr); err != nil {
				return unexpected(err)
			}

			// 3 bytes: reserved.
			if _, err := io.CopyN(io.Discard, block.lr, 3); err != nil {
				return unexpected(err)
			}
		}
	}

	return nil
}
