package flac

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/icza/bitio"
	"github.com/lorev/flac/internal/ioutilx"
	"github.com/lorev/flac/meta"
)

// encodeBlock encodes the given metadata block, writing to bw.
func encodeBlock(bw *bitio.Writer, block *meta.Block, last bool) error {
	switch body := block.Body.(type) {
	case *meta.StreamInfo:
		return encodeStreamInfo(bw, body, last)
	case *meta.Application:
		return encodeApplication(bw, body, last)
	case *meta.SeekTable:
		return encodeSeekTable(bw, body, last)
	case *meta.VorbisComment:
		return encodeVorbisComment(bw, body, last)
	case *meta.CueSheet:
		return encodeCueSheet(bw, body, last)
	case *meta.Picture:
		return encodePicture(bw, body, last)
	case nil:
		// Padding metadata blocks have no body.
		// Metadata blocks of reserved type have unparsed bodies;
		// they are stored as zero-padding of the original body length.
		return encodePadding(bw, block.Length, last)
	default:
		return fmt.Errorf("flac.encodeBlock: support for metadata block body type %T not yet implemented", body)
	}
}

// encodeBlockHeader encodes the metadata block header, writing to bw.
func encodeBlockHeader(bw *bitio.Writer, hdr *meta.Header) error {
	// 1 bit: IsLast
	if err := bw.WriteBool(hdr.IsLast); err != nil {
		return err
	}

	// 7 bits: Type
	if err := bw.WriteBits(uint64(hdr.Type), 7); err != nil {
		return err
	}

	// 24 bits: Length
	if err := bw.WriteBits(uint64(hdr.Length), 24); err != nil {
		return err
	}

	return nil
}

// encodePadding encodes the Padding metadata block, writing to bw.
func encodePadding(bw *bitio.Writer, length int64, last bool) error {
	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypePadding,
		Length: length,
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// store metadata block body
	if _, err := io.CopyN(bw, ioutilx.Zero, length); err != nil {
		return err
	}

	return nil
}

// encodeStreamInfo encodes the StreamInfo metadata block, writing to bw.
func encodeStreamInfo(bw *bitio.Writer, si *meta.StreamInfo, last bool) error {
	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypeStreamInfo,
		Length: 34,
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// 16 bits: BlockSizeMin.
	if err := bw.WriteBits(uint64(si.BlockSizeMin), 16); err != nil {
		return err
	}

	// 16 bits: BlockSizeMax.
	if err := bw.WriteBits(uint64(si.BlockSizeMax), 16); err != nil {
		return err
	}

	// 24 bits: FrameSizeMin.
	if err := bw.WriteBits(uint64(si.FrameSizeMin), 24); err != nil {
		return err
	}

	// 24 bits: FrameSizeMax.
	if err := bw.WriteBits(uint64(si.FrameSizeMax), 24); err != nil {
		return err
	}

	// 20 bits: SampleRate.
	if err := bw.WriteBits(uint64(si.SampleRate), 20); err != nil {
		return err
	}

	// 3 bits: NChannels; stored as (number of channels) - 1.
	if err := bw.WriteBits(uint64(si.NChannels-1), 3); err != nil {
		return err
	}

	// 5 bits: BitsPerSample; stored as (bits-per-sample) - 1.
	if err := bw.WriteBits(uint64(si.BitsPerSample-1), 5); err != nil {
		return err
	}

	// 36 bits: NSamples.
	if err := bw.WriteBits(si.NSamples, 36); err != nil {
		return err
	}

	// 16 bytes: MD5sum.
	if _, err := bw.Write(si.MD5sum[:]); err != nil {
		return err
	}

	return nil
}

// encodeApplication encodes the Application metadata block, writing to bw.
func encodeApplication(bw *bitio.Writer, app *meta.Application, last bool) error {
	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypeApplication,
		Length: int64(4 + len(app.Data)),
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// 32 bits: ID.
	if err := binary.Write(bw, binary.BigEndian, app.ID); err != nil {
		return err
	}

	if _, err := bw.Write(app.Data); err != nil {
		return err
	}

	return nil
}

// encodeSeekTable encodes the SeekTable metadata block, writing to bw.
func encodeSeekTable(bw *bitio.Writer, table *meta.SeekTable, last bool) error {
	// store metadata block header;
	// each seek point is 18 bytes in size.
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypeSeekTable,
		Length: int64(len(table.Points) * 18),
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// store seek points.
	for _, point := range table.Points {
		if err := binary.Write(bw, binary.BigEndian, point); err != nil {
			return err
		}
	}

	return nil
}

// encodeVorbisComment encodes the VorbisComment metadata block, writing to
// bw.
func encodeVorbisComment(bw *bitio.Writer, comment *meta.VorbisComment, last bool) error {
	// store metadata block header
	length := int64(4 + len(comment.Vendor) + 4)
	for _, tag := range comment.Tags {
		length += int64(4 + len(tag[0]) + 1 + len(tag[1]))
	}
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypeVorbisComment,
		Length: length,
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// 32 bits: vendor length.
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(comment.Vendor))); err != nil {
		return err
	}

	// (vendor length) bytes: Vendor.
	if _, err := bw.Write([]byte(comment.Vendor)); err != nil {
		return err
	}

	// store tags.
	// 32 bits: number of tags.
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(comment.Tags))); err != nil {
		return err
	}

	for _, tag := range comment.Tags {
		// Each tag has the following format:
		//    NAME=VALUE
		vector := tag[0] + "=" + tag[1]

		// 32 bits: vector length.
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(vector))); err != nil {
			return err
		}

		// (vector length) bytes: vector.
		if _, err := bw.Write([]byte(vector)); err != nil {
			return err
		}
	}

	return nil
}

// encodeCueSheet encodes the CueSheet metadata block, writing to bw.
func encodeCueSheet(bw *bitio.Writer, cs *meta.CueSheet, last bool) error {
	// store metadata block header;
	// the cue sheet header is 396 bytes in size,
	// each track is 36 bytes with 12 bytes per track index point.
	length := int64(396)
	for _, track := range cs.Tracks {
		length += int64(36 + len(track.Indices)*12)
	}
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypeCueSheet,
		Length: length,
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// 128 bytes: MCN, thereafter zero-padded.
	if len(cs.MCN) > 128 {
		return fmt.Errorf("flac.encodeCueSheet: media catalog number exceeds 128 bytes; got %d", len(cs.MCN))
	}
	if _, err := bw.Write([]byte(cs.MCN)); err != nil {
		return err
	}
	if _, err := io.CopyN(bw, ioutilx.Zero, int64(128-len(cs.MCN))); err != nil {
		return err
	}

	// 64 bits: NLeadInSamples.
	if err := binary.Write(bw, binary.BigEndian, cs.NLeadInSamples); err != nil {
		return err
	}

	// 1 bit: IsCompactDisc.
	// 7 bits: reserved.
	if err := bw.WriteBool(cs.IsCompactDisc); err != nil {
		return err
	}
	if err := bw.WriteBits(0, 7); err != nil {
		return err
	}

	// 258 bytes: reserved.
	if _, err := io.CopyN(bw, ioutilx.Zero, 258); err != nil {
		return err
	}

	// 8 bits: (number of tracks).
	if len(cs.Tracks) < 1 || len(cs.Tracks) > 255 {
		return fmt.Errorf("flac.encodeCueSheet: invalid number of tracks; expected >= 1 and <= 255, got %d", len(cs.Tracks))
	}
	if err := bw.WriteByte(byte(len(cs.Tracks))); err != nil {
		return err
	}

	// store cue sheet tracks.
	for i, track := range cs.Tracks {
		// 64 bits: Offset.
		if err := binary.Write(bw, binary.BigEndian, track.Offset); err != nil {
			return err
		}

		// 8 bits: Num.
		if err := bw.WriteByte(track.Num); err != nil {
			return err
		}

		// 12 bytes: ISRC, thereafter zero-padded.
		if len(track.ISRC) > 12 {
			return fmt.Errorf("flac.encodeCueSheet: international standard recording code exceeds 12 bytes; got %d", len(track.ISRC))
		}
		if _, err := bw.Write([]byte(track.ISRC)); err != nil {
			return err
		}
		if _, err := io.CopyN(bw, ioutilx.Zero, int64(12-len(track.ISRC))); err != nil {
			return err
		}

		// 1 bit: IsAudio.
		// 1 bit: HasPreEmphasis.
		// 6 bits: reserved.
		if err := bw.WriteBool(!track.IsAudio); err != nil {
			return err
		}
		if err := bw.WriteBool(track.HasPreEmphasis); err != nil {
			return err
		}
		if err := bw.WriteBits(0, 6); err != nil {
			return err
		}

		// 13 bytes: reserved.
		if _, err := io.CopyN(bw, ioutilx.Zero, 13); err != nil {
			return err
		}

		// 8 bits: (number of index points).
		if i == len(cs.Tracks)-1 {
			// The lead-out track has zero index points.
			if len(track.Indices) != 0 {
				return fmt.Errorf("flac.encodeCueSheet: lead-out track has %d index points; expected 0", len(track.Indices))
			}
		} else if len(track.Indices) < 1 {
			return fmt.Errorf("flac.encodeCueSheet: at least one track index point is required; got %d", len(track.Indices))
		}
		if err := bw.WriteByte(byte(len(track.Indices))); err != nil {
			return err
		}

		// store the index points of the track.
		for _, index := range track.Indices {
			// 64 bits: Offset.
			if err := binary.Write(bw, binary.BigEndian, index.Offset); err != nil {
				return err
			}

			// 8 bits: Num.
			if err := bw.WriteByte(index.Num); err != nil {
				return err
			}

			// 3 bytes: reserved.
			if _, err := io.CopyN(bw, ioutilx.Zero, 3); err != nil {
				return err
			}
		}
	}

	return nil
}

// encodePicture encodes the Picture metadata block, writing to bw.
func encodePicture(bw *bitio.Writer, pic *meta.Picture, last bool) error {
	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypePicture,
		Length: int64(32 + len(pic.MIME) + len(pic.Desc) + len(pic.Data)),
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// 32 bits: Type.
	if pic.Type > 20 {
		return fmt.Errorf("flac.encodePicture: reserved picture type (%d)", pic.Type)
	}
	if err := binary.Write(bw, binary.BigEndian, pic.Type); err != nil {
		return err
	}

	// 32 bits: (MIME type length).
	if err := binary.Write(bw, binary.BigEndian, uint32(len(pic.MIME))); err != nil {
		return err
	}

	// (MIME type length) bytes: MIME.
	if _, err := bw.Write([]byte(pic.MIME)); err != nil {
		return err
	}

	// 32 bits: (description length).
	if err := binary.Write(bw, binary.BigEndian, uint32(len(pic.Desc))); err != nil {
		return err
	}

	// (description length) bytes: Desc.
	if _, err := bw.Write([]byte(pic.Desc)); err != nil {
		return err
	}

	// 32 bits: Width.
	if err := binary.Write(bw, binary.BigEndian, pic.Width); err != nil {
		return err
	}

	// 32 bits: Height.
	if err := binary.Write(bw, binary.BigEndian, pic.Height); err != nil {
		return err
	}

	// 32 bits: Depth.
	if err := binary.Write(bw, binary.BigEndian, pic.Depth); err != nil {
		return err
	}

	// 32 bits: NPalColors.
	if err := binary.Write(bw, binary.BigEndian, pic.NPalColors); err != nil {
		return err
	}

	// 32 bits: (data length).
	if err := binary.Write(bw, binary.BigEndian, uint32(len(pic.Data))); err != nil {
		return err
	}

	// (data length) bytes: Data.
	if _, err := bw.Write(pic.Data); err != nil {
		return err
	}

	return nil
}
