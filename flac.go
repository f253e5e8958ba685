// Package flac provides access to FLAC (Free Lossless Audio Codec) streams.
package flac

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lorev/flac/frame"
	"github.com/lorev/flac/internal/bufseekio"
	"github.com/lorev/flac/meta"
)

var (
	flacSignature  = []byte("fLaC")                                            // marks the beginning of a FLAC stream
	id3Signature   = []byte("ID3")                                             // marks the beginning of an ID3 stream, used to skip over ID3 data
	ErrNoSeektable = errors.New("stream.searchSeekTable: no seektable exists") // seektable has not been created (search in the stream is impossible)
)

// defaultSeekTableSize is the number of seek points a seek table
// built by makeSeekTable holds at most.
const defaultSeekTableSize = 100

// Stream contains the metadata blocks and
// provides access to the audio frames of a FLAC stream.
type Stream struct {
	// The StreamInfo metadata block describes
	// the basic properties of the FLAC audio stream.
	Info *meta.StreamInfo
	// Zero or more metadata blocks.
	Blocks []*meta.Block
	// seekTable contains one or
	// more pre-calculated audio frame seek points of the stream;
	// nil if uninitialized.
	seekTable *meta.SeekTable
	// seekTableSize determines how many seek points
	// the seekTable should have if the
	// flac file does not include one in the metadata.
	seekTableSize int
	// dataStart is the offset of the
	// first frame header since SeekPoint.Offset
	// is relative to this position.
	dataStart int64
	// Underlying io.Reader, or io.ReadCloser.
	r io.Reader
}

// New creates a new Stream for accessing the audio samples of r.
// It reads and parses the FLAC signature and the StreamInfo metadata block,
// but skips all other metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the entire next frame including audio samples.
func New(r io.Reader) (stream *Stream, err error) {
	// verify FLAC signature and parse the StreamInfo metadata block.
	br := bufio.NewReader(r)
	stream = &Stream{r: br}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return nil, err
	}

	// skip the remaining metadata blocks.
	for !block.IsLast {
		block, err = meta.New(br)
		if err != nil && err != meta.ErrReservedType {
			return stream, err
		}
		// a stream carries exactly one StreamInfo block, leading the chain.
		if block.Type == meta.TypeStreamInfo {
			return stream, errors.New("flac.New: duplicate StreamInfo metadata block")
		}

		if err = block.Skip(); err != nil {
			return stream, err
		}
	}

	return stream, nil
}

// Close closes the stream gracefully if the underlying io.Reader also implements the io.Closer interface.
func (stream *Stream) Close() error {
	if closer, ok := stream.r.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// skipID3v2 skips ID3v2 data prepended to flac files.
// The first four bytes of the tag have already been consumed by the caller.
func (stream *Stream) skipID3v2() error {
	// read the remaining six bytes of the ID3v2 header.
	var buf [6]byte
	if _, err := io.ReadFull(stream.r, buf[:]); err != nil {
		return err
	}

	// the size of the succeeding tag data is encoded as a synchsafe integer.
	size := int64(buf[2])<<21 | int64(buf[3])<<14 | int64(buf[4])<<7 | int64(buf[5])
	_, err := io.CopyN(io.Discard, stream.r, size)
	return err
}

// parseStreamInfo verifies the signature which marks the beginning of a FLAC stream,
// and parses the StreamInfo metadata block.
// It returns a boolean value which specifies if the
// StreamInfo block was the last metadata block of the FLAC stream.
func (stream *Stream) parseStreamInfo() (block *meta.Block, err error) {
	// verify FLAC signature.
	r := stream.r
	var buf [4]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return block, err
	}

	// skip prepended ID3v2 data.
	if bytes.Equal(buf[:3], id3Signature) {
		if err := stream.skipID3v2(); err != nil {
			return block, err
		}

		// second attempt at verifying signature.
		if _, err = io.ReadFull(r, buf[:]); err != nil {
			return block, err
		}
	}

	if !bytes.Equal(buf[:], flacSignature) {
		return block, fmt.Errorf("flac.parseStreamInfo: invalid FLAC signature; expected %q, got %q", flacSignature, buf)
	}

	// parse StreamInfo metadata block.
	block, err = meta.Parse(r)
	if err != nil {
		return block, err
	}

	si, ok := block.Body.(*meta.StreamInfo)
	if !ok {
		return block, fmt.Errorf("flac.parseStreamInfo: incorrect type of first metadata block; expected *meta.StreamInfo, got %T", block.Body)
	}

	stream.Info = si
	return block, nil
}

// Next parses the frame header of the next audio frame.
// It returns io.EOF to signal a graceful end of FLAC stream.
//
// Call Frame.Parse to parse the audio samples of its subframes.
func (stream *Stream) Next() (f *frame.Frame, err error) {
	f, err = frame.New(stream.r)
	if err != nil {
		return f, err
	}

	// fields left zero by the frame header take
	// their value from the StreamInfo metadata block.
	if f.BitsPerSample == 0 {
		f.BitsPerSample = stream.Info.BitsPerSample
	}
	if f.SampleRate == 0 {
		f.SampleRate = stream.Info.SampleRate
	}

	return f, nil
}

// ParseNext parses the entire next frame including audio samples.
// It returns io.EOF to signal a graceful end of FLAC stream.
func (stream *Stream) ParseNext() (f *frame.Frame, err error) {
	f, err = stream.Next()
	if err != nil {
		return f, err
	}

	return f, f.Parse()
}

// searchSeekTable searches the seek table and returns
// the seek point preceding the one which covers the given sample number.
// If no seek point covers the sample number,
// the last seek point of the table is returned.
// If the sample number is lower than the first seek point,
// the first seek point is returned.
func (stream *Stream) searchSeekTable(sampleNum uint64) (meta.SeekPoint, error) {
	points := stream.seekTable.Points
	// trailing placeholder points carry no position information.
	for len(points) > 0 && points[len(points)-1].SampleNum == meta.PlaceholderPoint {
		points = points[:len(points)-1]
	}
	if len(points) == 0 {
		return meta.SeekPoint{}, ErrNoSeektable
	}

	// seek points are sorted in ascending order by sample number.
	i := sort.Search(len(points), func(i int) bool {
		p := points[i]
		return p.SampleNum+uint64(p.NSamples) >= sampleNum
	})
	if i == 0 {
		return points[0], nil
	}
	if i == len(points) {
		return points[len(points)-1], nil
	}

	return points[i-1], nil
}

// Parse creates a new Stream for accessing the metadata blocks and audio samples of r.
// It reads and parses the FLAC signature and all metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the entire next frame including audio samples.
func Parse(r io.Reader) (stream *Stream, err error) {
	// verify FLAC signature and parse the StreamInfo metadata block.
	br := bufio.NewReader(r)
	stream = &Stream{r: br}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return nil, err
	}

	// parse the remaining metadata blocks.
	for !block.IsLast {
		block, err = meta.Parse(br)
		if err != nil {
			if err != meta.ErrReservedType {
				return stream, err
			}
			// Readers are expected to skip the body of unknown
			// (reserved) metadata blocks.
			if err = block.Skip(); err != nil {
				return stream, err
			}
		}
		// a stream carries exactly one StreamInfo block, leading the chain.
		if block.Type == meta.TypeStreamInfo {
			return stream, errors.New("flac.Parse: duplicate StreamInfo metadata block")
		}
		stream.Blocks = append(stream.Blocks, block)
	}

	return stream, nil
}

// ParseFile creates a new Stream for accessing the
// metadata blocks and audio samples of path.
// It reads and parses the FLAC signature and all metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the
// entire next frame including audio samples.
//
// Note: Close method of the stream must be called when finished using it.
func ParseFile(path string) (stream *Stream, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stream, err = Parse(f)
	if err != nil {
		return nil, err
	}

	return
}

// Open creates a new Stream for accessing the audio samples of path.
// It reads and parses the FLAC signature and the StreamInfo metadata block,
// but skips all other metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the entire next frame including audio samples.
//
// Note: The Close method of the stream must be called when finished using it.
func Open(path string) (stream *Stream, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stream, err = New(f)
	if err != nil {
		return nil, err
	}

	return
}

// NewSeek creates a new Stream for accessing the audio samples of rs,
// with support for seeking to absolute sample numbers.
// It reads and parses the FLAC signature and all metadata blocks.
//
// Call Stream.Seek to seek to the frame containing a given sample number,
// and call Stream.ParseNext to parse the frame at the obtained position.
func NewSeek(rs io.ReadSeeker) (stream *Stream, err error) {
	// verify FLAC signature and parse the StreamInfo metadata block.
	stream = &Stream{r: bufseekio.NewReadSeeker(rs), seekTableSize: defaultSeekTableSize}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return nil, err
	}

	// parse the remaining metadata blocks,
	// keeping the seek table of the stream if it carries one.
	for !block.IsLast {
		block, err = meta.Parse(stream.r)
		if err != nil {
			if err != meta.ErrReservedType {
				return stream, err
			}
			// Readers are expected to skip the body of unknown
			// (reserved) metadata blocks.
			if err = block.Skip(); err != nil {
				return stream, err
			}
		}
		// a stream carries exactly one StreamInfo block, leading the chain.
		if block.Type == meta.TypeStreamInfo {
			return stream, errors.New("flac.NewSeek: duplicate StreamInfo metadata block")
		}
		if table, ok := block.Body.(*meta.SeekTable); ok {
			stream.seekTable = table
		}
		stream.Blocks = append(stream.Blocks, block)
	}

	// record the offset of the first frame header;
	// seek point offsets are relative to this position.
	stream.dataStart, err = stream.r.(io.ReadSeeker).Seek(0, io.SeekCurrent)
	if err != nil {
		return stream, err
	}

	return stream, nil
}

// Seek seeks to the audio frame containing the given absolute sample number.
// The return value specifies the first sample number of
// the frame at which the stream was positioned,
// and a subsequent call to Stream.ParseNext parses that frame.
func (stream *Stream) Seek(sampleNum uint64) (uint64, error) {
	rs, ok := stream.r.(io.ReadSeeker)
	if !ok {
		return 0, errors.New("flac.Stream.Seek: stream is not seekable; use flac.NewSeek")
	}

	if stream.seekTable == nil {
		if err := stream.makeSeekTable(rs); err != nil {
			return 0, err
		}
	}

	offset := stream.dataStart
	if point, err := stream.searchSeekTable(sampleNum); err == nil {
		offset += int64(point.Offset)
	}

	sample, err := stream.scanFromOffset(rs, offset, sampleNum)
	if err != nil && offset != stream.dataStart {
		// A seek point which does not lead to the sample is not trusted;
		// stale and corrupt seek tables degrade to a scan from the first frame.
		sample, err = stream.scanFromOffset(rs, stream.dataStart, sampleNum)
	}
	if err != nil {
		return 0, err
	}

	return sample, nil
}

// scanFromOffset scans audio frames from the given byte offset in search of
// the frame containing the given sample number.
// It leaves the stream positioned at the start of the located frame and
// returns the first sample number of that frame.
func (stream *Stream) scanFromOffset(rs io.ReadSeeker, offset int64, sampleNum uint64) (uint64, error) {
	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	var next uint64
	for {
		pos, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}

		f, err := stream.ParseNext()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, fmt.Errorf("unable to seek to sample number %d", sampleNum)
			}
			return 0, err
		}

		first := f.SampleNumber()
		if offset == stream.dataStart && f.HasFixedBlockSize {
			// The frame number of a fixed block size stream counts frames of
			// the nominal block size. The last frame may hold fewer samples,
			// so the running total from the first frame is authoritative.
			first = next
		}
		switch {
		case first <= sampleNum && sampleNum < first+uint64(f.BlockSize):
			// rewind to the start of the located frame.
			if _, err := rs.Seek(pos, io.SeekStart); err != nil {
				return 0, err
			}
			return first, nil
		case first > sampleNum:
			// overshot; the frame containing the sample precedes this offset.
			return 0, fmt.Errorf("unable to seek to sample number %d", sampleNum)
		}
		next = first + uint64(f.BlockSize)
	}
}

// makeSeekTable scans the audio frames of the stream,
// building a seek table for streams which carry no SeekTable metadata block.
func (stream *Stream) makeSeekTable(rs io.ReadSeeker) error {
	// remember the current position to restore after the scan.
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := rs.Seek(stream.dataStart, io.SeekStart); err != nil {
		return err
	}

	var points []meta.SeekPoint
	var sampleNum uint64
	for {
		pos, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}

		f, err := stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		points = append(points, meta.SeekPoint{
			SampleNum: sampleNum,
			Offset:    uint64(pos - stream.dataStart),
			NSamples:  f.BlockSize,
		})
		sampleNum += uint64(f.BlockSize)
	}

	// thin out excess points to keep the seek table compact.
	if stream.seekTableSize > 0 && len(points) > stream.seekTableSize {
		step := (len(points) + stream.seekTableSize - 1) / stream.seekTableSize
		kept := points[:0]
		for i := 0; i < len(points); i += step {
			kept = append(kept, points[i])
		}
		points = kept
	}
	stream.seekTable = &meta.SeekTable{Points: points}

	// restore the position held before the scan.
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return err
	}

	return nil
}
