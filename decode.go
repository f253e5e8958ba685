package flac

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/lorev/flac/frame"
	"github.com/lorev/flac/meta"
)

// ErrNeedMoreData signals that the decoder has exhausted its buffered input
// mid-parse; feed more bytes with Decoder.Write or mark the end of the
// stream with Decoder.CloseInput.
var ErrNeedMoreData = errors.New("flac.Decoder: need more data")

// State is the decode state of a Decoder.
type State uint8

// Decode states of a Decoder.
//
// A decoder starts in StateInit, works through the metadata header chain,
// and then alternates between StateSynced and StateResync until the input
// ends in StateDone. StateFatal is terminal.
const (
	StateInit       State = iota // awaiting the fLaC stream marker
	StateStreamInfo              // awaiting the mandatory StreamInfo metadata block
	StateMetadata                // reading metadata blocks until the last of the chain
	StateSynced                  // decoding audio frames
	StateResync                  // searching for the next frame sync pattern
	StateDone                    // end of input reached
	StateFatal                   // structural error; no further progress is attempted
)

func (state State) String() string {
	switch state {
	case StateInit:
		return "init"
	case StateStreamInfo:
		return "streaminfo"
	case StateMetadata:
		return "metadata"
	case StateSynced:
		return "synced"
	case StateResync:
		return "resync"
	case StateDone:
		return "done"
	case StateFatal:
		return "fatal"
	}
	return fmt.Sprintf("<unknown state %d>", uint8(state))
}

// A Verdict reports the outcome of comparing the MD5 hash accumulated over
// the decoded audio samples against the MD5 signature stored in the
// StreamInfo metadata block.
type Verdict uint8

const (
	// Unverified means no comparison took place; the decode skipped data,
	// ended early, or the stream stored no MD5 signature.
	Unverified Verdict = iota
	// Match means the decoded audio hashes to the stored MD5 signature.
	Match
	// Mismatch means the decoded audio differs from the audio once encoded.
	Mismatch
)

func (verdict Verdict) String() string {
	switch verdict {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	}
	return "unverified"
}

// A SkippedRange records a byte range of the input which the decoder
// discarded while searching for a frame sync pattern.
type SkippedRange struct {
	// Offset of the first skipped byte.
	Start int64
	// Offset one past the last skipped byte.
	End int64
	// Reason the decoder lost synchronization at Start.
	Reason string
}

// A Report summarizes a decode session.
type Report struct {
	// Number of audio frames decoded.
	Frames uint64
	// Number of inter-channel samples decoded.
	Samples uint64
	// Byte ranges discarded during resynchronization.
	Skipped []SkippedRange
	// Outcome of the MD5 comparison against StreamInfo.
	Verdict Verdict
}

// Decoder is a push-fed FLAC stream decoder.
//
// The caller feeds arbitrary byte ranges of a FLAC stream with Write and
// drains decoded audio frames with Next. The decoder buffers input across
// calls, so the byte ranges may split the stream at any position. Corrupt
// sections of audio data are skipped by scanning for the next frame sync
// pattern; the skipped ranges are recorded in the Report of the session.
//
// A Decoder is used by a single goroutine; distinct decoders are
// independent.
type Decoder struct {
	// StreamInfo metadata block of the stream;
	// nil until the metadata header chain has been parsed.
	Info *meta.StreamInfo
	// Metadata blocks following StreamInfo, in order of appearance.
	Blocks []*meta.Block

	state  State
	buf    []byte // buffered input not yet consumed
	offset int64  // stream offset of buf[0]
	closed bool   // no further input arrives after CloseInput
	err    error  // terminal error of StateFatal

	md5sum  hash.Hash
	frames  uint64
	samples uint64

	skipped    []SkippedRange
	skipStart  int64  // offset at which the active resynchronization began
	skipReason string // what broke at skipStart
}

// NewDecoder returns a decoder ready to accept pushed FLAC stream bytes.
//
// Feed input with Decoder.Write, decode audio frames with Decoder.Next,
// and inspect the outcome of the session with Decoder.Report.
func NewDecoder() *Decoder {
	return &Decoder{md5sum: md5.New()}
}

// Write buffers p for decoding; the bytes are examined by subsequent calls
// to Next. It implements io.Writer and fails only after CloseInput.
func (dec *Decoder) Write(p []byte) (int, error) {
	if dec.closed {
		return 0, errors.New("flac.Decoder.Write: input is closed")
	}

	dec.buf = append(dec.buf, p...)
	return len(p), nil
}

// CloseInput marks the end of the pushed input. Buffered bytes remain
// decodable; Next drains them and then reports io.EOF.
func (dec *Decoder) CloseInput() {
	dec.closed = true
}

// State returns the current decode state.
func (dec *Decoder) State() State {
	return dec.state
}

// Next decodes and returns the next audio frame.
//
// It returns ErrNeedMoreData when the buffered input runs dry before the
// end of the stream, and io.EOF once the complete input has been decoded.
func (dec *Decoder) Next() (*frame.Frame, error) {
	for {
		switch dec.state {
		case StateInit:
			if err := dec.readSignature(); err != nil {
				return nil, err
			}
		case StateStreamInfo:
			if err := dec.readStreamInfo(); err != nil {
				return nil, err
			}
		case StateMetadata:
			if err := dec.readMetadata(); err != nil {
				return nil, err
			}
		case StateSynced:
			f, err := dec.readFrame()
			if f != nil || err != nil {
				return f, err
			}
		case StateResync:
			if err := dec.resync(); err != nil {
				return nil, err
			}
		case StateDone:
			return nil, io.EOF
		default:
			return nil, dec.err
		}
	}
}

// Report summarizes what has been decoded so far.
//
// The MD5 verdict is Match or Mismatch only after a complete pass in which
// no input was skipped, covering the declared number of samples, against a
// nonzero stored MD5 signature. Any shortfall leaves it Unverified.
func (dec *Decoder) Report() Report {
	report := Report{
		Frames:  dec.frames,
		Samples: dec.samples,
		Skipped: dec.skipped,
	}
	if dec.state != StateDone || len(dec.skipped) != 0 || dec.Info == nil {
		return report
	}

	var zero [md5.Size]byte
	if dec.Info.MD5sum == zero || dec.samples != dec.Info.NSamples {
		return report
	}
	if bytes.Equal(dec.md5sum.Sum(nil), dec.Info.MD5sum[:]) {
		report.Verdict = Match
	} else {
		report.Verdict = Mismatch
	}

	return report
}

// consume discards the first n buffered bytes.
func (dec *Decoder) consume(n int) {
	dec.buf = dec.buf[n:]
	dec.offset += int64(n)
	if len(dec.buf) == 0 {
		dec.buf = nil
	}
}

// need ensures n buffered bytes are available. When the input ran dry it
// returns ErrNeedMoreData, or a fatal truncation error after CloseInput,
// since the metadata header chain of a stream must be complete.
func (dec *Decoder) need(n int) error {
	if len(dec.buf) >= n {
		return nil
	}
	if dec.closed {
		return dec.fatal(errors.New("flac.Decoder: unexpected end of stream inside the metadata header chain"))
	}
	return ErrNeedMoreData
}

// fatal transitions the decoder to its terminal error state.
func (dec *Decoder) fatal(err error) error {
	dec.state = StateFatal
	dec.err = err
	return err
}

// readSignature consumes the stream marker, skipping prepended ID3v2 tags.
func (dec *Decoder) readSignature() error {
	for {
		if err := dec.need(4); err != nil {
			return err
		}
		if bytes.Equal(dec.buf[:3], id3Signature) {
			if err := dec.need(10); err != nil {
				return err
			}
			// the size of the tag data is encoded as a synchsafe integer.
			size := int(dec.buf[6])<<21 | int(dec.buf[7])<<14 | int(dec.buf[8])<<7 | int(dec.buf[9])
			if err := dec.need(10 + size); err != nil {
				return err
			}
			dec.consume(10 + size)
			continue
		}
		if !bytes.Equal(dec.buf[:4], flacSignature) {
			return dec.fatal(fmt.Errorf("flac.Decoder: invalid FLAC signature; expected %q, got %q", flacSignature, dec.buf[:4]))
		}
		dec.consume(4)
		dec.state = StateStreamInfo
		return nil
	}
}

// readBlock parses one whole metadata block out of the buffered input.
func (dec *Decoder) readBlock() (*meta.Block, error) {
	if err := dec.need(4); err != nil {
		return nil, err
	}
	length := int(dec.buf[1])<<16 | int(dec.buf[2])<<8 | int(dec.buf[3])
	if err := dec.need(4 + length); err != nil {
		return nil, err
	}

	block, err := meta.Parse(bytes.NewReader(dec.buf[:4+length]))
	if err != nil {
		if err != meta.ErrReservedType {
			return nil, dec.fatal(err)
		}
		// the body of unknown (reserved) metadata blocks is skipped;
		// the block itself is surfaced to the caller.
		if err := block.Skip(); err != nil {
			return nil, dec.fatal(err)
		}
	}
	dec.consume(4 + length)

	return block, nil
}

// readStreamInfo parses the mandatory StreamInfo metadata block which opens
// the metadata header chain.
func (dec *Decoder) readStreamInfo() error {
	block, err := dec.readBlock()
	if err != nil {
		return err
	}

	si, ok := block.Body.(*meta.StreamInfo)
	if !ok {
		return dec.fatal(fmt.Errorf("flac.Decoder: incorrect type of first metadata block; expected *meta.StreamInfo, got %T", block.Body))
	}
	dec.Info = si
	dec.state = StateMetadata
	if block.IsLast {
		dec.state = StateSynced
	}

	return nil
}

// readMetadata parses metadata blocks until the last of the header chain.
func (dec *Decoder) readMetadata() error {
	block, err := dec.readBlock()
	if err != nil {
		return err
	}

	// a stream carries exactly one StreamInfo block, leading the chain.
	if block.Type == meta.TypeStreamInfo {
		return dec.fatal(errors.New("flac.Decoder: duplicate StreamInfo metadata block"))
	}

	dec.Blocks = append(dec.Blocks, block)
	if block.IsLast {
		dec.state = StateSynced
	}

	return nil
}

// readFrame decodes one audio frame out of the buffered input.
//
// A nil frame with a nil error reports a state transition instead of a
// decoded frame; the caller dispatches on the new state.
func (dec *Decoder) readFrame() (*frame.Frame, error) {
	if len(dec.buf) == 0 {
		if dec.closed {
			dec.state = StateDone
			return nil, nil
		}
		return nil, ErrNeedMoreData
	}

	br := bytes.NewReader(dec.buf)
	f, err := frame.New(br)
	if err == nil {
		// fields left zero by the frame header take
		// their value from the StreamInfo metadata block.
		if f.BitsPerSample == 0 {
			f.BitsPerSample = dec.Info.BitsPerSample
		}
		if f.SampleRate == 0 {
			f.SampleRate = dec.Info.SampleRate
		}
		err = f.Parse()
	}

	switch {
	case err == nil:
		dec.consume(len(dec.buf) - br.Len())
		f.Hash(dec.md5sum)
		dec.frames++
		dec.samples += uint64(f.BlockSize)
		return f, nil
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		if !dec.closed {
			// the frame continues beyond the buffered input.
			return nil, ErrNeedMoreData
		}
		dec.desync("truncated frame")
	default:
		dec.desync(err.Error())
	}

	return nil, nil
}

// desync records the loss of frame synchronization at the current offset
// and transitions to StateResync. The leading byte is discarded at once,
// so every pass through StateResync consumes at least one byte.
func (dec *Decoder) desync(reason string) {
	dec.skipStart = dec.offset
	dec.skipReason = reason
	dec.consume(1)
	dec.state = StateResync
}

// resync scans forward for the next frame sync pattern, discarding bytes.
// Once a candidate is found the decoder transitions back to StateSynced;
// running past the end of input transitions to StateDone instead.
func (dec *Decoder) resync() error {
	i := 0
	for i+1 < len(dec.buf) {
		if dec.buf[i] == 0xFF && dec.buf[i+1]&0xFE == 0xF8 {
			// candidate frame sync pattern; try to decode at this offset.
			dec.consume(i)
			dec.recordSkip(dec.offset)
			dec.state = StateSynced
			return nil
		}
		i++
	}

	// no sync pattern; all but the trailing byte is established garbage.
	// The trailing byte may be the first half of a split sync pattern.
	dec.consume(i)
	if !dec.closed {
		return ErrNeedMoreData
	}
	dec.consume(len(dec.buf))
	dec.recordSkip(dec.offset)
	dec.state = StateDone

	return nil
}

// recordSkip closes the byte range discarded since the active
// resynchronization began, merging ranges of contiguous garbage.
func (dec *Decoder) recordSkip(end int64) {
	if end <= dec.skipStart {
		return
	}
	if n := len(dec.skipped); n > 0 && dec.skipped[n-1].End == dec.skipStart {
		dec.skipped[n-1].End = end
		return
	}
	dec.skipped = append(dec.skipped, SkippedRange{
		Start:  dec.skipStart,
		End:    end,
		Reason: dec.skipReason,
	})
}
