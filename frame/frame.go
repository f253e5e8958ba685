// Package frame implements access to FLAC audio frames.
// FLAC encoders divide the audio stream into blocks through a process called blocking.
// A block contains uncoded audio samples from all channels in a short period of time.
// Each audio block is divided into sub-blocks, one per channel.
// There is often a correlation between the left and right channels of stereo audio.
// Using inter-channel decorrelation,
// it is possible to store only one of the channels and the difference between them,
// or store the average of the channels and their difference.
// The encoder decorrelates audio samples as follows:
//
//	mid = (left + right)/2 // average of the channels
//	side = left - right    // difference between the channels
//
// Blocks are encoded using different prediction methods and stored in frames.
// Blocks and sub-blocks contain unencoded audio samples,
// while frames and sub-frames contain encoded audio samples.
// A FLAC stream contains one or more audio frames.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/lorev/flac/internal/bits"
	"github.com/lorev/flac/internal/hashutil"
	"github.com/lorev/flac/internal/hashutil/crc16"
	"github.com/lorev/flac/internal/hashutil/crc8"
	"github.com/lorev/flac/internal/utf8"
)

// ErrInvalidSync is returned by Frame.parseHeader
// when the sync-code of the frame header is invalid.
var ErrInvalidSync = errors.New("frame.Frame.parseHeader: invalid sync-code")

// Channel assignments.
// Used abbreviations:
//
//	C:   center (directly in front)
//	R:   right (standard stereo)
//	Sr:  side right (directly to the right)
//	Rs:  right surround (back right)
//	Cs:  center surround (rear center)
//	Ls:  left surround (back left)
//	Sl:  side left (directly to the left)
//	L:   left (standard stereo)
//	Lfe: low-frequency effect (placed according to room acoustics)
//
// The first 6 channel constants follow the SMPTE/ITU-R channel order:
//
//	L R C Lfe Ls Rs
const (
	ChannelsMono           Channels = iota // 1 channel: mono.
	ChannelsLR                             // 2 channels: left, right.
	ChannelsLRC                            // 3 channels: left, right, center.
	ChannelsLRLsRs                         // 4 channels: left, right, left surround, right surround.
	ChannelsLRCLsRs                        // 5 channels: left, right, center, left surround, right surround.
	ChannelsLRCLfeLsRs                     // 6 channels: left, right, center, LFE, left surround, right surround.
	ChannelsLRCLfeCsSlSr                   // 7 channels: left, right, center, LFE, center surround, side left, side right.
	ChannelsLRCLfeLsRsSlSr                 // 8 channels: left, right, center, LFE, left surround, right surround, side left, side right.
	ChannelsLeftSide                       // 2 channels: left, side; using inter-channel decorrelation.
	ChannelsSideRight                      // 2 channels: side, right; using inter-channel decorrelation.
	ChannelsMidSide                        // 2 channels: mid, side; using inter-channel decorrelation.
)

// nChannels specifies the number of channels used by each channel assignment.
var nChannels = [...]int{
	ChannelsMono:           1,
	ChannelsLR:             2,
	ChannelsLRC:            3,
	ChannelsLRLsRs:         4,
	ChannelsLRCLsRs:        5,
	ChannelsLRCLfeLsRs:     6,
	ChannelsLRCLfeCsSlSr:   7,
	ChannelsLRCLfeLsRsSlSr: 8,
	ChannelsLeftSide:       2,
	ChannelsSideRight:      2,
	ChannelsMidSide:        2,
}

// Channels specifies the number of channels (subframes) that exist in a frame,
// their order and possible inter-channel decorrelation.
type Channels uint8

// Count returns the number of channels (subframes) used by
// the provided channel assignment.
func (channels Channels) Count() int {
	return nChannels[channels]
}

// Header contains the basic properties of an audio frame,
// such as its sample rate and channel count.
// To facilitate random access decoding each frame header starts with a sync-code.
// This allows the decoder to synchronize and locate the start of a frame header.
type Header struct {
	// Specifies if the block size is fixed or variable.
	HasFixedBlockSize bool
	// Block size in inter-channel samples,
	// i.e. the number of audio samples in each subframe.
	BlockSize uint16
	// Sample rate in Hz; a 0 value implies unknown,
	// get sample rate from StreamInfo.
	SampleRate uint32
	// Specifies the number of channels (subframes) that exist in the frame,
	// their order and possible inter-channel decorrelation.
	Channels Channels
	// Sample size in bits-per-sample;
	// a 0 value implies unknown, get sample size from StreamInfo.
	BitsPerSample uint8
	// Specifies the frame number if the block size is fixed,
	// and the first sample number in the frame otherwise.
	// When using fixed block size,
	// the first sample number in the frame can be derived
	// by multiplying the frame number with the block size (in samples).
	Num uint64
}

// Frame contains the header and subframes of an audio frame.
// It holds the encoded samples from a block (a part) of the audio stream.
// Each subframe holding the samples from one of its channel.
type Frame struct {
	// Audio frame header.
	Header
	// One subframe per channel, containing encoded audio samples.
	Subframes []*Subframe
	// CRC-16 hash sum, calculated by read operations on hr.
	crc hashutil.Hash16
	// A bit reader, wrapping read operations to hr.
	br *bits.Reader
	// A CRC-16 hash reader, wrapping read operations to r.
	hr io.Reader
	// Underlying io.Reader.
	r io.Reader
}

// New creates a new Frame for accessing the audio samples of r.
// It reads and parses an audio frame header.
// Call Frame.Parse to parse the audio samples of its subframes.
func New(r io.Reader) (frame *Frame, err error) {
	// Create a new CRC-16 hash reader which adds
	// the data from all read operations to a running hash.
	crc := crc16.NewIBM()
	hr := io.TeeReader(r, crc)

	// parse frame header.
	frame = &Frame{crc: crc, hr: hr, r: r}
	if err = frame.parseHeader(); err != nil {
		return frame, err
	}

	// Create a bit reader for parsing the subframes of the frame.
	// The frame header ends at a byte boundary,
	// while the subframes of the frame need not.
	frame.br = bits.NewReader(frame.hr)
	return frame, nil
}

// Parse reads and parses the header and the audio samples
// from each subframe of a frame.
// If the samples are inter-channel decorrelated between the subframes,
// it correlates them.
func Parse(r io.Reader) (frame *Frame, err error) {
	// parse frame header.
	if frame, err = New(r); err != nil {
		return frame, err
	}

	// parse audio samples.
	err = frame.Parse()
	return frame, err
}

// Parse reads and parses the audio samples from each subframe of the frame.
// If the samples are inter-channel decorrelated between the subframes,
// it correlates them.
func (frame *Frame) Parse() error {
	// parse subframes.
	var err error
	frame.Subframes = make([]*Subframe, frame.Channels.Count())
	for channel := range frame.Subframes {
		// The side channel of inter-channel decorrelation
		// requires an extra bit per audio sample.
		bps := uint(frame.BitsPerSample)
		switch frame.Channels {
		case ChannelsSideRight:
			// channel 0 is the side channel.
			if channel == 0 {
				bps++
			}
		case ChannelsLeftSide, ChannelsMidSide:
			// channel 1 is the side channel.
			if channel == 1 {
				bps++
			}
		}

		if frame.Subframes[channel], err = frame.parseSubframe(frame.br, bps); err != nil {
			return err
		}
	}

	// Zero-padding bits to the next byte boundary have already been
	// consumed by the bit reader, which never reads ahead of the current
	// byte of the underlying reader.

	// 2 bytes: CRC-16 checksum.
	var want uint16
	if err := binary.Read(frame.r, binary.BigEndian, &want); err != nil {
		return unexpected(err)
	}
	if got := frame.crc.Sum16(); got != want {
		return fmt.Errorf("frame.Frame.Parse: CRC-16 checksum mismatch; expected 0x%04X, got 0x%04X", want, got)
	}

	// Decorrelate the audio samples of the subframes.
	frame.Decorrelate()
	return nil
}

// parseHeader reads and parses the header of an audio frame.
func (frame *Frame) parseHeader() error {
	// Create a new CRC-8 hash reader which adds
	// the data from all read operations to a running hash.
	h := crc8.NewATM()
	hr := io.TeeReader(frame.hr, h)

	// 14 bits: sync-code (11111111111110).
	br := bits.NewReader(hr)
	x, err := br.Read(14)
	if err != nil {
		// This is the only place an audio frame may return io.EOF,
		// which signals a graceful end of a FLAC stream.
		return err
	} else if x != 0x3FFE {
		return ErrInvalidSync
	}

	// 1 bit: reserved.
	if x, err = br.Read(1); err != nil {
		return unexpected(err)
	} else if x != 0 {
		return errors.New("frame.Frame.parseHeader: non-zero reserved value")
	}

	// 1 bit: HasFixedBlockSize.
	if x, err = br.Read(1); err != nil {
		return unexpected(err)
	}
	frame.HasFixedBlockSize = x == 0

	// 4 bits: BlockSize.
	// The block size parsing is simplified by deferring it to the end of the header.
	blockSize, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	// 4 bits: SampleRate.
	// The sample rate parsing is simplified by deferring it to the end of the header.
	sampleRate, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	// 4 bits: Channels.
	//
	// The 4 bits are used to specify the channel assignment as follows:
	//    0000: (1 channel) mono
	//    0001: (2 channels) left, right
	//    0010: (3 channels) left, right, center
	//    0011: (4 channels) left, right, left surround, right surround
	//    0100: (5 channels) left, right, center, left surround, right surround
	//    0101: (6 channels) left, right, center, LFE, left surround, right surround
	//    0110: (7 channels) left, right, center, LFE, center surround, side left, side right
	//    0111: (8 channels) left, right, center, LFE, left surround, right surround, side left, side right
	//    1000: (2 channels) left, side; using inter-channel decorrelation
	//    1001: (2 channels) side, right; using inter-channel decorrelation
	//    1010: (2 channels) mid, side; using inter-channel decorrelation
	//    1011-1111: reserved
	if x, err = br.Read(4); err != nil {
		return unexpected(err)
	} else if x >= 0xB {
		return fmt.Errorf("frame.Frame.parseHeader: reserved channels bit pattern (%04b)", x)
	}
	frame.Channels = Channels(x)

	// 3 bits: BitsPerSample.
	//
	// The 3 bits are used to specify the sample size as follows:
	//    000: unknown sample size; get from StreamInfo
	//    001: 8 bits-per-sample
	//    010: 12 bits-per-sample
	//    011: reserved
	//    100: 16 bits-per-sample
	//    101: 20 bits-per-sample
	//    110: 24 bits-per-sample
	//    111: reserved
	if x, err = br.Read(3); err != nil {
		return unexpected(err)
	}
	switch x {
	case 0x0:
		// 000: unknown bits-per-sample; get from StreamInfo.
	case 0x1:
		frame.BitsPerSample = 8
	case 0x2:
		frame.BitsPerSample = 12
	case 0x4:
		frame.BitsPerSample = 16
	case 0x5:
		frame.BitsPerSample = 20
	case 0x6:
		frame.BitsPerSample = 24
	default:
		return fmt.Errorf("frame.Frame.parseHeader: reserved sample size bit pattern (%03b)", x)
	}

	// 1 bit: reserved.
	if x, err = br.Read(1); err != nil {
		return unexpected(err)
	} else if x != 0 {
		return errors.New("frame.Frame.parseHeader: non-zero reserved value")
	}

	// if (fixed block size)
	//    1-6 bytes: UTF-8 encoded frame number.
	// else
	//    1-7 bytes: UTF-8 encoded sample number.
	//
	// The previous header fields end at a byte boundary,
	// and the coded number consists of whole bytes.
	if frame.Num, err = utf8.Decode(hr); err != nil {
		return unexpected(err)
	}

	// parse block size.
	//
	// The 4 bits of n are used to specify the block size as follows:
	//    0000: reserved
	//    0001: 192 samples
	//    0010-0101: 576 * 2^(n-2) samples
	//    0110: get 8 bit (block size)-1 from the end of the header
	//    0111: get 16 bit (block size)-1 from the end of the header
	//    1000-1111: 256 * 2^(n-8) samples
	n := blockSize
	switch {
	case n == 0x0:
		return errors.New("frame.Frame.parseHeader: reserved block size bit pattern (0000)")
	case n == 0x1:
		frame.BlockSize = 192
	case n >= 0x2 && n <= 0x5:
		frame.BlockSize = 576 * (1 << (n - 2))
	case n == 0x6:
		// 0110: get 8 bit (block size)-1 from the end of the header.
		if x, err = br.Read(8); err != nil {
			return unexpected(err)
		}
		frame.BlockSize = uint16(x + 1)
	case n == 0x7:
		// 0111: get 16 bit (block size)-1 from the end of the header.
		if x, err = br.Read(16); err != nil {
			return unexpected(err)
		}
		frame.BlockSize = uint16(x + 1)
	default:
		// 1000-1111: 256 * 2^(n-8) samples.
		frame.BlockSize = 256 * (1 << (n - 8))
	}

	// parse sample rate.
	//
	// The 4 bits are used to specify the sample rate as follows:
	//    0000: unknown sample rate; get from StreamInfo
	//    0001: 88.2 kHz
	//    0010: 176.4 kHz
	//    0011: 192 kHz
	//    0100: 8 kHz
	//    0101: 16 kHz
	//    0110: 22.05 kHz
	//    0111: 24 kHz
	//    1000: 32 kHz
	//    1001: 44.1 kHz
	//    1010: 48 kHz
	//    1011: 96 kHz
	//    1100: get 8 bit sample rate (in kHz) from the end of the header
	//    1101: get 16 bit sample rate (in Hz) from the end of the header
	//    1110: get 16 bit sample rate (in daHz) from the end of the header
	//    1111: invalid
	switch sampleRate {
	case 0x0:
		// 0000: unknown sample rate; get from StreamInfo.
	case 0x1:
		frame.SampleRate = 88200
	case 0x2:
		frame.SampleRate = 176400
	case 0x3:
		frame.SampleRate = 192000
	case 0x4:
		frame.SampleRate = 8000
	case 0x5:
		frame.SampleRate = 16000
	case 0x6:
		frame.SampleRate = 22050
	case 0x7:
		frame.SampleRate = 24000
	case 0x8:
		frame.SampleRate = 32000
	case 0x9:
		frame.SampleRate = 44100
	case 0xA:
		frame.SampleRate = 48000
	case 0xB:
		frame.SampleRate = 96000
	case 0xC:
		// 1100: get 8 bit sample rate (in kHz) from the end of the header.
		if x, err = br.Read(8); err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x * 1000)
	case 0xD:
		// 1101: get 16 bit sample rate (in Hz) from the end of the header.
		if x, err = br.Read(16); err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x)
	case 0xE:
		// 1110: get 16 bit sample rate (in daHz) from the end of the header.
		if x, err = br.Read(16); err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x * 10)
	default:
		return errors.New("frame.Frame.parseHeader: invalid sample rate bit pattern (1111)")
	}

	// 1 byte: CRC-8 checksum.
	var want uint8
	if err := binary.Read(frame.hr, binary.BigEndian, &want); err != nil {
		return unexpected(err)
	}
	if got := h.Sum8(); got != want {
		return fmt.Errorf("frame.Frame.parseHeader: CRC-8 checksum mismatch; expected 0x%02X, got 0x%02X", want, got)
	}

	return nil
}

// SampleNumber returns the first sample number contained within the frame.
func (frame *Frame) SampleNumber() uint64 {
	if frame.HasFixedBlockSize {
		return frame.Num * uint64(frame.BlockSize)
	}
	return frame.Num
}

// Decorrelate performs inter-channel decorrelation of
// the audio samples of the subframes.
func (frame *Frame) Decorrelate() {
	switch frame.Channels {
	case ChannelsLeftSide:
		// 1000: (2 channels) left, side; using inter-channel decorrelation.
		//    channel 0 contains the left channel
		//    channel 1 contains the difference between the left and right channel
		left := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			// right = left - side
			side[i] = left[i] - side[i]
		}
	case ChannelsSideRight:
		// 1001: (2 channels) side, right; using inter-channel decorrelation.
		//    channel 0 contains the difference between the left and right channel
		//    channel 1 contains the right channel
		side := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range side {
			// left = side + right
			side[i] += right[i]
		}
	case ChannelsMidSide:
		// 1010: (2 channels) mid, side; using inter-channel decorrelation.
		//    channel 0 contains the average of the left and right channel
		//    channel 1 contains the difference between the left and right channel
		//
		// The mid channel was computed with a floored division,
		// losing the least significant bit,
		// which is recovered from the parity of the side channel.
		mid := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			s := side[i]
			m := mid[i]<<1 | s&1
			// left = mid + side/2, right = mid - side/2
			mid[i] = (m + s) >> 1
			side[i] = (m - s) >> 1
		}
	}
}

// Correlate performs inter-channel correlation of
// the audio samples of the subframes.
// It is the inverse of Frame.Decorrelate,
// as used by the encoder before writing the subframes.
func (frame *Frame) Correlate() {
	switch frame.Channels {
	case ChannelsLeftSide:
		// left, right -> left, side
		left := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range right {
			// side = left - right
			right[i] = left[i] - right[i]
		}
	case ChannelsSideRight:
		// left, right -> side, right
		left := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range left {
			// side = left - right
			left[i] -= right[i]
		}
	case ChannelsMidSide:
		// left, right -> mid, side
		left := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range left {
			l, r := left[i], right[i]
			// mid = (left + right)/2, side = left - right
			left[i] = (l + r) >> 1
			right[i] = l - r
		}
	}
}

// Hash adds the decoded audio samples of the frame to a running MD5 hash.
// It can be used in conjunction with StreamInfo.MD5sum to
// verify the integrity of the decoded audio samples.
//
// Note: the audio samples of the frame must be decoded before calling Hash.
func (frame *Frame) Hash(md5sum hash.Hash) {
	// Write decoded samples to a running MD5 hash,
	// one channel-interleaved sample at the time,
	// in little-endian byte order,
	// using the least number of whole bytes capable
	// of representing the bits-per-sample of the stream.
	var buf [4]byte
	bps := frame.BitsPerSample
	for i := 0; i < int(frame.BlockSize); i++ {
		for _, subframe := range frame.Subframes {
			sample := subframe.Samples[i]
			switch {
			case 1 <= bps && bps <= 8:
				buf[0] = uint8(sample)
				md5sum.Write(buf[:1])
			case 9 <= bps && bps <= 16:
				binary.LittleEndian.PutUint16(buf[:2], uint16(sample))
				md5sum.Write(buf[:2])
			case 17 <= bps && bps <= 24:
				buf[0] = uint8(sample)
				buf[1] = uint8(sample >> 8)
				buf[2] = uint8(sample >> 16)
				md5sum.Write(buf[:3])
			case 25 <= bps && bps <= 32:
				binary.LittleEndian.PutUint32(buf[:4], uint32(sample))
				md5sum.Write(buf[:4])
			}
		}
	}
}

// unexpected returns io.ErrUnexpectedEOF if error is io.EOF,
// and returns error otherwise.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
