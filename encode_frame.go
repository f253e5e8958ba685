package flac

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/icza/bitio"
	"github.com/lorev/flac/frame"
	"github.com/lorev/flac/internal/hashutil/crc16"
	"github.com/lorev/flac/internal/hashutil/crc8"
	"github.com/lorev/flac/internal/utf8"
)

// encodeFrame encodes the given audio frame, writing to w.
// The audio samples of the subframes are expected to be inter-channel
// correlated, as done by Frame.Correlate.
func encodeFrame(w io.Writer, f *frame.Frame) error {
	// Create a new CRC-16 hash writer which adds the data from all write
	// operations to a running hash.
	h := crc16.NewIBM()
	hw := io.MultiWriter(w, h)

	// store frame header.
	if err := encodeFrameHeader(hw, f.Header); err != nil {
		return err
	}

	// store subframes.
	// The frame header ends at a byte boundary,
	// while the subframes of the frame need not.
	bw := bitio.NewWriter(hw)
	for channel, subframe := range f.Subframes {
		// The side channel of inter-channel decorrelation
		// requires an extra bit per audio sample.
		bps := uint(f.BitsPerSample)
		switch f.Channels {
		case frame.ChannelsSideRight:
			// channel 0 is the side channel.
			if channel == 0 {
				bps++
			}
		case frame.ChannelsLeftSide, frame.ChannelsMidSide:
			// channel 1 is the side channel.
			if channel == 1 {
				bps++
			}
		}

		if err := encodeSubframe(bw, f.Header, subframe, bps); err != nil {
			return err
		}
	}

	// zero-padding to byte alignment.
	if _, err := bw.Align(); err != nil {
		return err
	}

	// 2 bytes: CRC-16 checksum of the frame, stored past the hashed contents.
	if err := binary.Write(w, binary.BigEndian, h.Sum16()); err != nil {
		return err
	}

	return nil
}

// encodeFrameHeader encodes the given frame header, writing to w.
// The body of the frame header is protected by a CRC-8 checksum,
// which is computed while writing and stored in its last byte.
func encodeFrameHeader(w io.Writer, hdr frame.Header) error {
	// Create a new CRC-8 hash writer which adds the data from all write
	// operations to a running hash.
	h := crc8.NewATM()
	bw := bitio.NewWriter(io.MultiWriter(w, h))

	// 14 bits: sync-code (11111111111110).
	if err := bw.WriteBits(0x3FFE, 14); err != nil {
		return err
	}

	// 1 bit: reserved.
	if err := bw.WriteBits(0x0, 1); err != nil {
		return err
	}

	// 1 bit: HasFixedBlockSize.
	if err := bw.WriteBool(!hdr.HasFixedBlockSize); err != nil {
		return err
	}

	// 4 bits: BlockSize.
	nblockSizeSuffixBits, err := encodeFrameHeaderBlockSize(bw, hdr.BlockSize)
	if err != nil {
		return err
	}

	// 4 bits: SampleRate.
	nsampleRateSuffixBits, sampleRateSuffix, err := encodeFrameHeaderSampleRate(bw, hdr.SampleRate)
	if err != nil {
		return err
	}

	// 4 bits: Channels.
	if hdr.Channels > frame.ChannelsMidSide {
		return fmt.Errorf("support for channel assignment %v not yet implemented", hdr.Channels)
	}
	if err := bw.WriteBits(uint64(hdr.Channels), 4); err != nil {
		return err
	}

	// 3 bits: BitsPerSample.
	bps := hdr.BitsPerSample
	switch bps {
	case 8, 12, 16, 20, 24:
	default:
		// 000: unknown sample size; get from StreamInfo.
		bps = 0
	}
	if err := encodeFrameHeaderBitsPerSample(bw, bps); err != nil {
		return err
	}

	// 1 bit: reserved.
	if err := bw.WriteBits(0x0, 1); err != nil {
		return err
	}

	// if (fixed block size)
	//    8-48 bits: UTF-8 encoded frame number.
	// else
	//    8-56 bits: UTF-8 encoded sample number.
	if err := utf8.Encode(bw, hdr.Num); err != nil {
		return err
	}

	// if (block size bit pattern == 0110)
	//    8 bits: (block size) - 1
	// else if (block size bit pattern == 0111)
	//    16 bits: (block size) - 1
	if nblockSizeSuffixBits > 0 {
		if err := bw.WriteBits(uint64(hdr.BlockSize-1), nblockSizeSuffixBits); err != nil {
			return err
		}
	}

	// if (sample rate bit pattern == 1100)
	//    8 bits: sample rate (in kHz)
	// else if (sample rate bit pattern == 1101)
	//    16 bits: sample rate (in Hz)
	// else if (sample rate bit pattern == 1110)
	//    16 bits: sample rate (in daHz)
	if nsampleRateSuffixBits > 0 {
		if err := bw.WriteBits(sampleRateSuffix, nsampleRateSuffixBits); err != nil {
			return err
		}
	}

	// All preceding header fields end at a byte boundary.
	// Flush them through to w and the running hash.
	if _, err := bw.Align(); err != nil {
		return err
	}

	// 1 byte: CRC-8 checksum of the frame header, stored past the hashed
	// contents and covered by the CRC-16 of the frame.
	if err := binary.Write(w, binary.BigEndian, h.Sum8()); err != nil {
		return err
	}

	return nil
}

// encodeFrameHeaderBitsPerSample encodes the bits-per-sample of the frame header,
// writing to bw.
func encodeFrameHeaderBitsPerSample(bw *bitio.Writer, bps uint8) error {
	// sample size in bits:
	//    000 : get from STREAMINFO metadata block
	//    001 : 8 bits per sample
	//    010 : 12 bits per sample
	//    011 : reserved
	//    100 : 16 bits per sample
	//    101 : 20 bits per sample
	//    110 : 24 bits per sample
	//    111 : reserved
	var bits uint64
	switch bps {
	case 0:
		// 000 : get from STREAMINFO metadata block
		bits = 0x0
	case 8:
		// 001 : 8 bits per sample
		bits = 0x1
	case 12:
		// 010 : 12 bits per sample
		bits = 0x2
	case 16:
		// 100 : 16 bits per sample
		bits = 0x4
	case 20:
		// 101 : 20 bits per sample
		bits = 0x5
	case 24:
		// 110 : 24 bits per sample
		bits = 0x6
	default:
		return fmt.Errorf("support for sample size %v not yet implemented", bps)
	}

	if err := bw.WriteBits(bits, 3); err != nil {
		return err
	}

	return nil
}

// encodeFrameHeaderBlockSize encodes the block size of the frame header,
// writing to bw.
// It returns the number of bits used to store block size after the frame header.
func encodeFrameHeaderBlockSize(bw *bitio.Writer, blockSize uint16) (nblockSizeSuffixBits byte, err error) {
	// block size in inter-channel samples:
	//    0000 : reserved
	//    0001 : 192 samples
	//    0010-0101 : 576 * (2^(n-2)) samples, i.e. 576/1152/2304/4608
	//    0110 : get 8 bit (blocksize-1) from end of header
	//    0111 : get 16 bit (blocksize-1) from end of header
	//    1000-1111 : 256 * (2^(n-8)) samples, i.e. 256/512/1024/2048/4096/8192/16384/32768
	var bits uint64
	switch blockSize {
	case 192:
		// 0001
		bits = 0x1
	case 576, 1152, 2304, 4608:
		// 0010-0101 : 576 * (2^(n-2)) samples, i.e. 576/1152/2304/4608
		bits = 0x2 + uint64(math.Log2(float64(blockSize/576)))
	case 256, 512, 1024, 2048, 4096, 8192, 16384, 32768:
		// 1000-1111 : 256 * (2^(n-8)) samples, i.e. 256/512/1024/2048/4096/8192/16384/32768
		bits = 0x8 + uint64(math.Log2(float64(blockSize/256)))
	default:
		if blockSize <= 256 {
			// 0110 : get 8 bit (blocksize-1) from end of header
			bits = 0x6
			nblockSizeSuffixBits = 8
		} else {
			// 0111 : get 16 bit (blocksize-1) from end of header
			bits = 0x7
			nblockSizeSuffixBits = 16
		}
	}

	if err := bw.WriteBits(bits, 4); err != nil {
		return 0, err
	}

	return nblockSizeSuffixBits, nil
}

// encodeFrameHeaderSampleRate encodes the sample rate of the frame header,
// writing to bw.
// It returns the number of bits used to store the sample rate after
// the frame header, along with the value stored in them.
func encodeFrameHeaderSampleRate(bw *bitio.Writer, sampleRate uint32) (nsampleRateSuffixBits byte, sampleRateSuffix uint64, err error) {
	// sample rate:
	//    0000 : get from STREAMINFO metadata block
	//    0001 : 88.2kHz
	//    0010 : 176.4kHz
	//    0011 : 192kHz
	//    0100 : 8kHz
	//    0101 : 16kHz
	//    0110 : 22.05kHz
	//    0111 : 24kHz
	//    1000 : 32kHz
	//    1001 : 44.1kHz
	//    1010 : 48kHz
	//    1011 : 96kHz
	//    1100 : get 8 bit sample rate (in kHz) from end of header
	//    1101 : get 16 bit sample rate (in Hz) from end of header
	//    1110 : get 16 bit sample rate (in daHz) from end of header
	//    1111 : invalid
	var bits uint64
	switch sampleRate {
	case 0:
		// 0000 : get from STREAMINFO metadata block
		bits = 0x0
	case 88200:
		// 0001 : 88.2kHz
		bits = 0x1
	case 176400:
		// 0010 : 176.4kHz
		bits = 0x2
	case 192000:
		// 0011 : 192kHz
		bits = 0x3
	case 8000:
		// 0100 : 8kHz
		bits = 0x4
	case 16000:
		// 0101 : 16kHz
		bits = 0x5
	case 22050:
		// 0110 : 22.05kHz
		bits = 0x6
	case 24000:
		// 0111 : 24kHz
		bits = 0x7
	case 32000:
		// 1000 : 32kHz
		bits = 0x8
	case 44100:
		// 1001 : 44.1kHz
		bits = 0x9
	case 48000:
		// 1010 : 48kHz
		bits = 0xA
	case 96000:
		// 1011 : 96kHz
		bits = 0xB
	default:
		switch {
		case sampleRate%1000 == 0 && sampleRate/1000 <= 255:
			// 1100 : get 8 bit sample rate (in kHz) from end of header
			bits = 0xC
			nsampleRateSuffixBits = 8
			sampleRateSuffix = uint64(sampleRate / 1000)
		case sampleRate <= 65535:
			// 1101 : get 16 bit sample rate (in Hz) from end of header
			bits = 0xD
			nsampleRateSuffixBits = 16
			sampleRateSuffix = uint64(sampleRate)
		case sampleRate%10 == 0 && sampleRate/10 <= 65535:
			// 1110 : get 16 bit sample rate (in daHz) from end of header
			bits = 0xE
			nsampleRateSuffixBits = 16
			sampleRateSuffix = uint64(sampleRate / 10)
		default:
			// 0000 : get from STREAMINFO metadata block
			bits = 0x0
		}
	}

	if err := bw.WriteBits(bits, 4); err != nil {
		return 0, 0, err
	}

	return nsampleRateSuffixBits, sampleRateSuffix, nil
}
