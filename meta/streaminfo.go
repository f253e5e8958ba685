package meta

import (
	"crypto/md5"
	"fmt"
	"io"

	"github.com/lorev/flac/internal/bits"
)

// StreamInfo contains the basic properties of a FLAC audio stream,
// such as its sample rate and channel count.
// It is the only mandatory metadata block and
// must be present as the first metadata block of a FLAC stream.
type StreamInfo struct {
	// Minimum block size (in samples) used in the stream;
	// between 16 and 65535 samples.
	BlockSizeMin uint16
	// Maximum block size (in samples) used in the stream;
	// between 16 and 65535 samples.
	// (BlockSizeMin == BlockSizeMax) implies a fixed-blocksize stream.
	BlockSizeMax uint16
	// Minimum frame size in bytes; a 0 value implies unknown.
	FrameSizeMin uint32
	// Maximum frame size in bytes; a 0 value implies unknown.
	FrameSizeMax uint32
	// Sample rate in Hz; between 1 and 655350 Hz.
	SampleRate uint32
	// Number of channels; between 1 and 8 channels.
	NChannels uint8
	// Sample size in bits-per-sample; between 4 and 32 bits.
	BitsPerSample uint8
	// Total number of inter-channel samples in the stream.
	// One inter-channel sample denotes one sample for each channel;
	// a 0 value implies unknown.
	NSamples uint64
	// MD5 checksum of the unencoded audio samples.
	MD5sum [md5.Size]byte
}

// parseStreamInfo reads and parses the body of a StreamInfo metadata block.
func (block *Block) parseStreamInfo() error {
	// 16 bits: BlockSizeMin.
	br := bits.NewReader(block.lr)
	x, err := br.Read(16)
	if err != nil {
		return unexpected(err)
	} else if x < 16 {
		return fmt.Errorf("meta.Block.parseStreamInfo: invalid minimum block size; expected >= 16, got %d", x)
	}

	si := new(StreamInfo)
	block.Body = si
	si.BlockSizeMin = uint16(x)

	// 16 bits: BlockSizeMax.
	if x, err = br.Read(16); err != nil {
		return unexpected(err)
	} else if x < 16 {
		return fmt.Errorf("meta.Block.parseStreamInfo: invalid maximum block size; expected >= 16 and <= 65535, got %d", x)
	}
	si.BlockSizeMax = uint16(x)

	// 24 bits: FrameSizeMin.
	if x, err = br.Read(24); err != nil {
		return unexpected(err)
	}
	si.FrameSizeMin = uint32(x)

	// 24 bits: FrameSizeMax.
	if x, err = br.Read(24); err != nil {
		return unexpected(err)
	}
	si.FrameSizeMax = uint32(x)

	// 20 bits: SampleRate.
	if x, err = br.Read(20); err != nil {
		return unexpected(err)
	} else if x == 0 || x > 655350 {
		return fmt.Errorf("meta.Block.parseStreamInfo: invalid sample rate; expected > 0 and <= 655350, got %d", x)
	}
	si.SampleRate = uint32(x)

	// 3 bits: NChannels; stored as (number of channels) - 1.
	if x, err = br.Read(3); err != nil {
		return unexpected(err)
	}
	si.NChannels = uint8(x) + 1

	// 5 bits: BitsPerSample; stored as (bits-per-sample) - 1.
	if x, err = br.Read(5); err != nil {
		return unexpected(err)
	}
	si.BitsPerSample = uint8(x) + 1
	if si.BitsPerSample < 4 {
		return fmt.Errorf("meta.Block.parseStreamInfo: invalid number of bits per sample; expected >= 4 and <= 32, got %d", si.BitsPerSample)
	}

	// 36 bits: NSamples.
	if x, err = br.Read(36); err != nil {
		return unexpected(err)
	}
	si.NSamples = x

	// 16 bytes: MD5sum.
	if _, err = io.ReadFull(block.lr, si.MD5sum[:]); err != nil {
		return unexpected(err)
	}

	return nil
}
