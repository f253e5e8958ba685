package flac

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/icza/bitio"
	"github.com/lorev/flac/frame"
	"github.com/lorev/flac/meta"
)

// StereoMode specifies the inter-channel decorrelation strategy used when
// encoding stereo audio.
type StereoMode uint8

// Stereo decorrelation strategies.
const (
	// StereoAuto encodes each frame with every channel assignment and keeps
	// the smallest.
	StereoAuto StereoMode = iota
	// StereoIndependent encodes the left and right channel independently.
	StereoIndependent
	// StereoMidSide encodes the average and the difference of the left and
	// right channel.
	StereoMidSide
)

// Encoder represents a FLAC encoder.
type Encoder struct {
	// FLAC stream of encoder.
	*Stream
	// Stereo decorrelation strategy used by WriteSamples.
	Stereo StereoMode
	// Maximum FIR linear prediction order used by WriteSamples;
	// 0 disables linear prediction, leaving the fixed predictors.
	MaxLPCOrder int
	// Measure the encoded size of every linear prediction order up to
	// MaxLPCOrder, instead of estimating the best order from the expected
	// prediction error.
	ExhaustiveOrder bool
	// Underlying io.Writer or io.WriteCloser to the output stream.
	w io.Writer
	// Minimum and maximum block size (in samples) of frames written by
	// encoder. The minimum covers all but the most recent frame, since the
	// last frame of a stream may be shorter than the minimum block size.
	blockSizeMin, blockSizeMax uint16
	// Block size of the most recent frame, pending inclusion in blockSizeMin.
	pendingBlockSize uint16
	// Minimum and maximum frame size (in bytes) of frames written by encoder.
	frameSizeMin, frameSizeMax uint32
	// MD5 running hash of unencoded audio samples.
	md5sum hash.Hash
	// Total number of samples (per channel) written by encoder.
	nsamples uint64
	// Current frame number if block size is fixed,
	// and the first sample number of the current frame otherwise.
	curNum uint64
}

// NewEncoder returns a new FLAC encoder for the
// given metadata StreamInfo block and optional metadata blocks.
func NewEncoder(w io.Writer, info *meta.StreamInfo, blocks ...*meta.Block) (*Encoder, error) {
	if info == nil {
		return nil, errors.New("flac.NewEncoder: nil StreamInfo metadata block")
	}

	// validate the metadata block sequence of the stream.
	stream := &Stream{Info: info}
	for _, block := range blocks {
		if err := stream.AppendBlock(block); err != nil {
			return nil, err
		}
	}
	enc := &Encoder{
		Stream:      stream,
		MaxLPCOrder: 8,
		w:           w,
		md5sum:      md5.New(),
	}

	// store FLAC signature
	bw := bitio.NewWriter(w)
	if _, err := bw.Write(flacSignature); err != nil {
		return nil, err
	}

	// encode metadata blocks
	if err := encodeStreamInfo(bw, info, len(blocks) == 0); err != nil {
		return nil, err
	}

	for i, block := range blocks {
		if err := encodeBlock(bw, block, i == len(blocks)-1); err != nil {
			return nil, err
		}
	}

	// flush pending writes of metadata blocks
	if _, err := bw.Align(); err != nil {
		return nil, err
	}

	// return encoder to be used for encoding audio samples
	return enc, nil
}

// WriteSamples encodes the given audio samples as a single frame,
// writing to the output stream of the encoder.
// samples holds one slice of audio samples per channel,
// each of the same length, being the block size of the frame.
//
// For stereo audio the frame is encoded with each candidate channel
// assignment of the stereo decorrelation strategy of the encoder,
// and the assignment producing the smallest frame is kept.
func (enc *Encoder) WriteSamples(samples [][]int32) error {
	info := enc.Info
	if len(samples) != int(info.NChannels) {
		return fmt.Errorf("flac.Encoder.WriteSamples: invalid number of channels; expected %d, got %d", info.NChannels, len(samples))
	}
	blockSize := len(samples[0])
	for _, ch := range samples[1:] {
		if len(ch) != blockSize {
			return fmt.Errorf("flac.Encoder.WriteSamples: sample count mismatch between channels; expected %d, got %d", blockSize, len(ch))
		}
	}
	if blockSize < 1 || blockSize > int(info.BlockSizeMax) {
		return fmt.Errorf("flac.Encoder.WriteSamples: invalid block size; expected <= %d, got %d", info.BlockSizeMax, blockSize)
	}
	// Only the final block of a stream may fall short of the declared
	// minimum block size. A new block arriving shows that the previous one
	// was not final.
	if enc.pendingBlockSize != 0 && enc.pendingBlockSize < info.BlockSizeMin {
		return fmt.Errorf("flac.Encoder.WriteSamples: invalid block size of preceding non-final frame; expected >= %d, got %d", info.BlockSizeMin, enc.pendingBlockSize)
	}

	// Use a fixed block size numbering scheme when the stream declares a
	// single block size.
	hdr := frame.Header{
		HasFixedBlockSize: info.BlockSizeMin == info.BlockSizeMax,
		BlockSize:         uint16(blockSize),
		SampleRate:        info.SampleRate,
		BitsPerSample:     info.BitsPerSample,
		Num:               enc.curNum,
	}

	// update the running MD5 hash with the unencoded audio samples.
	hashFrame := &frame.Frame{Header: hdr}
	for _, ch := range samples {
		hashFrame.Subframes = append(hashFrame.Subframes, &frame.Subframe{
			Samples:  ch,
			NSamples: blockSize,
		})
	}
	hashFrame.Hash(enc.md5sum)

	// candidate channel assignments of the frame.
	// The side channel of inter-channel decorrelation requires an extra bit
	// per audio sample, ruling out decorrelation of 32 bits-per-sample audio.
	var candidates []frame.Channels
	if len(samples) == 2 && info.BitsPerSample < 32 {
		switch enc.Stereo {
		case StereoIndependent:
			candidates = []frame.Channels{frame.ChannelsLR}
		case StereoMidSide:
			candidates = []frame.Channels{frame.ChannelsMidSide}
		default:
			candidates = []frame.Channels{
				frame.ChannelsLR,
				frame.ChannelsLeftSide,
				frame.ChannelsSideRight,
				frame.ChannelsMidSide,
			}
		}
	} else {
		candidates = []frame.Channels{frame.Channels(len(samples) - 1)}
	}

	// encode the frame with each candidate channel assignment,
	// keeping the smallest.
	var best []byte
	for _, channels := range candidates {
		hdr.Channels = channels
		buf, err := enc.encodeFrameCandidate(hdr, samples)
		if err != nil {
			return err
		}
		if best == nil || len(buf) < len(best) {
			best = buf
		}
	}

	// store the frame.
	if _, err := enc.w.Write(best); err != nil {
		return err
	}

	enc.updateStats(uint16(blockSize), hdr.HasFixedBlockSize, uint32(len(best)))
	return nil
}

// encodeFrameCandidate encodes the given audio samples with the channel
// assignment of the frame header, returning the encoded frame.
func (enc *Encoder) encodeFrameCandidate(hdr frame.Header, samples [][]int32) ([]byte, error) {
	// Inter-channel correlate the audio samples of the candidate channel
	// assignment, on a scratch copy of the sample slices.
	f := &frame.Frame{Header: hdr}
	for _, ch := range samples {
		f.Subframes = append(f.Subframes, &frame.Subframe{
			Samples:  append([]int32(nil), ch...),
			NSamples: len(ch),
		})
	}
	f.Correlate()

	// select the subframe representation of each channel.
	for channel, subframe := range f.Subframes {
		// The side channel of inter-channel decorrelation
		// requires an extra bit per audio sample.
		bps := uint(hdr.BitsPerSample)
		switch hdr.Channels {
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

		best, _, err := bestSubframe(subframe.Samples, bps, enc.MaxLPCOrder, enc.ExhaustiveOrder)
		if err != nil {
			return nil, err
		}
		f.Subframes[channel] = best
	}

	buf := new(bytes.Buffer)
	if err := encodeFrame(buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFrame encodes the given audio frame,
// writing to the output stream of the encoder.
// The subframes of the frame specify the prediction method, order and
// audio samples of each channel;
// Rice coding parameters are selected for subframes which carry none.
func (enc *Encoder) WriteFrame(f *frame.Frame) error {
	// Only the final block of a stream may fall short of the declared
	// minimum block size.
	if enc.pendingBlockSize != 0 && enc.pendingBlockSize < enc.Info.BlockSizeMin {
		return fmt.Errorf("flac.Encoder.WriteFrame: invalid block size of preceding non-final frame; expected >= %d, got %d", enc.Info.BlockSizeMin, enc.pendingBlockSize)
	}

	// fill in frame header defaults from the StreamInfo metadata block.
	if f.BitsPerSample == 0 {
		f.BitsPerSample = enc.Info.BitsPerSample
	}
	if f.SampleRate == 0 {
		f.SampleRate = enc.Info.SampleRate
	}
	f.Num = enc.curNum

	// update the running MD5 hash with the unencoded audio samples.
	f.Hash(enc.md5sum)

	// Inter-channel correlate the audio samples of the subframes before
	// encoding, and restore them before returning.
	f.Correlate()
	buf := new(bytes.Buffer)
	err := encodeFrame(buf, f)
	f.Decorrelate()
	if err != nil {
		return err
	}

	// store the frame.
	if _, err := enc.w.Write(buf.Bytes()); err != nil {
		return err
	}

	enc.updateStats(f.BlockSize, f.HasFixedBlockSize, uint32(buf.Len()))
	return nil
}

// updateStats updates the running frame statistics of the encoder with an
// encoded frame of the given block size in samples and frame size in bytes.
func (enc *Encoder) updateStats(blockSize uint16, hasFixedBlockSize bool, frameSize uint32) {
	enc.nsamples += uint64(blockSize)
	if hasFixedBlockSize {
		enc.curNum++
	} else {
		enc.curNum += uint64(blockSize)
	}
	// fold block sizes into the minimum one frame late,
	// exempting the final frame of the stream.
	if enc.pendingBlockSize != 0 && (enc.blockSizeMin == 0 || enc.pendingBlockSize < enc.blockSizeMin) {
		enc.blockSizeMin = enc.pendingBlockSize
	}
	enc.pendingBlockSize = blockSize
	if blockSize > enc.blockSizeMax {
		enc.blockSizeMax = blockSize
	}
	if enc.frameSizeMin == 0 || frameSize < enc.frameSizeMin {
		enc.frameSizeMin = frameSize
	}
	if frameSize > enc.frameSizeMax {
		enc.frameSizeMax = frameSize
	}
}

// Close updates the StreamInfo metadata block of the stream with the
// number of samples, MD5 checksum and frame statistics of the encoded audio,
// rewriting the block if the output stream is seekable.
// It closes the underlying io.Writer of the encoder if it implements
// io.Closer.
func (enc *Encoder) Close() error {
	info := enc.Info
	info.NSamples = enc.nsamples
	copy(info.MD5sum[:], enc.md5sum.Sum(nil))
	if enc.frameSizeMin != 0 {
		info.FrameSizeMin = enc.frameSizeMin
		info.FrameSizeMax = enc.frameSizeMax
	}
	// The block size bounds of StreamInfo have a floor of 16 samples;
	// leave the declared bounds in place for streams of a single short frame.
	if enc.blockSizeMin >= 16 {
		info.BlockSizeMin = enc.blockSizeMin
		info.BlockSizeMax = enc.blockSizeMax
	}

	// rewrite the StreamInfo metadata block at the start of the stream.
	if ws, ok := enc.w.(io.WriteSeeker); ok {
		if _, err := ws.Seek(int64(len(flacSignature)), io.SeekStart); err != nil {
			return err
		}
		bw := bitio.NewWriter(ws)
		if err := encodeStreamInfo(bw, info, len(enc.Blocks) == 0); err != nil {
			return err
		}
		if _, err := bw.Align(); err != nil {
			return err
		}
		if _, err := ws.Seek(0, io.SeekEnd); err != nil {
			return err
		}
	}

	if c, ok := enc.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
