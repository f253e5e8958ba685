package flac

import (
	"fmt"

	"github.com/icza/bitio"
	"github.com/lorev/flac/frame"
	"github.com/lorev/flac/internal/bits"
)

// encodeSubframe encodes the given subframe of the frame, writing to bw.
// The subframe header specifies the prediction method, order and
// residual coding parameters used to encode the audio samples.
func encodeSubframe(bw *bitio.Writer, hdr frame.Header, subframe *frame.Subframe, bps uint) error {
	// store subframe header.
	if err := encodeSubframeHeader(bw, subframe.SubHeader); err != nil {
		return err
	}

	// Right shift audio samples to strip wasted bits-per-sample;
	// the decoder restores them after decoding.
	if subframe.Wasted > 0 {
		if subframe.Wasted >= bps {
			return fmt.Errorf("too many wasted bits-per-sample; expected < %d, got %d", bps, subframe.Wasted)
		}
		bps -= subframe.Wasted
		shifted := &frame.Subframe{
			SubHeader: subframe.SubHeader,
			Samples:   make([]int32, len(subframe.Samples)),
			NSamples:  subframe.NSamples,
		}
		for i, sample := range subframe.Samples {
			shifted.Samples[i] = sample >> subframe.Wasted
		}
		subframe = shifted
	}

	// encode audio samples.
	switch subframe.Pred {
	case frame.PredConstant:
		return encodeConstantSamples(bw, hdr, subframe, bps)
	case frame.PredVerbatim:
		return encodeVerbatimSamples(bw, hdr, subframe, bps)
	case frame.PredFixed:
		return encodeFixedSamples(bw, hdr, subframe, bps)
	case frame.PredFIR:
		return encodeFIRSamples(bw, hdr, subframe, bps)
	default:
		return fmt.Errorf("support for prediction method %v not yet implemented", subframe.Pred)
	}
}

// encodeSubframeHeader encodes the given subframe header, writing to bw.
func encodeSubframeHeader(bw *bitio.Writer, subHdr frame.SubHeader) error {
	// 1 bit: zero-padding.
	if err := bw.WriteBits(0x0, 1); err != nil {
		return err
	}

	// 6 bits: Pred.
	//    000000: Constant prediction method.
	//    000001: Verbatim prediction method.
	//    001xxx: Fixed prediction method; xxx=order
	//    1xxxxx: FIR prediction method; xxxxx=order-1
	var x uint64
	switch subHdr.Pred {
	case frame.PredConstant:
		x = 0x00
	case frame.PredVerbatim:
		x = 0x01
	case frame.PredFixed:
		if subHdr.Order < 0 || subHdr.Order > 4 {
			return fmt.Errorf("invalid order (%d) of fixed prediction method; expected 0-4", subHdr.Order)
		}
		x = 0x08 | uint64(subHdr.Order)
	case frame.PredFIR:
		if subHdr.Order < 1 || subHdr.Order > 32 {
			return fmt.Errorf("invalid order (%d) of FIR prediction method; expected 1-32", subHdr.Order)
		}
		x = 0x20 | uint64(subHdr.Order-1)
	default:
		return fmt.Errorf("support for prediction method %v not yet implemented", subHdr.Pred)
	}
	if err := bw.WriteBits(x, 6); err != nil {
		return err
	}

	// 1 bit: hasWastedBits.
	if err := bw.WriteBool(subHdr.Wasted > 0); err != nil {
		return err
	}
	if subHdr.Wasted > 0 {
		// k wasted bits-per-sample in source subblock, k-1 follows, unary coded;
		// e.g. k=3 => 001 follows, k=7 => 0000001 follows.
		if err := bits.WriteUnary(bw, uint64(subHdr.Wasted-1)); err != nil {
			return err
		}
	}

	return nil
}

// encodeConstantSamples stores the given constant sample, writing to bw.
func encodeConstantSamples(bw *bitio.Writer, hdr frame.Header, subframe *frame.Subframe, bps uint) error {
	samples := subframe.Samples
	sample := samples[0]
	for _, s := range samples[1:] {
		if sample != s {
			return fmt.Errorf("constant sample mismatch; expected %v, got %v", sample, s)
		}
	}

	// unencoded constant value of the subblock
	// n = frame's bits-per-sample
	if err := bw.WriteBits(uint64(sample), uint8(bps)); err != nil {
		return err
	}

	return nil
}

// encodeVerbatimSamples stores the given samples verbatim (uncompressed), writing to bw
func encodeVerbatimSamples(bw *bitio.Writer, hdr frame.Header, subframe *frame.Subframe, bps uint) error {
	// unencoded subblock
	// n = frame's bits-per-sample
	// i = frame's blocksize
	samples := subframe.Samples
	if int(hdr.BlockSize) != len(samples) {
		return fmt.Errorf("block size and sample count mismatch; expected %d, got %d", hdr.BlockSize, len(samples))
	}

	for _, sample := range samples {
		if err := bw.WriteBits(uint64(sample), uint8(bps)); err != nil {
			return err
		}
	}

	return nil
}

// getLPCResiduals returns the residuals
// (signal errors of the prediction)
// between the given audio samples and the LPC predicted audio samples,
// using the coefficients of a given polynomial,
// and a couple (order of polynomial;
// i.e. len(coeffs)) of unencoded warm-up samples.
func getLPCResiduals(subframe *frame.Subframe, coeffs []int32, shift int32) ([]int32, error) {
	if len(coeffs) != subframe.Order {
		return nil, fmt.Errorf("getLPCResiduals: prediction order (%d) differs from number of coefficients (%d)", subframe.Order, len(coeffs))
	}

	if shift < 0 {
		return nil, fmt.Errorf("getLPCResiduals: invalid negative shift")
	}

	if subframe.NSamples != len(subframe.Samples) {
		return nil, fmt.Errorf("getLPCResiduals: subframe sample count mismatch; expected %d, got %d", subframe.NSamples, len(subframe.Samples))
	}

	var residuals []int32
	for i := subframe.Order; i < subframe.NSamples; i++ {
		var sample int64
		for j, c := range coeffs {
			sample += int64(c) * int64(subframe.Samples[i-j-1])
		}
		residual := subframe.Samples[i] - int32(sample>>uint(shift))
		residuals = append(residuals, residual)
	}

	return residuals, nil
}

// encodeFixedSamples stores the given samples using fixed prediction,
// writing to bw.
// The prediction polynomial coefficients are selected from a fixed set,
// as specified by the order of the subframe.
func encodeFixedSamples(bw *bitio.Writer, hdr frame.Header, subframe *frame.Subframe, bps uint) error {
	// store unencoded warm-up samples.
	samples := subframe.Samples
	for _, sample := range samples[:subframe.Order] {
		// (bits-per-sample) bits: Unencoded warm-up sample.
		if err := bw.WriteBits(uint64(sample), uint8(bps)); err != nil {
			return err
		}
	}

	// compute the residuals (signal errors of the prediction)
	// between the audio samples and their fixed predictions.
	residuals, err := getLPCResiduals(subframe, frame.FixedCoeffs[subframe.Order], 0)
	if err != nil {
		return err
	}

	// store the encoded residuals of the subframe.
	return encodeResiduals(bw, subframe, residuals)
}

// encodeFIRSamples stores the given samples using FIR linear prediction,
// writing to bw.
// The coefficients of the prediction polynomial are stored in the subframe.
func encodeFIRSamples(bw *bitio.Writer, hdr frame.Header, subframe *frame.Subframe, bps uint) error {
	// store unencoded warm-up samples.
	samples := subframe.Samples
	for _, sample := range samples[:subframe.Order] {
		// (bits-per-sample) bits: Unencoded warm-up sample.
		if err := bw.WriteBits(uint64(sample), uint8(bps)); err != nil {
			return err
		}
	}

	// compute the residuals (signal errors of the prediction)
	// between the audio samples and their predictions.
	residuals, err := getLPCResiduals(subframe, subframe.Coeffs, subframe.CoeffShift)
	if err != nil {
		return err
	}

	// 4 bits: (coefficients' precision in bits) - 1.
	if subframe.CoeffPrec < 1 || subframe.CoeffPrec > 15 {
		return fmt.Errorf("invalid coefficient precision; expected 1-15, got %d", subframe.CoeffPrec)
	}
	if err := bw.WriteBits(uint64(subframe.CoeffPrec-1), 4); err != nil {
		return err
	}

	// 5 bits: predictor coefficient shift needed in bits.
	if subframe.CoeffShift < 0 || subframe.CoeffShift > 15 {
		return fmt.Errorf("invalid predictor coefficient shift; expected 0-15, got %d", subframe.CoeffShift)
	}
	if err := bw.WriteBits(uint64(subframe.CoeffShift), 5); err != nil {
		return err
	}

	// store predictor coefficients.
	for _, coeff := range subframe.Coeffs {
		// (prec) bits: Predictor coefficient.
		if err := bw.WriteBits(uint64(coeff), uint8(subframe.CoeffPrec)); err != nil {
			return err
		}
	}

	// store the encoded residuals of the subframe.
	return encodeResiduals(bw, subframe, residuals)
}

// encodeResiduals encodes the residuals
// (prediction method error signals) of the subframe, writing to bw.
// The Rice coding parameters of the subframe are used if present;
// otherwise the parameters resulting in the smallest encoded size are
// selected and recorded in the subframe.
func encodeResiduals(bw *bitio.Writer, subframe *frame.Subframe, residuals []int32) error {
	if subframe.RiceSubframe == nil {
		method, riceSubframe, _, err := bestRiceSubframe(residuals, subframe.Order, subframe.NSamples)
		if err != nil {
			return err
		}
		subframe.ResidualCodingMethod = method
		subframe.RiceSubframe = riceSubframe
	}

	// 2 bits: Residual coding method.
	//    00: Rice coding with a 4-bit Rice parameter.
	//    01: Rice coding with a 5-bit Rice parameter.
	var paramSize uint
	switch subframe.ResidualCodingMethod {
	case frame.ResidualCodingMethodRice1:
		paramSize = 4
	case frame.ResidualCodingMethodRice2:
		paramSize = 5
	default:
		return fmt.Errorf("support for residual coding method %d not yet implemented", subframe.ResidualCodingMethod)
	}
	if err := bw.WriteBits(uint64(subframe.ResidualCodingMethod), 2); err != nil {
		return err
	}

	return encodeRicePart(bw, subframe, paramSize, residuals)
}

// encodeRicePart encodes a Rice partition of residuals from the subframe,
// using a Rice parameter of the specified size in bits.
func encodeRicePart(bw *bitio.Writer, subframe *frame.Subframe, paramSize uint, residuals []int32) error {
	// 4 bits: Partition order.
	riceSubframe := subframe.RiceSubframe
	partOrder := riceSubframe.PartOrder
	if err := bw.WriteBits(uint64(partOrder), 4); err != nil {
		return err
	}

	// store Rice partitions; in total 2^partOrder partitions.
	nparts := 1 << partOrder
	if nparts != len(riceSubframe.Partitions) {
		return fmt.Errorf("partition count mismatch; expected %d, got %d", nparts, len(riceSubframe.Partitions))
	}
	cur := 0
	for i := range riceSubframe.Partitions {
		partition := &riceSubframe.Partitions[i]

		// determine the number of Rice encoded samples in the partition.
		var nsamples int
		if partOrder == 0 {
			nsamples = subframe.NSamples - subframe.Order
		} else if i != 0 {
			nsamples = subframe.NSamples / nparts
		} else {
			nsamples = subframe.NSamples/nparts - subframe.Order
		}
		if nsamples < 0 || cur+nsamples > len(residuals) {
			return fmt.Errorf("invalid number of samples in partition; got %d", nsamples)
		}

		// (4 or 5) bits: Rice parameter.
		param := partition.Param
		if err := bw.WriteBits(uint64(param), uint8(paramSize)); err != nil {
			return err
		}

		if paramSize == 4 && param == 0xF || paramSize == 5 && param == 0x1F {
			// 1111 or 11111: Escape code, meaning the partition is in unencoded
			// binary form using n bits per sample; n follows as a 5-bit number.
			n := partition.EscapedBitsPerSample
			if err := bw.WriteBits(uint64(n), 5); err != nil {
				return err
			}
			for _, residual := range residuals[cur : cur+nsamples] {
				// The residual samples are stored signed two's complement.
				if err := bw.WriteBits(uint64(residual), uint8(n)); err != nil {
					return err
				}
			}
			cur += nsamples
			continue
		}

		// store the Rice encoded residuals of the partition.
		for _, residual := range residuals[cur : cur+nsamples] {
			if err := encodeRiceResidual(bw, param, residual); err != nil {
				return err
			}
		}
		cur += nsamples
	}
	if cur != len(residuals) {
		return fmt.Errorf("residual count mismatch; expected %d, got %d", len(residuals), cur)
	}

	return nil
}

// encodeRiceResidual encodes a Rice encoded residual (error signal),
// writing to bw.
func encodeRiceResidual(bw *bitio.Writer, k uint, residual int32) error {
	// ZigZag encode.
	folded := bits.EncodeZigZag(residual)

	// Write unary encoded most significant bits.
	high := uint64(folded >> k)
	if err := bits.WriteUnary(bw, high); err != nil {
		return err
	}

	// Write binary encoded least significant bits.
	low := uint64(folded) & (1<<k - 1)
	if err := bw.WriteBits(low, uint8(k)); err != nil {
		return err
	}

	return nil
}

// bestSubframe returns the subframe representation of the given audio samples
// with the smallest encoded size, along with its exact size in bits.
// The returned subframe references the given sample slice.
func bestSubframe(samples []int32, bps uint, maxLPCOrder int, exhaustive bool) (*frame.Subframe, int, error) {
	n := len(samples)
	if n < 1 {
		return nil, 0, fmt.Errorf("invalid number of samples in subframe; expected >= 1, got %d", n)
	}

	// A subframe header holds 8 bits, plus the unary coded count of wasted
	// bits-per-sample when present.
	hdrBits := 1 + 6 + 1

	// Constant subframe when every audio sample has the same value.
	constant := true
	for _, sample := range samples[1:] {
		if sample != samples[0] {
			constant = false
			break
		}
	}
	if constant {
		subframe := &frame.Subframe{
			SubHeader: frame.SubHeader{
				Pred: frame.PredConstant,
			},
			Samples:  samples,
			NSamples: n,
		}
		return subframe, hdrBits + int(bps), nil
	}

	// Strip wasted bits-per-sample; trailing zero bits shared by all audio
	// samples are stripped before prediction and restored by the decoder.
	wasted := wastedBits(samples)
	encSamples := samples
	if wasted > 0 {
		hdrBits += int(wasted)
		bps -= wasted
		encSamples = make([]int32, n)
		for i, sample := range samples {
			encSamples[i] = sample >> wasted
		}
	}

	// Verbatim subframe as the upper bound on the encoded size.
	best := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  encSamples,
		NSamples: n,
	}
	bestBits := hdrBits + n*int(bps)

	// Fixed prediction.
	fixedSub, fixedBits, err := bestFixedSubframe(encSamples, bps, hdrBits)
	if err != nil {
		return nil, 0, err
	}
	if fixedBits < bestBits {
		best, bestBits = fixedSub, fixedBits
	}

	// FIR linear prediction with coefficients computed from the windowed
	// autocorrelation of the audio samples.
	maxOrder := maxLPCOrder
	if maxOrder > 32 {
		maxOrder = 32
	}
	if maxOrder > n-1 {
		maxOrder = n - 1
	}
	if maxOrder > 0 {
		firSub, firBits, err := bestFIRSubframe(encSamples, bps, hdrBits, maxOrder, exhaustive)
		if err != nil {
			return nil, 0, err
		}
		if firSub != nil && firBits < bestBits {
			best, bestBits = firSub, firBits
		}
	}

	// The returned subframe carries the unshifted audio samples;
	// encodeSubframe strips the wasted bits again while writing.
	best.Wasted = wasted
	best.Samples = samples
	return best, bestBits, nil
}

// bestFixedSubframe returns the fixed prediction subframe of the given audio
// samples with the smallest encoded size, along with its exact size in bits.
// The prediction order is estimated by the sum of absolute residuals of each
// order, after which the encoded size of the estimated order is measured
// exactly.
func bestFixedSubframe(samples []int32, bps uint, hdrBits int) (*frame.Subframe, int, error) {
	n := len(samples)
	maxOrder := 4
	if maxOrder > n {
		maxOrder = n
	}

	// Each successive difference of the audio samples raises the fixed
	// prediction order by one.
	// Evaluate every order over the same trailing window of the block.
	diff := make([]int64, n)
	for i, sample := range samples {
		diff[i] = int64(sample)
	}
	order := 0
	bestSum := absSum(diff[maxOrder:])
	for o := 1; o <= maxOrder; o++ {
		for i := n - 1; i >= o; i-- {
			diff[i] -= diff[i-1]
		}
		if sum := absSum(diff[maxOrder:]); sum < bestSum {
			order, bestSum = o, sum
		}
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred:  frame.PredFixed,
			Order: order,
		},
		Samples:  samples,
		NSamples: n,
	}

	residuals, err := getLPCResiduals(subframe, frame.FixedCoeffs[order], 0)
	if err != nil {
		return nil, 0, err
	}

	method, riceSubframe, resBits, err := bestRiceSubframe(residuals, order, n)
	if err != nil {
		return nil, 0, err
	}
	subframe.ResidualCodingMethod = method
	subframe.RiceSubframe = riceSubframe

	return subframe, hdrBits + order*int(bps) + resBits, nil
}

// wastedBits returns the number of trailing zero bits shared by all of the
// given audio samples.
func wastedBits(samples []int32) uint {
	var or int32
	for _, sample := range samples {
		or |= sample
	}
	if or == 0 {
		return 0
	}
	var wasted uint
	for or&1 == 0 {
		or >>= 1
		wasted++
	}
	return wasted
}

// absSum returns the sum of the absolute values of xs.
func absSum(xs []int64) uint64 {
	var sum uint64
	for _, x := range xs {
		if x < 0 {
			x = -x
		}
		sum += uint64(x)
	}
	return sum
}
