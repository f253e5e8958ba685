package flac

import (
	"errors"
	"math"

	"github.com/lorev/flac/frame"
)

// qlpCoeffPrec is the precision in bits used to quantize the predictor
// coefficients of FIR linear prediction.
const qlpCoeffPrec = 15

// bestFIRSubframe returns the FIR prediction subframe of the given audio
// samples with the smallest encoded size, along with its exact size in bits.
// The prediction order is estimated from the expected prediction error of
// each order, unless exhaustive is set, in which case every order up to
// maxOrder is measured.
// It returns a nil subframe when no linear predictor fits the samples.
func bestFIRSubframe(samples []int32, bps uint, hdrBits, maxOrder int, exhaustive bool) (*frame.Subframe, int, error) {
	n := len(samples)
	coeffs, predErrs := lpCoefficients(samples, maxOrder)
	if len(coeffs) == 0 {
		return nil, 0, nil
	}

	var orders []int
	if exhaustive {
		for order := 1; order <= len(coeffs); order++ {
			orders = append(orders, order)
		}
	} else {
		orders = append(orders, estimateLPCOrder(predErrs, n, int(bps)+qlpCoeffPrec))
	}

	var (
		best     *frame.Subframe
		bestBits int
	)
	for _, order := range orders {
		qcoeffs, shift, err := quantizeLPCCoeffs(coeffs[order-1], qlpCoeffPrec)
		if err != nil {
			// degenerate predictor; skip the order.
			continue
		}

		subframe := &frame.Subframe{
			SubHeader: frame.SubHeader{
				Pred:       frame.PredFIR,
				Order:      order,
				CoeffPrec:  qlpCoeffPrec,
				CoeffShift: shift,
				Coeffs:     qcoeffs,
			},
			Samples:  samples,
			NSamples: n,
		}
		residuals, err := getLPCResiduals(subframe, qcoeffs, shift)
		if err != nil {
			return nil, 0, err
		}
		method, riceSubframe, resBits, err := bestRiceSubframe(residuals, order, n)
		if err != nil {
			return nil, 0, err
		}
		subframe.ResidualCodingMethod = method
		subframe.RiceSubframe = riceSubframe

		// The subframe stores the warm-up samples, the quantized coefficients
		// with their precision and shift fields, and the encoded residuals.
		nbits := hdrBits + order*int(bps) + 4 + 5 + order*qlpCoeffPrec + resBits
		if best == nil || nbits < bestBits {
			best, bestBits = subframe, nbits
		}
	}

	return best, bestBits, nil
}

// lpCoefficients computes, for each prediction order up to maxOrder, the
// linear prediction coefficients which minimize the prediction error of the
// given audio samples, using Levinson-Durbin recursion over their windowed
// autocorrelation.
// coeffs[order-1] holds the coefficients of the given order, and
// predErrs[order-1] the expected prediction error of the order.
func lpCoefficients(samples []int32, maxOrder int) (coeffs [][]float64, predErrs []float64) {
	// Apply a Tukey window to taper the block edges before analysis.
	window := windowTukey(len(samples), 0.5)
	wdata := make([]float64, len(samples))
	for i, sample := range samples {
		wdata[i] = float64(sample) * window[i]
	}

	// autocorrelation of the windowed samples for lags 0 through maxOrder.
	autoc := make([]float64, maxOrder+1)
	for lag := range autoc {
		var sum float64
		for i := lag; i < len(wdata); i++ {
			sum += wdata[i] * wdata[i-lag]
		}
		autoc[lag] = sum
	}
	if autoc[0] == 0 {
		// silent block; nothing to predict.
		return nil, nil
	}

	// Levinson-Durbin recursion.
	lpc := make([]float64, maxOrder)
	predErr := autoc[0]
	for i := 0; i < maxOrder; i++ {
		// reflection coefficient of order i+1.
		r := -autoc[i+1]
		for j := 0; j < i; j++ {
			r -= lpc[j] * autoc[i-j]
		}
		r /= predErr

		// update the coefficients of the lower orders in place.
		lpc[i] = r
		for j := 0; j < i>>1; j++ {
			tmp := lpc[j]
			lpc[j] += r * lpc[i-1-j]
			lpc[i-1-j] += r * tmp
		}
		if i&1 != 0 {
			lpc[i>>1] += lpc[i>>1] * r
		}
		predErr *= 1 - r*r

		// record the predictor coefficients of order i+1; the FIR filter
		// coefficients are negated to give the predictor coefficients.
		c := make([]float64, i+1)
		for j := range c {
			c[j] = -lpc[j]
		}
		coeffs = append(coeffs, c)
		predErrs = append(predErrs, predErr)

		if predErr <= 0 {
			// the signal is fully predicted at this order.
			break
		}
	}

	return coeffs, predErrs
}

// windowTukey returns a Tukey window of length n, with the given fraction p
// of the window tapered by a cosine ramp.
func windowTukey(n int, p float64) []float64 {
	window := make([]float64, n)
	for i := range window {
		window[i] = 1
	}
	np := int(p/2*float64(n)) - 1
	if np > 0 {
		for i := 0; i <= np; i++ {
			window[i] = 0.5 - 0.5*math.Cos(math.Pi*float64(i)/float64(np))
			window[n-np-1+i] = 0.5 - 0.5*math.Cos(math.Pi*float64(i+np)/float64(np))
		}
	}
	return window
}

// estimateLPCOrder returns the prediction order expected to minimize the
// encoded size of the subframe, based on the expected prediction error of
// each order.
// Each order of prediction adds a warm-up sample and a quantized coefficient,
// as accounted for by overheadBitsPerOrder.
func estimateLPCOrder(predErrs []float64, n, overheadBitsPerOrder int) int {
	errScale := 0.5 / float64(n)
	order, bestBits := 1, math.Inf(1)
	for i, predErr := range predErrs {
		var bitsPerResidual float64
		if predErr > 0 {
			bitsPerResidual = 0.5 * math.Log2(errScale*predErr)
			if bitsPerResidual < 0 {
				bitsPerResidual = 0
			}
		}
		nbits := bitsPerResidual*float64(n-i-1) + float64((i+1)*overheadBitsPerOrder)
		if nbits < bestBits {
			order, bestBits = i+1, nbits
		}
	}
	return order
}

// quantizeLPCCoeffs quantizes the given linear prediction coefficients to
// signed integers of the given precision in bits, returning the quantized
// coefficients and their shift in bits.
// The rounding error of each coefficient is fed into the next, keeping the
// total error of the quantized polynomial small.
func quantizeLPCCoeffs(coeffs []float64, prec uint) (qcoeffs []int32, shift int32, err error) {
	var cmax float64
	for _, c := range coeffs {
		if ac := math.Abs(c); ac > cmax {
			cmax = ac
		}
	}
	if cmax <= 0 {
		return nil, 0, errors.New("all-zero predictor coefficients")
	}

	// The largest shift which keeps the widest coefficient within precision.
	_, expo := math.Frexp(cmax)
	shift = int32(prec) - int32(expo) - 1
	if shift > 15 {
		shift = 15
	} else if shift < 0 {
		shift = 0
	}

	qmax := int64(1)<<(prec-1) - 1
	qmin := -(int64(1) << (prec - 1))
	qcoeffs = make([]int32, len(coeffs))
	var carried float64
	for i, c := range coeffs {
		carried += c * float64(int64(1)<<uint(shift))
		q := int64(math.Round(carried))
		if q > qmax {
			q = qmax
		} else if q < qmin {
			q = qmin
		}
		carried -= float64(q)
		qcoeffs[i] = int32(q)
	}

	return qcoeffs, shift, nil
}
