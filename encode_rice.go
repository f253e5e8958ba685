package flac

import (
	"fmt"
	mathbits "math/bits"

	"github.com/lorev/flac/frame"
	"github.com/lorev/flac/internal/bits"
)

// riceCostTable accumulates the encoded size of one Rice partition for every
// candidate Rice parameter.
type riceCostTable struct {
	// sums[k] holds the sum of the unary quotients (folded >> k) over the
	// folded residuals of the partition.
	sums [31]uint64
	// number of residuals in the partition.
	n int
	// number of bits needed to store the widest residual of the partition in
	// signed two's complement form.
	width uint
}

// bestRiceSubframe returns the residual coding method, partition order and
// Rice parameters which minimize the encoded size of the given residuals.
// The returned size in bits covers the whole residual coding section of the
// subframe, including the coding method and partition order fields.
func bestRiceSubframe(residuals []int32, order, nsamples int) (frame.ResidualCodingMethod, *frame.RiceSubframe, int, error) {
	if len(residuals) != nsamples-order {
		return 0, nil, 0, fmt.Errorf("residual count mismatch; expected %d, got %d", nsamples-order, len(residuals))
	}

	// The partition order is bounded by the requirement that the block size
	// divides evenly into partitions, the first of which also holds the
	// warm-up samples of the prediction order.
	maxPartOrder := 0
	for p := 1; p <= 8; p++ {
		if nsamples%(1<<p) != 0 || nsamples>>p < order {
			break
		}
		maxPartOrder = p
	}

	// A Rice coded residual stores its quotient in unary followed by k binary
	// bits; a partition with parameter k takes n*(k+1) + sum(folded>>k) bits.
	// Sum the quotients of the partitions at the finest partition order for
	// every candidate parameter; the sums of the coarser orders follow by
	// merging pairs.
	finest := make([]riceCostTable, 1<<maxPartOrder)
	step := nsamples >> maxPartOrder
	for i := range finest {
		table := &finest[i]
		// Partition bounds are given in sample positions; the residuals start
		// after the warm-up samples of the prediction order.
		start := i*step - order
		end := (i+1)*step - order
		if start < 0 {
			start = 0
		}
		table.n = end - start
		for _, residual := range residuals[start:end] {
			folded := bits.EncodeZigZag(residual)
			if width := uint(mathbits.Len32(folded)); width > table.width {
				table.width = width
			}
			for k := range table.sums {
				table.sums[k] += uint64(folded >> uint(k))
			}
		}
	}

	// Evaluate each partition order from the finest down to zero, and each
	// residual coding method, keeping the parameters of the smallest total.
	var (
		bestMethod    frame.ResidualCodingMethod
		bestPartOrder int
		bestParts     []frame.RicePartition
		bestNBits     = int64(-1)
	)
	tables := finest
	for p := maxPartOrder; ; p-- {
		for _, method := range []frame.ResidualCodingMethod{frame.ResidualCodingMethodRice1, frame.ResidualCodingMethodRice2} {
			paramSize, kmax, escape := 4, 14, uint(0xF)
			if method == frame.ResidualCodingMethodRice2 {
				paramSize, kmax, escape = 5, 30, uint(0x1F)
			}

			// 2 bits: residual coding method.
			// 4 bits: partition order.
			total := int64(2 + 4)
			parts := make([]frame.RicePartition, len(tables))
			for i := range tables {
				table := &tables[i]

				// smallest Rice parameter of the partition.
				bestK := 0
				bestCost := int64(table.n) + int64(table.sums[0])
				for k := 1; k <= kmax; k++ {
					cost := int64(table.n)*int64(k+1) + int64(table.sums[k])
					if cost < bestCost {
						bestK, bestCost = k, cost
					}
				}

				// Escape to unencoded binary form when smaller; a 5-bit
				// sample size follows the escape code.
				if table.width <= 31 {
					if escCost := int64(5 + table.n*int(table.width)); escCost < bestCost {
						parts[i] = frame.RicePartition{Param: escape, EscapedBitsPerSample: table.width}
						total += int64(paramSize) + escCost
						continue
					}
				}
				parts[i] = frame.RicePartition{Param: uint(bestK)}
				total += int64(paramSize) + bestCost
			}

			if bestNBits < 0 || total < bestNBits {
				bestMethod, bestPartOrder, bestParts, bestNBits = method, p, parts, total
			}
		}
		if p == 0 {
			break
		}

		// merge into the tables of the next coarser partition order.
		merged := make([]riceCostTable, len(tables)/2)
		for i := range merged {
			a, b := &tables[2*i], &tables[2*i+1]
			table := &merged[i]
			table.n = a.n + b.n
			table.width = a.width
			if b.width > table.width {
				table.width = b.width
			}
			for k := range table.sums {
				table.sums[k] = a.sums[k] + b.sums[k]
			}
		}
		tables = merged
	}

	riceSubframe := &frame.RiceSubframe{
		PartOrder:  bestPartOrder,
		Partitions: bestParts,
	}
	return bestMethod, riceSubframe, int(bestNBits), nil
}
