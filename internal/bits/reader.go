// Package bits provides bit access operations and binary decoding algorithms.
package bits

import (
	"fmt"
	"io"
)

// Reader provides big-endian bit reading on top of an io.Reader. A partially
// consumed byte stays buffered until its remaining bits have been read.
type Reader struct {
	r    io.Reader
	buf  [8]byte // scratch space for byte reads
	rem  uint8   // leftover bits of the most recent partially consumed byte
	nrem uint    // number of valid bits in rem, between 0 and 7
}

// NewReader returns a Reader that decodes bits from r in most significant
// bit first order.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read returns the next n bits as an unsigned integer, with n at most 64.
func (br *Reader) Read(n uint) (x uint64, err error) {
	switch {
	case n == 0:
		return 0, nil
	case n > 64:
		return 0, fmt.Errorf("bit.Reader.Read: invalid number of bits; n (%d) exceeds 64", n)
	}

	// Serve from the partially consumed byte first.
	if br.nrem > 0 {
		if n < br.nrem {
			br.nrem -= n
			x = uint64(br.rem >> br.nrem)
			br.rem &= 1<<br.nrem - 1
			return x, nil
		}
		x = uint64(br.rem)
		n -= br.nrem
		br.nrem = 0
		if n == 0 {
			return x, nil
		}
	}

	// Read whole bytes, keeping any trailing bits of the last byte buffered.
	nbytes := (n + 7) / 8
	if _, err := io.ReadFull(br.r, br.buf[:nbytes]); err != nil {
		return 0, err
	}
	for _, b := range br.buf[:n/8] {
		x = x<<8 | uint64(b)
	}
	if tail := n % 8; tail != 0 {
		b := br.buf[nbytes-1]
		br.nrem = 8 - tail
		x = x<<tail | uint64(b>>br.nrem)
		br.rem = b & (1<<br.nrem - 1)
	}
	return x, nil
}
