package utf8

import (
	"errors"
	"fmt"
	"io"

	"github.com/lorev/flac/internal/ioutilx"
)

// runeMax maps the number of continuation bytes of a coded number to the
// largest value representable with one byte less; a decoded value at or
// below this limit uses a larger representation than necessary.
var runeMax = [...]uint64{
	1: rune1Max,
	2: rune2Max,
	3: rune3Max,
	4: rune4Max,
	5: rune5Max,
	6: rune6Max,
}

// Decode decodes a "UTF-8" coded number and returns it.
//
// The leading byte determines the length of the sequence; the number of
// leading binary ones minus one gives the count of continuation bytes, each
// of which must match 10xxxxxx and contributes six bits to the value. A
// sequence longer than the value requires is rejected.
func Decode(r io.Reader) (x uint64, err error) {
	c0, err := ioutilx.ReadByte(r)
	if err != nil {
		return 0, err
	}

	// 1-byte, 7-bit sequence
	if c0 < tx {
		// if c0 == 0xxxxxxx
		return uint64(c0), nil
	}

	// unexpected continuation byte
	if c0 < t2 {
		// if c0 == 10xxxxxx
		return 0, errors.New("frame.decodeUTF8Int: unexpected continuation byte")
	}

	// get number of continuation bytes and store bits from c0
	var l int
	switch {
	case c0 < t3:
		// if c0 == 110xxxxx
		// total: 11 bits (5 + 6)
		l = 1
		x = uint64(c0 & mask2)
	case c0 < t4:
		// if c0 == 1110xxxx
		// total: 16 bits (4 + 6 + 6)
		l = 2
		x = uint64(c0 & mask3)
	case c0 < t5:
		// if c0 == 11110xxx
		// total: 21 bits (3 + 6 + 6 + 6)
		l = 3
		x = uint64(c0 & mask4)
	case c0 < t6:
		// if c0 == 111110xx
		// total: 26 bits (2 + 6 + 6 + 6 + 6)
		l = 4
		x = uint64(c0 & mask5)
	case c0 < t7:
		// if c0 == 1111110x
		// total: 31 bits (1 + 6 + 6 + 6 + 6 + 6)
		l = 5
		x = uint64(c0 & mask6)
	case c0 < t8:
		// if c0 == 11111110
		// total: 36 bits (0 + 6 + 6 + 6 + 6 + 6 + 6)
		l = 6
		x = 0
	default:
		// if c0 == 11111111
		return 0, errors.New("frame.decodeUTF8Int: invalid first byte of coded number")
	}

	// store bits from continuation bytes
	for i := 0; i < l; i++ {
		x <<= 6
		c, err := ioutilx.ReadByte(r)
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if c < tx || t2 <= c {
			// if c != 10xxxxxx
			return 0, errors.New("frame.decodeUTF8Int: expected continuation byte")
		}
		x |= uint64(c & maskx)
	}

	// check if number representation is larger than necessary
	if x <= runeMax[l] {
		return 0, fmt.Errorf("frame.decodeUTF8Int: larger number representation than necessary; x (%d) stored in %d bytes, could be stored in %d bytes", x, l+1, l)
	}

	return x, nil
}
