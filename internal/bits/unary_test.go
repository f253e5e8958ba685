package bits_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/icza/bitio"
	"github.com/lorev/flac/internal/bits"
)

func TestUnaryBits(t *testing.T) {
	tests := []struct {
		x    uint64
		want []byte
	}{
		{0, []byte{0x80}},
		{3, []byte{0x10}},
		{7, []byte{0x01}},
		{8, []byte{0x00, 0x80}},
		{19, []byte{0x00, 0x00, 0x10}},
	}

	for _, test := range tests {
		buf := new(bytes.Buffer)
		bw := bitio.NewWriter(buf)
		if err := bits.WriteUnary(bw, test.x); err != nil {
			t.Fatalf("x=%d: unable to write unary; %v", test.x, err)
		}
		if err := bw.Close(); err != nil {
			t.Fatalf("x=%d: unable to flush the bit buffer; %v", test.x, err)
		}
		if !bytes.Equal(buf.Bytes(), test.want) {
			t.Errorf("x=%d: expected % 02X, got % 02X", test.x, test.want, buf.Bytes())
		}

		got, err := bits.NewReader(bytes.NewReader(test.want)).ReadUnary()
		if err != nil {
			t.Fatalf("x=%d: unable to read unary; %v", test.x, err)
		}
		if got != test.x {
			t.Errorf("decoding % 02X: expected %d, got %d", test.want, test.x, got)
		}
	}
}

func TestUnaryRoundTrip(t *testing.T) {
	// Pack values back to back in a single bitstream so decoding has to
	// track bit positions across byte boundaries.
	const nvalues = 1000
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	for x := uint64(0); x < nvalues; x++ {
		if err := bits.WriteUnary(bw, x); err != nil {
			t.Fatalf("x=%d: unable to write unary; %v", x, err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("unable to flush the bit buffer; %v", err)
	}

	br := bits.NewReader(buf)
	for want := uint64(0); want < nvalues; want++ {
		got, err := br.ReadUnary()
		if err != nil {
			t.Fatalf("want=%d: unable to read unary; %v", want, err)
		}
		if got != want {
			t.Fatalf("mismatch between written and read unary value; expected %d, got %d", want, got)
		}
	}
}

func TestUnaryEOF(t *testing.T) {
	// All zero bits and no terminating one.
	br := bits.NewReader(bytes.NewReader([]byte{0x00}))
	if _, err := br.ReadUnary(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
