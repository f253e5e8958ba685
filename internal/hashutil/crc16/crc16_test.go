package crc16_test

import (
	"bytes"
	"testing"

	"github.com/lorev/flac/internal/hashutil/crc16"
)

var golden = []struct {
	want uint16
	in   string
}{
	{0x0000, ""},
	{0x0000, "\x00"},
	{0x8005, "\x01"},
	{0xFEE8, "123456789"},
}

func TestChecksumIBM(t *testing.T) {
	for _, g := range golden {
		if got := crc16.ChecksumIBM([]byte(g.in)); got != g.want {
			t.Errorf("ChecksumIBM(%q) = 0x%04X, want 0x%04X", g.in, got, g.want)
		}
		if got := crc16.Checksum([]byte(g.in), crc16.IBMTable); got != g.want {
			t.Errorf("Checksum(%q, IBMTable) = 0x%04X, want 0x%04X", g.in, got, g.want)
		}
	}
}

func TestDigest(t *testing.T) {
	h := crc16.NewIBM()
	if h.Size() != crc16.Size {
		t.Errorf("Size() = %d, want %d", h.Size(), crc16.Size)
	}
	// Split writes accumulate the same checksum as a single write.
	h.Write([]byte("12345"))
	h.Write([]byte("6789"))
	if got := h.Sum16(); got != 0xFEE8 {
		t.Errorf("Sum16() after split writes = 0x%04X, want 0xFEE8", got)
	}
	if sum := h.Sum(nil); !bytes.Equal(sum, []byte{0xFE, 0xE8}) {
		t.Errorf("Sum(nil) = % 02X, want FE E8", sum)
	}
	h.Reset()
	if got := h.Sum16(); got != 0 {
		t.Errorf("Sum16() after Reset = 0x%04X, want 0x0000", got)
	}
}
