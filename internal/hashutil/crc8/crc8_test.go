package crc8_test

import (
	"bytes"
	"testing"

	"github.com/lorev/flac/internal/hashutil/crc8"
)

var golden = []struct {
	want uint8
	in   string
}{
	{0x00, ""},
	{0x00, "\x00"},
	{0x07, "\x01"},
	{0xF4, "123456789"},
}

func TestChecksumATM(t *testing.T) {
	for _, g := range golden {
		if got := crc8.ChecksumATM([]byte(g.in)); got != g.want {
			t.Errorf("ChecksumATM(%q) = 0x%02X, want 0x%02X", g.in, got, g.want)
		}
		if got := crc8.Checksum([]byte(g.in), crc8.ATMTable); got != g.want {
			t.Errorf("Checksum(%q, ATMTable) = 0x%02X, want 0x%02X", g.in, got, g.want)
		}
	}
}

func TestDigest(t *testing.T) {
	h := crc8.NewATM()
	if h.Size() != crc8.Size {
		t.Errorf("Size() = %d, want %d", h.Size(), crc8.Size)
	}
	// Split writes accumulate the same checksum as a single write.
	h.Write([]byte("1234"))
	h.Write([]byte("56789"))
	if got := h.Sum8(); got != 0xF4 {
		t.Errorf("Sum8() after split writes = 0x%02X, want 0xF4", got)
	}
	if sum := h.Sum(nil); !bytes.Equal(sum, []byte{0xF4}) {
		t.Errorf("Sum(nil) = % 02X, want F4", sum)
	}
	h.Reset()
	if got := h.Sum8(); got != 0 {
		t.Errorf("Sum8() after Reset = 0x%02X, want 0x00", got)
	}
}
