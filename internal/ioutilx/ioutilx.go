// Package ioutilx implements extended input/output utility functions.
package ioutilx

import "io"

// Zero is an io.Reader with an endless supply of zero bytes.
var Zero zero

type zero struct{}

func (zero) Read(p []byte) (n int, err error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// ReadByte reads and returns the next byte from r.
func ReadByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}
