// Package bufseekio implements buffered io.ReadSeeker handling.
package bufseekio

import (
	"errors"
	"fmt"
	"io"
)

const (
	defaultBufSize    = 4096
	minReadBufferSize = 16
)

var errNegativeRead = errors.New("bufseekio: reader returned negative count from Read")

// ReadSeeker implements buffering for an io.ReadSeeker object.
// ReadSeeker is based on bufio.Reader with
// Seek functionality added and unneeded functionality removed.
type ReadSeeker struct {
	buf []byte
	pos int64         // absolute start position of buf
	rd  io.ReadSeeker // read-seeker provided by the client
	r   int           // buf read positions within buf
	w   int           // buf write positions within buf
	err error
}

// NewReadSeeker returns a new ReadSeeker whose buffer has the default size.
func NewReadSeeker(rd io.ReadSeeker) *ReadSeeker {
	return NewReadSeekerSize(rd, defaultBufSize)
}

// NewReadSeekerSize returns a new ReadSeeker whose buffer has at least the
// specified size.
// If the argument io.ReadSeeker is already a ReadSeeker with large enough
// size, it returns the underlying ReadSeeker.
func NewReadSeekerSize(rd io.ReadSeeker, size int) *ReadSeeker {
	// Is it already a ReadSeeker?
	b, ok := rd.(*ReadSeeker)
	if ok && len(b.buf) >= size {
		return b
	}

	if size < minReadBufferSize {
		size = minReadBufferSize
	}

	return &ReadSeeker{
		buf: make([]byte, size),
		rd:  rd,
	}
}

// Read reads data into p.
// It returns the number of bytes read into p.
// The bytes are taken from at most one Read on the underlying Reader,
// hence n may be less than len(p).
func (b *ReadSeeker) Read(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		if b.buffered() > 0 {
			return 0, nil
		}
		return 0, b.readErr()
	}

	if b.r == b.w {
		if b.err != nil {
			return 0, b.readErr()
		}

		if len(p) >= len(b.buf) {
			// Large read, empty buffer.
			// Read directly into p to avoid copy.
			n, b.err = b.rd.Read(p)
			if n < 0 {
				panic(errNegativeRead)
			}
			b.pos += int64(b.w) + int64(n)
			b.r = 0
			b.w = 0
			return n, b.readErr()
		}

		// One read.
		// The read position of the underlying read-seeker is at the write
		// position of the buffer.
		b.pos += int64(b.w)
		b.r = 0
		b.w = 0
		n, b.err = b.rd.Read(b.buf)
		if n < 0 {
			panic(errNegativeRead)
		}
		if n == 0 {
			return 0, b.readErr()
		}
		b.w += n
	}

	// copy as much as possible.
	n = copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

// Seek sets the read position of the stream to the given offset,
// interpreted according to whence.
// Seeking within the buffered window adjusts
// the buffer instead of the underlying read-seeker.
func (b *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		// handled below.
	case io.SeekCurrent:
		offset += b.position()
	case io.SeekEnd:
		// The stream end is unknown;
		// delegate to the underlying read-seeker.
		abs, err := b.rd.Seek(offset, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		b.reset(abs)
		return abs, nil
	default:
		return 0, fmt.Errorf("bufseekio.ReadSeeker.Seek: invalid whence %d", whence)
	}

	if offset < 0 {
		return 0, errors.New("bufseekio.ReadSeeker.Seek: negative position")
	}

	// Seek within the buffer.
	if b.pos <= offset && offset <= b.pos+int64(b.w) {
		b.r = int(offset - b.pos)
		return offset, nil
	}

	// Seek the underlying read-seeker.
	abs, err := b.rd.Seek(offset, io.SeekStart)
	if err != nil {
		return 0, err
	}
	b.reset(abs)
	return abs, nil
}

// position returns the current absolute read position of the stream.
func (b *ReadSeeker) position() int64 {
	return b.pos + int64(b.r)
}

// reset discards the buffer and continues reading from the given absolute
// position of the underlying read-seeker.
func (b *ReadSeeker) reset(pos int64) {
	b.pos = pos
	b.r = 0
	b.w = 0
	b.err = nil
}

// buffered returns the number of bytes that can
// be read from the current buffer.
func (b *ReadSeeker) buffered() int {
	return b.w - b.r
}

func (b *ReadSeeker) readErr() error {
	err := b.err
	b.err = nil
	return err
}
