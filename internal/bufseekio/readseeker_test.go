package bufseekio

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var errRead = errors.New("read error")

// errReadSeeker returns its payload and an error from the same Read call.
type errReadSeeker struct {
	payload []byte
}

func (e *errReadSeeker) Read(p []byte) (int, error) {
	n := copy(p, e.payload)
	return n, errRead
}

func (e *errReadSeeker) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("not seekable")
}

// countingSeeker counts Seek calls forwarded to the underlying reader.
type countingSeeker struct {
	r     *bytes.Reader
	seeks int
}

func (c *countingSeeker) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *countingSeeker) Seek(offset int64, whence int) (int64, error) {
	c.seeks++
	return c.r.Seek(offset, whence)
}

func ramp(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestNewReadSeekerSize(t *testing.T) {
	src := bytes.NewReader(ramp(100))
	if rs := NewReadSeeker(src); len(rs.buf) != defaultBufSize {
		t.Fatalf("default buffer size: expected %d, got %d", defaultBufSize, len(rs.buf))
	}
	if rs := NewReadSeekerSize(src, 20); len(rs.buf) != 20 {
		t.Fatalf("custom buffer size: expected 20, got %d", len(rs.buf))
	}
	if rs := NewReadSeekerSize(src, 1); len(rs.buf) != minReadBufferSize {
		t.Fatalf("tiny buffer size: expected %d, got %d", minReadBufferSize, len(rs.buf))
	}

	// A ReadSeeker with a large enough buffer is passed through as is.
	rs := NewReadSeekerSize(src, 20)
	if rs2 := NewReadSeekerSize(rs, 5); rs2 != rs {
		t.Fatal("expected the existing ReadSeeker to be reused")
	}
	if rs2 := NewReadSeekerSize(rs, 50); rs2 == rs {
		t.Fatal("expected a fresh ReadSeeker when the buffer is too small")
	}
}

func TestRead(t *testing.T) {
	rs := NewReadSeekerSize(bytes.NewReader(ramp(100)), 20)

	check := func(readLen, wantN int, want []byte, wantPos int64) {
		t.Helper()
		p := make([]byte, readLen)
		n, err := rs.Read(p)
		if err != nil {
			t.Fatalf("unexpected read error; %v", err)
		}
		if n != wantN || !bytes.Equal(p[:n], want) {
			t.Fatalf("expected %d bytes % 02X, got %d bytes % 02X", wantN, want, n, p[:n])
		}
		if pos, err := rs.Seek(0, io.SeekCurrent); err != nil || pos != wantPos {
			t.Fatalf("expected position %d, got %d (err=%v)", wantPos, pos, err)
		}
	}

	// Small read fills the buffer window [0, 20).
	check(5, 5, ramp(100)[:5], 5)
	// A read larger than the buffer first drains the remaining window.
	check(25, 15, ramp(100)[5:20], 20)
	// With an empty buffer a large read bypasses it entirely.
	check(25, 25, ramp(100)[20:45], 45)

	// Short read near the end of the stream, then EOF.
	if pos, err := rs.Seek(98, io.SeekStart); err != nil || pos != 98 {
		t.Fatalf("expected position 98, got %d (err=%v)", pos, err)
	}
	check(5, 2, ramp(100)[98:], 100)
	if n, err := rs.Read(make([]byte, 5)); err != io.EOF || n != 0 {
		t.Fatalf("expected io.EOF with no data, got n=%d err=%v", n, err)
	}
}

func TestReadError(t *testing.T) {
	// The payload is delivered first; the error is queued for the next call.
	rs := NewReadSeekerSize(&errReadSeeker{payload: []byte{2, 3, 5}}, 20)
	p := make([]byte, 5)
	if n, err := rs.Read(p); err != nil || n != 3 || !bytes.Equal(p[:n], []byte{2, 3, 5}) {
		t.Fatalf("expected payload {2 3 5} without error, got n=%d p=%v err=%v", n, p[:n], err)
	}
	if n, err := rs.Read(p); err != errRead || n != 0 {
		t.Fatalf("expected queued read error, got n=%d err=%v", n, err)
	}

	// A zero-length read reports a queued error only once the buffer is dry.
	rs = NewReadSeekerSize(&errReadSeeker{payload: []byte{2, 3, 5}}, 20)
	if n, err := rs.Read(p[:1]); err != nil || n != 1 {
		t.Fatalf("expected single byte read, got n=%d err=%v", n, err)
	}
	if n, err := rs.Read(nil); err != nil || n != 0 {
		t.Fatalf("zero-length read with buffered data: expected no error, got n=%d err=%v", n, err)
	}
	if n, err := rs.Read(p[:2]); err != nil || n != 2 {
		t.Fatalf("expected remaining buffered bytes, got n=%d err=%v", n, err)
	}
	if n, err := rs.Read(nil); err != errRead || n != 0 {
		t.Fatalf("zero-length read with dry buffer: expected queued error, got n=%d err=%v", n, err)
	}
	if n, err := rs.Read(nil); err != nil || n != 0 {
		t.Fatalf("queued error must be reported once, got n=%d err=%v", n, err)
	}
}

func TestSeekWindow(t *testing.T) {
	src := &countingSeeker{r: bytes.NewReader(ramp(100))}
	rs := NewReadSeekerSize(src, 20)

	read := func(n int) []byte {
		t.Helper()
		p := make([]byte, n)
		if _, err := io.ReadFull(rs, p); err != nil {
			t.Fatalf("unexpected read error; %v", err)
		}
		return p
	}

	// Fill the window [0, 20).
	if got := read(5); !bytes.Equal(got, ramp(100)[:5]) {
		t.Fatalf("expected % 02X, got % 02X", ramp(100)[:5], got)
	}

	// Seeking within the buffered window must not touch the source.
	if pos, err := rs.Seek(10, io.SeekStart); err != nil || pos != 10 {
		t.Fatalf("expected position 10, got %d (err=%v)", pos, err)
	}
	if src.seeks != 0 {
		t.Fatalf("in-window seek reached the source; %d seeks", src.seeks)
	}
	if got := read(5); !bytes.Equal(got, ramp(100)[10:15]) {
		t.Fatalf("expected % 02X, got % 02X", ramp(100)[10:15], got)
	}

	// Seeking outside the window discards it and seeks the source.
	if pos, err := rs.Seek(25, io.SeekStart); err != nil || pos != 25 {
		t.Fatalf("expected position 25, got %d (err=%v)", pos, err)
	}
	if src.seeks != 1 {
		t.Fatalf("expected 1 source seek, got %d", src.seeks)
	}
	if got := read(5); !bytes.Equal(got, ramp(100)[25:30]) {
		t.Fatalf("expected % 02X, got % 02X", ramp(100)[25:30], got)
	}

	// Relative seek landing inside the new window [25, 45).
	if pos, err := rs.Seek(-3, io.SeekCurrent); err != nil || pos != 27 {
		t.Fatalf("expected position 27, got %d (err=%v)", pos, err)
	}
	if src.seeks != 1 {
		t.Fatalf("in-window relative seek reached the source; %d seeks", src.seeks)
	}
	if got := read(3); !bytes.Equal(got, ramp(100)[27:30]) {
		t.Fatalf("expected % 02X, got % 02X", ramp(100)[27:30], got)
	}

	// End-relative seeks always delegate to the source.
	if pos, err := rs.Seek(-10, io.SeekEnd); err != nil || pos != 90 {
		t.Fatalf("expected position 90, got %d (err=%v)", pos, err)
	}
	if src.seeks != 2 {
		t.Fatalf("expected 2 source seeks, got %d", src.seeks)
	}
	if got := read(5); !bytes.Equal(got, ramp(100)[90:95]) {
		t.Fatalf("expected % 02X, got % 02X", ramp(100)[90:95], got)
	}

	// Invalid arguments.
	if _, err := rs.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("expected error for negative position, got nil")
	}
	if _, err := rs.Seek(0, 3); err == nil {
		t.Fatal("expected error for invalid whence, got nil")
	}
}
