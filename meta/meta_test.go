package meta_test

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"reflect"
	"testing"

	"github.com/lorev/flac/meta"
)

// block assembles a metadata block header followed by the given body.
func block(typ uint8, last bool, body []byte) []byte {
	hdr := typ
	if last {
		hdr |= 0x80
	}
	n := len(body)
	out := []byte{hdr, byte(n >> 16), byte(n >> 8), byte(n)}
	return append(out, body...)
}

func be64(x uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], x)
	return buf[:]
}

func le32(x uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], x)
	return buf[:]
}

// streamInfoBody returns a valid 34 byte StreamInfo block body.
func streamInfoBody() []byte {
	body := []byte{
		0x10, 0x00, // BlockSizeMin 4096
		0x10, 0x00, // BlockSizeMax 4096
		0x00, 0x00, 0x0E, // FrameSizeMin 14
		0x00, 0x04, 0xD2, // FrameSizeMax 1234
		// 44100 Hz, 2 channels, 16 bits-per-sample, 43683 samples.
		0x0A, 0xC4, 0x42, 0xF0, 0x00, 0x00, 0xAA, 0xA3,
	}
	for i := 0; i < md5.Size; i++ {
		body = append(body, byte(i))
	}
	return body
}

func TestParseStreamInfo(t *testing.T) {
	b, err := meta.Parse(bytes.NewReader(block(0, true, streamInfoBody())))
	if err != nil {
		t.Fatal(err)
	}
	if !b.IsLast || b.Type != meta.TypeStreamInfo || b.Length != 34 {
		t.Fatalf("unexpected block header %+v", b.Header)
	}

	want := &meta.StreamInfo{
		BlockSizeMin:  4096,
		BlockSizeMax:  4096,
		FrameSizeMin:  14,
		FrameSizeMax:  1234,
		SampleRate:    44100,
		NChannels:     2,
		BitsPerSample: 16,
		NSamples:      43683,
	}
	for i := range want.MD5sum {
		want.MD5sum[i] = byte(i)
	}
	if got := b.Body.(*meta.StreamInfo); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestParseStreamInfoInvalid(t *testing.T) {
	mutate := func(off int, b ...byte) []byte {
		body := streamInfoBody()
		copy(body[off:], b)
		return body
	}
	tests := []struct {
		name string
		body []byte
		want string
	}{
		{
			name: "minimum block size",
			body: mutate(0, 0x00, 0x0F),
			want: "meta.Block.parseStreamInfo: invalid minimum block size; expected >= 16, got 15",
		},
		{
			name: "maximum block size",
			body: mutate(2, 0x00, 0x0F),
			want: "meta.Block.parseStreamInfo: invalid maximum block size; expected >= 16 and <= 65535, got 15",
		},
		{
			name: "sample rate",
			body: mutate(10, 0x00, 0x00, 0x02, 0xF0, 0x00, 0x00, 0x03, 0xE8),
			want: "meta.Block.parseStreamInfo: invalid sample rate; expected > 0 and <= 655350, got 0",
		},
		{
			name: "bits per sample",
			body: mutate(10, 0x0A, 0xC4, 0x42, 0x10, 0x00, 0x00, 0x00, 0x00),
			want: "meta.Block.parseStreamInfo: invalid number of bits per sample; expected >= 4 and <= 32, got 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := meta.Parse(bytes.NewReader(block(0, true, tt.body)))
			if err == nil || err.Error() != tt.want {
				t.Fatalf("expected error %q, got %v", tt.want, err)
			}
		})
	}
}

func TestVerifyPadding(t *testing.T) {
	b, err := meta.Parse(bytes.NewReader(block(1, true, make([]byte, 32))))
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != meta.TypePadding || b.Length != 32 || b.Body != nil {
		t.Fatalf("unexpected padding block %+v", b)
	}

	dirty := make([]byte, 32)
	dirty[17] = 0xFF
	if _, err := meta.Parse(bytes.NewReader(block(1, true, dirty))); err != meta.ErrInvalidPadding {
		t.Fatalf("expected ErrInvalidPadding, got %v", err)
	}
}

func TestParseApplication(t *testing.T) {
	b, err := meta.Parse(bytes.NewReader(block(2, true, []byte("atchdata"))))
	if err != nil {
		t.Fatal(err)
	}
	app := b.Body.(*meta.Application)
	if app.ID != 0x61746368 || !bytes.Equal(app.Data, []byte("data")) {
		t.Fatalf("unexpected application block %+v", app)
	}

	// The application data may be empty.
	b, err = meta.Parse(bytes.NewReader(block(2, true, []byte("atch"))))
	if err != nil {
		t.Fatal(err)
	}
	if app := b.Body.(*meta.Application); len(app.Data) != 0 {
		t.Fatalf("expected empty application data, got %v", app.Data)
	}

	if _, err := meta.Parse(bytes.NewReader(block(2, true, []byte("at")))); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestParseSeekTable(t *testing.T) {
	pt := func(sample, offset uint64, n uint16) []byte {
		b := make([]byte, 18)
		binary.BigEndian.PutUint64(b, sample)
		binary.BigEndian.PutUint64(b[8:], offset)
		binary.BigEndian.PutUint16(b[16:], n)
		return b
	}
	concat := func(points ...[]byte) []byte {
		var body []byte
		for _, p := range points {
			body = append(body, p...)
		}
		return body
	}

	valid := concat(pt(0, 0, 4096), pt(4096, 5000, 4096), pt(meta.PlaceholderPoint, 0, 0))
	b, err := meta.Parse(bytes.NewReader(block(3, true, valid)))
	if err != nil {
		t.Fatal(err)
	}
	want := &meta.SeekTable{Points: []meta.SeekPoint{
		{SampleNum: 0, Offset: 0, NSamples: 4096},
		{SampleNum: 4096, Offset: 5000, NSamples: 4096},
		{SampleNum: meta.PlaceholderPoint, Offset: 0, NSamples: 0},
	}}
	if got := b.Body.(*meta.SeekTable); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	tests := []struct {
		name string
		body []byte
		want string
	}{
		{
			name: "empty",
			body: nil,
			want: "meta.Block.parseSeekTable: at least one seek point is required",
		},
		{
			name: "out of order",
			body: concat(pt(4096, 0, 4096), pt(0, 5000, 4096)),
			want: "meta.Block.parseSeekTable: invalid seek point order; sample number (0) < prev (4096)",
		},
		{
			name: "duplicate",
			body: concat(pt(0, 0, 4096), pt(4096, 5000, 4096), pt(4096, 9000, 4096)),
			want: "meta.Block.parseSeekTable: duplicate seek point with sample number (4096)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := meta.Parse(bytes.NewReader(block(3, true, tt.body)))
			if err == nil || err.Error() != tt.want {
				t.Fatalf("expected error %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseVorbisComment(t *testing.T) {
	concat := func(parts ...[]byte) []byte {
		var body []byte
		for _, p := range parts {
			body = append(body, p...)
		}
		return body
	}
	vector := func(s string) []byte {
		return append(le32(uint32(len(s))), s...)
	}

	valid := concat(vector("reference"), le32(2), vector("TITLE=Song"), vector("ARTIST=x"))
	b, err := meta.Parse(bytes.NewReader(block(4, true, valid)))
	if err != nil {
		t.Fatal(err)
	}
	want := &meta.VorbisComment{
		Vendor: "reference",
		Tags:   [][2]string{{"TITLE", "Song"}, {"ARTIST", "x"}},
	}
	if got := b.Body.(*meta.VorbisComment); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	// A tag list may be empty.
	b, err = meta.Parse(bytes.NewReader(block(4, true, concat(vector("flac"), le32(0)))))
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Body.(*meta.VorbisComment); got.Vendor != "flac" || len(got.Tags) != 0 {
		t.Fatalf("unexpected vorbis comment block %+v", got)
	}

	// A tag without a separator is rejected.
	bad := concat(vector("flac"), le32(1), vector("title 2"))
	_, err = meta.Parse(bytes.NewReader(block(4, true, bad)))
	if err == nil || err.Error() != `meta.Block.parseVorbisComment: unable to locate '=' in vector "title 2"` {
		t.Fatal(err)
	}
}

// cueSheetBody returns a valid CueSheet block body of a Compact Disc with
// one audio track and the lead-out track.
func cueSheetBody() []byte {
	body := make([]byte, 0, 512)
	mcn := make([]byte, 128)
	copy(mcn, "1234567890123")
	body = append(body, mcn...)
	body = append(body, be64(88200)...)       // lead-in samples
	body = append(body, 0x80)                 // Compact Disc
	body = append(body, make([]byte, 258)...) // reserved
	body = append(body, 2)                    // number of tracks

	// track 1 with two index points.
	body = append(body, be64(0)...)
	body = append(body, 1)
	body = append(body, []byte("USRC17607839")...)
	body = append(body, 0x40) // audio, pre-emphasis
	body = append(body, make([]byte, 13)...)
	body = append(body, 2)
	body = append(body, be64(0)...)
	body = append(body, 1)
	body = append(body, 0, 0, 0)
	body = append(body, be64(588)...)
	body = append(body, 2)
	body = append(body, 0, 0, 0)

	// lead-out track.
	body = append(body, be64(5880)...)
	body = append(body, 170)
	body = append(body, make([]byte, 12)...)
	body = append(body, 0x80) // data track
	body = append(body, make([]byte, 13)...)
	body = append(body, 0)

	return body
}

func TestParseCueSheet(t *testing.T) {
	b, err := meta.Parse(bytes.NewReader(block(5, true, cueSheetBody())))
	if err != nil {
		t.Fatal(err)
	}
	want := &meta.CueSheet{
		MCN:            "1234567890123",
		NLeadInSamples: 88200,
		IsCompactDisc:  true,
		Tracks: []meta.CueSheetTrack{
			{
				Offset:         0,
				Num:            1,
				ISRC:           "USRC17607839",
				IsAudio:        true,
				HasPreEmphasis: true,
				Indices: []meta.CueSheetTrackIndex{
					{Offset: 0, Num: 1},
					{Offset: 588, Num: 2},
				},
			},
			{Offset: 5880, Num: 170},
		},
	}
	if got := b.Body.(*meta.CueSheet); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestParseCueSheetInvalid(t *testing.T) {
	// Byte offsets into the cue sheet body: the cue sheet flags sit at 136,
	// the track count at 395, the first track at 396 and the lead-out track
	// at 456.
	tests := []struct {
		name string
		off  int
		b    byte
		want string
	}{
		{
			name: "cue sheet reserved flags",
			off:  136, b: 0x41,
			want: "meta.Block.parseCueSheet: non-zero reserved value",
		},
		{
			name: "no tracks",
			off:  395, b: 0,
			want: "meta.Block.parseCueSheet: at least one track is required",
		},
		{
			name: "too many tracks",
			off:  395, b: 101,
			want: "meta.Block.parseCueSheet: number of tracks (101) on a Compact Disc exceeds 100",
		},
		{
			name: "unaligned track offset",
			off:  403, b: 7,
			want: "meta.Block.parseCueSheet: track offset (7) on a Compact Disc is not evenly divisible by 588",
		},
		{
			name: "track number zero",
			off:  404, b: 0,
			want: "meta.Block.parseCueSheet: invalid track number (0)",
		},
		{
			name: "track reserved flags",
			off:  417, b: 0x41,
			want: "meta.Block.parseCueSheet: non-zero reserved value",
		},
		{
			name: "no index points",
			off:  431, b: 0,
			want: "meta.Block.parseCueSheet: at least one track index point is required",
		},
		{
			name: "lead-out index points",
			off:  491, b: 1,
			want: "meta.Block.parseCueSheet: lead-out track has 1 index points; expected 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := cueSheetBody()
			body[tt.off] = tt.b
			_, err := meta.Parse(bytes.NewReader(block(5, true, body)))
			if err == nil || err.Error() != tt.want {
				t.Fatalf("expected error %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParsePicture(t *testing.T) {
	concat := func(parts ...[]byte) []byte {
		var body []byte
		for _, p := range parts {
			body = append(body, p...)
		}
		return body
	}
	be32 := func(x uint32) []byte {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], x)
		return buf[:]
	}
	str := func(s string) []byte {
		return append(be32(uint32(len(s))), s...)
	}

	valid := concat(
		be32(3), // cover (front)
		str("image/png"),
		str("front cover"),
		be32(2), be32(3), be32(24), be32(0),
		be32(2), []byte{0xDE, 0xAD},
	)
	b, err := meta.Parse(bytes.NewReader(block(6, true, valid)))
	if err != nil {
		t.Fatal(err)
	}
	want := &meta.Picture{
		Type:   3,
		MIME:   "image/png",
		Desc:   "front cover",
		Width:  2,
		Height: 3,
		Depth:  24,
		Data:   []byte{0xDE, 0xAD},
	}
	if got := b.Body.(*meta.Picture); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	reserved := concat(be32(21), str("image/png"), str(""), be32(1), be32(1), be32(24), be32(0), be32(0))
	_, err = meta.Parse(bytes.NewReader(block(6, true, reserved)))
	if err == nil || err.Error() != "meta.Block.parsePicture: reserved picture type (21)" {
		t.Fatalf("expected reserved picture type error, got %v", err)
	}

	// A data length which extends past the end of the block body is rejected.
	huge := concat(
		be32(3), str("-->"), str(""),
		be32(0), be32(0), be32(0), be32(0),
		be32(0xFFFFFF00), []byte{0xBE, 0xEF},
	)
	_, err = meta.Parse(bytes.NewReader(block(6, true, huge)))
	if err == nil || err.Error() != "meta.Block.parsePicture: invalid data length; expected <= 2, got 4294967040" {
		t.Fatalf("expected invalid data length error, got %v", err)
	}
}

func TestReservedAndInvalidTypes(t *testing.T) {
	data := append(block(10, false, []byte{1, 2, 3}), block(1, true, make([]byte, 4))...)
	r := bytes.NewReader(data)

	b, err := meta.Parse(r)
	if err != meta.ErrReservedType {
		t.Fatalf("expected ErrReservedType, got %v", err)
	}
	if b.Type != 10 || b.Length != 3 || b.Body != nil {
		t.Fatalf("unexpected reserved block %+v", b)
	}
	// Skipping the unknown body leaves the reader at the next block.
	if err := b.Skip(); err != nil {
		t.Fatal(err)
	}
	if b, err = meta.Parse(r); err != nil || b.Type != meta.TypePadding || !b.IsLast {
		t.Fatalf("expected the trailing padding block, got %+v, %v", b, err)
	}

	if _, err := meta.Parse(bytes.NewReader(block(127, true, nil))); err != meta.ErrInvalidType {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestHeaderEOF(t *testing.T) {
	// A graceful end of stream surfaces as io.EOF only at a block boundary.
	if _, err := meta.Parse(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := meta.Parse(bytes.NewReader([]byte{0x84, 0x00})); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestNewHeaderOnly(t *testing.T) {
	body := streamInfoBody()
	r := bytes.NewReader(block(0, true, body))

	b, err := meta.New(r)
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != meta.TypeStreamInfo || b.Length != int64(len(body)) || b.Body != nil {
		t.Fatalf("unexpected block after header parse %+v", b)
	}
	if err := b.Parse(); err != nil {
		t.Fatal(err)
	}
	if si := b.Body.(*meta.StreamInfo); si.SampleRate != 44100 {
		t.Fatalf("unexpected StreamInfo %+v", si)
	}
}
