package flac_test

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/lorev/flac"
	"github.com/lorev/flac/meta"
)

func bodyTypes(stream *flac.Stream) []string {
	types := make([]string, 0, len(stream.Blocks))
	for _, block := range stream.Blocks {
		types = append(types, fmt.Sprintf("%T", block.Body))
	}
	return types
}

func TestBlockEditing(t *testing.T) {
	blocks := []*meta.Block{
		{Body: &meta.SeekTable{Points: []meta.SeekPoint{{SampleNum: 0, Offset: 0, NSamples: 512}}}},
		{Header: meta.Header{Length: 32}},
	}
	data, _ := encodeFrames(t, newStreamInfo(1, 16, 512), blocks, [][][]int32{{sine(512, 9000)}})

	stream, err := flac.Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"*meta.SeekTable", "<nil>"}
	if got := bodyTypes(stream); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected metadata blocks %v, got %v", want, got)
	}

	comment := &meta.Block{Body: &meta.VorbisComment{Vendor: "flac", Tags: [][2]string{{"TITLE", "take one"}}}}
	if err := stream.AppendBlock(comment); err != nil {
		t.Fatal(err)
	}
	app := &meta.Block{Body: &meta.Application{ID: 0x74657374, Data: []byte("x")}}
	if err := stream.InsertBlock(0, app); err != nil {
		t.Fatal(err)
	}
	want = []string{"*meta.Application", "*meta.SeekTable", "<nil>", "*meta.VorbisComment"}
	if got := bodyTypes(stream); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected metadata blocks %v, got %v", want, got)
	}

	// A stream carries at most one SeekTable and one VorbisComment, and its
	// single StreamInfo is not part of the editable sequence.
	if err := stream.AppendBlock(&meta.Block{Body: &meta.VorbisComment{}}); err == nil {
		t.Fatal("expected error for duplicate VorbisComment metadata block")
	}
	if err := stream.AppendBlock(&meta.Block{Body: &meta.SeekTable{}}); err == nil {
		t.Fatal("expected error for duplicate SeekTable metadata block")
	}
	if err := stream.AppendBlock(&meta.Block{Body: &meta.StreamInfo{}}); err == nil {
		t.Fatal("expected error for an additional StreamInfo metadata block")
	}
	if err := stream.AppendBlock(nil); err == nil {
		t.Fatal("expected error for nil metadata block")
	}

	if err := stream.InsertBlock(len(stream.Blocks)+1, app); err == nil {
		t.Fatal("expected index out of range error")
	}
	if err := stream.RemoveBlock(len(stream.Blocks)); err == nil {
		t.Fatal("expected index out of range error")
	}
	if err := stream.ReplaceBlock(-1, app); err == nil {
		t.Fatal("expected index out of range error")
	}

	// The block under replacement is exempt from the duplicate check.
	other := &meta.Block{Body: &meta.VorbisComment{Vendor: "other"}}
	if err := stream.ReplaceBlock(3, other); err != nil {
		t.Fatal(err)
	}
	if err := stream.ReplaceBlock(2, &meta.Block{Body: &meta.VorbisComment{}}); err == nil {
		t.Fatal("expected error for duplicate VorbisComment metadata block")
	}

	if err := stream.RemoveBlock(1); err != nil {
		t.Fatal(err)
	}
	want = []string{"*meta.Application", "<nil>", "*meta.VorbisComment"}
	if got := bodyTypes(stream); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected metadata blocks %v, got %v", want, got)
	}
	if stream.Blocks[2].Body.(*meta.VorbisComment).Vendor != "other" {
		t.Fatal("expected the replacement VorbisComment block")
	}
}

func TestEditReEncode(t *testing.T) {
	wave := sine(1024, 16000)
	frames := [][][]int32{{wave[:512]}, {wave[512:]}}
	blocks := []*meta.Block{
		{Body: &meta.VorbisComment{Vendor: "flac", Tags: [][2]string{{"TITLE", "take one"}}}},
		{Header: meta.Header{Length: 16}},
	}
	data, _ := encodeFrames(t, newStreamInfo(1, 16, 512), blocks, frames)

	stream, err := flac.Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.RemoveBlock(0); err != nil {
		t.Fatal(err)
	}
	pic := &meta.Picture{Type: 3, MIME: "image/png", Width: 1, Height: 1, Depth: 24, Data: []byte{1, 2, 3}}
	if err := stream.AppendBlock(&meta.Block{Body: pic}); err != nil {
		t.Fatal(err)
	}

	// Re-encode the edited metadata followed by the original audio frames.
	buf := new(bytes.Buffer)
	enc, err := flac.NewEncoder(buf, stream.Info, stream.Blocks...)
	if err != nil {
		t.Fatal(err)
	}
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := flac.Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	types := []meta.Type{meta.TypePadding, meta.TypePicture}
	if len(out.Blocks) != len(types) {
		t.Fatalf("expected %d metadata blocks, got %d", len(types), len(out.Blocks))
	}
	for i, block := range out.Blocks {
		if block.Type != types[i] {
			t.Fatalf("block %d: expected type %v, got %v", i, types[i], block.Type)
		}
	}
	if got := out.Blocks[1].Body.(*meta.Picture); !reflect.DeepEqual(got, pic) {
		t.Fatalf("expected picture block %+v, got %+v", pic, got)
	}

	for i := range frames {
		f, err := out.ParseNext()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(f.Subframes[0].Samples, frames[i][0]) {
			t.Fatalf("frame %d: audio samples differ from source", i)
		}
	}
	if _, err := out.ParseNext(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
