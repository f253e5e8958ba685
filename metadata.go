package flac

import (
	"fmt"

	"github.com/lorev/flac/meta"
)

// The metadata editing operations below alter the in-memory metadata block
// sequence of a stream. Block lengths and the is_last flag of the chain are
// derived anew when the stream is encoded; no file byte ranges are
// rewritten by editing.

// AppendBlock appends the given metadata block to the stream.
func (stream *Stream) AppendBlock(block *meta.Block) error {
	return stream.InsertBlock(len(stream.Blocks), block)
}

// InsertBlock inserts the given metadata block at the given index of the
// metadata block sequence of the stream.
func (stream *Stream) InsertBlock(i int, block *meta.Block) error {
	if i < 0 || i > len(stream.Blocks) {
		return fmt.Errorf("flac.Stream.InsertBlock: index (%d) out of range; expected 0 <= i <= %d", i, len(stream.Blocks))
	}
	if err := stream.validateBlock(block, -1); err != nil {
		return err
	}

	stream.Blocks = append(stream.Blocks, nil)
	copy(stream.Blocks[i+1:], stream.Blocks[i:])
	stream.Blocks[i] = block
	if table, ok := block.Body.(*meta.SeekTable); ok {
		stream.seekTable = table
	}

	return nil
}

// RemoveBlock removes the metadata block at the given index of the metadata
// block sequence of the stream.
func (stream *Stream) RemoveBlock(i int) error {
	if i < 0 || i >= len(stream.Blocks) {
		return fmt.Errorf("flac.Stream.RemoveBlock: index (%d) out of range; expected 0 <= i < %d", i, len(stream.Blocks))
	}

	if _, ok := stream.Blocks[i].Body.(*meta.SeekTable); ok {
		stream.seekTable = nil
	}
	stream.Blocks = append(stream.Blocks[:i], stream.Blocks[i+1:]...)

	return nil
}

// ReplaceBlock replaces the metadata block at the given index of the
// metadata block sequence of the stream with the given metadata block.
func (stream *Stream) ReplaceBlock(i int, block *meta.Block) error {
	if i < 0 || i >= len(stream.Blocks) {
		return fmt.Errorf("flac.Stream.ReplaceBlock: index (%d) out of range; expected 0 <= i < %d", i, len(stream.Blocks))
	}
	if err := stream.validateBlock(block, i); err != nil {
		return err
	}

	if _, ok := stream.Blocks[i].Body.(*meta.SeekTable); ok {
		stream.seekTable = nil
	}
	stream.Blocks[i] = block
	if table, ok := block.Body.(*meta.SeekTable); ok {
		stream.seekTable = table
	}

	return nil
}

// validateBlock checks whether the given metadata block may join the
// metadata block sequence of the stream. The block at index skip is ignored
// when checking for duplicates, as it is about to be replaced.
func (stream *Stream) validateBlock(block *meta.Block, skip int) error {
	if block == nil {
		return fmt.Errorf("flac.Stream.validateBlock: nil metadata block")
	}

	switch block.Body.(type) {
	case *meta.StreamInfo:
		// the single StreamInfo block of a stream leads the metadata block
		// sequence and is managed through Stream.Info.
		return fmt.Errorf("flac.Stream.validateBlock: additional StreamInfo metadata block; a stream carries exactly one")
	case *meta.SeekTable:
		for i, b := range stream.Blocks {
			if i == skip {
				continue
			}
			if _, ok := b.Body.(*meta.SeekTable); ok {
				return fmt.Errorf("flac.Stream.validateBlock: duplicate SeekTable metadata block")
			}
		}
	case *meta.VorbisComment:
		for i, b := range stream.Blocks {
			if i == skip {
				continue
			}
			if _, ok := b.Body.(*meta.VorbisComment); ok {
				return fmt.Errorf("flac.Stream.validateBlock: duplicate VorbisComment metadata block")
			}
		}
	}

	return nil
}
