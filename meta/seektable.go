package meta

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PlaceholderPoint represent the sample number used
// to specify placeholder seek points.
const PlaceholderPoint = 0xFFFFFFFFFFFFFFFF

// A SeekPoint specifies the byte offset and
// initial sample number of a given target frame.
type SeekPoint struct {
	// Sample number of the first sample in the target frame,
	// or 0xFFFFFFFFFFFFFFFF for a placeholder point.
	SampleNum uint64
	// Offset in bytes from the first byte of
	// the first frame header to the first byte of
	// the target frame's header.
	Offset uint64
	// Number of samples in the target frame.
	NSamples uint16
}

// SeekTable contains one or more pre-calculated audio frame seek points.
type SeekTable struct {
	Points []SeekPoint // one or more seek points
}

// parseSeekTable reads and parses the body of a SeekTable metadata block.
func (block *Block) parseSeekTable() error {
	// The number of seek points is derived from the block length; each
	// seek point occupies 18 bytes.
	n := block.Length / 18
	if n < 1 {
		return errors.New("meta.Block.parseSeekTable: at least one seek point is required")
	}

	table := &SeekTable{Points: make([]SeekPoint, n)}
	block.Body = table
	if err := binary.Read(block.lr, binary.BigEndian, table.Points); err != nil {
		return unexpected(err)
	}
	return validatePointOrder(table.Points)
}

// validatePointOrder checks that seek points are sorted in ascending order
// by sample number, and that each sample number is unique. Placeholder
// points are exempt and may appear anywhere in the table.
func validatePointOrder(points []SeekPoint) error {
	var prev uint64
	for i, point := range points {
		if point.SampleNum == PlaceholderPoint {
			continue
		}
		if i != 0 {
			switch {
			case point.SampleNum < prev:
				return fmt.Errorf("meta.Block.parseSeekTable: invalid seek point order; sample number (%d) < prev (%d)", point.SampleNum, prev)
			case point.SampleNum == prev:
				return fmt.Errorf("meta.Block.parseSeekTable: duplicate seek point with sample number (%d)", point.SampleNum)
			}
		}
		prev = point.SampleNum
	}
	return nil
}
