package meta

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// VorbisComment contains a list of name-value pairs.
type VorbisComment struct {
	Vendor string      // vendor name
	Tags   [][2]string // tags, each represented by a name-value pair
}

// parseVorbisComment reads and parses the body of a VorbisComment metadata
// block.
func (block *Block) parseVorbisComment() error {
	comment := new(VorbisComment)
	block.Body = comment

	// Length-prefixed vendor string.
	vendor, err := block.readVector()
	if err != nil {
		return err
	}
	comment.Vendor = vendor

	// 32 bits: number of tags.
	var ntags uint32
	if err := binary.Read(block.lr, binary.LittleEndian, &ntags); err != nil {
		return unexpected(err)
	}
	if ntags == 0 {
		return nil
	}

	comment.Tags = make([][2]string, ntags)
	for i := range comment.Tags {
		// Each tag is a vector of the form NAME=VALUE.
		vector, err := block.readVector()
		if err != nil {
			return err
		}
		name, value, ok := strings.Cut(vector, "=")
		if !ok {
			return fmt.Errorf("meta.Block.parseVorbisComment: unable to locate '=' in vector %q", vector)
		}
		comment.Tags[i][0] = name
		comment.Tags[i][1] = value
	}

	return nil
}

// readVector reads a length-prefixed string as used by Vorbis comments; 32
// bits of little-endian length followed by that many bytes of text.
func (block *Block) readVector() (string, error) {
	var n uint32
	if err := binary.Read(block.lr, binary.LittleEndian, &n); err != nil {
		return "", unexpected(err)
	}
	vector, err := readString(block.lr, int(n))
	if err != nil {
		return "", unexpected(err)
	}
	return vector, nil
}
