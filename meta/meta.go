// Package meta implements access to FLAC metadata blocks.
package meta

import (
	"errors"
	"io"
)

// Errors returned by Block.Parse.
var (
	// ErrInvalidType is returned for metadata block type 127,
	// which is invalid to avoid confusion with a frame sync-code.
	ErrInvalidType = errors.New("meta.Block.Parse: invalid block type")
	// ErrReservedType is returned for the reserved metadata block types
	// 7 through 126.
	// The content of the block body is unknown but skippable;
	// call Block.Skip to ignore it.
	ErrReservedType = errors.New("meta.Block.Parse: reserved block type")
)

// Block contains the header and body of a metadata block.
type Block struct {
	// Metadata block header.
	Header
	// Metadata block body of type *StreamInfo, *Application, *SeekTable,
	// *VorbisComment, *CueSheet or *Picture.
	// Body is nil for Padding metadata blocks,
	// and for metadata blocks of reserved type.
	Body interface{}
	// Underlying io.Reader, limited to the length of the block body.
	lr io.Reader
}

// Header contains information about the type and length of a metadata block.
type Header struct {
	// IsLast specifies if the block is the last metadata block.
	IsLast bool
	// Block body type.
	Type Type
	// Length of block body in bytes.
	Length int64
}

// New creates a new Block for accessing the metadata of r.
// It reads and parses a metadata block header.
//
// Call Block.Parse to parse the metadata block body,
// and call Block.Skip to ignore it.
func New(r io.Reader) (block *Block, err error) {
	block = new(Block)
	if err = block.parseHeader(r); err != nil {
		return block, err
	}

	block.lr = io.LimitReader(r, block.Length)
	return block, nil
}

// Parse reads and parses the header and body of a metadata block.
//
// Metadata blocks of reserved block type return ErrReservedType,
// and their bodies are left unparsed;
// call Block.Skip to ignore them.
func Parse(r io.Reader) (block *Block, err error) {
	if block, err = New(r); err != nil {
		return block, err
	}

	if err = block.Parse(); err != nil {
		return block, err
	}

	return block, nil
}

// Parse reads and parses the metadata block body.
func (block *Block) Parse() error {
	switch block.Type {
	case TypeStreamInfo:
		return block.parseStreamInfo()
	case TypePadding:
		return block.verifyPadding()
	case TypeApplication:
		return block.parseApplication()
	case TypeSeekTable:
		return block.parseSeekTable()
	case TypeVorbisComment:
		return block.parseVorbisComment()
	case TypeCueSheet:
		return block.parseCueSheet()
	case TypePicture:
		return block.parsePicture()
	default:
		if block.Type >= 7 && block.Type <= 126 {
			return ErrReservedType
		}
		return ErrInvalidType
	}
}

// Skip ignores the contents of the metadata block body.
func (block *Block) Skip() error {
	if sr, ok := block.lr.(io.Seeker); ok {
		if _, err := sr.Seek(0, io.SeekEnd); err != nil {
			return err
		}
		return nil
	}

	if _, err := io.Copy(io.Discard, block.lr); err != nil {
		return err
	}

	return nil
}

// parseHeader reads and parses the header of a metadata block.
func (block *Block) parseHeader(r io.Reader) error {
	// 1 bit: IsLast.
	// 7 bits: Type.
	// 24 bits: Length.
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		// This is the only place a metadata block may return io.EOF,
		// which signals a graceful end of a FLAC stream.
		return err
	}

	x := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	block.IsLast = x&0x80000000 != 0
	block.Type = Type(x >> 24 & 0x7F)
	block.Length = int64(x & 0x00FFFFFF)
	return nil
}

// readString reads and returns a string of n bytes from r.
func readString(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// unexpected returns io.ErrUnexpectedEOF if error is io.EOF,
// and returns error otherwise.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Metadata block body types.
const (
	TypeStreamInfo    Type = 0
	TypePadding       Type = 1
	TypeApplication   Type = 2
	TypeSeekTable     Type = 3
	TypeVorbisComment Type = 4
	TypeCueSheet      Type = 5
	TypePicture       Type = 6
)

// Type represents the type of a metadata block body.
type Type uint8

func (t Type) String() string {
	switch t {
	case TypeStreamInfo:
		return "stream info"
	case TypePadding:
		return "padding"
	case TypeApplication:
		return "application"
	case TypeSeekTable:
		return "seek table"
	case TypeVorbisComment:
		return "vorbis comment"
	case TypeCueSheet:
		return "cue sheet"
	case TypePicture:
		return "picture"
	default:
		return "<unknown block type>"
	}
}
