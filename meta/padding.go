package meta

import (
	"errors"
	"io"
)

var ErrInvalidPadding = errors.New("invalid padding")

// verifyPadding reads the body of a Padding metadata block and checks that
// it contains nothing but zero bytes. The body itself is discarded.
func (block *Block) verifyPadding() error {
	var buf [512]byte
	for {
		n, err := block.lr.Read(buf[:])
		for _, b := range buf[:n] {
			if b != 0 {
				return ErrInvalidPadding
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
