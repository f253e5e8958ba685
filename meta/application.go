package meta

import (
	"encoding/binary"
	"io"
)

// Application contains third party application specific data.
type Application struct {
	ID   uint32 // registered application ID
	Data []byte
}

// parseApplication reads and parses the body of an Application metadata
// block.
func (block *Block) parseApplication() error {
	// 32 bits: ID.
	app := new(Application)
	block.Body = app
	if err := binary.Read(block.lr, binary.BigEndian, &app.ID); err != nil {
		return unexpected(err)
	}

	// The length of the application data is derived from
	// the remainder of the block length;
	// it may be empty.
	var err error
	if app.Data, err = io.ReadAll(block.lr); err != nil {
		return unexpected(err)
	}

	return nil
}
