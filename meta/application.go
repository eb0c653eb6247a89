package meta

import (
	"encoding/binary"
	"io"
)

// Application contains third-party application specific data.
//
// ref: https://www.xiph.org/flac/id.html
type Application struct {
	// Registered application ID.
	ID uint32
	// Application data.
	Data []byte
}

// parseApplication reads and parses the body of an Application metadata
// block.
func (block *Block) parseApplication() error {
	app := new(Application)
	block.Body = app
	if err := binary.Read(block.lr, binary.BigEndian, &app.ID); err != nil {
		return unexpected(err)
	}
	if block.Length == 4 {
		return nil
	}
	data, err := io.ReadAll(block.lr)
	if err != nil {
		return unexpected(err)
	}
	app.Data = data
	return nil
}
