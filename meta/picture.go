package meta

import (
	"encoding/binary"
	"io"
)

// Picture contains the image data of an embedded picture, most commonly
// cover art. A stream may carry more than one Picture block.
type Picture struct {
	// Picture type, following the ID3v2 APIC frame convention (3 = cover
	// front, 4 = cover back, etc.).
	Type uint32
	// MIME type string; "-->" signals that Data is a URL rather than image
	// bytes.
	MIME string
	// Description of the picture.
	Desc string
	// Image dimensions in pixels.
	Width, Height uint32
	// Color depth in bits-per-pixel.
	Depth uint32
	// Number of colors used for indexed-color images; 0 for non-indexed.
	NPalColors uint32
	// Raw picture (or URL) data.
	Data []byte
}

// parsePicture reads and parses the body of a Picture metadata block.
func (block *Block) parsePicture() error {
	pic := new(Picture)
	block.Body = pic

	if err := binary.Read(block.lr, binary.BigEndian, &pic.Type); err != nil {
		return unexpected(err)
	}

	var n uint32
	if err := binary.Read(block.lr, binary.BigEndian, &n); err != nil {
		return unexpected(err)
	}
	mime, err := readString(block.lr, int(n))
	if err != nil {
		return unexpected(err)
	}
	pic.MIME = mime

	if err := binary.Read(block.lr, binary.BigEndian, &n); err != nil {
		return unexpected(err)
	}
	desc, err := readString(block.lr, int(n))
	if err != nil {
		return unexpected(err)
	}
	pic.Desc = desc

	for _, dst := range []*uint32{&pic.Width, &pic.Height, &pic.Depth, &pic.NPalColors} {
		if err := binary.Read(block.lr, binary.BigEndian, dst); err != nil {
			return unexpected(err)
		}
	}

	if err := binary.Read(block.lr, binary.BigEndian, &n); err != nil {
		return unexpected(err)
	}
	if n == 0 {
		return nil
	}
	pic.Data = make([]byte, n)
	_, err = io.ReadFull(block.lr, pic.Data)
	return unexpected(err)
}
