package meta

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

// VorbisComment contains a list of name-value pairs, commonly used to embed
// tags such as ARTIST and TITLE.
type VorbisComment struct {
	// Vendor name (typically identifies the encoder).
	Vendor string
	// Name-value tag pairs.
	Tags [][2]string
}

// ErrDeclaredBlockTooBig is returned when a VorbisComment block declares a
// tag count that could not possibly fit within the block's own length,
// guarding against allocating a huge Tags slice on the strength of a single
// forged 32-bit count.
var ErrDeclaredBlockTooBig = errors.New("meta: vorbis comment tag count exceeds block length")

// parseVorbisComment reads and parses the body of a VorbisComment metadata
// block.
func (block *Block) parseVorbisComment() error {
	// 32 bits: vendor length, little-endian (inherited from the Vorbis
	// comment header format, unlike every other FLAC field).
	var n uint32
	if err := binary.Read(block.lr, binary.LittleEndian, &n); err != nil {
		return unexpected(err)
	}
	vendor, err := readString(block.lr, int(n))
	if err != nil {
		return unexpected(err)
	}
	comment := &VorbisComment{Vendor: vendor}
	block.Body = comment

	// 32 bits: number of tags.
	if err := binary.Read(block.lr, binary.LittleEndian, &n); err != nil {
		return unexpected(err)
	}
	if n == 0 {
		return nil
	}
	// Every tag costs at least 4 bytes (its own length prefix); a declared
	// count larger than that bound can only be a forged header.
	if int64(n) > block.Length/4 {
		return ErrDeclaredBlockTooBig
	}
	comment.Tags = make([][2]string, n)
	for i := range comment.Tags {
		var l uint32
		if err := binary.Read(block.lr, binary.LittleEndian, &l); err != nil {
			return unexpected(err)
		}
		vector, err := readString(block.lr, int(l))
		if err != nil {
			return unexpected(err)
		}
		pos := strings.Index(vector, "=")
		if pos == -1 {
			return errors.Errorf("meta: missing '=' in vorbis comment tag %q", vector)
		}
		comment.Tags[i][0] = vector[:pos]
		comment.Tags[i][1] = vector[pos+1:]
	}
	return nil
}
