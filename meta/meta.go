// Package meta implements access to FLAC metadata blocks.
//
// FLAC metadata is stored as a chain of blocks; each block has a header
// describing its type and body length, followed by a type-specific body.
// The first block of a valid stream is always StreamInfo. The chain ends at
// the first block whose header marks it as last.
package meta

import (
	"io"

	"github.com/pkg/errors"

	"github.com/pcmstream/flac/internal/bits"
)

// A Block contains the header and body of a metadata block.
type Block struct {
	// Metadata block header.
	Header
	// Metadata block body of type *StreamInfo, *Application, *SeekTable,
	// *VorbisComment, *CueSheet, or *Picture. Body is nil until Parse is
	// called and stays nil for Padding blocks; a failed Parse may leave a
	// partly filled Body.
	Body interface{}
	// Underlying reader, limited to the length of the block body.
	lr io.Reader
}

// New reads and parses a metadata block header from r. Call Parse to decode
// the block body, or Skip to discard it unread.
func New(r io.Reader) (*Block, error) {
	block := new(Block)
	if err := block.parseHeader(r); err != nil {
		return block, err
	}
	block.lr = io.LimitReader(r, block.Length)
	return block, nil
}

// Parse reads and parses both the header and body of a metadata block.
func Parse(r io.Reader) (*Block, error) {
	block, err := New(r)
	if err != nil {
		return block, err
	}
	if err := block.Parse(); err != nil {
		return block, err
	}
	return block, nil
}

// Errors returned by Block.Parse.
var (
	ErrReservedType = errors.New("meta: reserved block type")
	ErrInvalidType  = errors.New("meta: invalid block type")
)

// Parse decodes the metadata block body into Body.
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
	}
	if block.Type >= 7 && block.Type <= 126 {
		return ErrReservedType
	}
	return ErrInvalidType
}

// Skip discards the remainder of the block body without parsing it.
func (block *Block) Skip() error {
	if sk, ok := block.lr.(io.Seeker); ok {
		_, err := sk.Seek(0, io.SeekEnd)
		return err
	}
	_, err := io.Copy(io.Discard, block.lr)
	return err
}

// A Header describes the type and length of a metadata block.
type Header struct {
	// Block body type.
	Type Type
	// Length of the block body in bytes.
	Length int64
	// IsLast reports whether this is the last metadata block in the stream.
	IsLast bool
}

// parseHeader reads and parses a metadata block header.
func (block *Block) parseHeader(r io.Reader) error {
	br := bits.NewReader(r)
	// 1 bit: IsLast.
	x, err := br.Read(1)
	if err != nil {
		// This is the only place a metadata block may surface io.EOF
		// directly: the stream ended before the header began. Every later
		// field reports io.ErrUnexpectedEOF instead.
		return err
	}
	block.IsLast = x != 0

	// 7 bits: Type.
	x, err = br.Read(7)
	if err != nil {
		return unexpected(err)
	}
	block.Type = Type(x)

	// 24 bits: Length.
	x, err = br.Read(24)
	if err != nil {
		return unexpected(err)
	}
	block.Length = int64(x)

	return nil
}

// Type identifies the body type of a metadata block.
type Type uint8

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

// unexpected returns io.ErrUnexpectedEOF in place of io.EOF, leaving other
// errors untouched.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
