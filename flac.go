// Package flac provides access to FLAC (Free Lossless Audio Codec) streams.
//
// A FLAC stream starts with a 32-bit signature ("fLaC"), followed by one or
// more metadata blocks, and then one or more audio frames. The first
// metadata block (StreamInfo) describes the basic properties of the audio
// stream and is the only mandatory metadata block; subsequent metadata
// blocks may appear in an arbitrary order.
//
// See the meta and frame sub-packages for the format of metadata blocks and
// audio frames, respectively.
package flac

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/pcmstream/flac/frame"
	"github.com/pcmstream/flac/internal/bits"
	"github.com/pcmstream/flac/internal/bufseekio"
	"github.com/pcmstream/flac/meta"
	"github.com/pcmstream/flac/pcm"
)

// Sentinel errors, comparable with errors.Is.
var (
	// ErrUnsupportedCodec is returned when the input does not begin with
	// the FLAC stream signature.
	ErrUnsupportedCodec = errors.New("flac: unsupported codec")
	// ErrExceededBitLimit is internal/bits.ErrExceededBitLimit, re-exported
	// so callers never need to import the internal package to recognize it.
	ErrExceededBitLimit = bits.ErrExceededBitLimit
	// ErrArithmeticOverflow is frame.ErrArithmeticOverflow, re-exported so
	// callers never need to import the frame package to recognize it. It is
	// returned when a subframe's wasted-bits count would leave zero or
	// negative bits to decode each sample with.
	ErrArithmeticOverflow = frame.ErrArithmeticOverflow
)

// A DecodeError reports a format violation encountered at a named site
// within the decode pipeline (e.g. "signature", "stream info", "frame").
type DecodeError struct {
	Site string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("flac: %s: %v", e.Site, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// decodeErr wraps err as a *DecodeError tagged with site, attaching a stack
// trace at the package boundary. A frame sync or CRC failure is tagged
// "sync", "header CRC" or "frame CRC" in place of site. A nil err passes
// through unchanged.
func decodeErr(site string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, frame.ErrInvalidSync):
		site = "sync"
	case errors.Is(err, frame.ErrHeaderCRCMismatch):
		site = "header CRC"
	case errors.Is(err, frame.ErrFrameCRCMismatch):
		site = "frame CRC"
	}
	return errors.WithStack(&DecodeError{Site: site, Err: err})
}

// Options configures how a Stream parses metadata and verifies a FLAC
// stream. With no Option given, a Stream verifies MD5 and CRC checksums,
// decodes no optional metadata block bodies beyond StreamInfo, and produces
// interleaved PCM. The zero Options value has both checksum verifications
// disabled.
type Options struct {
	verifyMD5      bool
	verifyCRC      bool
	metadataBlocks map[meta.Type]bool
	layout         pcm.Layout
}

// An Option configures a Stream constructor.
type Option func(*Options)

// WithVerifyMD5 controls whether the stream's decoded audio is hashed and
// compared against StreamInfo.MD5sum at a clean end of stream. Enabled by
// default.
func WithVerifyMD5(verify bool) Option {
	return func(o *Options) { o.verifyMD5 = verify }
}

// WithVerifyCRC controls whether frame header (CRC-8) and frame body
// (CRC-16) checksums are verified. Enabled by default.
func WithVerifyCRC(verify bool) Option {
	return func(o *Options) { o.verifyCRC = verify }
}

// WithMetadataBlocks selects which non-StreamInfo metadata block types a
// Stream keeps in Blocks. New and Open parse the selected types into typed
// bodies and skip every other block type by length. NewSeek parses every
// block body and keeps only the selected types. Parse and ParseFile ignore
// this option and parse and keep every block. StreamInfo is always parsed
// regardless of this option.
func WithMetadataBlocks(types ...meta.Type) Option {
	return func(o *Options) {
		if o.metadataBlocks == nil {
			o.metadataBlocks = make(map[meta.Type]bool, len(types))
		}
		for _, t := range types {
			o.metadataBlocks[t] = true
		}
	}
}

// WithSampleLayout selects the pcm.Layout used by Stream.Buffer. Interleaved
// by default.
func WithSampleLayout(layout pcm.Layout) Option {
	return func(o *Options) { o.layout = layout }
}

func newOptions(opts []Option) Options {
	o := Options{verifyMD5: true, verifyCRC: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// A Stream contains the metadata blocks and provides access to the audio
// frames of a FLAC stream.
type Stream struct {
	// The StreamInfo metadata block, describing the basic properties of
	// the audio stream.
	Info *meta.StreamInfo
	// Metadata blocks kept, in stream order. Parse and ParseFile keep every
	// block, StreamInfo first; New, Open and NewSeek keep only the types
	// selected with WithMetadataBlocks and never StreamInfo.
	Blocks []*meta.Block

	opts Options
	hash *pcm.Hasher

	// seekTable backs Seek; nil until populated from a SEEKTABLE block or
	// synthesized on first use.
	seekTable *meta.SeekTable
	// dataStart is the byte offset of the first frame header; SeekPoint
	// offsets are relative to it.
	dataStart int64

	r io.Reader
	c io.Closer
}

var (
	flacSignature = []byte("fLaC")
	id3Signature  = []byte("ID3")
)

// New creates a Stream for accessing the audio samples of r. It reads and
// parses the FLAC signature and the StreamInfo metadata block; every other
// metadata block is skipped unless requested with WithMetadataBlocks.
//
// Call Stream.Next to parse the frame header of the next audio frame, or
// Stream.ParseNext to parse the entire next frame including audio samples.
func New(r io.Reader, opts ...Option) (*Stream, error) {
	stream := &Stream{r: bufio.NewReader(r), opts: newOptions(opts)}
	if stream.opts.verifyMD5 {
		stream.hash = pcm.NewHasher()
	}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return stream, err
	}
	for !block.IsLast {
		block, err = meta.New(stream.r)
		if err != nil {
			return stream, decodeErr("metadata", err)
		}
		if stream.opts.metadataBlocks[block.Type] {
			if err := block.Parse(); err != nil && !errors.Is(err, meta.ErrReservedType) {
				return stream, decodeErr("metadata", err)
			}
			stream.Blocks = append(stream.Blocks, block)
			continue
		}
		if err := block.Skip(); err != nil {
			return stream, decodeErr("metadata", err)
		}
	}
	return stream, nil
}

// NewSeek returns a Stream with sample-accurate seeking enabled. rs is
// wrapped in an internal/bufseekio.ReadSeeker so repeated small reads ahead
// of a seek don't each round-trip to rs; an in-memory reader such as
// bytes.Reader gains little from this, but a file performs markedly better.
func NewSeek(rs io.ReadSeeker, opts ...Option) (*Stream, error) {
	buffered := bufseekio.NewReadSeeker(rs)
	stream := &Stream{r: buffered, opts: newOptions(opts)}
	if stream.opts.verifyMD5 {
		stream.hash = pcm.NewHasher()
	}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return stream, err
	}
	for !block.IsLast {
		block, err = meta.Parse(stream.r)
		if err != nil {
			if !errors.Is(err, meta.ErrReservedType) {
				return stream, decodeErr("metadata", err)
			}
			if err := block.Skip(); err != nil {
				return stream, decodeErr("metadata", err)
			}
		}
		if block.Type == meta.TypeSeekTable {
			if st, ok := block.Body.(*meta.SeekTable); ok {
				stream.seekTable = st
			}
		}
		if stream.opts.metadataBlocks[block.Type] {
			stream.Blocks = append(stream.Blocks, block)
		}
	}
	stream.dataStart, err = buffered.Seek(0, io.SeekCurrent)
	return stream, err
}

// Parse creates a Stream for accessing the metadata blocks and audio
// samples of r, decoding every metadata block body regardless of
// WithMetadataBlocks.
func Parse(r io.Reader, opts ...Option) (*Stream, error) {
	stream := &Stream{r: bufio.NewReader(r), opts: newOptions(opts)}
	if stream.opts.verifyMD5 {
		stream.hash = pcm.NewHasher()
	}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return stream, err
	}
	stream.Blocks = append(stream.Blocks, block)
	for !block.IsLast {
		block, err = meta.Parse(stream.r)
		if err != nil {
			if !errors.Is(err, meta.ErrReservedType) {
				return stream, decodeErr("metadata", err)
			}
			if err := block.Skip(); err != nil {
				return stream, decodeErr("metadata", err)
			}
		}
		stream.Blocks = append(stream.Blocks, block)
	}
	return stream, nil
}

// Open creates a Stream for accessing the audio samples of the file at
// path; the returned Stream's Close method must be called when done.
func Open(path string, opts ...Option) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, err := New(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	stream.c = f
	return stream, nil
}

// ParseFile creates a Stream for accessing the metadata blocks and audio
// samples of the file at path; the returned Stream's Close method must be
// called when done.
func ParseFile(path string, opts ...Option) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, err := Parse(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	stream.c = f
	return stream, nil
}

// Close closes the stream if it was opened through Open or ParseFile, and
// is a no-op otherwise.
func (stream *Stream) Close() error {
	if stream.c != nil {
		return stream.c.Close()
	}
	return nil
}

// parseStreamInfo verifies the FLAC signature, skipping any prepended
// ID3v2 tag, and parses the mandatory StreamInfo metadata block.
func (stream *Stream) parseStreamInfo() (*meta.Block, error) {
	r := stream.r
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, decodeErr("signature", err)
	}
	if bytes.Equal(buf[:3], id3Signature) {
		if err := stream.skipID3v2(); err != nil {
			return nil, decodeErr("id3v2", err)
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, decodeErr("signature", err)
		}
	}
	if !bytes.Equal(buf[:], flacSignature) {
		return nil, decodeErr("signature", errors.Wrapf(ErrUnsupportedCodec, "expected %q, got %q", flacSignature, buf))
	}

	block, err := meta.Parse(r)
	if err != nil {
		return block, decodeErr("stream info", err)
	}
	si, ok := block.Body.(*meta.StreamInfo)
	if !ok {
		return block, decodeErr("stream info", errors.Errorf("first metadata block has unexpected type %T", block.Body))
	}
	stream.Info = si
	return block, nil
}

// skipID3v2 discards a prepended ID3v2 tag, a quirk of some FLAC files
// produced by encoders that also write MP3s.
func (stream *Stream) skipID3v2() error {
	r := stream.r
	if _, err := io.CopyN(io.Discard, r, 2); err != nil {
		return err
	}
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return err
	}
	// Synchsafe integer: the top bit of each byte is always zero.
	size := int(sizeBuf[0])<<21 | int(sizeBuf[1])<<14 | int(sizeBuf[2])<<7 | int(sizeBuf[3])
	_, err := io.CopyN(io.Discard, r, int64(size))
	return err
}

// frameOpts returns the frame.Option set matching the stream's CRC
// verification setting.
func (stream *Stream) frameOpts() []frame.Option {
	if stream.opts.verifyCRC {
		return nil
	}
	return []frame.Option{frame.WithoutCRC()}
}

// Next parses the header of the next audio frame. It returns io.EOF to
// signal a graceful end of stream.
//
// Call Frame.Parse to decode the audio samples of its subframes.
func (stream *Stream) Next() (*frame.Frame, error) {
	fr, err := frame.New(stream.r, stream.frameOpts()...)
	if err != nil {
		if err == io.EOF {
			return fr, err
		}
		return fr, decodeErr("frame", err)
	}
	return fr, nil
}

// ParseNext parses the entire next frame, including audio samples. It
// returns io.EOF to signal a graceful end of stream, verifying the
// stream's MD5 signature first if enabled.
func (stream *Stream) ParseNext() (*frame.Frame, error) {
	fr, err := frame.Parse(stream.r, stream.frameOpts()...)
	if err != nil {
		if err == io.EOF {
			return stream.finish(fr, err)
		}
		return fr, decodeErr("frame", err)
	}
	if stream.hash != nil {
		fr.Hash(stream.hash)
	}
	return fr, nil
}

// finish verifies the accumulated MD5 signature once a clean end of stream
// has been reached.
func (stream *Stream) finish(fr *frame.Frame, eof error) (*frame.Frame, error) {
	if stream.hash != nil && stream.Info != nil && !stream.hash.Verify(stream.Info.MD5sum) {
		return fr, decodeErr("md5", errors.New("decoded audio does not match StreamInfo.MD5sum"))
	}
	return fr, eof
}

// Decode calls emit for every audio frame of the stream, checking
// ctx.Err() between frames (never mid-frame). It returns nil at a clean end
// of stream, ctx.Err() if the context is canceled, or the first error
// returned by ParseNext or emit.
func (stream *Stream) Decode(ctx context.Context, emit func(*frame.Frame) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fr, err := stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := emit(fr); err != nil {
			return err
		}
	}
}

// Buffer decodes fr's samples into a pcm.Buffer using the stream's
// configured sample layout.
func (stream *Stream) Buffer(fr *frame.Frame) *pcm.Buffer {
	return pcm.NewBuffer(fr, stream.opts.layout)
}

// ErrNoSeeker is returned by NewSeek-independent seek paths when the
// underlying reader does not implement io.Seeker.
var ErrNoSeeker = errors.New("flac: reader does not implement io.Seeker")

// ErrNoSeekTable is returned when Seek has no seek points to search: the
// stream has no SEEKTABLE block and no frames to build a table from.
var ErrNoSeekTable = errors.New("flac: no seek table available")

// Seek seeks to the frame containing sampleNum, returning that frame's
// first sample number. Only valid on a Stream created with NewSeek.
func (stream *Stream) Seek(sampleNum uint64) (uint64, error) {
	rs, ok := stream.r.(io.ReadSeeker)
	if !ok {
		return 0, ErrNoSeeker
	}
	if stream.seekTable == nil {
		if err := stream.makeSeekTable(rs); err != nil {
			return 0, err
		}
	}
	if stream.Info.NSamples != 0 && sampleNum > stream.Info.NSamples {
		return 0, errors.Errorf("flac: sample number %d exceeds stream length", sampleNum)
	}
	point, err := stream.searchFromStart(sampleNum)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(stream.dataStart+int64(point.Offset), io.SeekStart); err != nil {
		return 0, err
	}
	for {
		offset, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		fr, err := stream.ParseNext()
		if err != nil {
			return 0, err
		}
		if fr.SampleNumber()+uint64(fr.BlockSize) > sampleNum {
			_, err := rs.Seek(offset, io.SeekStart)
			return fr.SampleNumber(), err
		}
	}
}

// searchFromStart returns a seek point at or before sampleNum: the point
// preceding the first point whose span reaches sampleNum, or the first point.
func (stream *Stream) searchFromStart(sampleNum uint64) (meta.SeekPoint, error) {
	if len(stream.seekTable.Points) == 0 {
		return meta.SeekPoint{}, ErrNoSeekTable
	}
	prev := stream.seekTable.Points[0]
	for _, p := range stream.seekTable.Points {
		if p.SampleNum+uint64(p.NSamples) >= sampleNum {
			return prev, nil
		}
		prev = p
	}
	return prev, nil
}

// makeSeekTable synthesizes a seek table by scanning every frame header
// from the start of the audio data, used when a stream carries no
// SEEKTABLE block.
func (stream *Stream) makeSeekTable(rs io.ReadSeeker) error {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := rs.Seek(stream.dataStart, io.SeekStart); err != nil {
		return err
	}

	var sampleNum uint64
	var points []meta.SeekPoint
	for {
		off, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		fr, err := stream.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		points = append(points, meta.SeekPoint{
			SampleNum: sampleNum,
			Offset:    uint64(off - stream.dataStart),
			NSamples:  fr.BlockSize,
		})
		sampleNum += uint64(fr.BlockSize)
	}
	stream.seekTable = &meta.SeekTable{Points: points}

	_, err = rs.Seek(pos, io.SeekStart)
	return err
}
