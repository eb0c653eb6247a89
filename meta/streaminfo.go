package meta

import (
	"crypto/md5"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/pcmstream/flac/internal/bits"
)

// StreamInfo contains the basic properties of a FLAC audio stream, such as
// its sample rate and channel count. It is the only mandatory metadata block
// and must be present as the first metadata block of a FLAC stream.
type StreamInfo struct {
	// Minimum block size (in samples) used in the stream; between 16 and
	// 65535 samples.
	BlockSizeMin uint16
	// Maximum block size (in samples) used in the stream; between 16 and
	// 65535 samples.
	BlockSizeMax uint16
	// Minimum frame size in bytes; 0 means unknown.
	FrameSizeMin uint32
	// Maximum frame size in bytes; 0 means unknown.
	FrameSizeMax uint32
	// Sample rate in Hz; between 1 and 655350 Hz.
	SampleRate uint32
	// Number of channels; between 1 and 8.
	NChannels uint8
	// Bits per sample; between 4 and 32.
	BitsPerSample uint8
	// Total number of inter-channel samples in the stream. One second of
	// 44.1 kHz audio has 44100 samples regardless of channel count. 0 means
	// unknown.
	NSamples uint64
	// MD5 signature of the unencoded, interleaved audio data. All zero means
	// no signature was stored.
	MD5sum [md5.Size]byte
}

// Duration returns the playback duration of the stream, or 0 if NSamples is
// unknown.
func (si *StreamInfo) Duration() time.Duration {
	if si.NSamples == 0 || si.SampleRate == 0 {
		return 0
	}
	return time.Duration(si.NSamples) * time.Second / time.Duration(si.SampleRate)
}

// HasMD5 reports whether the stream stored a non-zero MD5 signature.
func (si *StreamInfo) HasMD5() bool {
	return si.MD5sum != [md5.Size]byte{}
}

// parseStreamInfo reads and parses the body of a StreamInfo metadata block.
func (block *Block) parseStreamInfo() error {
	br := bits.NewReader(block.lr)

	// 16 bits: BlockSizeMin.
	x, err := br.Read(16)
	if err != nil {
		return unexpected(err)
	}
	if x < 16 {
		return errors.Errorf("meta: invalid minimum block size (%d); expected >= 16", x)
	}
	si := new(StreamInfo)
	block.Body = si
	si.BlockSizeMin = uint16(x)

	// 16 bits: BlockSizeMax.
	x, err = br.Read(16)
	if err != nil {
		return unexpected(err)
	}
	if x < 16 {
		return errors.Errorf("meta: invalid maximum block size (%d); expected >= 16", x)
	}
	si.BlockSizeMax = uint16(x)

	// 24 bits: FrameSizeMin.
	x, err = br.Read(24)
	if err != nil {
		return unexpected(err)
	}
	si.FrameSizeMin = uint32(x)

	// 24 bits: FrameSizeMax.
	x, err = br.Read(24)
	if err != nil {
		return unexpected(err)
	}
	si.FrameSizeMax = uint32(x)

	// 20 bits: SampleRate.
	x, err = br.Read(20)
	if err != nil {
		return unexpected(err)
	}
	if x == 0 {
		return errors.New("meta: invalid sample rate (0)")
	}
	si.SampleRate = uint32(x)

	// 3 bits: NChannels, encoded as (count - 1).
	x, err = br.Read(3)
	if err != nil {
		return unexpected(err)
	}
	si.NChannels = uint8(x + 1)

	// 5 bits: BitsPerSample, encoded as (bits - 1).
	x, err = br.Read(5)
	if err != nil {
		return unexpected(err)
	}
	si.BitsPerSample = uint8(x + 1)

	// 36 bits: NSamples.
	x, err = br.Read(36)
	if err != nil {
		return unexpected(err)
	}
	si.NSamples = x

	// 16 bytes: MD5sum.
	_, err = io.ReadFull(block.lr, si.MD5sum[:])
	return unexpected(err)
}
