// Package frame implements access to FLAC audio frames.
//
// Encoders divide an audio stream into blocks through a process called
// blocking. A block holds the unencoded samples from every channel during a
// short span of time; it is stored on disk as a frame, with one subframe per
// channel. Stereo subframes may additionally be inter-channel decorrelated:
//
//	mid  = (left + right) / 2
//	side = left - right
package frame

import (
	"encoding/binary"
	"hash"
	"io"

	"github.com/pkg/errors"

	"github.com/pcmstream/flac/internal/bits"
	"github.com/pcmstream/flac/internal/hashutil"
	"github.com/pcmstream/flac/internal/hashutil/crc16"
	"github.com/pcmstream/flac/internal/hashutil/crc8"
)

// A Frame contains the header and subframes of an audio frame: the encoded
// samples of one block, one subframe per channel.
type Frame struct {
	// Audio frame header.
	Header
	// One subframe per channel, containing encoded audio samples.
	Subframes []*Subframe
	// Running CRC-16 checksum over every byte read through hr.
	crc hashutil.Hash16
	// Bit reader wrapping hr.
	br *bits.Reader
	// CRC-16 accumulating reader wrapping r.
	hr io.Reader
	// Underlying reader.
	r io.Reader
	// skipCRC disables CRC-8/CRC-16 verification, consuming the checksum
	// bytes without comparing them. Set via WithoutCRC.
	skipCRC bool
}

// An Option configures a Frame during New or Parse.
type Option func(*Frame)

// WithoutCRC disables header and footer checksum verification. The
// checksum bytes are still consumed from the stream, just never compared.
func WithoutCRC() Option {
	return func(frame *Frame) { frame.skipCRC = true }
}

// New creates a Frame for decoding the audio samples of r. It reads and
// parses the frame header; an io.EOF here signals a graceful end of stream.
//
// Call Frame.Parse to decode the subframes.
func New(r io.Reader, opts ...Option) (*Frame, error) {
	crc := crc16.NewIBM()
	hr := io.TeeReader(r, crc)
	frame := &Frame{crc: crc, hr: hr, r: r}
	for _, opt := range opts {
		opt(frame)
	}
	if err := frame.parseHeader(); err != nil {
		return frame, err
	}
	return frame, nil
}

// Parse reads and parses the header and subframes of an audio frame,
// reverting any inter-channel decorrelation between the subframes.
func Parse(r io.Reader, opts ...Option) (*Frame, error) {
	frame, err := New(r, opts...)
	if err != nil {
		return frame, err
	}
	return frame, frame.Parse()
}

// Parse decodes the audio samples of every subframe and reverts any
// inter-channel decorrelation.
func (frame *Frame) Parse() error {
	frame.Subframes = make([]*Subframe, frame.Channels.Count())
	for channel := range frame.Subframes {
		bps := uint(frame.BitsPerSample)
		switch frame.Channels {
		case ChannelsSideRight:
			if channel == 0 {
				bps++
			}
		case ChannelsLeftSide, ChannelsMidSide:
			if channel == 1 {
				bps++
			}
		}
		subframe, err := frame.parseSubframe(frame.br, bps)
		if err != nil {
			return err
		}
		frame.Subframes[channel] = subframe
	}

	frame.correlate()

	var want uint16
	if err := binary.Read(frame.r, binary.BigEndian, &want); err != nil {
		return unexpected(err)
	}
	if got := frame.crc.Sum16(); !frame.skipCRC && got != want {
		return errors.Wrapf(ErrFrameCRCMismatch, "expected 0x%04X, got 0x%04X", want, got)
	}
	return nil
}

// Hash feeds the decoded, interleaved audio samples of the frame into a
// running hash, typically an MD5 accumulator verified against
// StreamInfo.MD5sum. The frame's subframes must already be decoded.
func (frame *Frame) Hash(sum hash.Hash) {
	bps := frame.BitsPerSample
	var buf [4]byte
	nbytes := int(bps+7) / 8
	for i := 0; i < int(frame.BlockSize); i++ {
		for _, subframe := range frame.Subframes {
			sample := subframe.Samples[i]
			for b := 0; b < nbytes; b++ {
				buf[b] = byte(sample >> uint(8*b))
			}
			sum.Write(buf[:nbytes])
		}
	}
}

// A Header describes the basic properties of an audio frame: its block
// size, sample rate, channel layout and bit depth. Every frame header
// starts with a sync code so a reader can resynchronize mid-stream.
type Header struct {
	// HasFixedBlockSize reports whether the stream uses a fixed block size;
	// if so Num is a frame number, otherwise it is a sample number.
	HasFixedBlockSize bool
	// Block size in inter-channel samples.
	BlockSize uint16
	// Sample rate in Hz; 0 means "inherit from StreamInfo".
	SampleRate uint32
	// Channel layout, encoding both channel count and any inter-channel
	// decorrelation in use.
	Channels Channels
	// Bits per sample; 0 means "inherit from StreamInfo".
	BitsPerSample uint8
	// Frame number (fixed block size) or first sample number in the frame
	// (variable block size). Use SampleNumber to normalize.
	Num uint64
}

var (
	// ErrInvalidSync is returned when a frame does not begin with the
	// expected 14-bit sync code.
	ErrInvalidSync = errors.New("frame: invalid sync code")
	// ErrHeaderCRCMismatch is returned when a frame header's CRC-8 field
	// does not match the header bytes actually read.
	ErrHeaderCRCMismatch = errors.New("frame: header CRC-8 checksum mismatch")
	// ErrFrameCRCMismatch is returned when a frame's trailing CRC-16 field
	// does not match the frame bytes actually read.
	ErrFrameCRCMismatch = errors.New("frame: frame CRC-16 checksum mismatch")
	// ErrArithmeticOverflow is returned when a subframe's wasted-bits count
	// leaves zero or fewer bits to decode each sample with.
	ErrArithmeticOverflow = errors.New("frame: wasted bits leave no precision to decode samples with")
)

// parseHeader reads and parses the header of an audio frame.
func (frame *Frame) parseHeader() error {
	h := crc8.NewATM()
	hr := io.TeeReader(frame.hr, h)
	br := bits.NewReader(hr)
	frame.br = br

	// 14 bits: sync code (11111111111110).
	x, err := br.Read(14)
	if err != nil {
		// The only place an audio frame may surface io.EOF directly; it
		// signals a graceful end of stream to the caller.
		return err
	}
	if x != 0x3FFE {
		return ErrInvalidSync
	}

	// 1 bit: reserved, must be zero.
	x, err = br.Read(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		return errors.New("frame: non-zero reserved bit in frame header")
	}

	// 1 bit: blocking strategy.
	x, err = br.Read(1)
	if err != nil {
		return unexpected(err)
	}
	frame.HasFixedBlockSize = x == 0

	// 4 bits: block size code, resolved once the header has been read in
	// full (it may carry a trailing extension of its own).
	blockSizeCode, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	// 4 bits: sample rate code, resolved for the same reason.
	sampleRateCode, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	if err := frame.parseChannels(br); err != nil {
		return err
	}
	if err := frame.parseBitsPerSample(br); err != nil {
		return err
	}

	// 1 bit: reserved, must be zero.
	x, err = br.Read(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		return errors.New("frame: non-zero reserved bit in frame header")
	}

	// 1-6 (fixed) or 1-7 (variable) bytes: UTF-8-like coded frame/sample
	// number.
	frame.Num, err = br.ReadUTF8()
	if err != nil {
		return unexpected(err)
	}

	if err := frame.parseBlockSize(br, blockSizeCode); err != nil {
		return err
	}
	if err := frame.parseSampleRate(br, sampleRateCode); err != nil {
		return err
	}

	// 1 byte: CRC-8 over every preceding byte of the header.
	var want uint8
	if err := binary.Read(frame.hr, binary.BigEndian, &want); err != nil {
		return unexpected(err)
	}
	if got := h.Sum8(); !frame.skipCRC && got != want {
		return errors.Wrapf(ErrHeaderCRCMismatch, "expected 0x%02X, got 0x%02X", want, got)
	}
	return nil
}

// parseBitsPerSample resolves the bit-depth field of the header.
func (frame *Frame) parseBitsPerSample(br *bits.Reader) error {
	x, err := br.Read(3)
	if err != nil {
		return unexpected(err)
	}
	switch x {
	case 0x0:
		// unknown; inherit from StreamInfo.
	case 0x1:
		frame.BitsPerSample = 8
	case 0x2:
		frame.BitsPerSample = 12
	case 0x4:
		frame.BitsPerSample = 16
	case 0x5:
		frame.BitsPerSample = 20
	case 0x6:
		frame.BitsPerSample = 24
	case 0x7:
		frame.BitsPerSample = 32
	default:
		return errors.Errorf("frame: reserved bits-per-sample bit pattern (%03b)", x)
	}
	return nil
}

// parseChannels resolves the channel-assignment field of the header.
func (frame *Frame) parseChannels(br *bits.Reader) error {
	x, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}
	if x >= 0xB {
		return errors.Errorf("frame: reserved channel assignment bit pattern (%04b)", x)
	}
	frame.Channels = Channels(x)
	return nil
}

// parseBlockSize resolves the block-size field, reading its trailing 8- or
// 16-bit extension from br when the code calls for one.
func (frame *Frame) parseBlockSize(br *bits.Reader, code uint64) error {
	switch {
	case code == 0x0:
		return errors.New("frame: reserved block size bit pattern (0000)")
	case code == 0x1:
		frame.BlockSize = 192
	case code >= 0x2 && code <= 0x5:
		frame.BlockSize = 576 * (1 << (code - 2))
	case code == 0x6:
		x, err := br.Read(8)
		if err != nil {
			return unexpected(err)
		}
		frame.BlockSize = uint16(x + 1)
	case code == 0x7:
		x, err := br.Read(16)
		if err != nil {
			return unexpected(err)
		}
		frame.BlockSize = uint16(x + 1)
	default:
		frame.BlockSize = 256 * (1 << (code - 8))
	}
	return nil
}

// parseSampleRate resolves the sample-rate field, reading its trailing
// extension from br when the code calls for one.
func (frame *Frame) parseSampleRate(br *bits.Reader, code uint64) error {
	switch code {
	case 0x0:
		// unknown; inherit from StreamInfo.
	case 0x1:
		frame.SampleRate = 88200
	case 0x2:
		frame.SampleRate = 176400
	case 0x3:
		frame.SampleRate = 192000
	case 0x4:
		frame.SampleRate = 8000
	case 0x5:
		frame.SampleRate = 16000
	case 0x6:
		frame.SampleRate = 22050
	case 0x7:
		frame.SampleRate = 24000
	case 0x8:
		frame.SampleRate = 32000
	case 0x9:
		frame.SampleRate = 44100
	case 0xA:
		frame.SampleRate = 48000
	case 0xB:
		frame.SampleRate = 96000
	case 0xC:
		x, err := br.Read(8)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x * 1000)
	case 0xD:
		x, err := br.Read(16)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x)
	case 0xE:
		x, err := br.Read(16)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x * 10)
	default:
		return errors.New("frame: invalid sample rate bit pattern (1111)")
	}
	return nil
}

// Channels specifies the channel count and any inter-channel decorrelation
// of a frame's subframes.
type Channels uint8

// Channel assignments. Abbreviations: C center, R right, Sr side right, Rs
// right surround, Cs center surround, Ls left surround, Sl side left,
// L left, Lfe low-frequency effect.
const (
	ChannelsMono           Channels = iota // 1 channel: mono.
	ChannelsLR                             // 2 channels: left, right.
	ChannelsLRC                            // 3 channels: left, right, center.
	ChannelsLRLsRs                         // 4 channels: left, right, left surround, right surround.
	ChannelsLRCLsRs                        // 5 channels: left, right, center, left surround, right surround.
	ChannelsLRCLfeLsRs                     // 6 channels: left, right, center, LFE, left surround, right surround.
	ChannelsLRCLfeCsSlSr                   // 7 channels: left, right, center, LFE, center surround, side left, side right.
	ChannelsLRCLfeLsRsSlSr                 // 8 channels: left, right, center, LFE, left surround, right surround, side left, side right.
	ChannelsLeftSide                       // 2 channels: left, side (inter-channel decorrelated).
	ChannelsSideRight                      // 2 channels: side, right (inter-channel decorrelated).
	ChannelsMidSide                        // 2 channels: mid, side (inter-channel decorrelated).
)

var channelCount = [...]int{
	ChannelsMono:           1,
	ChannelsLR:             2,
	ChannelsLRC:            3,
	ChannelsLRLsRs:         4,
	ChannelsLRCLsRs:        5,
	ChannelsLRCLfeLsRs:     6,
	ChannelsLRCLfeCsSlSr:   7,
	ChannelsLRCLfeLsRsSlSr: 8,
	ChannelsLeftSide:       2,
	ChannelsSideRight:      2,
	ChannelsMidSide:        2,
}

// Count returns the number of subframes used by the channel assignment.
func (channels Channels) Count() int {
	return channelCount[channels]
}

// correlate reverts any inter-channel decorrelation applied between the
// frame's subframes.
func (frame *Frame) correlate() {
	switch frame.Channels {
	case ChannelsLeftSide:
		left := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			side[i] = left[i] - side[i] // right = left - side
		}
	case ChannelsSideRight:
		side := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range side {
			side[i] += right[i] // left = right + side
		}
	case ChannelsMidSide:
		mid := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			m, s := mid[i], side[i]
			m *= 2
			// The integer division in mid = (left+right)/2 discards the
			// low bit; it's recoverable because a sum and a difference
			// share the same parity.
			m |= s & 1
			mid[i] = (m + s) / 2
			side[i] = (m - s) / 2
		}
	}
}

// SampleNumber returns the sample number of the first sample in the frame.
func (frame *Frame) SampleNumber() uint64 {
	if frame.HasFixedBlockSize {
		return frame.Num * uint64(frame.BlockSize)
	}
	return frame.Num
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
