// Package pcm converts decoded FLAC frames into plain PCM sample buffers,
// either interleaved or planar, and into the go-audio ecosystem's
// audio.IntBuffer so downstream encoders, resamplers, and playback sinks
// can consume them directly.
package pcm

import (
	"github.com/go-audio/audio"

	"github.com/pcmstream/flac/frame"
)

// Layout describes how a Buffer's Samples slice is arranged.
type Layout int

const (
	// Interleaved stores samples as [s0c0, s0c1, ..., s1c0, s1c1, ...].
	Interleaved Layout = iota
	// Planar stores samples as one channel's full run of samples followed
	// by the next: [c0s0, c0s1, ..., c1s0, c1s1, ...].
	Planar
)

// A Buffer holds the decoded audio samples of a single frame.
type Buffer struct {
	// Sample arrangement.
	Layout Layout
	// Number of channels.
	Channels int
	// Bits per sample, used as the source bit depth when converting to an
	// audio.IntBuffer.
	BitsPerSample int
	// Decoded samples, arranged per Layout.
	Samples []int32
}

// NewBuffer builds a Buffer from a fully decoded frame, in the given
// layout. The frame's subframes must already hold decorrelated samples
// (i.e. Frame.Parse must have returned successfully).
func NewBuffer(fr *frame.Frame, layout Layout) *Buffer {
	channels := fr.Channels.Count()
	nsamples := int(fr.BlockSize)
	buf := &Buffer{
		Layout:        layout,
		Channels:      channels,
		BitsPerSample: int(fr.BitsPerSample),
		Samples:       make([]int32, channels*nsamples),
	}
	switch layout {
	case Planar:
		for c := 0; c < channels; c++ {
			base := c * nsamples
			for i, s := range fr.Subframes[c].Samples {
				buf.Samples[base+i] = int32(s)
			}
		}
	default: // Interleaved
		for c := 0; c < channels; c++ {
			samples := fr.Subframes[c].Samples
			for i, s := range samples {
				buf.Samples[i*channels+c] = int32(s)
			}
		}
	}
	return buf
}

// IntBuffer converts the buffer to a go-audio audio.IntBuffer at the given
// sample rate. Planar buffers are not supported by audio.IntBuffer's
// interleaved format and are rejected.
func (b *Buffer) IntBuffer(sampleRate int) (*audio.IntBuffer, error) {
	if b.Layout != Interleaved {
		return nil, errPlanarNotSupported
	}
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(s)
	}
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: b.Channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: b.BitsPerSample,
	}, nil
}
