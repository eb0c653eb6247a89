package pcm

import (
	"testing"

	"github.com/pcmstream/flac/frame"
)

func stereoFrame() *frame.Frame {
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     3,
			Channels:      frame.ChannelsLR,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{
			{Samples: []int64{1, 2, 3}},
			{Samples: []int64{10, 20, 30}},
		},
	}
}

func TestNewBufferInterleaved(t *testing.T) {
	buf := NewBuffer(stereoFrame(), Interleaved)
	want := []int32{1, 10, 2, 20, 3, 30}
	if len(buf.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(buf.Samples), len(want))
	}
	for i, s := range want {
		if buf.Samples[i] != s {
			t.Errorf("sample %d: got %d, want %d", i, buf.Samples[i], s)
		}
	}
	if buf.Channels != 2 {
		t.Errorf("Channels: got %d, want 2", buf.Channels)
	}
	if buf.BitsPerSample != 16 {
		t.Errorf("BitsPerSample: got %d, want 16", buf.BitsPerSample)
	}
}

func TestNewBufferPlanar(t *testing.T) {
	buf := NewBuffer(stereoFrame(), Planar)
	want := []int32{1, 2, 3, 10, 20, 30}
	for i, s := range want {
		if buf.Samples[i] != s {
			t.Errorf("sample %d: got %d, want %d", i, buf.Samples[i], s)
		}
	}
}

func TestIntBufferInterleaved(t *testing.T) {
	buf := NewBuffer(stereoFrame(), Interleaved)
	ib, err := buf.IntBuffer(44100)
	if err != nil {
		t.Fatalf("IntBuffer: %v", err)
	}
	if ib.Format.NumChannels != 2 || ib.Format.SampleRate != 44100 {
		t.Errorf("unexpected format: %+v", ib.Format)
	}
	if ib.SourceBitDepth != 16 {
		t.Errorf("SourceBitDepth: got %d, want 16", ib.SourceBitDepth)
	}
	want := []int{1, 10, 2, 20, 3, 30}
	for i, s := range want {
		if ib.Data[i] != s {
			t.Errorf("Data[%d]: got %d, want %d", i, ib.Data[i], s)
		}
	}
}

func TestIntBufferRejectsPlanar(t *testing.T) {
	buf := NewBuffer(stereoFrame(), Planar)
	if _, err := buf.IntBuffer(44100); err == nil {
		t.Fatal("expected error converting a planar buffer to audio.IntBuffer")
	}
}

func TestHasherVerifyUnsetSignature(t *testing.T) {
	h := NewHasher()
	h.Write([]byte{1, 2, 3})
	var zero [16]byte
	if !h.Verify(zero) {
		t.Error("a zero signature should always verify")
	}
}

func TestHasherVerifyMismatch(t *testing.T) {
	h := NewHasher()
	h.Write([]byte{1, 2, 3})
	var bogus [16]byte
	bogus[0] = 0xFF
	if h.Verify(bogus) {
		t.Error("expected mismatch against a bogus signature")
	}
}
