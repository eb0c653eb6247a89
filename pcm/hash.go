package pcm

import (
	"bytes"
	"crypto/md5"
	"hash"

	"github.com/pkg/errors"
)

// errPlanarNotSupported is returned by Buffer.IntBuffer for a planar buffer;
// audio.IntBuffer only models interleaved PCM.
var errPlanarNotSupported = errors.New("pcm: planar buffer cannot convert to audio.IntBuffer")

// Hasher accumulates the interleaved, little-endian PCM byte stream of a
// decoded stream, the same way StreamInfo.MD5sum was computed by the
// encoder. It implements hash.Hash, so it can be passed directly to
// frame.Frame.Hash.
type Hasher struct {
	hash.Hash
}

// NewHasher returns a Hasher ready to accumulate decoded frames.
func NewHasher() *Hasher {
	return &Hasher{Hash: md5.New()}
}

// Verify reports whether the accumulated checksum matches sig. A zero sig
// (StreamInfo's "unset" convention) is always considered a match, since
// there is nothing to verify against.
func (h *Hasher) Verify(sig [md5.Size]byte) bool {
	if sig == ([md5.Size]byte{}) {
		return true
	}
	return bytes.Equal(h.Sum(nil), sig[:])
}
