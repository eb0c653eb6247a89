package meta

import (
	"io"

	"github.com/pkg/errors"
)

// ErrInvalidPadding is returned when a padding or reserved region contains a
// non-zero byte.
var ErrInvalidPadding = errors.New("meta: invalid padding")

// verifyPadding reads and verifies the body of a Padding metadata block; it
// must contain only zero bytes.
func (block *Block) verifyPadding() error {
	_, err := io.Copy(io.Discard, zeroReader{r: block.lr})
	return err
}

// zeroReader wraps an io.Reader, failing with ErrInvalidPadding as soon as a
// non-zero byte is observed.
type zeroReader struct {
	r io.Reader
}

func (zr zeroReader) Read(p []byte) (int, error) {
	n, err := zr.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] != 0 {
			return n, ErrInvalidPadding
		}
	}
	return n, err
}
