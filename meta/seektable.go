package meta

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// SeekTable contains one or more precalculated audio frame seek points, used
// by the optional Stream.Seek to locate a frame without scanning from the
// start of the stream.
type SeekTable struct {
	// One or more seek points.
	Points []SeekPoint
}

// A SeekPoint specifies the byte offset and initial sample number of a given
// target frame.
type SeekPoint struct {
	// Sample number of the first sample in the target frame, or
	// PlaceholderPoint for a placeholder point.
	SampleNum uint64
	// Offset in bytes from the first byte of the first frame header to the
	// first byte of the target frame's header.
	Offset uint64
	// Number of samples in the target frame.
	NSamples uint16
}

// PlaceholderPoint is the sample number used by placeholder seek points.
const PlaceholderPoint = 0xFFFFFFFFFFFFFFFF

// parseSeekTable reads and parses the body of a SeekTable metadata block.
func (block *Block) parseSeekTable() error {
	// Each seek point occupies 18 bytes (8 + 8 + 2); the point count is
	// derived from the block length rather than stored explicitly.
	n := block.Length / 18
	if n < 1 {
		return errors.New("meta: seek table requires at least one seek point")
	}
	table := &SeekTable{Points: make([]SeekPoint, n)}
	block.Body = table

	var prev uint64
	for i := range table.Points {
		point := &table.Points[i]
		if err := binary.Read(block.lr, binary.BigEndian, point); err != nil {
			return unexpected(err)
		}
		if i != 0 && point.SampleNum != PlaceholderPoint {
			switch {
			case point.SampleNum < prev:
				return errors.Errorf("meta: seek point sample number (%d) out of order after (%d)", point.SampleNum, prev)
			case point.SampleNum == prev:
				return errors.Errorf("meta: duplicate seek point sample number (%d)", point.SampleNum)
			}
		}
		prev = point.SampleNum
	}
	return nil
}
