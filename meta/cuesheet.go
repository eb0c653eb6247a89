package meta

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// A CueSheet describes how tracks are laid out within a FLAC stream.
type CueSheet struct {
	// Media catalog number.
	MCN string
	// Number of lead-in samples. Only meaningful for CD-DA cue sheets; 0
	// otherwise.
	NLeadInSamples uint64
	// IsCompactDisc reports whether this cue sheet corresponds to a CD.
	IsCompactDisc bool
	// One or more tracks; the last is always the lead-out track.
	Tracks []CueSheetTrack
}

// CueSheetTrack contains the start offset of a track and other track
// specific metadata.
type CueSheetTrack struct {
	// Track offset in samples, relative to the start of the stream.
	Offset uint64
	// Track number; never 0, always unique within a cue sheet.
	Num uint8
	// International Standard Recording Code; empty if not present.
	ISRC string
	// IsAudio reports whether the track contains audio (as opposed to data).
	IsAudio bool
	// HasPreEmphasis reports whether the track was recorded with
	// pre-emphasis.
	HasPreEmphasis bool
	// One or more track index points; the lead-out track has none.
	Indicies []CueSheetTrackIndex
}

// A CueSheetTrackIndex specifies a position within a track.
type CueSheetTrackIndex struct {
	// Index point offset in samples, relative to the track offset.
	Offset uint64
	// Index point number; increments by 1 and is unique within a track.
	Num uint8
}

// parseCueSheet reads and parses the body of a CueSheet metadata block.
func (block *Block) parseCueSheet() error {
	// 128 bytes: MCN, NULL-terminated.
	raw, err := readString(block.lr, 128)
	if err != nil {
		return unexpected(err)
	}
	cs := &CueSheet{MCN: stringFromSZ(raw)}
	block.Body = cs

	// 64 bits: NLeadInSamples.
	if err := binary.Read(block.lr, binary.BigEndian, &cs.NLeadInSamples); err != nil {
		return unexpected(err)
	}

	// 1 bit: IsCompactDisc, 7 bits + 258 bytes: reserved (must be zero).
	var x uint8
	if err := binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}
	cs.IsCompactDisc = x&0x80 != 0
	if x&0x7F != 0 {
		return ErrInvalidPadding
	}
	if err := verifyZero(block.lr, 258); err != nil {
		return err
	}

	// 8 bits: number of tracks.
	if err := binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}
	if x < 1 {
		return errors.New("meta: cue sheet requires at least one track")
	}
	if cs.IsCompactDisc && x > 100 {
		return errors.Errorf("meta: CD-DA cue sheet has too many tracks (%d > 100)", x)
	}
	cs.Tracks = make([]CueSheetTrack, x)

	seen := make(map[uint8]struct{}, x)
	for i := range cs.Tracks {
		if err := block.parseCueSheetTrack(cs, i, seen); err != nil {
			return err
		}
	}
	return nil
}

// parseCueSheetTrack parses the i:th cue sheet track and enforces that its
// track number is unique within the cue sheet.
func (block *Block) parseCueSheetTrack(cs *CueSheet, i int, seen map[uint8]struct{}) error {
	track := &cs.Tracks[i]

	// 64 bits: Offset.
	if err := binary.Read(block.lr, binary.BigEndian, &track.Offset); err != nil {
		return unexpected(err)
	}
	if cs.IsCompactDisc && track.Offset%588 != 0 {
		return errors.Errorf("meta: CD-DA track offset (%d) not a multiple of 588", track.Offset)
	}

	// 8 bits: Num.
	if err := binary.Read(block.lr, binary.BigEndian, &track.Num); err != nil {
		return unexpected(err)
	}
	if _, ok := seen[track.Num]; ok {
		return errors.Errorf("meta: duplicate cue sheet track number (%d)", track.Num)
	}
	seen[track.Num] = struct{}{}
	if track.Num == 0 {
		return errors.New("meta: invalid cue sheet track number (0)")
	}
	isLeadOut := i == len(cs.Tracks)-1
	if cs.IsCompactDisc {
		switch {
		case !isLeadOut && track.Num >= 100:
			return errors.Errorf("meta: CD-DA track number (%d) exceeds 99", track.Num)
		case isLeadOut && track.Num != 170:
			return errors.Errorf("meta: invalid CD-DA lead-out track number; expected 170, got %d", track.Num)
		}
	} else if isLeadOut && track.Num != 255 {
		return errors.Errorf("meta: invalid lead-out track number; expected 255, got %d", track.Num)
	}

	// 12 bytes: ISRC.
	raw, err := readString(block.lr, 12)
	if err != nil {
		return unexpected(err)
	}
	track.ISRC = stringFromSZ(raw)

	// 1 bit: IsAudio (inverted: 0 = audio), 1 bit: HasPreEmphasis, 6 bits +
	// 13 bytes: reserved.
	var x uint8
	if err := binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}
	track.IsAudio = x&0x80 == 0
	track.HasPreEmphasis = x&0x40 != 0
	if x&0x3F != 0 {
		return ErrInvalidPadding
	}
	if err := verifyZero(block.lr, 13); err != nil {
		return err
	}

	// 8 bits: number of track index points.
	if err := binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}
	if x < 1 {
		if !isLeadOut {
			return errors.New("meta: non-lead-out track requires at least one index point")
		}
		return nil
	}
	track.Indicies = make([]CueSheetTrackIndex, x)
	for i := range track.Indicies {
		idx := &track.Indicies[i]
		if err := binary.Read(block.lr, binary.BigEndian, &idx.Offset); err != nil {
			return unexpected(err)
		}
		if err := binary.Read(block.lr, binary.BigEndian, &idx.Num); err != nil {
			return unexpected(err)
		}
		if err := verifyZero(block.lr, 3); err != nil {
			return err
		}
	}
	return nil
}

// verifyZero reads n bytes from r and fails with ErrInvalidPadding if any of
// them are non-zero.
func verifyZero(r io.Reader, n int) error {
	_, err := io.Copy(io.Discard, zeroReader{r: io.LimitReader(r, int64(n))})
	return unexpected(err)
}

// stringFromSZ truncates s at its first NUL byte.
func stringFromSZ(s string) string {
	if pos := strings.IndexByte(s, '\x00'); pos != -1 {
		return s[:pos]
	}
	return s
}
