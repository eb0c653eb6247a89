// Package crc16 implements the 16-bit cyclic redundancy check used to verify
// FLAC frame bodies.
package crc16

import "github.com/pcmstream/flac/internal/hashutil"

// Size of a CRC-16 checksum in bytes.
const Size = 2

// IBM is the polynomial used by FLAC frame footers: x^16 + x^15 + x^2 + x^0.
const IBM = 0x8005

// Table is a 256-entry lookup table for a given polynomial.
type Table [256]uint16

// IBMTable is the precomputed table for the IBM polynomial.
var IBMTable = makeTable(IBM)

func makeTable(poly uint16) *Table {
	var table Table
	for i := range table {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return &table
}

type digest struct {
	crc   uint16
	table *Table
}

// NewIBM returns a hashutil.Hash16 computing the CRC-16 checksum used by FLAC
// frame footers.
func NewIBM() hashutil.Hash16 {
	return &digest{table: IBMTable}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0 }

func (d *digest) Write(p []byte) (int, error) {
	crc := d.crc
	table := d.table
	for _, v := range p {
		crc = crc<<8 ^ table[crc>>8^uint16(v)]
	}
	d.crc = crc
	return len(p), nil
}

// Sum16 returns the current 16-bit checksum.
func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	s := d.crc
	return append(in, byte(s>>8), byte(s))
}

// ChecksumIBM returns the CRC-16 (IBM polynomial) checksum of data.
func ChecksumIBM(data []byte) uint16 {
	d := NewIBM()
	d.Write(data)
	return d.Sum16()
}
