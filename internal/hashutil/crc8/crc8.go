// Package crc8 implements the 8-bit cyclic redundancy check used to verify
// FLAC frame headers.
package crc8

import "github.com/pcmstream/flac/internal/hashutil"

// Size of a CRC-8 checksum in bytes.
const Size = 1

// ATM is the polynomial used by FLAC frame headers: x^8 + x^2 + x + 1.
const ATM = 0x07

// Table is a 256-entry lookup table for a given polynomial.
type Table [256]uint8

// ATMTable is the precomputed table for the ATM polynomial.
var ATMTable = makeTable(ATM)

func makeTable(poly uint8) *Table {
	var table Table
	for i := range table {
		crc := uint8(i)
		for j := 0; j < 8; j++ {
			if crc&0x80 != 0 {
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
	crc   uint8
	table *Table
}

// NewATM returns a hashutil.Hash8 computing the CRC-8 checksum used by FLAC
// frame headers.
func NewATM() hashutil.Hash8 {
	return &digest{table: ATMTable}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0 }

func (d *digest) Write(p []byte) (int, error) {
	crc := d.crc
	table := d.table
	for _, v := range p {
		crc = table[crc^v]
	}
	d.crc = crc
	return len(p), nil
}

// Sum8 returns the current 8-bit checksum.
func (d *digest) Sum8() uint8 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	return append(in, d.crc)
}

// ChecksumATM returns the CRC-8 (ATM polynomial) checksum of data.
func ChecksumATM(data []byte) uint8 {
	d := NewATM()
	d.Write(data)
	return d.Sum8()
}
