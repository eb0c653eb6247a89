// Package hashutil provides narrow hash.Hash extensions for the fixed-width
// checksums used by the FLAC frame format.
package hashutil

import "hash"

// Hash8 is implemented by 8-bit hash functions, such as CRC-8.
type Hash8 interface {
	hash.Hash
	Sum8() uint8
}

// Hash16 is implemented by 16-bit hash functions, such as CRC-16.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}
