// Package hashutil provides utility interfaces for hash functions.
package hashutil

import "hash"

// Hash8 is the interface implemented by hash functions
// producing 8-bit checksums.
type Hash8 interface {
	hash.Hash
	// Sum8 returns the running checksum.
	Sum8() uint8
}

// Hash16 is the interface implemented by hash functions
// producing 16-bit checksums.
type Hash16 interface {
	hash.Hash
	// Sum16 returns the running checksum.
	Sum16() uint16
}
