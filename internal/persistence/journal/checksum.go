package journal

import (
	"encoding/binary"
	"hash/crc64"
)

const (
	// trailerSize is the size of the stored checksum at the end of every block.
	trailerSize = 8
	// ResetXor is mixed into the seed of a block that deliberately restarts the
	// checksum chain after a writer recovered from an unclean shutdown.
	ResetXor uint64 = 0x9E3779B97F4A7C15
)

var ecmaTable = crc64.MakeTable(crc64.ECMA)

// Checksum continues the chain checksum from seed over p.
func Checksum(seed uint64, p []byte) uint64 {
	return crc64.Update(seed, ecmaTable, p)
}

type verdict int

const (
	verdictMismatch verdict = iota
	verdictNormal
	verdictReset
)

func (v verdict) String() string {
	switch v {
	case verdictNormal:
		return "normal"
	case verdictReset:
		return "reset"
	default:
		return "mismatch"
	}
}

// verifyBlock classifies the stored checksum of one block against its payload.
// The reset form is only considered when allowReset is set.
func verifyBlock(payload []byte, stored, prev uint64, allowReset bool) (verdict, uint64) {
	if Checksum(prev, payload) == stored {
		return verdictNormal, stored
	}
	if allowReset && Checksum(prev^ResetXor, payload) == stored {
		return verdictReset, stored
	}
	return verdictMismatch, 0
}

// splitBlock separates a whole block into its payload and stored checksum.
func splitBlock(block []byte) ([]byte, uint64) {
	n := len(block) - trailerSize
	return block[:n], binary.LittleEndian.Uint64(block[n:])
}

// sealBlock computes the checksum of block's payload chained to seed and
// stores it in the trailer.
func sealBlock(block []byte, seed uint64) uint64 {
	n := len(block) - trailerSize
	sum := Checksum(seed, block[:n])
	binary.LittleEndian.PutUint64(block[n:], sum)
	return sum
}
