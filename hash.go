package sketchy

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// maxHash32 is the largest 32-bit hash value. MinHash slots start here.
const maxHash32 = 1<<32 - 1

// hash64 computes the seeded xxh3 hash of data. The seed salts the hash so that
// one item yields independent values per row or slot.
func hash64(data []byte, seed uint64) uint64 {
	if seed == 0 {
		return xxh3.Hash(data)
	}
	return xxh3.HashSeed(data, seed)
}

// hashString64 is hash64 for strings without converting to []byte.
func hashString64(s string, seed uint64) uint64 {
	if seed == 0 {
		return xxh3.HashString(s)
	}
	return xxh3.HashStringSeed(s, seed)
}

// hash32 returns the low 32 bits of the unseeded item hash.
func hash32(data []byte) uint32 {
	return uint32(xxh3.Hash(data))
}

// hashString32 is hash32 for strings.
func hashString32(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// hashPair returns two independent 64-bit hashes of data, used for double
// hashing. Both halves come from a single 128-bit xxh3 computation.
func hashPair(data []byte) (h1, h2 uint64) {
	h := xxh3.Hash128(data)
	return h.Lo, h.Hi
}

// hashPairString is hashPair for strings.
func hashPairString(s string) (h1, h2 uint64) {
	h := xxh3.HashString128(s)
	return h.Lo, h.Hi
}

// hashUint32Seed hashes a single 32-bit value with the given seed.
func hashUint32Seed(v uint32, seed uint64) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return xxh3.HashSeed(buf[:], seed)
}
