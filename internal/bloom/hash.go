package bloom

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/adler32"
	"hash/crc32"

	"github.com/spaolacci/murmur3"
)

// positionFunc maps an element to k bit positions in [0, m).
type positionFunc func(data []byte, m, k uint32) []uint32

func positionFunctionFor(method HashMethod) (positionFunc, error) {
	switch method {
	case HashMD5:
		return digestPositions(md5.New), nil
	case HashSHA256:
		return digestPositions(sha256.New), nil
	case HashSHA384:
		return digestPositions(sha512.New384), nil
	case HashSHA512:
		return digestPositions(sha512.New), nil
	case HashCRC32:
		return digestPositions(func() hash.Hash { return crc32.NewIEEE() }), nil
	case HashAdler32:
		return digestPositions(func() hash.Hash { return adler32.New() }), nil
	case HashMurmur3:
		return murmur3Positions, nil
	case HashMurmur2DoubleHash:
		return murmurDoublePositions, nil
	case HashFixedSeed:
		return fixedSeedPositions, nil
	default:
		return nil, fmt.Errorf("%w: unknown hash method %q", ErrInvalidConfig, method)
	}
}

// digestPositions derives positions by hashing seed||data with an increasing
// 4-byte big-endian seed until k 32-bit words have been produced. The digest
// output is consumed as little-endian words, each reduced modulo m.
func digestPositions(newHash func() hash.Hash) positionFunc {
	return func(data []byte, m, k uint32) []uint32 {
		positions := make([]uint32, 0, k)
		digester := newHash()
		var seed [4]byte
		for round := uint32(0); uint32(len(positions)) < k; round++ {
			binary.BigEndian.PutUint32(seed[:], round)
			digester.Reset()
			digester.Write(seed[:])
			digester.Write(data)
			digest := digester.Sum(nil)
			for i := 0; i+4 <= len(digest) && uint32(len(positions)) < k; i += 4 {
				word := binary.LittleEndian.Uint32(digest[i : i+4])
				positions = append(positions, word%m)
			}
		}
		return positions
	}
}

// murmur3Positions hashes the element once per position with the position
// index as seed.
func murmur3Positions(data []byte, m, k uint32) []uint32 {
	positions := make([]uint32, k)
	for i := uint32(0); i < k; i++ {
		positions[i] = murmur3.Sum32WithSeed(data, i) % m
	}
	return positions
}

const murmurDoubleSeed = 0x9747b28c

// murmurDoublePositions applies the Kirsch-Mitzenmacher construction
// g_i = h1 + i*h2 mod m from two differently seeded Murmur3 values.
func murmurDoublePositions(data []byte, m, k uint32) []uint32 {
	h1 := uint64(murmur3.Sum32WithSeed(data, 0))
	h2 := uint64(murmur3.Sum32WithSeed(data, murmurDoubleSeed))
	positions := make([]uint32, k)
	for i := uint64(0); i < uint64(k); i++ {
		positions[i] = uint32((h1 + i*h2) % uint64(m))
	}
	return positions
}

// Knuth MMIX linear congruential generator constants.
const (
	lcgMultiplier = 6364136223846793005
	lcgIncrement  = 1442695040888963407
)

// fixedSeedPositions seeds an LCG from the element and emits the first k
// outputs. Only the upper 32 bits of each state are used.
func fixedSeedPositions(data []byte, m, k uint32) []uint32 {
	state := murmur3.Sum64(data)
	positions := make([]uint32, k)
	for i := uint32(0); i < k; i++ {
		state = state*lcgMultiplier + lcgIncrement
		positions[i] = uint32(state>>32) % m
	}
	return positions
}
