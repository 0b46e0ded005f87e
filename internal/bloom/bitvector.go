package bloom

import (
	"github.com/bits-and-blooms/bitset"
)

// BitVector is the in-memory bit array backend. It is not safe for concurrent
// use; the owning filter serializes access.
type BitVector struct {
	bits *bitset.BitSet
	size uint32
}

func NewBitVector(size uint32) *BitVector {
	return &BitVector{bits: bitset.New(uint(size)), size: size}
}

func (v *BitVector) Size() uint32 { return v.size }

func (v *BitVector) Get(index uint32) bool {
	return v.bits.Test(uint(index))
}

// GetAndSet sets the bit and reports whether it was set before.
func (v *BitVector) GetAndSet(index uint32) bool {
	previous := v.bits.Test(uint(index))
	v.bits.Set(uint(index))
	return previous
}

func (v *BitVector) Set(index uint32)   { v.bits.Set(uint(index)) }
func (v *BitVector) Unset(index uint32) { v.bits.Clear(uint(index)) }

func (v *BitVector) Cardinality() uint { return v.bits.Count() }

func (v *BitVector) IsEmpty() bool { return v.bits.None() }

func (v *BitVector) ClearAll() { v.bits.ClearAll() }

func (v *BitVector) Union(other *BitVector) {
	v.bits.InPlaceUnion(other.bits)
}

func (v *BitVector) Intersect(other *BitVector) {
	v.bits.InPlaceIntersection(other.bits)
}

func (v *BitVector) Equal(other *BitVector) bool {
	return v.size == other.size && v.bits.Equal(other.bits)
}

func (v *BitVector) Clone() *BitVector {
	return &BitVector{bits: v.bits.Clone(), size: v.size}
}

// ToByteArray serializes the bit contents with bit i stored at bit 7-(i mod 8)
// of byte i/8. This matches the byte layout Redis uses for SETBIT, so local
// and remote snapshots are interchangeable.
func (v *BitVector) ToByteArray() []byte {
	out := make([]byte, (v.size+7)/8)
	for index, found := v.bits.NextSet(0); found; index, found = v.bits.NextSet(index + 1) {
		out[index/8] |= 1 << (7 - index%8)
	}
	return out
}

// FromByteArray rebuilds a bit vector from its ToByteArray form.
func FromByteArray(data []byte, size uint32) *BitVector {
	v := NewBitVector(size)
	limit := uint32(len(data)) * 8
	if limit > size {
		limit = size
	}
	for i := uint32(0); i < limit; i++ {
		if data[i/8]&(1<<(7-i%8)) != 0 {
			v.bits.Set(uint(i))
		}
	}
	return v
}

// Overwrite replaces the bit contents with the given serialized form.
func (v *BitVector) Overwrite(data []byte) {
	replacement := FromByteArray(data, v.size)
	v.bits = replacement.bits
}
