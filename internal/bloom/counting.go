package bloom

import (
	"fmt"
	"math"
	"sync"
)

// CountingFilter is the in-memory counting Bloom filter. Each bit position is
// backed by a saturating counter of the configured width, so elements can be
// removed again. One lock guards bit array and counters together.
type CountingFilter struct {
	mu       sync.Mutex
	config   *FilterBuilder
	bits     *BitVector
	counters []uint64
	maxCount uint64
}

// NewCountingFilter completes the configuration and allocates bit array and
// counter array.
func NewCountingFilter(builder *FilterBuilder) (*CountingFilter, error) {
	if err := builder.Complete(); err != nil {
		return nil, err
	}
	var maxCount uint64 = math.MaxUint64
	if builder.CountingBits < 64 {
		maxCount = (uint64(1) << builder.CountingBits) - 1
	}
	return &CountingFilter{
		config:   builder,
		bits:     NewBitVector(uint32(builder.Size)),
		counters: make([]uint64, builder.Size),
		maxCount: maxCount,
	}, nil
}

func (f *CountingFilter) Config() *FilterBuilder { return f.config }

// Add inserts the element and reports whether it was (probably) not yet
// present.
func (f *CountingFilter) Add(element []byte) bool {
	return f.AddAndEstimateCount(element) == 1
}

// AddAndEstimateCount inserts the element, setting each of its bits and
// incrementing each counter. The returned minimum over the new counter values
// estimates how often the element is now contained. Counters saturate at
// 2^c - 1; a pinned counter stays pinned and the estimate may then
// underestimate.
func (f *CountingFilter) AddAndEstimateCount(element []byte) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := uint64(math.MaxUint64)
	for _, position := range f.config.Hash(element) {
		f.bits.Set(position)
		if f.counters[position] < f.maxCount {
			f.counters[position]++
		}
		if f.counters[position] < min {
			min = f.counters[position]
		}
	}
	return int64(min)
}

// Remove decrements the element's counters and reports whether this removed
// the last occurrence.
func (f *CountingFilter) Remove(element []byte) bool {
	return f.RemoveAndEstimateCount(element) <= 0
}

// RemoveAndEstimateCount decrements each counter of the element, clearing the
// bit at every position whose counter reaches zero, and returns the minimum
// counter after the decrement.
func (f *CountingFilter) RemoveAndEstimateCount(element []byte) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := uint64(math.MaxUint64)
	for _, position := range f.config.Hash(element) {
		if f.counters[position] > 0 {
			f.counters[position]--
		}
		if f.counters[position] == 0 {
			f.bits.Unset(position)
		}
		if f.counters[position] < min {
			min = f.counters[position]
		}
	}
	return int64(min)
}

// GetEstimatedCount returns the minimum counter across the element's
// positions, the estimate of how often it is currently contained. Collisions
// can only raise it; a counter pinned at saturation can make it low.
func (f *CountingFilter) GetEstimatedCount(element []byte) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := uint64(math.MaxUint64)
	for _, position := range f.config.Hash(element) {
		if f.counters[position] < min {
			min = f.counters[position]
		}
	}
	return int64(min)
}

// Contains reports whether all bit positions of the element are set.
func (f *CountingFilter) Contains(element []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, position := range f.config.Hash(element) {
		if !f.bits.Get(position) {
			return false
		}
	}
	return true
}

func (f *CountingFilter) AddString(element string) bool {
	return f.Add(f.config.ToBytes(element))
}

func (f *CountingFilter) ContainsString(element string) bool {
	return f.Contains(f.config.ToBytes(element))
}

// Clear resets all bits and counters.
func (f *CountingFilter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.ClearAll()
	for i := range f.counters {
		f.counters[i] = 0
	}
}

func (f *CountingFilter) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.IsEmpty()
}

// Union merges a compatible non-counting snapshot into the bit array. The
// counters cannot be merged and keep their values, so only use this to seed a
// counting filter from a plain one.
func (f *CountingFilter) Union(other *Filter) error {
	if !f.config.IsCompatibleTo(other.Config()) {
		return fmt.Errorf("%w: union requires identical size, hashes, hash method and charset", ErrIncompatibleFilters)
	}
	snapshot := other.BitVector()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.Union(snapshot)
	return nil
}

// Cardinality returns the number of set bits.
func (f *CountingFilter) Cardinality() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.Cardinality()
}

// EstimatedPopulation estimates the number of distinct contained elements.
func (f *CountingFilter) EstimatedPopulation() float64 {
	return populationEstimate(f.config, float64(f.Cardinality()))
}

// SnapshotBits serializes the bit contents; counters are not part of the
// snapshot.
func (f *CountingFilter) SnapshotBits() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.ToByteArray()
}

// BitVector returns a copy of the underlying bit vector.
func (f *CountingFilter) BitVector() *BitVector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.Clone()
}
