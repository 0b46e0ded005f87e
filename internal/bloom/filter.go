package bloom

import (
	"fmt"
	"math"
	"sync"
)

// Filter is the in-memory Bloom filter. All operations are safe for
// concurrent use.
type Filter struct {
	mu     sync.RWMutex
	config *FilterBuilder
	bits   *BitVector
}

// NewFilter completes the configuration and allocates the bit array.
func NewFilter(builder *FilterBuilder) (*Filter, error) {
	if err := builder.Complete(); err != nil {
		return nil, err
	}
	return &Filter{
		config: builder,
		bits:   NewBitVector(uint32(builder.Size)),
	}, nil
}

// Config returns the completed configuration.
func (f *Filter) Config() *FilterBuilder { return f.config }

// Hash returns the bit positions the element maps to.
func (f *Filter) Hash(element []byte) []uint32 {
	return f.config.Hash(element)
}

// Add inserts the element and reports whether any of its bits was previously
// unset, i.e. whether the element was (probably) not yet present.
func (f *Filter) Add(element []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	added := false
	for _, position := range f.config.Hash(element) {
		if !f.bits.GetAndSet(position) {
			added = true
		}
	}
	return added
}

// AddString inserts the charset-encoded form of the string.
func (f *Filter) AddString(element string) bool {
	return f.Add(f.config.ToBytes(element))
}

// AddAll inserts every element and reports per element whether it was new.
func (f *Filter) AddAll(elements [][]byte) []bool {
	results := make([]bool, len(elements))
	for i, element := range elements {
		results[i] = f.Add(element)
	}
	return results
}

// Contains reports whether all bit positions of the element are set.
func (f *Filter) Contains(element []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, position := range f.config.Hash(element) {
		if !f.bits.Get(position) {
			return false
		}
	}
	return true
}

func (f *Filter) ContainsString(element string) bool {
	return f.Contains(f.config.ToBytes(element))
}

// ContainsAll reports whether every element is present.
func (f *Filter) ContainsAll(elements [][]byte) bool {
	for _, element := range elements {
		if !f.Contains(element) {
			return false
		}
	}
	return true
}

// Clear resets all bits.
func (f *Filter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.ClearAll()
}

func (f *Filter) IsEmpty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.IsEmpty()
}

// Union merges the other filter into this one with a bitwise OR. Both filters
// must agree on size, hash count, hash method and charset.
func (f *Filter) Union(other *Filter) error {
	if !f.config.IsCompatibleTo(other.config) {
		return fmt.Errorf("%w: union requires identical size, hashes, hash method and charset", ErrIncompatibleFilters)
	}
	other.mu.RLock()
	snapshot := other.bits.Clone()
	other.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.Union(snapshot)
	return nil
}

// Intersect narrows this filter to the elements shared with the other one via
// a bitwise AND. The result never loses elements present in both, but the
// false positive rate may rise.
func (f *Filter) Intersect(other *Filter) error {
	if !f.config.IsCompatibleTo(other.config) {
		return fmt.Errorf("%w: intersect requires identical size, hashes, hash method and charset", ErrIncompatibleFilters)
	}
	other.mu.RLock()
	snapshot := other.bits.Clone()
	other.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.Intersect(snapshot)
	return nil
}

// Cardinality returns the number of set bits.
func (f *Filter) Cardinality() uint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.Cardinality()
}

// EstimatedPopulation estimates how many distinct elements have been
// inserted, from the fill ratio of the bit array.
func (f *Filter) EstimatedPopulation() float64 {
	return populationEstimate(f.Config(), float64(f.Cardinality()))
}

// FalsePositiveProbability returns the achievable false positive rate after
// the given number of insertions.
func (f *Filter) FalsePositiveProbability(insertedElements float64) float64 {
	return AchievableFalsePositiveRate(f.config.Size, f.config.Hashes, insertedElements)
}

// SnapshotBits serializes the current bit contents.
func (f *Filter) SnapshotBits() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.ToByteArray()
}

// BitVector returns a copy of the underlying bit vector.
func (f *Filter) BitVector() *BitVector {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.Clone()
}

// OverwriteBits replaces the bit contents with a serialized snapshot.
func (f *Filter) OverwriteBits(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.Overwrite(data)
}

func populationEstimate(config *FilterBuilder, oneBits float64) float64 {
	m := float64(config.Size)
	k := float64(config.Hashes)
	if oneBits >= m {
		return math.Inf(1)
	}
	return -m / k * math.Log(1-oneBits/m)
}
