package sketchy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// BloomFilter is a space-efficient membership test. Added items always test
// as present; items never added test as present with roughly the configured
// false positive rate while the filter is within capacity.
//
// The filter sets k bits per item using double hashing: both base hashes come
// from a single 128-bit xxh3 computation and bit i is h1 + i*h2 mod m.
//
// BloomFilter is not safe for concurrent mutation.
type BloomFilter struct {
	bits      *bitset.BitSet
	m         uint64  // Number of bits
	k         uint32  // Number of hash rounds
	capacity  uint64  // Expected number of items
	errorRate float64 // Target false positive rate
	count     uint64  // Number of items added (approximate)
}

// NewBloomFilter creates a filter sized for capacity items at the target
// false positive rate errorRate.
func NewBloomFilter(capacity uint64, errorRate float64) (*BloomFilter, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("%w: bloom capacity must be positive", ErrConfiguration)
	}
	if !(errorRate > 0 && errorRate < 1) {
		return nil, fmt.Errorf("%w: bloom error rate %v outside (0, 1)", ErrConfiguration, errorRate)
	}

	m, k := OptimalBloomParams(capacity, errorRate)
	return &BloomFilter{
		bits:      bitset.New(uint(m)),
		m:         m,
		k:         k,
		capacity:  capacity,
		errorRate: errorRate,
	}, nil
}

// Add adds data to the filter.
func (f *BloomFilter) Add(data []byte) {
	f.addWithHash(hashPair(data))
}

// AddString adds a string to the filter without allocating.
func (f *BloomFilter) AddString(s string) {
	f.addWithHash(hashPairString(s))
}

func (f *BloomFilter) addWithHash(h1, h2 uint64) {
	for i := range uint64(f.k) {
		f.bits.Set(uint((h1 + i*h2) % f.m))
	}
	f.count++
}

// Contains reports whether data might be in the filter. False means data was
// definitely never added.
func (f *BloomFilter) Contains(data []byte) bool {
	return f.testWithHash(hashPair(data))
}

// ContainsString is Contains for strings.
func (f *BloomFilter) ContainsString(s string) bool {
	return f.testWithHash(hashPairString(s))
}

func (f *BloomFilter) testWithHash(h1, h2 uint64) bool {
	for i := range uint64(f.k) {
		if !f.bits.Test(uint((h1 + i*h2) % f.m)) {
			return false
		}
	}
	return true
}

// TestAndAdd adds data and reports whether it might have been present before.
func (f *BloomFilter) TestAndAdd(data []byte) bool {
	h1, h2 := hashPair(data)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// Combine returns the union of f and other (bitwise OR). Both filters must
// have the same bit count and number of hash rounds.
func (f *BloomFilter) Combine(other *BloomFilter) (*BloomFilter, error) {
	if err := f.compatible(other); err != nil {
		return nil, err
	}
	out := f.Clone()
	out.bits.InPlaceUnion(other.bits)
	out.count += other.count
	return out, nil
}

// Merge folds other into f in place.
func (f *BloomFilter) Merge(other *BloomFilter) error {
	if err := f.compatible(other); err != nil {
		return err
	}
	f.bits.InPlaceUnion(other.bits)
	f.count += other.count
	return nil
}

func (f *BloomFilter) compatible(other *BloomFilter) error {
	if f.m != other.m {
		return fmt.Errorf("%w: bloom size %d vs %d bits", ErrDimensionMismatch, f.m, other.m)
	}
	if f.k != other.k {
		return fmt.Errorf("%w: bloom hash count %d vs %d", ErrDimensionMismatch, f.k, other.k)
	}
	return nil
}

// Zero returns an empty filter with the same configuration.
func (f *BloomFilter) Zero() *BloomFilter {
	return &BloomFilter{
		bits:      bitset.New(uint(f.m)),
		m:         f.m,
		k:         f.k,
		capacity:  f.capacity,
		errorRate: f.errorRate,
	}
}

// IsZero reports whether no bit is set.
func (f *BloomFilter) IsZero() bool {
	return f.bits.None()
}

// Clone returns a deep copy of f.
func (f *BloomFilter) Clone() *BloomFilter {
	out := *f
	out.bits = f.bits.Clone()
	return &out
}

// Equal reports whether both filters have the same shape and bits.
func (f *BloomFilter) Equal(other *BloomFilter) bool {
	return other != nil && f.m == other.m && f.k == other.k && f.bits.Equal(other.bits)
}

// Clear resets the filter to empty.
func (f *BloomFilter) Clear() {
	f.bits.ClearAll()
	f.count = 0
}

// Cap returns the size of the filter in bits.
func (f *BloomFilter) Cap() uint64 {
	return f.m
}

// K returns the number of hash rounds.
func (f *BloomFilter) K() uint32 {
	return f.k
}

// Count returns the approximate number of items added to the filter.
func (f *BloomFilter) Count() uint64 {
	return f.count
}

// Capacity returns the number of items the filter was sized for.
func (f *BloomFilter) Capacity() uint64 {
	return f.capacity
}

// ErrorRate returns the target false positive rate.
func (f *BloomFilter) ErrorRate() float64 {
	return f.errorRate
}

// Saturation returns the fraction of bits that are set.
func (f *BloomFilter) Saturation() float64 {
	return float64(f.bits.Count()) / float64(f.m)
}

// ExpectedFPR estimates the current false positive rate from the observed
// saturation: a random absent item passes all k probes with probability
// saturation^k.
func (f *BloomFilter) ExpectedFPR() float64 {
	return math.Pow(f.Saturation(), float64(f.k))
}

// EstimatedFalsePositiveRate estimates the false positive rate from the number
// of items added.
func (f *BloomFilter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count)
}

// String implements fmt.Stringer.
func (f *BloomFilter) String() string {
	return fmt.Sprintf("BloomFilter(capacity=%d, error_rate=%.4f, items~%d)", f.capacity, f.errorRate, f.count)
}

// Serialization constants.
const (
	// bloomSerializeVersion is the current serialization format version.
	bloomSerializeVersion byte = 1

	// bloomHeaderSize is the size of the serialization header in bytes.
	// Version (1) + K (4) + M (8) + Count (8) + Capacity (8) + ErrorRate (8) = 37 bytes
	bloomHeaderSize = 37
)

// MarshalBinary serializes the filter to a byte slice.
// The serialized format is:
//   - Version (1 byte): serialization format version
//   - K (4 bytes): number of hash rounds (little-endian uint32)
//   - M (8 bytes): number of bits (little-endian uint64)
//   - Count (8 bytes): number of items added (little-endian uint64)
//   - Capacity (8 bytes): configured capacity (little-endian uint64)
//   - ErrorRate (8 bytes): configured error rate (little-endian float64 bits)
//   - Words (ceil(m/64) * 8 bytes): the bit array (little-endian uint64s)
func (f *BloomFilter) MarshalBinary() ([]byte, error) {
	words := f.bits.Words()
	buf := make([]byte, bloomHeaderSize+len(words)*8)

	buf[0] = bloomSerializeVersion
	binary.LittleEndian.PutUint32(buf[1:5], f.k)
	binary.LittleEndian.PutUint64(buf[5:13], f.m)
	binary.LittleEndian.PutUint64(buf[13:21], f.count)
	binary.LittleEndian.PutUint64(buf[21:29], f.capacity)
	binary.LittleEndian.PutUint64(buf[29:37], math.Float64bits(f.errorRate))

	offset := bloomHeaderSize
	for _, word := range words {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], word)
		offset += 8
	}
	return buf, nil
}

// UnmarshalBloomFilter deserializes a filter produced by [BloomFilter.MarshalBinary].
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < bloomHeaderSize {
		return nil, fmt.Errorf("%w: data too short (got %d bytes, need at least %d)", ErrInvalidData, len(data), bloomHeaderSize)
	}

	if version := data[0]; version != bloomSerializeVersion {
		return nil, fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, version, bloomSerializeVersion)
	}

	k := binary.LittleEndian.Uint32(data[1:5])
	m := binary.LittleEndian.Uint64(data[5:13])
	count := binary.LittleEndian.Uint64(data[13:21])
	capacity := binary.LittleEndian.Uint64(data[21:29])
	errorRate := math.Float64frombits(binary.LittleEndian.Uint64(data[29:37]))

	// Bound m so the word count cannot overflow the length check below.
	const maxBits = uint64(1) << 56
	if k == 0 {
		return nil, fmt.Errorf("%w: k cannot be zero", ErrInvalidData)
	}
	if m == 0 || m > maxBits {
		return nil, fmt.Errorf("%w: invalid bit count %d", ErrInvalidData, m)
	}

	numWords := (m + 63) / 64
	if expected := uint64(bloomHeaderSize) + numWords*8; uint64(len(data)) != expected {
		return nil, fmt.Errorf("%w: data length mismatch (got %d bytes, expected %d)", ErrInvalidData, len(data), expected)
	}

	words := make([]uint64, numWords)
	offset := bloomHeaderSize
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
	}

	return &BloomFilter{
		bits:      bitset.FromWithLength(uint(m), words),
		m:         m,
		k:         k,
		capacity:  capacity,
		errorRate: errorRate,
		count:     count,
	}, nil
}

// NewBloomFilterFromItems builds a filter holding items. When capacity is
// zero it is taken from len(items).
func NewBloomFilterFromItems(items []string, capacity uint64, errorRate float64) (*BloomFilter, error) {
	if capacity == 0 {
		capacity = max(uint64(len(items)), 1)
	}
	f, err := NewBloomFilter(capacity, errorRate)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		f.AddString(item)
	}
	return f, nil
}
