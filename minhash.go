package sketchy

import (
	"fmt"
	"slices"

	"github.com/jcalabro/sketchy/internal/rng"
)

const (
	// DefaultNumPerm is the signature length most callers use.
	DefaultNumPerm = 128

	// DefaultMinHashSeed seeds the permutation parameters when the caller
	// has no preference. Signatures only compare under the same seed.
	DefaultMinHashSeed = 1
)

// permutation is one universal hash (a*h + b) mod 2^32 with odd a.
type permutation struct {
	a, b uint64
}

func (p permutation) apply(h uint32) uint32 {
	return uint32(p.a*uint64(h) + p.b)
}

// minhashPermutations draws numPerm permutations from a splitmix64 stream
// seeded with seed.
func minhashPermutations(numPerm int, seed uint64) []permutation {
	src := rng.New(seed)
	perms := make([]permutation, numPerm)
	for i := range perms {
		x := src.Uint64()
		perms[i] = permutation{a: x&maxHash32 | 1, b: x >> 32}
	}
	return perms
}

// MinHash is a fixed-length signature estimating the Jaccard similarity of
// sets. Each slot keeps the minimum of one permutation over the set's item
// hashes.
//
// MinHash is not safe for concurrent mutation.
type MinHash struct {
	seed   uint64
	perms  []permutation
	values []uint32
}

// NewMinHash creates an empty signature with numPerm slots.
func NewMinHash(numPerm int, seed uint64) (*MinHash, error) {
	if numPerm < 1 {
		return nil, fmt.Errorf("%w: num_perm must be at least 1, got %d", ErrConfiguration, numPerm)
	}
	m := &MinHash{
		seed:   seed,
		perms:  minhashPermutations(numPerm, seed),
		values: make([]uint32, numPerm),
	}
	m.reset()
	return m, nil
}

// NewMinHashFromValues rebuilds a signature from previously exported slot
// values.
func NewMinHashFromValues(seed uint64, values []uint32) (*MinHash, error) {
	m, err := NewMinHash(len(values), seed)
	if err != nil {
		return nil, err
	}
	copy(m.values, values)
	return m, nil
}

// Update adds data to the set.
func (m *MinHash) Update(data []byte) {
	m.updateHash(hash32(data))
}

// UpdateString adds str to the set.
func (m *MinHash) UpdateString(str string) {
	m.updateHash(hashString32(str))
}

// UpdateStrings adds every string to the set.
func (m *MinHash) UpdateStrings(strs ...string) {
	for _, s := range strs {
		m.updateHash(hashString32(s))
	}
}

func (m *MinHash) updateHash(h uint32) {
	for i, p := range m.perms {
		m.values[i] = min(m.values[i], p.apply(h))
	}
}

// Jaccard estimates the Jaccard similarity with other as the fraction of
// equal slots.
func (m *MinHash) Jaccard(other *MinHash) (float64, error) {
	if err := m.compatible(other); err != nil {
		return 0, err
	}
	return matchingFraction(m.values, other.values), nil
}

// Combine returns the slot-wise minimum, which is the signature of the union
// of both sets.
func (m *MinHash) Combine(other *MinHash) (*MinHash, error) {
	if err := m.compatible(other); err != nil {
		return nil, err
	}
	out := m.Clone()
	out.mergeValues(other)
	return out, nil
}

// Merge folds other into m in place.
func (m *MinHash) Merge(other *MinHash) error {
	if err := m.compatible(other); err != nil {
		return err
	}
	m.mergeValues(other)
	return nil
}

func (m *MinHash) mergeValues(other *MinHash) {
	for i, v := range other.values {
		m.values[i] = min(m.values[i], v)
	}
}

func (m *MinHash) compatible(other *MinHash) error {
	if len(m.values) != len(other.values) {
		return fmt.Errorf("%w: num_perm %d vs %d", ErrDimensionMismatch, len(m.values), len(other.values))
	}
	if m.seed != other.seed {
		return fmt.Errorf("%w: minhash seed %d vs %d", ErrDimensionMismatch, m.seed, other.seed)
	}
	return nil
}

// Zero returns an empty signature with the same configuration.
func (m *MinHash) Zero() *MinHash {
	out := &MinHash{seed: m.seed, perms: m.perms, values: make([]uint32, len(m.values))}
	out.reset()
	return out
}

func (m *MinHash) reset() {
	for i := range m.values {
		m.values[i] = maxHash32
	}
}

// IsZero reports whether every slot still holds the empty sentinel.
func (m *MinHash) IsZero() bool {
	for _, v := range m.values {
		if v != maxHash32 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m. Permutation parameters are shared.
func (m *MinHash) Clone() *MinHash {
	return &MinHash{seed: m.seed, perms: m.perms, values: slices.Clone(m.values)}
}

// Equal reports whether both signatures have the same seed and slots.
func (m *MinHash) Equal(other *MinHash) bool {
	return other != nil && m.seed == other.seed && slices.Equal(m.values, other.values)
}

// NumPerm returns the signature length.
func (m *MinHash) NumPerm() int { return len(m.values) }

// Seed returns the permutation seed.
func (m *MinHash) Seed() uint64 { return m.seed }

// HashValues returns a copy of the slot values.
func (m *MinHash) HashValues() []uint32 { return slices.Clone(m.values) }

// String implements fmt.Stringer.
func (m *MinHash) String() string {
	return fmt.Sprintf("MinHash(num_perm=%d, seed=%d)", len(m.values), m.seed)
}

func matchingFraction[T comparable](a, b []T) float64 {
	var eq int
	for i := range a {
		if a[i] == b[i] {
			eq++
		}
	}
	return float64(eq) / float64(len(a))
}

// EstimateJaccard builds default-seeded signatures for two sets and
// estimates their similarity.
func EstimateJaccard(a, b []string, numPerm int) (float64, error) {
	ma, err := NewMinHash(numPerm, DefaultMinHashSeed)
	if err != nil {
		return 0, err
	}
	mb := ma.Zero()
	ma.UpdateStrings(a...)
	mb.UpdateStrings(b...)
	return ma.Jaccard(mb)
}
