package sketchy

import (
	"fmt"
	"math"
	"math/bits"
	"slices"

	"github.com/jcalabro/sketchy/internal/rng"
)

// weightedPrime is the modulus of the weighted permutations, the smallest
// prime above 2^32.
const weightedPrime = 4294967311

type weightedPermutation struct {
	a, b uint64 // (a*h + b) mod weightedPrime
	salt uint64 // seeds the per-slot uniform draw
}

func (p weightedPermutation) apply(h uint32) uint32 {
	hi, lo := bits.Mul64(p.a, uint64(h))
	lo, carry := bits.Add64(lo, p.b, 0)
	return uint32(bits.Rem64(hi+carry, lo, weightedPrime))
}

// uniform maps h to a deterministic value in (0, 1) for this slot.
func (p weightedPermutation) uniform(h uint32) float64 {
	x := hashUint32Seed(h, p.salt)
	return (float64(x>>11) + 0.5) / (1 << 53)
}

func weightedPermutations(numPerm int, seed uint64) []weightedPermutation {
	src := rng.New(seed)
	perms := make([]weightedPermutation, numPerm)
	for i := range perms {
		perms[i] = weightedPermutation{
			a:    1 + src.Uint64()%(weightedPrime-1),
			b:    src.Uint64() % weightedPrime,
			salt: src.Uint64(),
		}
	}
	return perms
}

// WeightedSample is one slot of a WeightedMinHash: the permuted hash of the
// item that won the slot, its weight and its rank.
type WeightedSample struct {
	Hash   uint32
	Weight float64
	Rank   float64
}

func (s WeightedSample) less(o WeightedSample) bool {
	if s.Rank != o.Rank {
		return s.Rank < o.Rank
	}
	return s.Hash < o.Hash
}

var emptySample = WeightedSample{Hash: maxHash32, Rank: math.Inf(1)}

// WeightedMinHash estimates the weighted Jaccard similarity of weighted sets
// with consistent weighted sampling. Per slot, an item of weight w draws the
// rank -ln(r)/w from a uniform r derived from its hash; the item with the
// smallest rank wins the slot. Heavier items win more often.
//
// WeightedMinHash is not safe for concurrent mutation.
type WeightedMinHash struct {
	seed    uint64
	perms   []weightedPermutation
	samples []WeightedSample
}

// NewWeightedMinHash creates an empty signature with numPerm slots.
func NewWeightedMinHash(numPerm int, seed uint64) (*WeightedMinHash, error) {
	if numPerm < 1 {
		return nil, fmt.Errorf("%w: num_perm must be at least 1, got %d", ErrConfiguration, numPerm)
	}
	w := &WeightedMinHash{
		seed:    seed,
		perms:   weightedPermutations(numPerm, seed),
		samples: make([]WeightedSample, numPerm),
	}
	for i := range w.samples {
		w.samples[i] = emptySample
	}
	return w, nil
}

// Update adds data with the given weight. Zero weight is a no-op; negative
// or non-finite weights are rejected.
func (w *WeightedMinHash) Update(data []byte, weight float64) error {
	return w.updateHash(hash32(data), weight)
}

// UpdateString is Update for strings.
func (w *WeightedMinHash) UpdateString(str string, weight float64) error {
	return w.updateHash(hashString32(str), weight)
}

// UpdateWeights adds every item of weights. It validates all weights before
// touching the signature.
func (w *WeightedMinHash) UpdateWeights(weights map[string]float64) error {
	for item, wt := range weights {
		if err := checkSampleWeight(wt); err != nil {
			return fmt.Errorf("item %q: %w", item, err)
		}
	}
	for item, wt := range weights {
		_ = w.updateHash(hashString32(item), wt)
	}
	return nil
}

func checkSampleWeight(weight float64) error {
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("%w: weight %v must be finite and non-negative", ErrInvalidArgument, weight)
	}
	return nil
}

func (w *WeightedMinHash) updateHash(h uint32, weight float64) error {
	if err := checkSampleWeight(weight); err != nil {
		return err
	}
	if weight == 0 {
		return nil
	}
	for i, p := range w.perms {
		s := WeightedSample{
			Hash:   p.apply(h),
			Weight: weight,
			Rank:   -math.Log(p.uniform(h)) / weight,
		}
		if s.less(w.samples[i]) {
			w.samples[i] = s
		}
	}
	return nil
}

// Jaccard estimates the weighted Jaccard similarity as the fraction of slots
// won by the same hash.
func (w *WeightedMinHash) Jaccard(other *WeightedMinHash) (float64, error) {
	if err := w.compatible(other); err != nil {
		return 0, err
	}
	var eq int
	for i, s := range w.samples {
		if s.Hash == other.samples[i].Hash {
			eq++
		}
	}
	return float64(eq) / float64(len(w.samples)), nil
}

// Combine keeps, per slot, the sample with the smaller rank. Ties go to the
// smaller hash.
func (w *WeightedMinHash) Combine(other *WeightedMinHash) (*WeightedMinHash, error) {
	if err := w.compatible(other); err != nil {
		return nil, err
	}
	out := w.Clone()
	for i, s := range other.samples {
		if s.less(out.samples[i]) {
			out.samples[i] = s
		}
	}
	return out, nil
}

func (w *WeightedMinHash) compatible(other *WeightedMinHash) error {
	if len(w.samples) != len(other.samples) {
		return fmt.Errorf("%w: num_perm %d vs %d", ErrDimensionMismatch, len(w.samples), len(other.samples))
	}
	if w.seed != other.seed {
		return fmt.Errorf("%w: weighted minhash seed %d vs %d", ErrDimensionMismatch, w.seed, other.seed)
	}
	return nil
}

// Zero returns an empty signature with the same configuration.
func (w *WeightedMinHash) Zero() *WeightedMinHash {
	out := &WeightedMinHash{seed: w.seed, perms: w.perms, samples: make([]WeightedSample, len(w.samples))}
	for i := range out.samples {
		out.samples[i] = emptySample
	}
	return out
}

// IsZero reports whether no weighted item has been added.
func (w *WeightedMinHash) IsZero() bool {
	for _, s := range w.samples {
		if s.Weight != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of w.
func (w *WeightedMinHash) Clone() *WeightedMinHash {
	return &WeightedMinHash{seed: w.seed, perms: w.perms, samples: slices.Clone(w.samples)}
}

// Equal reports whether both signatures have the same seed and samples.
func (w *WeightedMinHash) Equal(other *WeightedMinHash) bool {
	return other != nil && w.seed == other.seed && slices.Equal(w.samples, other.samples)
}

// Samples returns a copy of the slots.
func (w *WeightedMinHash) Samples() []WeightedSample { return slices.Clone(w.samples) }

// NumPerm returns the signature length.
func (w *WeightedMinHash) NumPerm() int { return len(w.samples) }

// Seed returns the permutation seed.
func (w *WeightedMinHash) Seed() uint64 { return w.seed }

// String implements fmt.Stringer.
func (w *WeightedMinHash) String() string {
	return fmt.Sprintf("WeightedMinHash(num_perm=%d, seed=%d)", len(w.samples), w.seed)
}
