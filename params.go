package sketchy

import "math"

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014

	// MinPrecision and MaxPrecision bound the HyperLogLog precision.
	MinPrecision = 4
	MaxPrecision = 16
)

// OptimalBloomParams calculates the bloom filter size in bits and the number
// of hash rounds for n expected items at false positive rate p.
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = ceil((m / n) * ln(2))
//
// The inputs are not validated; [NewBloomFilter] rejects out-of-range values.
func OptimalBloomParams(n uint64, p float64) (m uint64, k uint32) {
	m = uint64(math.Ceil(-float64(n) * math.Log(p) / ln2Squared))
	m = max(m, 1)
	k = uint32(math.Ceil(float64(m) / float64(n) * ln2))
	k = max(k, 1)
	return m, k
}

// EstimateFalsePositiveRate estimates the false positive rate of a bloom
// filter with m bits and k hash rounds after n insertions.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(m uint64, k uint32, n uint64) float64 {
	if m == 0 || n == 0 {
		return 0
	}
	kf := float64(k)
	return math.Pow(1-math.Exp(-kf*float64(n)/float64(m)), kf)
}

// CountMinDimensions returns the count-min sketch shape that bounds the
// overestimate by epsilon*N with probability 1-delta.
//
//	width = ceil(e / epsilon)
//	depth = ceil(ln(1 / delta))
func CountMinDimensions(epsilon, delta float64) (width, depth uint32) {
	width = uint32(math.Ceil(math.E / epsilon))
	depth = uint32(math.Ceil(math.Log(1 / delta)))
	return max(width, 1), max(depth, 1)
}

// hllAlpha returns the bias correction constant for m registers.
func hllAlpha(m int) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	}
	return 0.7213 / (1 + 1.079/float64(m))
}

// HyperLogLogStandardError returns the relative standard error 1.04/sqrt(m)
// for the given precision.
func HyperLogLogStandardError(precision uint8) float64 {
	return 1.04 / math.Sqrt(float64(uint64(1)<<precision))
}
