package sketchy

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// DefaultCompression is the TDigest compression used by most callers.
const DefaultCompression = 100

// Centroid is a cluster of values summarised by their mean and total weight.
type Centroid struct {
	Mean   float64
	Weight float64
}

// TDigest estimates quantiles of a stream of float64 values. Values are
// buffered and periodically compressed into centroids whose size shrinks
// towards the tails, so extreme quantiles stay accurate.
//
// Reads flush the buffer, so TDigest is not safe for concurrent use, even for
// queries.
type TDigest struct {
	compression int
	centroids   []Centroid // sorted by mean
	buffer      []Centroid
	count       float64
}

// NewTDigest creates an empty digest. Larger compression keeps more centroids
// and gives better accuracy.
func NewTDigest(compression int) (*TDigest, error) {
	if compression <= 0 {
		return nil, fmt.Errorf("%w: tdigest compression must be positive, got %d", ErrConfiguration, compression)
	}
	return &TDigest{compression: compression}, nil
}

// NewTDigestFromCentroids creates a digest from previously exported
// centroids.
func NewTDigestFromCentroids(compression int, centroids []Centroid) (*TDigest, error) {
	td, err := NewTDigest(compression)
	if err != nil {
		return nil, err
	}
	for _, c := range centroids {
		if !validWeight(c.Weight) || math.IsNaN(c.Mean) {
			return nil, fmt.Errorf("%w: invalid centroid %+v", ErrInvalidArgument, c)
		}
	}
	td.centroids = slices.Clone(centroids)
	slices.SortStableFunc(td.centroids, byMean)
	for _, c := range td.centroids {
		td.count += c.Weight
	}
	return td, nil
}

// Add records value with weight 1. NaN values are ignored.
func (td *TDigest) Add(value float64) {
	if math.IsNaN(value) {
		return
	}
	td.add(value, 1)
}

// AddWeighted records value with the given positive weight.
func (td *TDigest) AddWeighted(value, weight float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("%w: tdigest value is NaN", ErrInvalidArgument)
	}
	if !validWeight(weight) {
		return fmt.Errorf("%w: tdigest weight %v must be positive and finite", ErrInvalidArgument, weight)
	}
	td.add(value, weight)
	return nil
}

func (td *TDigest) add(value, weight float64) {
	td.buffer = append(td.buffer, Centroid{Mean: value, Weight: weight})
	td.count += weight
	if len(td.buffer) >= td.compression {
		td.compress()
	}
}

// Quantile estimates the value at quantile q in [0, 1].
func (td *TDigest) Quantile(q float64) (float64, error) {
	if !(q >= 0 && q <= 1) {
		return 0, fmt.Errorf("%w: quantile %v outside [0, 1]", ErrInvalidArgument, q)
	}
	if td.count == 0 {
		return 0, fmt.Errorf("%w: quantile of empty digest", ErrState)
	}
	td.compress()

	cs := td.centroids
	if len(cs) == 1 {
		return cs[0].Mean, nil
	}

	index := q * td.count
	var cum float64
	for i, c := range cs {
		cum += c.Weight
		if cum < index {
			continue
		}
		if i == 0 {
			return c.Mean, nil
		}
		prev := cs[i-1]
		frac := (index - (cum - c.Weight)) / c.Weight
		return prev.Mean + frac*(c.Mean-prev.Mean), nil
	}
	return cs[len(cs)-1].Mean, nil
}

// Percentile estimates the value at percentile p in [0, 100].
func (td *TDigest) Percentile(p float64) (float64, error) {
	return td.Quantile(p / 100)
}

// CDF estimates the fraction of recorded values that are <= x. An empty
// digest returns 0.
func (td *TDigest) CDF(x float64) float64 {
	if td.count == 0 {
		return 0
	}
	td.compress()

	cs := td.centroids
	if x < cs[0].Mean {
		return 0
	}
	if x > cs[len(cs)-1].Mean {
		return 1
	}

	var cum float64
	for i, c := range cs {
		if c.Mean > x {
			prev := cs[i-1]
			frac := 0.5
			if c.Mean != prev.Mean {
				frac = (x - prev.Mean) / (c.Mean - prev.Mean)
			}
			lo := cum - prev.Weight/2
			return (lo + frac*(prev.Weight+c.Weight)/2) / td.count
		}
		cum += c.Weight
	}
	return cum / td.count
}

// Min returns the smallest recorded value.
func (td *TDigest) Min() (float64, error) {
	if td.count == 0 {
		return 0, fmt.Errorf("%w: min of empty digest", ErrState)
	}
	td.compress()
	return td.centroids[0].Mean, nil
}

// Max returns the largest recorded value.
func (td *TDigest) Max() (float64, error) {
	if td.count == 0 {
		return 0, fmt.Errorf("%w: max of empty digest", ErrState)
	}
	td.compress()
	return td.centroids[len(td.centroids)-1].Mean, nil
}

// Count returns the total recorded weight.
func (td *TDigest) Count() float64 { return td.count }

// Compression returns the compression parameter.
func (td *TDigest) Compression() int { return td.compression }

// Centroids returns a copy of the compressed centroids, sorted by mean.
func (td *TDigest) Centroids() []Centroid {
	td.compress()
	return slices.Clone(td.centroids)
}

// Combine returns a digest holding the centroids of both operands. Its
// compression is the average of the two.
func (td *TDigest) Combine(other *TDigest) (*TDigest, error) {
	out := &TDigest{compression: max(1, (td.compression+other.compression)/2)}
	all := make([]Centroid, 0, len(td.centroids)+len(other.centroids)+len(td.buffer)+len(other.buffer))
	all = append(all, td.centroids...)
	all = append(all, other.centroids...)
	all = append(all, td.buffer...)
	all = append(all, other.buffer...)
	for _, c := range all {
		out.count += c.Weight
	}
	out.buffer = all
	out.compress()
	return out, nil
}

// Zero returns an empty digest with the same compression.
func (td *TDigest) Zero() *TDigest {
	return &TDigest{compression: td.compression}
}

// IsZero reports whether nothing has been recorded.
func (td *TDigest) IsZero() bool { return td.count == 0 }

// Equal reports whether both digests compress to the same centroids within a
// tolerance of 1e-9.
func (td *TDigest) Equal(other *TDigest) bool {
	if other == nil {
		return false
	}
	td.compress()
	other.compress()
	return slices.EqualFunc(td.centroids, other.centroids, func(a, b Centroid) bool {
		return math.Abs(a.Mean-b.Mean) <= 1e-9 && math.Abs(a.Weight-b.Weight) <= 1e-9
	})
}

// String implements fmt.Stringer.
func (td *TDigest) String() string {
	return fmt.Sprintf("TDigest(compression=%d, centroids=%d, count=%.0f)",
		td.compression, len(td.centroids), td.count)
}

// compress merges the buffer into the centroids. While the total stays within
// compression every value keeps its own centroid; beyond that neighbouring
// centroids merge while their weight fits the scale bound at their quantile.
func (td *TDigest) compress() {
	if len(td.buffer) == 0 {
		return
	}

	all := append(td.centroids, td.buffer...)
	td.buffer = nil
	slices.SortStableFunc(all, byMean)
	if len(all) <= td.compression {
		td.centroids = all
		return
	}

	merged := make([]Centroid, 0, td.compression)
	cur := all[0]
	var before float64 // weight of centroids already emitted
	for _, c := range all[1:] {
		q := (before + cur.Weight/2) / td.count
		limit := td.count * tdigestScale(q) / float64(td.compression)
		if cur.Weight+c.Weight <= limit {
			w := cur.Weight + c.Weight
			cur = Centroid{Mean: (cur.Mean*cur.Weight + c.Mean*c.Weight) / w, Weight: w}
			continue
		}
		merged = append(merged, cur)
		before += cur.Weight
		cur = c
	}
	td.centroids = append(merged, cur)
}

// tdigestScale is small at the tails and peaks at the median.
func tdigestScale(q float64) float64 {
	return 4*q*(1-q) + 0.01
}

func byMean(a, b Centroid) int {
	return cmp.Compare(a.Mean, b.Mean)
}

func validWeight(w float64) bool {
	return w > 0 && !math.IsInf(w, 0)
}

// EstimateQuantiles builds a digest from values and estimates each quantile.
func EstimateQuantiles(values []float64, quantiles []float64, compression int) ([]float64, error) {
	td, err := NewTDigest(compression)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		td.Add(v)
	}
	out := make([]float64, len(quantiles))
	for i, q := range quantiles {
		if out[i], err = td.Quantile(q); err != nil {
			return nil, err
		}
	}
	return out, nil
}
