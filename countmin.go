package sketchy

import (
	"cmp"
	"fmt"
	"slices"
)

// ItemCount pairs an item with its (estimated or exact) frequency.
type ItemCount struct {
	Item  string
	Count uint64
}

// CountMinSketch estimates item frequencies in a stream using depth rows of
// width counters. Each row hashes the item with its own seed; the estimate is
// the minimum across rows, so it never underestimates the true count.
//
// CountMinSketch is not safe for concurrent mutation.
type CountMinSketch struct {
	width    uint32
	depth    uint32
	counters []uint64 // depth rows of width counters, row-major
	total    uint64
}

// NewCountMinSketch creates a sketch with the given shape.
func NewCountMinSketch(width, depth uint32) (*CountMinSketch, error) {
	if width == 0 {
		return nil, fmt.Errorf("%w: count-min width must be positive", ErrConfiguration)
	}
	if depth == 0 {
		return nil, fmt.Errorf("%w: count-min depth must be positive", ErrConfiguration)
	}
	return &CountMinSketch{
		width:    width,
		depth:    depth,
		counters: make([]uint64, int(width)*int(depth)),
	}, nil
}

// NewCountMinSketchWithError creates a sketch whose overestimate is at most
// epsilon times the total count with probability 1-delta.
func NewCountMinSketchWithError(epsilon, delta float64) (*CountMinSketch, error) {
	if !(epsilon > 0) {
		return nil, fmt.Errorf("%w: count-min epsilon %v must be positive", ErrConfiguration, epsilon)
	}
	if !(delta > 0 && delta < 1) {
		return nil, fmt.Errorf("%w: count-min delta %v outside (0, 1)", ErrConfiguration, delta)
	}
	width, depth := CountMinDimensions(epsilon, delta)
	return NewCountMinSketch(width, depth)
}

// Add records count occurrences of data.
func (s *CountMinSketch) Add(data []byte, count uint64) {
	for row := range s.depth {
		s.counters[s.cell(row, hash64(data, uint64(row)))] += count
	}
	s.total += count
}

// AddString records count occurrences of str without allocating.
func (s *CountMinSketch) AddString(str string, count uint64) {
	for row := range s.depth {
		s.counters[s.cell(row, hashString64(str, uint64(row)))] += count
	}
	s.total += count
}

// Estimate returns the estimated count of data. It is never below the true
// count.
func (s *CountMinSketch) Estimate(data []byte) uint64 {
	est := ^uint64(0)
	for row := range s.depth {
		est = min(est, s.counters[s.cell(row, hash64(data, uint64(row)))])
	}
	return est
}

// EstimateString is Estimate for strings.
func (s *CountMinSketch) EstimateString(str string) uint64 {
	est := ^uint64(0)
	for row := range s.depth {
		est = min(est, s.counters[s.cell(row, hashString64(str, uint64(row)))])
	}
	return est
}

func (s *CountMinSketch) cell(row uint32, h uint64) int {
	return int(row)*int(s.width) + int(h%uint64(s.width))
}

// TopEstimates returns every candidate with its estimate, highest first.
func (s *CountMinSketch) TopEstimates(candidates []string) []ItemCount {
	out := make([]ItemCount, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ItemCount{Item: c, Count: s.EstimateString(c)})
	}
	sortItemCounts(out)
	return out
}

// HeavyHitters returns the candidates whose estimate is at least threshold,
// highest first.
func (s *CountMinSketch) HeavyHitters(candidates []string, threshold uint64) []ItemCount {
	var out []ItemCount
	for _, c := range candidates {
		if est := s.EstimateString(c); est >= threshold {
			out = append(out, ItemCount{Item: c, Count: est})
		}
	}
	sortItemCounts(out)
	return out
}

// Combine returns the element-wise sum of both sketches, which must have the
// same width and depth.
func (s *CountMinSketch) Combine(other *CountMinSketch) (*CountMinSketch, error) {
	if err := s.compatible(other); err != nil {
		return nil, err
	}
	out := s.Clone()
	out.mergeCounters(other)
	return out, nil
}

// Merge folds other into s in place.
func (s *CountMinSketch) Merge(other *CountMinSketch) error {
	if err := s.compatible(other); err != nil {
		return err
	}
	s.mergeCounters(other)
	return nil
}

func (s *CountMinSketch) mergeCounters(other *CountMinSketch) {
	for i, c := range other.counters {
		s.counters[i] += c
	}
	s.total += other.total
}

func (s *CountMinSketch) compatible(other *CountMinSketch) error {
	if s.width != other.width || s.depth != other.depth {
		return fmt.Errorf("%w: count-min shape %dx%d vs %dx%d",
			ErrDimensionMismatch, s.depth, s.width, other.depth, other.width)
	}
	return nil
}

// Zero returns an empty sketch with the same shape.
func (s *CountMinSketch) Zero() *CountMinSketch {
	z, _ := NewCountMinSketch(s.width, s.depth)
	return z
}

// IsZero reports whether every counter is zero.
func (s *CountMinSketch) IsZero() bool {
	for _, c := range s.counters {
		if c != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func (s *CountMinSketch) Clone() *CountMinSketch {
	out := *s
	out.counters = slices.Clone(s.counters)
	return &out
}

// Equal reports whether both sketches have the same shape and counters.
func (s *CountMinSketch) Equal(other *CountMinSketch) bool {
	return other != nil && s.width == other.width && s.depth == other.depth &&
		slices.Equal(s.counters, other.counters)
}

// Width returns the number of counters per row.
func (s *CountMinSketch) Width() uint32 { return s.width }

// Depth returns the number of rows.
func (s *CountMinSketch) Depth() uint32 { return s.depth }

// TotalCount returns the sum of all counts added.
func (s *CountMinSketch) TotalCount() uint64 { return s.total }

// String implements fmt.Stringer.
func (s *CountMinSketch) String() string {
	return fmt.Sprintf("CountMinSketch(width=%d, depth=%d, total=%d)", s.width, s.depth, s.total)
}

// sortItemCounts orders by count descending, then item ascending.
func sortItemCounts(items []ItemCount) {
	slices.SortFunc(items, func(a, b ItemCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Item, b.Item)
	})
}
