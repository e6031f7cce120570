package sketchy

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomFilterBasic(t *testing.T) {
	f, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)

	f.Add([]byte("hello"))
	f.Add([]byte("world"))
	f.AddString("foo")

	assert.True(t, f.Contains([]byte("hello")))
	assert.True(t, f.Contains([]byte("world")))
	assert.True(t, f.ContainsString("foo"))
	assert.True(t, f.ContainsString("hello"), "string and byte paths must agree")
	assert.Equal(t, uint64(3), f.Count())
}

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	f, err := NewBloomFilter(5000, 0.001)
	require.NoError(t, err)

	// Overfill so saturation is part of the check.
	for i := range 20_000 {
		f.AddString(fmt.Sprintf("item-%d", i))
	}
	for i := range 20_000 {
		require.True(t, f.ContainsString(fmt.Sprintf("item-%d", i)), "item-%d missing", i)
	}
}

func TestBloomFilterFalsePositiveRate(t *testing.T) {
	expectedItems := uint64(10000)
	targetFPRate := 0.01

	f, err := NewBloomFilter(expectedItems, targetFPRate)
	require.NoError(t, err)
	for i := range expectedItems {
		f.Add(fmt.Appendf(nil, "item-%d", i))
	}

	const probes = 10000
	var falsePositives int
	for i := range probes {
		if f.Contains(fmt.Appendf(nil, "notitem-%d", i)) {
			falsePositives++
		}
	}
	actual := float64(falsePositives) / probes

	// Allow 2x margin for statistical variance
	assert.LessOrEqual(t, actual, targetFPRate*2)
	assert.InDelta(t, targetFPRate, f.ExpectedFPR(), targetFPRate)
	assert.InDelta(t, targetFPRate, f.EstimatedFalsePositiveRate(), targetFPRate)
	t.Logf("FP rate: %.4f (target: %.4f, k=%d, m=%d)", actual, targetFPRate, f.K(), f.Cap())
}

func TestBloomFilterTestAndAdd(t *testing.T) {
	f, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)

	assert.False(t, f.TestAndAdd([]byte("test")), "new item reported present")
	assert.True(t, f.TestAndAdd([]byte("test")), "added item reported absent")
}

func TestBloomFilterClear(t *testing.T) {
	f, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)

	f.AddString("a")
	require.False(t, f.IsZero())

	f.Clear()
	assert.True(t, f.IsZero())
	assert.False(t, f.ContainsString("a"))
	assert.Zero(t, f.Count())
	assert.Zero(t, f.Saturation())
}

func TestBloomFilterSizing(t *testing.T) {
	f, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)

	// m = ceil(-1000 ln 0.01 / ln^2 2) = 9586, k = ceil(9.586 ln 2) = 7
	assert.Equal(t, uint64(9586), f.Cap())
	assert.Equal(t, uint32(7), f.K())
	assert.Equal(t, uint64(1000), f.Capacity())
	assert.Equal(t, 0.01, f.ErrorRate())
}

func TestBloomFilterInvalidConfig(t *testing.T) {
	_, err := NewBloomFilter(0, 0.01)
	assert.ErrorIs(t, err, ErrConfiguration)

	for _, p := range []float64{0, 1, -0.5, 2, math.NaN()} {
		_, err := NewBloomFilter(100, p)
		assert.ErrorIs(t, err, ErrConfiguration, "error rate %v", p)
	}
}

func TestBloomFilterCombine(t *testing.T) {
	a, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)
	b := a.Zero()

	a.AddString("left")
	b.AddString("right")

	u, err := a.Combine(b)
	require.NoError(t, err)
	assert.True(t, u.ContainsString("left"))
	assert.True(t, u.ContainsString("right"))
	assert.False(t, a.ContainsString("right"), "combine mutated its receiver")

	require.NoError(t, a.Merge(b))
	assert.True(t, a.Equal(u))
}

func TestBloomFilterCombineMismatch(t *testing.T) {
	a, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)
	b, err := NewBloomFilter(2000, 0.01)
	require.NoError(t, err)

	_, err = a.Combine(b)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, a.Merge(b), ErrDimensionMismatch)
}

func TestBloomFilterSaturation(t *testing.T) {
	f, err := NewBloomFilter(100, 0.01)
	require.NoError(t, err)
	assert.Zero(t, f.Saturation())
	assert.Zero(t, f.ExpectedFPR())

	for i := range 100 {
		f.AddString(fmt.Sprint(i))
	}
	// A filter at capacity with optimal k is about half full.
	assert.InDelta(t, 0.5, f.Saturation(), 0.1)
}

func TestBloomFilterFromItems(t *testing.T) {
	items := []string{"a", "b", "c"}
	f, err := NewBloomFilterFromItems(items, 0, 0.01)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), f.Capacity())
	for _, item := range items {
		assert.True(t, f.ContainsString(item))
	}
}

func TestOptimalBloomParams(t *testing.T) {
	tests := []struct {
		n     uint64
		p     float64
		wantM uint64
		wantK uint32
	}{
		{1000, 0.01, 9586, 7},
		{1, 0.5, 2, 2},
	}
	for _, tt := range tests {
		m, k := OptimalBloomParams(tt.n, tt.p)
		assert.Equal(t, tt.wantM, m, "n=%d p=%v", tt.n, tt.p)
		assert.Equal(t, tt.wantK, k, "n=%d p=%v", tt.n, tt.p)
	}
}

func TestEstimateFalsePositiveRate(t *testing.T) {
	assert.Zero(t, EstimateFalsePositiveRate(0, 7, 100))
	assert.Zero(t, EstimateFalsePositiveRate(9586, 7, 0))
	assert.InDelta(t, 0.01, EstimateFalsePositiveRate(9586, 7, 1000), 0.001)
}
