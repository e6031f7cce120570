package benchmarks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	bab "github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
	atomicbloom "github.com/ericvolp12/atomic-bloom"
	"github.com/greatroar/blobloom"
	"github.com/jcalabro/sketchy"
	"github.com/jcalabro/sketchy/hnsw"
	"github.com/jcalabro/sketchy/lsh"
)

const (
	benchItems  = 1_000_000
	benchFPRate = 0.01
)

// Pre-generate test data to avoid measuring string generation
var testKeys [][]byte
var testKeysStr []string

func init() {
	testKeys = make([][]byte, benchItems)
	testKeysStr = make([]string, benchItems)
	for i := range benchItems {
		s := fmt.Sprintf("key-%d", i)
		testKeys[i] = []byte(s)
		testKeysStr[i] = s
	}
}

func newBloom(b *testing.B, n uint64) *sketchy.BloomFilter {
	b.Helper()
	f, err := sketchy.NewBloomFilter(n, benchFPRate)
	if err != nil {
		b.Fatal(err)
	}
	return f
}

// ============================================================================
// Bloom Filter: Sequential Add
// ============================================================================

func BenchmarkBloomAdd_Sketchy(b *testing.B) {
	f := newBloom(b, benchItems)
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkBloomAdd_SketchyString(b *testing.B) {
	f := newBloom(b, benchItems)
	b.ResetTimer()
	for i := range b.N {
		f.AddString(testKeysStr[i%benchItems])
	}
}

func BenchmarkBloomAdd_BitsAndBlooms(b *testing.B) {
	f := bab.NewWithEstimates(benchItems, benchFPRate)
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkBloomAdd_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkBloomAdd_Blobloom(b *testing.B) {
	f := blobloom.NewOptimized(blobloom.Config{
		Capacity: benchItems,
		FPRate:   benchFPRate,
	})
	b.ResetTimer()
	for i := range b.N {
		// blobloom requires pre-hashing
		f.Add(xxhash.Sum64(testKeys[i%benchItems]))
	}
}

// ============================================================================
// Bloom Filter: Sequential Contains
// ============================================================================

func BenchmarkBloomContains_Sketchy(b *testing.B) {
	f := newBloom(b, benchItems)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Contains(testKeys[i%benchItems])
	}
}

func BenchmarkBloomContains_SketchyString(b *testing.B) {
	f := newBloom(b, benchItems)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.ContainsString(testKeysStr[i%benchItems])
	}
}

func BenchmarkBloomContains_BitsAndBlooms(b *testing.B) {
	f := bab.NewWithEstimates(benchItems, benchFPRate)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Test(testKeys[i%benchItems])
	}
}

func BenchmarkBloomContains_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Test(testKeys[i%benchItems])
	}
}

func BenchmarkBloomContains_Blobloom(b *testing.B) {
	f := blobloom.NewOptimized(blobloom.Config{
		Capacity: benchItems,
		FPRate:   benchFPRate,
	})
	// Pre-hash keys for fair comparison
	hashes := make([]uint64, benchItems)
	for i := range benchItems {
		hashes[i] = xxhash.Sum64(testKeys[i])
		f.Add(hashes[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Has(hashes[i%benchItems])
	}
}

func BenchmarkBloomAddAlloc_Sketchy(b *testing.B) {
	f := newBloom(b, benchItems)
	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

// ============================================================================
// Concurrent producers
//
// Sketches are single writer. The two sketchy strategies below are one
// filter per producer merged at the end, and one filter behind a mutex.
// atomic-bloom is a shared lock-free filter for comparison.
// ============================================================================

const (
	producers        = 8
	itemsPerProducer = 100_000
)

func BenchmarkProducers_SketchyMerge(b *testing.B) {
	ctx := context.Background()
	b.ResetTimer()
	for range b.N {
		parts := make([]*sketchy.BloomFilter, producers)
		var wg sync.WaitGroup
		for g := range producers {
			parts[g] = newBloom(b, producers*itemsPerProducer)
			wg.Add(1)
			go func() {
				defer wg.Done()
				base := g * itemsPerProducer
				for i := range itemsPerProducer {
					parts[g].Add(testKeys[(base+i)%benchItems])
				}
			}()
		}
		wg.Wait()
		if _, err := sketchy.ReduceParallel(ctx, parts); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(producers*itemsPerProducer), "items/op")
}

func BenchmarkProducers_SketchyMutex(b *testing.B) {
	b.ResetTimer()
	for range b.N {
		f := newBloom(b, producers*itemsPerProducer)
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for g := range producers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				base := g * itemsPerProducer
				for i := range itemsPerProducer {
					mu.Lock()
					f.Add(testKeys[(base+i)%benchItems])
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}
	b.ReportMetric(float64(producers*itemsPerProducer), "items/op")
}

func BenchmarkProducers_AtomicBloom(b *testing.B) {
	b.ResetTimer()
	for range b.N {
		f := atomicbloom.NewWithEstimates(producers*itemsPerProducer, benchFPRate)
		var wg sync.WaitGroup
		for g := range producers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				base := g * itemsPerProducer
				for i := range itemsPerProducer {
					f.Add(testKeys[(base+i)%benchItems])
				}
			}()
		}
		wg.Wait()
	}
	b.ReportMetric(float64(producers*itemsPerProducer), "items/op")
}

// ============================================================================
// Other sketches
// ============================================================================

func BenchmarkHyperLogLogAdd(b *testing.B) {
	h, err := sketchy.NewHyperLogLog(14)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := range b.N {
		h.Add(testKeys[i%benchItems])
	}
}

func BenchmarkHyperLogLogCardinality(b *testing.B) {
	h, err := sketchy.NewHyperLogLog(14)
	if err != nil {
		b.Fatal(err)
	}
	for i := range benchItems {
		h.Add(testKeys[i])
	}
	b.ResetTimer()
	for range b.N {
		h.Cardinality()
	}
}

func BenchmarkCountMinAdd(b *testing.B) {
	s, err := sketchy.NewCountMinSketchWithError(0.001, 0.01)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := range b.N {
		s.Add(testKeys[i%benchItems], 1)
	}
}

func BenchmarkTDigestAdd(b *testing.B) {
	d, err := sketchy.NewTDigest(sketchy.DefaultCompression)
	if err != nil {
		b.Fatal(err)
	}
	r := rand.New(rand.NewPCG(1, 1))
	b.ResetTimer()
	for range b.N {
		d.Add(r.NormFloat64())
	}
}

func BenchmarkMinHashUpdate(b *testing.B) {
	m, err := sketchy.NewMinHash(sketchy.DefaultNumPerm, sketchy.DefaultMinHashSeed)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := range b.N {
		m.Update(testKeys[i%benchItems])
	}
}

// ============================================================================
// Indexes
// ============================================================================

func signatures(b *testing.B, n, setSize int) []*sketchy.MinHash {
	b.Helper()
	out := make([]*sketchy.MinHash, n)
	for i := range out {
		m, err := sketchy.NewMinHash(sketchy.DefaultNumPerm, sketchy.DefaultMinHashSeed)
		if err != nil {
			b.Fatal(err)
		}
		for j := range setSize {
			m.UpdateString(testKeysStr[(i*setSize/2+j)%benchItems])
		}
		out[i] = m
	}
	return out
}

func BenchmarkMinHashLSHQuery(b *testing.B) {
	sigs := signatures(b, 10_000, 50)
	l, err := lsh.New[int](0.5, sketchy.DefaultNumPerm)
	if err != nil {
		b.Fatal(err)
	}
	for i, m := range sigs {
		if err := l.Insert(i, m); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := range b.N {
		if _, err := l.Query(sigs[i%len(sigs)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkForestQuery(b *testing.B) {
	sigs := signatures(b, 10_000, 50)
	f, err := lsh.NewForest[int](sketchy.DefaultNumPerm)
	if err != nil {
		b.Fatal(err)
	}
	for i, m := range sigs {
		if err := f.Insert(i, m); err != nil {
			b.Fatal(err)
		}
	}
	if err := f.Index(); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := range b.N {
		if _, err := f.Query(sigs[i%len(sigs)], 10); err != nil {
			b.Fatal(err)
		}
	}
}

func randomVectors(n, dim int) [][]float32 {
	r := rand.New(rand.NewPCG(1, 2))
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		for j := range out[i] {
			out[i][j] = r.Float32()
		}
	}
	return out
}

func BenchmarkHNSWInsert(b *testing.B) {
	vectors := randomVectors(b.N, 32)
	g, err := hnsw.New[int](hnsw.EuclideanFloat32)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := range b.N {
		if err := g.Insert(i, vectors[i]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHNSWSearch(b *testing.B) {
	vectors := randomVectors(10_000, 32)
	g, err := hnsw.New[int](hnsw.EuclideanFloat32)
	if err != nil {
		b.Fatal(err)
	}
	for i, v := range vectors {
		if err := g.Insert(i, v); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := range b.N {
		if _, err := g.Search(vectors[i%len(vectors)], 10); err != nil {
			b.Fatal(err)
		}
	}
}
