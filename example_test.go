package sketchy_test

import (
	"context"
	"fmt"

	"github.com/jcalabro/sketchy"
)

// This example demonstrates basic bloom filter usage for membership testing.
func Example() {
	// Create a filter for 10,000 items with 1% false positive rate
	f, err := sketchy.NewBloomFilter(10_000, 0.01)
	if err != nil {
		panic(err)
	}

	f.Add([]byte("apple"))
	f.Add([]byte("banana"))
	f.AddString("cherry")

	fmt.Println("apple:", f.Contains([]byte("apple")))
	fmt.Println("cherry:", f.ContainsString("cherry"))

	// Output:
	// apple: true
	// cherry: true
}

// This example counts distinct visitors and ships the sketch as text.
func ExampleHyperLogLog() {
	h, err := sketchy.NewHyperLogLog(14)
	if err != nil {
		panic(err)
	}
	for i := range 1000 {
		h.AddString(fmt.Sprintf("visitor-%d", i%100))
	}

	wire := h.ToMagicString()
	restored, err := sketchy.FromMagicString(wire)
	if err != nil {
		panic(err)
	}

	fmt.Println("same sketch:", h.Equal(restored))
	fmt.Println("close to 100:", within(restored.Cardinality(), 100, 0.05))

	// Output:
	// same sketch: true
	// close to 100: true
}

// This example merges per-worker sketches at a reduce barrier.
func ExampleReduceParallel() {
	workers := make([]*sketchy.CountMinSketch, 4)
	for w := range workers {
		s, err := sketchy.NewCountMinSketchWithError(0.001, 0.01)
		if err != nil {
			panic(err)
		}
		s.AddString("GET /", uint64(10*(w+1)))
		workers[w] = s
	}

	total, err := sketchy.ReduceParallel(context.Background(), workers)
	if err != nil {
		panic(err)
	}
	fmt.Println("GET / >= 100:", total.EstimateString("GET /") >= 100)
	fmt.Println("total:", total.TotalCount())

	// Output:
	// GET / >= 100: true
	// total: 100
}

// This example tracks the most frequent items of a stream.
func ExampleTopK() {
	tk, err := sketchy.NewTopK(2)
	if err != nil {
		panic(err)
	}
	for _, word := range []string{"go", "rust", "go", "zig", "go", "rust"} {
		tk.Add(word, 1)
	}

	for _, ic := range tk.Top(0) {
		fmt.Println(ic.Item, ic.Count)
	}

	// Output:
	// go 3
	// rust 2
}

// This example estimates latency percentiles.
func ExampleTDigest() {
	td, err := sketchy.NewTDigest(sketchy.DefaultCompression)
	if err != nil {
		panic(err)
	}
	for ms := 1; ms <= 50; ms++ {
		td.Add(float64(ms))
	}

	p0, _ := td.Quantile(0)
	p100, _ := td.Quantile(1)
	fmt.Println("min:", p0)
	fmt.Println("max:", p100)

	// Output:
	// min: 1
	// max: 50
}

// This example estimates the similarity of two documents.
func ExampleMinHash() {
	a, err := sketchy.NewMinHash(sketchy.DefaultNumPerm, sketchy.DefaultMinHashSeed)
	if err != nil {
		panic(err)
	}
	b := a.Zero()

	a.UpdateStrings("the", "quick", "brown", "fox")
	b.UpdateStrings("fox", "brown", "quick", "the")

	j, err := a.Jaccard(b)
	if err != nil {
		panic(err)
	}
	fmt.Println("jaccard:", j)

	// Output:
	// jaccard: 1
}

func within(got, want uint64, eps float64) bool {
	d := float64(got) - float64(want)
	return d <= eps*float64(want) && -d <= eps*float64(want)
}
