package hnsw

import (
	"math"

	"github.com/viterin/vek/vek32"
	"gonum.org/v1/gonum/floats"
)

// DistanceFunc returns the distance between two vectors. Smaller is closer.
// It must be safe for concurrent use.
type DistanceFunc[V any] func(a, b V) float64

// Euclidean is the L2 distance.
func Euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// SquaredEuclidean is the squared L2 distance. It ranks like Euclidean
// without the square root.
func SquaredEuclidean(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// Manhattan is the L1 distance.
func Manhattan(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// Cosine is 1 minus the cosine similarity. A zero vector is at distance 1
// from everything.
func Cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}

// EuclideanFloat32 is the L2 distance over float32 vectors.
func EuclideanFloat32(a, b []float32) float64 {
	return float64(vek32.Distance(a, b))
}

// CosineFloat32 is Cosine over float32 vectors.
func CosineFloat32(a, b []float32) float64 {
	na := math.Sqrt(float64(vek32.Dot(a, a)))
	nb := math.Sqrt(float64(vek32.Dot(b, b)))
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - float64(vek32.Dot(a, b))/(na*nb)
}

// InnerProductFloat32 is the negated dot product, for normalized embeddings
// where a larger dot product means more similar.
func InnerProductFloat32(a, b []float32) float64 {
	return -float64(vek32.Dot(a, b))
}
