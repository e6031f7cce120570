// Package sketchy provides bounded-memory probabilistic sketches for Go.
//
// A sketch answers a question about a stream (how many distinct items, was
// this item seen, how often, which are the most frequent, what is the p99,
// how similar are two sets) in memory that does not grow with the stream.
// Answers are approximate with known error bounds.
//
// # Sketches
//
// [HyperLogLog] estimates cardinality with relative error 1.04/sqrt(2^p).
//
// [BloomFilter] tests set membership. False positives are possible, false
// negatives are not.
//
// [CountMinSketch] estimates item frequencies. Estimates never fall below the
// true count.
//
// [TopK] tracks the most frequent items of a stream.
//
// [TDigest] estimates quantiles, and is most accurate at the tails.
//
// [MinHash] and [WeightedMinHash] produce fixed-length signatures whose slot
// agreement estimates Jaccard similarity of (weighted) sets.
//
// Similarity indexes built on top of these live in sub-packages: package lsh
// provides MinHash LSH, LSH Forest and LSH Ensemble, and package hnsw provides
// an approximate nearest-neighbour graph.
//
// # Merging
//
// Every sketch implements [Monoid]: Combine merges two equally configured
// sketches without mutating either, and Zero returns the identity. The usual
// pattern for concurrent producers is one sketch per goroutine, merged at the
// end with [Sum] or [ReduceParallel]:
//
//	parts := make([]*sketchy.HyperLogLog, workers)
//	// ... each worker fills parts[i] ...
//	total, err := sketchy.ReduceParallel(ctx, parts)
//
// Combining differently configured sketches fails with [ErrDimensionMismatch].
//
// # Choosing Parameters
//
// Constructors take the structure's natural parameters and validate them:
//
//	// Bloom filter for 1 million items with 1% false positive rate
//	f, err := sketchy.NewBloomFilter(1_000_000, 0.01)
//
//	// Count-min sketch overestimating by at most 0.1% of the total,
//	// with 99% probability
//	cms, err := sketchy.NewCountMinSketchWithError(0.001, 0.01)
//
// [OptimalBloomParams] and [CountMinDimensions] expose the sizing formulas.
//
// # Hashing
//
// All items are hashed with xxh3. Every Add has a string variant (AddString,
// UpdateString, ...) that avoids converting to []byte.
//
// # Thread Safety
//
// No sketch is safe for concurrent mutation. Reads are safe only while no
// writer is active. [TDigest] flushes its buffer on read and must not be read
// concurrently either.
//
// # Serialization
//
// [HyperLogLog] has a stable wire format: one precision byte followed by one
// byte per register, optionally base64-encoded behind the "%%%" marker (see
// [HyperLogLog.ToMagicString]). [BloomFilter] implements
// [encoding.BinaryMarshaler].
//
// # References
//
//   - HyperLogLog: http://algo.inria.fr/flajolet/Publications/FlFuGaMe07.pdf
//   - Less Hashing, Same Performance: https://www.eecs.harvard.edu/~michaelm/postscripts/rsa2008.pdf
//   - Count-Min Sketch: http://dimacs.rutgers.edu/~graham/pubs/papers/cm-full.pdf
//   - t-digest: https://arxiv.org/abs/1902.04023
//   - Consistent Weighted Sampling: https://research.google/pubs/pub36928/
package sketchy
