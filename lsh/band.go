package lsh

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/jcalabro/sketchy"
	"github.com/zeebo/xxh3"
)

// OptimalParams returns the band count b and rows per band r, with
// b*r == numPerm, whose S-curve threshold (1/b)^(1/r) is closest to
// threshold. Ties go to the smaller r.
func OptimalParams(threshold float64, numPerm int) (b, r int) {
	b, r = 1, numPerm
	best := math.Inf(1)
	for rows := 1; rows <= numPerm; rows++ {
		if numPerm%rows != 0 {
			continue
		}
		bands := numPerm / rows
		diff := math.Abs(math.Pow(1/float64(bands), 1/float64(rows)) - threshold)
		if diff < best {
			best, b, r = diff, bands, rows
		}
	}
	return b, r
}

// hashBand hashes slots little-endian with xxh3.
func hashBand(slots []uint32) uint64 {
	buf := make([]byte, 4*len(slots))
	for i, v := range slots {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return xxh3.Hash(buf)
}

// bandIndex maps each band of a signature to a posting list of ids.
type bandIndex struct {
	b, r   int
	tables []map[uint64]*roaring.Bitmap
}

func newBandIndex(b, r int) *bandIndex {
	tables := make([]map[uint64]*roaring.Bitmap, b)
	for i := range tables {
		tables[i] = make(map[uint64]*roaring.Bitmap)
	}
	return &bandIndex{b: b, r: r, tables: tables}
}

// bandHashes returns one hash per band of values.
func (x *bandIndex) bandHashes(values []uint32) []uint64 {
	hashes := make([]uint64, x.b)
	for i := range hashes {
		hashes[i] = hashBand(values[i*x.r : (i+1)*x.r])
	}
	return hashes
}

func (x *bandIndex) add(id uint32, hashes []uint64) {
	for band, h := range hashes {
		bm, ok := x.tables[band][h]
		if !ok {
			bm = roaring.New()
			x.tables[band][h] = bm
		}
		bm.Add(id)
	}
}

// remove drops id from the buckets it was added to and prunes empty ones.
func (x *bandIndex) remove(id uint32, hashes []uint64) {
	for band, h := range hashes {
		bm, ok := x.tables[band][h]
		if !ok {
			continue
		}
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(x.tables[band], h)
		}
	}
}

// candidates unions every bucket the signature falls into.
func (x *bandIndex) candidates(values []uint32) *roaring.Bitmap {
	hits := make([]*roaring.Bitmap, 0, x.b)
	for band, h := range x.bandHashes(values) {
		if bm, ok := x.tables[band][h]; ok {
			hits = append(hits, bm)
		}
	}
	return roaring.FastOr(hits...)
}

func (x *bandIndex) bucketCounts() []int {
	counts := make([]int, x.b)
	for i, t := range x.tables {
		counts[i] = len(t)
	}
	return counts
}

func (x *bandIndex) largestBucket() uint64 {
	var largest uint64
	for _, t := range x.tables {
		for _, bm := range t {
			largest = max(largest, bm.GetCardinality())
		}
	}
	return largest
}

func checkThreshold(threshold float64) error {
	if !(threshold > 0 && threshold < 1) {
		return fmt.Errorf("%w: threshold %v outside (0, 1)", sketchy.ErrConfiguration, threshold)
	}
	return nil
}

func checkNumPerm(numPerm int) error {
	if numPerm < 1 {
		return fmt.Errorf("%w: num_perm must be at least 1, got %d", sketchy.ErrConfiguration, numPerm)
	}
	return nil
}

func checkSignature(m *sketchy.MinHash, numPerm int) error {
	if m == nil {
		return fmt.Errorf("%w: nil minhash", sketchy.ErrInvalidArgument)
	}
	if m.NumPerm() != numPerm {
		return fmt.Errorf("%w: minhash num_perm %d, index expects %d",
			sketchy.ErrDimensionMismatch, m.NumPerm(), numPerm)
	}
	return nil
}
