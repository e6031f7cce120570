// Package rng provides a small seeded pseudo-random source that structures own
// per instance, so identical seeds reproduce identical structures.
package rng

import "math/rand/v2"

var _ rand.Source = (*SplitMix64)(nil)

const (
	golden = 0x9e3779b97f4a7c15
	mul1   = 0xbf58476d1ce4e5b9
	mul2   = 0x94d049bb133111eb
)

// SplitMix64 is a splitmix64 generator. It is not safe for concurrent use.
type SplitMix64 struct {
	state uint64
}

// New returns a generator seeded with seed.
func New(seed uint64) *SplitMix64 {
	return &SplitMix64{state: seed}
}

// Uint64 returns the next value in the sequence.
func (s *SplitMix64) Uint64() uint64 {
	s.state += golden
	return Mix(s.state)
}

// Mix is the splitmix64 finalizer. It is a bijection on uint64.
func Mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * mul1
	z = (z ^ (z >> 27)) * mul2
	return z ^ (z >> 31)
}
