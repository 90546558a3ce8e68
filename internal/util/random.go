// Package util provides utility functions for the UltimateBot application.
package util

import (
	"math/rand/v2"
)

// RandomSource picks a uniform integer in [0, n). It panics if n <= 0, like math/rand/v2.
// *rand.Rand satisfies it, so tests can inject a seeded generator.
type RandomSource interface {
	IntN(n int) int
}

// globalSource uses the process-wide math/rand/v2 generator.
type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n)
}

// DefaultRandomSource returns a RandomSource backed by the process-wide generator.
func DefaultRandomSource() RandomSource {
	return globalSource{}
}

// NewSeededRandomSource returns a deterministic RandomSource for reproducible selection.
func NewSeededRandomSource(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Choose returns a uniformly selected element of items using src.
// The second result is false when items is empty.
func Choose[T any](src RandomSource, items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	if src == nil {
		src = globalSource{}
	}
	return items[src.IntN(len(items))], true
}
