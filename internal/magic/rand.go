package magic

import "math/rand/v2"

// Rand is the source of randomness used by transformations. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand returns a Rand backed by the math/rand/v2 global generator,
// which is safe for concurrent use.
func DefaultRand() Rand {
	return globalRand{}
}

// NewSeededRand returns a reproducible Rand for the given seed.
func NewSeededRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
