// Package selection holds the probabilistic stages of the serving pipeline:
// pacing (per-creative Bernoulli thinning followed by top-priority filtering)
// and the final uniform pick among equal-priority survivors.
package selection

import "math/rand"

// Rand is the random source used by pacing and allocation.
// *rand.Rand satisfies it; tests inject deterministic sequences.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// globalRand defers to the locked top-level math/rand source.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) Intn(n int) int   { return rand.Intn(n) }

// DefaultRand returns a goroutine-safe source backed by math/rand.
func DefaultRand() Rand { return globalRand{} }
