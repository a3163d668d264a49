package royale

import (
	"math/rand/v2"
	"sync"
)

// Rand is the random source used for timeout moves.
type Rand interface {
	IntN(n int) int
}

// LockedRand is a PCG source safe for concurrent use.
type LockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a seeded source. A zero seed draws one at random.
func NewRand(seed uint64) *LockedRand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &LockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// IntN returns a uniform value in [0, n).
func (l *LockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
