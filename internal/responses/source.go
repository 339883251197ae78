package responses

import (
	"math/rand/v2"
	"sync"
)

// Source supplies the randomness used by a Generator.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Intn returns a uniform int in [0, n). n > 0.
	Intn(n int) int
}

type globalSource struct{}

func (globalSource) Intn(n int) int {
	return rand.IntN(n)
}

// DefaultSource returns the auto-seeded process-wide source.
func DefaultSource() Source {
	return globalSource{}
}

type seededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource returns a reproducible source for previews and tests.
func NewSeededSource(seed uint64) Source {
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
