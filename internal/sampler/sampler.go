// Package sampler provides the uniform random fallback generator used when
// the optimization engine is unavailable. Rows are drawn independently and
// uniformly from each parameter's domain; no history is consulted.
package sampler

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/tunex-app/tunex/internal/domain"
)

// Sampler draws uniform rows from a parameter space. Safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a sampler seeded for reproducible draws. Pass a fixed seed in
// tests; production callers seed from the config or the clock.
func New(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample draws n independent rows from the space. The space must already be
// validated; an unsupported kind is a programming error and fails loudly.
func (s *Sampler) Sample(space domain.ParameterSpace, n int) ([]domain.Row, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]domain.Row, n)
	for i := range rows {
		row := make(domain.Row, len(space.Parameters))
		for _, p := range space.Parameters {
			v, err := s.draw(p)
			if err != nil {
				return nil, err
			}
			row[p.Name] = v
		}
		rows[i] = row
	}
	return rows, nil
}

func (s *Sampler) draw(p domain.Parameter) (any, error) {
	switch p.Kind {
	case domain.KindContinuous:
		return p.Low + s.rng.Float64()*(p.High-p.Low), nil
	case domain.KindDiscreteRegular:
		steps := int(math.Floor((p.High-p.Low)/p.Step)) + 1
		return p.Low + float64(s.rng.Intn(steps))*p.Step, nil
	case domain.KindDiscreteIrregular:
		return p.Levels[s.rng.Intn(len(p.Levels))], nil
	case domain.KindCategorical:
		return p.Categories[s.rng.Intn(len(p.Categories))], nil
	case domain.KindFixed:
		return p.FixedValue, nil
	case domain.KindSubstance:
		return p.Smiles[s.rng.Intn(len(p.Smiles))], nil
	default:
		return nil, fmt.Errorf("cannot sample parameter %q of kind %q", p.Name, p.Kind)
	}
}
