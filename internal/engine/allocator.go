package engine

import (
	"fmt"
	"math"
)

// Split is the fractional division of the winners' pool across the three
// ranks. Fractions must sum to 1.
type Split struct {
	First  float64 `json:"first"`
	Second float64 `json:"second"`
	Third  float64 `json:"third"`
}

// DefaultSplit is the production 80/15/5 split.
func DefaultSplit() Split {
	return Split{First: 0.80, Second: 0.15, Third: 0.05}
}

// Validate rejects splits that do not sum to 1 or contain negative shares.
func (s Split) Validate() error {
	if s.First < 0 || s.Second < 0 || s.Third < 0 {
		return fmt.Errorf("split contains negative fraction: %+v", s)
	}
	if sum := s.First + s.Second + s.Third; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("split fractions sum to %v, want 1.0", sum)
	}
	return nil
}

// Allocate divides poolAmount into the three winner shares at full
// precision. The third share is the remainder so the three amounts sum to
// exactly the pool.
func (s Split) Allocate(poolAmount float64) [3]float64 {
	first := poolAmount * s.First
	second := poolAmount * s.Second
	third := poolAmount - first - second
	return [3]float64{first, second, third}
}
