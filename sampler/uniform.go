package sampler

import (
	"fmt"

	"github.com/milosgajdos/go-acv/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Uniform draws samples from independent uniform marginals
type Uniform struct {
	// dists are per-variable uniform distributions
	dists []distuv.Uniform
}

// NewUniform creates new Uniform sampler on the box [lower, upper].
// If src is nil a time-seeded source is used.
// It returns error if the bounds are inconsistent.
func NewUniform(lower, upper []float64, src xrand.Source) (*Uniform, error) {
	if len(lower) == 0 || len(lower) != len(upper) {
		return nil, fmt.Errorf("invalid bounds dimensions: %d, %d", len(lower), len(upper))
	}

	if src == nil {
		src = rand.NewSource(0)
	}

	dists := make([]distuv.Uniform, len(lower))
	for i := range lower {
		if lower[i] >= upper[i] {
			return nil, fmt.Errorf("invalid bounds of variable %d: [%g, %g]", i, lower[i], upper[i])
		}
		dists[i] = distuv.Uniform{Min: lower[i], Max: upper[i], Src: src}
	}

	return &Uniform{dists: dists}, nil
}

// Sample draws n samples and returns them stored in matrix columns.
func (u *Uniform) Sample(n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	samples := mat.NewDense(len(u.dists), n, nil)
	for j := 0; j < n; j++ {
		for i := range u.dists {
			samples.Set(i, j, u.dists[i].Rand())
		}
	}

	return samples, nil
}
