package sampler

import (
	"fmt"

	"github.com/milosgajdos/go-acv/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Gaussian draws samples from a multivariate Gaussian distribution
type Gaussian struct {
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// src is a source of randomness
	src xrand.Source
}

// NewGaussian creates new Gaussian sampler with given mean and covariance.
// The covariance may be singular. If src is nil a time-seeded source is used.
// It returns error if the dimensions of mean and cov do not match.
func NewGaussian(mean []float64, cov mat.Symmetric, src xrand.Source) (*Gaussian, error) {
	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid dimensions. Mean: %d, Cov: %d x %d", len(mean), cov.SymmetricDim(), cov.SymmetricDim())
	}

	if src == nil {
		src = rand.NewSource(0)
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	m := make([]float64, len(mean))
	copy(m, mean)

	return &Gaussian{
		mean: m,
		cov:  c,
		src:  src,
	}, nil
}

// Sample draws n samples and returns them stored in matrix columns.
func (g *Gaussian) Sample(n int) (*mat.Dense, error) {
	samples, err := rand.WithCovN(g.cov, n, g.src)
	if err != nil {
		return nil, err
	}

	rows, _ := samples.Dims()
	for i := 0; i < rows; i++ {
		row := samples.RawRowView(i)
		for j := range row {
			row[j] += g.mean[i]
		}
	}

	return samples, nil
}

// Cov returns covariance matrix of Gaussian.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)

	return mean
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
