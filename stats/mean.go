package stats

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean is mean of model quantities of interest
type Mean struct {
	*base
}

// NewMean creates new Mean statistic given the covariance of all model outputs.
// It returns error if cov has invalid dimensions or singular high fidelity block.
func NewMean(nqoi int, cov mat.Matrix) (*Mean, error) {
	b, err := newBase(nqoi, cov)
	if err != nil {
		return nil, err
	}

	return &Mean{base: b}, nil
}

// NStats returns the length of the statistic vector.
func (s *Mean) NStats() int {
	return s.nqoi
}

// MinSamples returns the minimum number of samples required to estimate the mean.
func (s *Mean) MinSamples() int {
	return 1
}

// SampleEstimate returns sample mean of values stored in rows.
// It returns error if values has invalid dimensions.
func (s *Mean) SampleEstimate(values mat.Matrix) (*mat.VecDense, error) {
	return sampleMean(values, s.nqoi)
}

// CrossCov returns covariance between mean estimates of model i and model j.
func (s *Mean) CrossCov(i, j int, g, h float64) *mat.Dense {
	c := s.covBlock(i, j)
	c.Scale(g, c)

	return c
}

// Subset returns mean statistic of the given models.
func (s *Mean) Subset(models []int) (acv.Statistic, error) {
	cov, err := s.subsetCov(models)
	if err != nil {
		return nil, err
	}

	return NewMean(s.nqoi, cov)
}

func sampleMean(values mat.Matrix, nqoi int) (*mat.VecDense, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: no values", acv.ErrShape)
	}

	r, c := values.Dims()
	if c != nqoi || r < 1 {
		return nil, fmt.Errorf("%w: invalid values dimensions: [%d x %d], expected %d columns", acv.ErrShape, r, c, nqoi)
	}

	mean := mat.NewVecDense(nqoi, nil)
	for q := 0; q < nqoi; q++ {
		mean.SetVec(q, stat.Mean(mat.Col(nil, q, values), nil))
	}

	return mean, nil
}
