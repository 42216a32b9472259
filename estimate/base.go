// Package estimate provides estimates of statistics together with their covariance.
package estimate

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Base is base statistic estimate
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBaseWithCov returns base estimate given val and its covariance.
// It returns error if the dimensions of val and cov do not match.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("%w: empty estimate", acv.ErrShape)
	}

	rv := val.Len()
	rc := cov.SymmetricDim()

	if rv != rc {
		return nil, fmt.Errorf("%w: invalid dimensions. Val: %d, Cov: %d x %d", acv.ErrShape, rv, rc, rc)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(rc, nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Empirical is an estimate computed from bootstrap or independent replicates
type Empirical struct {
	*Base
	// replicates stores one replicate per row
	replicates *mat.Dense
}

// NewEmpirical returns the estimate whose value is the mean and whose covariance
// is the sample covariance of the replicates stored in rows.
// It returns error if there are fewer than two replicates.
func NewEmpirical(replicates mat.Matrix) (*Empirical, error) {
	r, c := replicates.Dims()
	if r < 2 || c == 0 {
		return nil, fmt.Errorf("%w: invalid number of replicates: %d x %d", acv.ErrShape, r, c)
	}

	reps := mat.DenseCopyOf(replicates)

	mean := mat.NewVecDense(c, nil)
	for j := 0; j < c; j++ {
		mean.SetVec(j, stat.Mean(mat.Col(nil, j, reps), nil))
	}

	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, reps, nil)

	base, err := NewBaseWithCov(mean, cov)
	if err != nil {
		return nil, err
	}

	return &Empirical{
		Base:       base,
		replicates: reps,
	}, nil
}

// Len returns the number of replicates
func (b *Empirical) Len() int {
	r, _ := b.replicates.Dims()
	return r
}

// Replicates returns bootstrap replicates stored in rows
func (b *Empirical) Replicates() *mat.Dense {
	return mat.DenseCopyOf(b.replicates)
}
