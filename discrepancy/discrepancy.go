// Package discrepancy computes covariances of the differences between the statistic
// estimates of a model computed from its starred and plain sample sets.
package discrepancy

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/matrix"
	"gonum.org/v1/gonum/mat"
)

// Engine computes discrepancy covariances of an allocation
type Engine struct {
	// stat is estimated statistic
	stat acv.Statistic
	// alloc is allocation matrix
	alloc *alloc.Matrix
}

// New creates new discrepancy covariance Engine and returns it.
// It returns error if the number of models of stat and the allocation matrix differ.
func New(stat acv.Statistic, a *alloc.Matrix) (*Engine, error) {
	if stat.NModels() != a.NModels() {
		return nil, fmt.Errorf("%w: statistic has %d models, allocation matrix %d", acv.ErrConfig, stat.NModels(), a.NModels())
	}

	return &Engine{
		stat:  stat,
		alloc: a,
	}, nil
}

// Statistic returns the statistic.
func (e *Engine) Statistic() acv.Statistic {
	return e.stat
}

// Allocation returns the allocation matrix.
func (e *Engine) Allocation() *alloc.Matrix {
	return e.alloc
}

// size returns the number of samples in the set of column c.
func (e *Engine) size(n []float64, c int) float64 {
	s := 0.0
	for p := range n {
		if e.alloc.Active(p, c) {
			s += n[p]
		}
	}

	return s
}

// shared returns the number of samples shared by the sets of columns c and d.
func (e *Engine) shared(n []float64, c, d int) float64 {
	s := 0.0
	for p := range n {
		if e.alloc.Active(p, c) && e.alloc.Active(p, d) {
			s += n[p]
		}
	}

	return s
}

// overlap returns the overlap coefficients of the sample sets of columns c and d.
// Empty sets hold exact statistics with zero covariance.
func (e *Engine) overlap(n []float64, c, d int) (g, h float64) {
	N, M, P := e.size(n, c), e.size(n, d), e.shared(n, c, d)
	if N <= 0 || M <= 0 {
		return 0, 0
	}

	g = P / (N * M)
	if N > 1 && M > 1 {
		h = P * (P - 1) / (N * (N - 1) * M * (M - 1))
	}

	return g, h
}

func (e *Engine) crossCov(n []float64, i, c, j, d int) *mat.Dense {
	g, h := e.overlap(n, c, d)
	return e.stat.CrossCov(i, j, g, h)
}

func (e *Engine) check(n []float64) error {
	if len(n) != e.alloc.NModels() {
		return fmt.Errorf("%w: invalid number of partition counts: %d, expected %d", acv.ErrShape, len(n), e.alloc.NModels())
	}

	return nil
}

// Covariances returns covariance CF between all discrepancies and cross-covariance cf
// between the high fidelity estimate and the discrepancies given partition sample counts n.
// It returns nil matrices if there is a single model and error if n has invalid length.
func (e *Engine) Covariances(n []float64) (CF, cf *mat.Dense, err error) {
	if err := e.check(n); err != nil {
		return nil, nil, err
	}

	nmodels := e.alloc.NModels()
	if nmodels == 1 {
		return nil, nil, nil
	}

	k := e.stat.NStats()
	CF = mat.NewDense(k*(nmodels-1), k*(nmodels-1), nil)
	cf = mat.NewDense(k, k*(nmodels-1), nil)

	for i := 1; i < nmodels; i++ {
		for j := i; j < nmodels; j++ {
			b := e.crossCov(n, i, 2*i, j, 2*j)
			b.Sub(b, e.crossCov(n, i, 2*i, j, 2*j+1))
			b.Sub(b, e.crossCov(n, i, 2*i+1, j, 2*j))
			b.Add(b, e.crossCov(n, i, 2*i+1, j, 2*j+1))

			CF.Slice((i-1)*k, i*k, (j-1)*k, j*k).(*mat.Dense).Copy(b)
			CF.Slice((j-1)*k, j*k, (i-1)*k, i*k).(*mat.Dense).Copy(b.T())
		}

		b := e.crossCov(n, 0, 1, i, 2*i)
		b.Sub(b, e.crossCov(n, 0, 1, i, 2*i+1))
		cf.Slice(0, k, (i-1)*k, i*k).(*mat.Dense).Copy(b)
	}

	return CF, cf, nil
}

// HighFidelityCovariance returns covariance of the high fidelity estimate
// given partition sample counts n.
// It returns error if n has invalid length.
func (e *Engine) HighFidelityCovariance(n []float64) (*mat.SymDense, error) {
	if err := e.check(n); err != nil {
		return nil, err
	}

	return matrix.Symmetrize(e.crossCov(n, 0, 1, 0, 1))
}

// EstimatorCovariance returns covariance of the estimator with optimal control variate
// weights given partition sample counts n.
// It returns error if n has invalid length or the weights can not be computed.
func (e *Engine) EstimatorCovariance(n []float64) (*mat.SymDense, error) {
	hf, err := e.HighFidelityCovariance(n)
	if err != nil {
		return nil, err
	}

	CF, cf, err := e.Covariances(n)
	if err != nil || CF == nil {
		return hf, err
	}

	W, err := Weights(CF, cf)
	if err != nil {
		return nil, err
	}

	return OptimalCovariance(hf, W, cf)
}

// Weights returns optimal control variate weights -(pinv(CF) cf^T)^T.
// It returns error if the dimensions of CF and cf do not match or pseudo-inverse fails.
func Weights(CF, cf mat.Matrix) (*mat.Dense, error) {
	r, c := CF.Dims()
	k, l := cf.Dims()
	if r != c || l != r {
		return nil, fmt.Errorf("%w: invalid discrepancy covariance dimensions: CF [%d x %d], cf [%d x %d]", acv.ErrShape, r, c, k, l)
	}

	inv, err := matrix.Pinv(CF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", acv.ErrOptimization, err)
	}

	W := mat.NewDense(l, k, nil)
	W.Mul(inv, cf.T())
	out := mat.DenseCopyOf(W.T())
	out.Scale(-1, out)

	return out, nil
}

// OptimalCovariance returns estimator covariance hf + W cf^T for optimal weights W.
func OptimalCovariance(hf mat.Symmetric, W, cf mat.Matrix) (*mat.SymDense, error) {
	cov := mat.NewDense(hf.SymmetricDim(), hf.SymmetricDim(), nil)
	cov.Mul(W, cf.T())
	cov.Add(cov, hf)

	return matrix.Symmetrize(cov)
}

// CovarianceWithWeights returns estimator covariance hf + W CF W^T + cf W^T + W cf^T
// for arbitrary control variate weights W.
// It returns error if the dimensions do not match.
func CovarianceWithWeights(hf mat.Symmetric, W, CF, cf mat.Matrix) (*mat.SymDense, error) {
	k := hf.SymmetricDim()
	wr, wc := W.Dims()
	r, c := CF.Dims()
	fr, fc := cf.Dims()
	if wr != k || fr != k || wc != r || wc != c || fc != c {
		return nil, fmt.Errorf("%w: invalid weights dimensions: [%d x %d] for CF [%d x %d], cf [%d x %d]", acv.ErrShape, wr, wc, r, c, fr, fc)
	}

	var tmp mat.Dense
	tmp.Mul(W, CF)

	cov := mat.NewDense(k, k, nil)
	cov.Mul(&tmp, W.T())

	var cross mat.Dense
	cross.Mul(cf, W.T())
	cov.Add(cov, &cross)
	cov.Add(cov, cross.T())
	cov.Add(cov, hf)

	return matrix.Symmetrize(cov)
}

// RecursiveWeights returns weights -[I, I, ..., I] of the telescoping sum of
// a multilevel estimator of nmodels models.
func RecursiveWeights(nstats, nmodels int) *mat.Dense {
	W := mat.NewDense(nstats, nstats*(nmodels-1), nil)
	for m := 0; m < nmodels-1; m++ {
		for k := 0; k < nstats; k++ {
			W.Set(k, m*nstats+k, -1)
		}
	}

	return W
}
