package sim

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/matrix"
	"github.com/milosgajdos/go-acv/stats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a linear model y = A x
type Linear struct {
	// A is model matrix
	A *mat.Dense
}

// NewLinear creates new linear model and returns it
func NewLinear(A mat.Matrix) (*Linear, error) {
	if A == nil {
		return nil, fmt.Errorf("%w: invalid model matrix", acv.ErrConfig)
	}

	return &Linear{A: mat.DenseCopyOf(A)}, nil
}

// Dims returns input vector length and the number of quantities of interest.
func (l *Linear) Dims() (nx, nqoi int) {
	nqoi, nx = l.A.Dims()
	return nx, nqoi
}

// Evaluate evaluates the model at samples stored in columns.
// It returns error if the samples have invalid dimensions.
func (l *Linear) Evaluate(samples mat.Matrix) (*mat.Dense, error) {
	nx, _ := l.Dims()
	if r, c := samples.Dims(); r != nx {
		return nil, fmt.Errorf("%w: invalid samples dimensions: [%d x %d], expected %d rows", acv.ErrShape, r, c, nx)
	}

	out := new(mat.Dense)
	out.Mul(l.A, samples)

	return mat.DenseCopyOf(out.T()), nil
}

// LinearGaussian is an ensemble of linear models of a common Gaussian input
type LinearGaussian struct {
	models []*Linear
	costs  []float64
	// A stacks model matrices
	A *mat.Dense
	// mean is input mean
	mean *mat.VecDense
	// cov is input covariance
	cov *mat.SymDense
}

// NewLinearGaussian creates new LinearGaussian ensemble of models with matrices As
// and given costs driven by Gaussian input with mean and covariance cov.
// It returns error if the dimensions are inconsistent.
func NewLinearGaussian(As []mat.Matrix, costs []float64, mean []float64, cov mat.Symmetric) (*LinearGaussian, error) {
	if len(As) == 0 || len(As) != len(costs) {
		return nil, fmt.Errorf("%w: invalid dimensions. Models: %d, Costs: %d", acv.ErrConfig, len(As), len(costs))
	}

	nx := cov.SymmetricDim()
	if len(mean) != nx {
		return nil, fmt.Errorf("%w: invalid dimensions. Mean: %d, Cov: %d x %d", acv.ErrConfig, len(mean), nx, nx)
	}

	models := make([]*Linear, len(As))
	stack := make([]*mat.Dense, len(As))
	nqoi := -1
	for m, A := range As {
		l, err := NewLinear(A)
		if err != nil {
			return nil, err
		}
		lx, lq := l.Dims()
		if lx != nx || (nqoi >= 0 && lq != nqoi) {
			return nil, fmt.Errorf("%w: invalid dimensions of model %d: [%d x %d]", acv.ErrConfig, m, lq, lx)
		}
		nqoi = lq
		models[m] = l
		stack[m] = l.A
	}

	A, err := matrix.VStack(stack...)
	if err != nil {
		return nil, err
	}

	c := mat.NewSymDense(nx, nil)
	c.CopySym(cov)

	return &LinearGaussian{
		models: models,
		costs:  append([]float64(nil), costs...),
		A:      A,
		mean:   mat.NewVecDense(nx, append([]float64(nil), mean...)),
		cov:    c,
	}, nil
}

// Models returns ensemble models.
func (e *LinearGaussian) Models() []acv.Model {
	models := make([]acv.Model, len(e.models))
	for m, l := range e.models {
		models[m] = l
	}

	return models
}

// Costs returns model costs.
func (e *LinearGaussian) Costs() []float64 {
	return append([]float64(nil), e.costs...)
}

// NQoI returns the number of quantities of interest per model.
func (e *LinearGaussian) NQoI() int {
	_, nqoi := e.models[0].Dims()
	return nqoi
}

// InputMean returns input mean.
func (e *LinearGaussian) InputMean() []float64 {
	return append([]float64(nil), e.mean.RawVector().Data...)
}

// InputCov returns input covariance.
func (e *LinearGaussian) InputCov() *mat.SymDense {
	c := mat.NewSymDense(e.cov.SymmetricDim(), nil)
	c.CopySym(e.cov)

	return c
}

// Means returns the means A mean of all model outputs.
func (e *LinearGaussian) Means() []float64 {
	r, _ := e.A.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(e.A, e.mean)

	return out.RawVector().Data
}

// Cov returns the covariance A cov A^T of all model outputs.
func (e *LinearGaussian) Cov() *mat.SymDense {
	tmp := new(mat.Dense)
	tmp.Mul(e.A, e.cov)
	full := new(mat.Dense)
	full.Mul(tmp, e.A.T())

	// full is square by construction
	out, _ := matrix.Symmetrize(full)

	return out
}

// W returns the covariance between centered second moments of all model outputs.
func (e *LinearGaussian) W() *mat.SymDense {
	// Cov is square with nqoi x nqoi model blocks
	W, _ := stats.GaussianW(e.Cov(), e.NQoI())
	return W
}

// B returns the covariance between model outputs and centered second moments
// which vanishes for Gaussian outputs.
func (e *LinearGaussian) B() *mat.Dense {
	nqoi := e.NQoI()
	nmodels := len(e.models)

	return mat.NewDense(nmodels*nqoi, nmodels*nqoi*nqoi, nil)
}
