package sim

import (
	"fmt"
	"math"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
)

// MonomialModel evaluates x^Degree of scalar samples
type MonomialModel struct {
	// Degree is monomial degree
	Degree int
}

// Evaluate evaluates the monomial at samples stored in the columns of a single row matrix.
// It returns error if samples have more than one row.
func (m MonomialModel) Evaluate(samples mat.Matrix) (*mat.Dense, error) {
	r, c := samples.Dims()
	if r != 1 {
		return nil, fmt.Errorf("%w: invalid samples dimensions: [%d x %d], expected 1 row", acv.ErrShape, r, c)
	}

	out := mat.NewDense(c, 1, nil)
	for j := 0; j < c; j++ {
		out.Set(j, 0, math.Pow(samples.At(0, j), float64(m.Degree)))
	}

	return out, nil
}

// poly is a polynomial in x stored as a map from exponents to coefficients
type poly map[int]float64

func (p poly) mul(q poly) poly {
	out := make(poly)
	for i, a := range p {
		for j, b := range q {
			out[i+j] += a * b
		}
	}

	return out
}

// expect returns the expectation of p for x uniform on [0, 1].
func (p poly) expect() float64 {
	e := 0.0
	for k, a := range p {
		e += a / float64(k+1)
	}

	return e
}

// Monomial is an ensemble of monomial models of a uniform input on [0, 1]
type Monomial struct {
	degrees []int
	costs   []float64
}

// NewMonomial creates new Monomial ensemble with given model degrees and costs.
// It returns error if the degrees and costs do not match or any degree is negative.
func NewMonomial(degrees []int, costs []float64) (*Monomial, error) {
	if len(degrees) == 0 || len(degrees) != len(costs) {
		return nil, fmt.Errorf("%w: invalid dimensions. Degrees: %d, Costs: %d", acv.ErrConfig, len(degrees), len(costs))
	}

	for _, d := range degrees {
		if d < 0 {
			return nil, fmt.Errorf("%w: invalid degree: %d", acv.ErrConfig, d)
		}
	}

	return &Monomial{
		degrees: append([]int(nil), degrees...),
		costs:   append([]float64(nil), costs...),
	}, nil
}

// NewPolynomial returns the ensemble of nmodels monomials of decreasing degree
// x^nmodels, x^(nmodels-1), ..., x with costs 1, 0.1, 0.01, ...
func NewPolynomial(nmodels int) (*Monomial, error) {
	degrees := make([]int, nmodels)
	costs := make([]float64, nmodels)
	for m := range degrees {
		degrees[m] = nmodels - m
		costs[m] = math.Pow(10, -float64(m))
	}

	return NewMonomial(degrees, costs)
}

// Models returns ensemble models.
func (e *Monomial) Models() []acv.Model {
	models := make([]acv.Model, len(e.degrees))
	for m, d := range e.degrees {
		models[m] = MonomialModel{Degree: d}
	}

	return models
}

// Costs returns model costs.
func (e *Monomial) Costs() []float64 {
	return append([]float64(nil), e.costs...)
}

// NQoI returns 1.
func (e *Monomial) NQoI() int {
	return 1
}

// centered returns x^d - E[x^d].
func (e *Monomial) centered(m int) poly {
	d := e.degrees[m]
	return poly{d: 1, 0: -1 / float64(d+1)}
}

// Means returns model means.
func (e *Monomial) Means() []float64 {
	means := make([]float64, len(e.degrees))
	for m, d := range e.degrees {
		means[m] = 1 / float64(d+1)
	}

	return means
}

// Cov returns model covariance.
func (e *Monomial) Cov() *mat.SymDense {
	n := len(e.degrees)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, e.centered(i).mul(e.centered(j)).expect())
		}
	}

	return cov
}

// W returns the covariance between centered second moments.
func (e *Monomial) W() *mat.SymDense {
	n := len(e.degrees)
	cov := e.Cov()
	W := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		pi := e.centered(i)
		for j := i; j < n; j++ {
			pj := e.centered(j)
			W.SetSym(i, j, pi.mul(pi).mul(pj).mul(pj).expect()-cov.At(i, i)*cov.At(j, j))
		}
	}

	return W
}

// B returns the covariance between model outputs and centered second moments.
func (e *Monomial) B() *mat.Dense {
	n := len(e.degrees)
	B := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		pi := e.centered(i)
		for j := 0; j < n; j++ {
			pj := e.centered(j)
			B.Set(i, j, pi.mul(pj).mul(pj).expect())
		}
	}

	return B
}
