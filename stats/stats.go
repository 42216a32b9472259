// Package stats implements statistics of model quantities of interest and the
// covariances of their sample estimators computed from overlapping sample sets.
package stats

import (
	"fmt"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/matrix"
	"gonum.org/v1/gonum/mat"
)

// Type is statistic type
type Type int

const (
	// MeanType is mean of the quantities of interest
	MeanType Type = iota
	// VarianceType is covariance of the quantities of interest
	VarianceType
	// MeanVarianceType is mean and covariance of the quantities of interest
	MeanVarianceType
)

// String implements the Stringer interface.
func (t Type) String() string {
	switch t {
	case MeanType:
		return "mean"
	case VarianceType:
		return "variance"
	case MeanVarianceType:
		return "mean_variance"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses statistic type name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "mean":
		return MeanType, nil
	case "variance":
		return VarianceType, nil
	case "mean_variance", "meanvariance":
		return MeanVarianceType, nil
	default:
		return 0, fmt.Errorf("%w: unsupported statistic: %q", acv.ErrConfig, s)
	}
}

// Build creates new statistic of type t.
// W is required by variance statistics and B by mean and variance statistics.
// It returns error if the required matrices are missing or have invalid dimensions.
func Build(t Type, nqoi int, cov, W, B mat.Matrix) (acv.Statistic, error) {
	switch t {
	case MeanType:
		return NewMean(nqoi, cov)
	case VarianceType:
		if W == nil {
			return nil, fmt.Errorf("%w: variance statistic requires fourth moments", acv.ErrConfig)
		}
		return NewVariance(nqoi, cov, W)
	case MeanVarianceType:
		if W == nil || B == nil {
			return nil, fmt.Errorf("%w: mean and variance statistic requires third and fourth moments", acv.ErrConfig)
		}
		return NewMeanVariance(nqoi, cov, W, B)
	default:
		return nil, fmt.Errorf("%w: unsupported statistic: %d", acv.ErrConfig, int(t))
	}
}

// base holds the covariance shared by all statistics
type base struct {
	// nqoi is the number of quantities of interest
	nqoi int
	// nmodels is the number of models
	nmodels int
	// cov is covariance of all model outputs
	cov *mat.SymDense
}

func newBase(nqoi int, cov mat.Matrix) (*base, error) {
	if nqoi <= 0 {
		return nil, fmt.Errorf("%w: invalid number of quantities of interest: %d", acv.ErrConfig, nqoi)
	}

	r, c := cov.Dims()
	if r != c || r == 0 || r%nqoi != 0 {
		return nil, fmt.Errorf("%w: invalid covariance dimensions: [%d x %d] for %d quantities of interest", acv.ErrConfig, r, c, nqoi)
	}

	sym, err := matrix.Symmetrize(cov)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", acv.ErrConfig, err)
	}

	hf, _ := matrix.Symmetrize(matrix.Block(sym, 0, 0, nqoi, nqoi))
	var chol mat.Cholesky
	if ok := chol.Factorize(hf); !ok {
		return nil, fmt.Errorf("%w: high fidelity covariance block is singular:\n%v", acv.ErrConfig, mat.Formatted(hf, mat.Squeeze()))
	}

	return &base{
		nqoi:    nqoi,
		nmodels: r / nqoi,
		cov:     sym,
	}, nil
}

// NQoI returns the number of quantities of interest.
func (b *base) NQoI() int {
	return b.nqoi
}

// NModels returns the number of models.
func (b *base) NModels() int {
	return b.nmodels
}

// Cov returns covariance of all model outputs.
func (b *base) Cov() mat.Symmetric {
	return copySym(b.cov)
}

func (b *base) covBlock(i, j int) *mat.Dense {
	return matrix.Block(b.cov, i, j, b.nqoi, b.nqoi)
}

func (b *base) subsetCov(models []int) (*mat.Dense, error) {
	for _, m := range models {
		if m < 0 || m >= b.nmodels {
			return nil, fmt.Errorf("%w: invalid model %d of %d models", acv.ErrConfig, m, b.nmodels)
		}
	}

	return matrix.Blocks(b.cov, b.nqoi, b.nqoi, models, models), nil
}

// vBlock returns the Gaussian part of the covariance of the second moments
// of two models with cross-covariance c:
// V[(a,b),(c,d)] = c[a,c]*c[b,d] + c[a,d]*c[b,c].
func vBlock(c mat.Matrix, nqoi int) *mat.Dense {
	q2 := nqoi * nqoi
	V := mat.NewDense(q2, q2, nil)
	for a := 0; a < nqoi; a++ {
		for b := 0; b < nqoi; b++ {
			for k := 0; k < nqoi; k++ {
				for l := 0; l < nqoi; l++ {
					V.Set(a*nqoi+b, k*nqoi+l, c.At(a, k)*c.At(b, l)+c.At(a, l)*c.At(b, k))
				}
			}
		}
	}

	return V
}

// GaussianW returns the covariance between centered second moments of Gaussian
// model outputs with covariance cov, stored in model-major blocks of nqoi outputs.
// It returns error if the dimension of cov is not a multiple of nqoi.
func GaussianW(cov mat.Symmetric, nqoi int) (*mat.SymDense, error) {
	n := cov.SymmetricDim()
	if nqoi <= 0 || n%nqoi != 0 {
		return nil, fmt.Errorf("%w: invalid covariance dimension %d for %d quantities of interest", acv.ErrShape, n, nqoi)
	}

	nmodels := n / nqoi
	q2 := nqoi * nqoi

	W := mat.NewSymDense(nmodels*q2, nil)
	for i := 0; i < nmodels; i++ {
		for j := i; j < nmodels; j++ {
			v := vBlock(matrix.Block(cov, i, j, nqoi, nqoi), nqoi)
			for a := 0; a < q2; a++ {
				for b := 0; b < q2; b++ {
					if i == j && b < a {
						continue
					}
					W.SetSym(i*q2+a, j*q2+b, v.At(a, b))
				}
			}
		}
	}

	return W, nil
}

// VarianceMatrix reshapes the covariance part of a variance or mean and variance
// estimate into a nqoi x nqoi matrix.
// It returns error if v is too short.
func VarianceMatrix(v mat.Vector, nqoi int) (*mat.Dense, error) {
	q2 := nqoi * nqoi
	if v.Len() < q2 {
		return nil, fmt.Errorf("%w: invalid estimate length: %d, expected at least %d", acv.ErrShape, v.Len(), q2)
	}

	off := v.Len() - q2
	out := mat.NewDense(nqoi, nqoi, nil)
	for a := 0; a < nqoi; a++ {
		for b := 0; b < nqoi; b++ {
			out.Set(a, b, v.AtVec(off+a*nqoi+b))
		}
	}

	return out, nil
}
