package stats

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Variance is covariance of model quantities of interest
type Variance struct {
	*base
	// W is covariance of the centered second moments of all model outputs
	W *mat.SymDense
}

// NewVariance creates new Variance statistic given the covariance of all model outputs
// and the covariance W of their centered second moments.
// It returns error if cov or W have invalid dimensions.
func NewVariance(nqoi int, cov, W mat.Matrix) (*Variance, error) {
	b, err := newBase(nqoi, cov)
	if err != nil {
		return nil, err
	}

	w, err := checkW(W, b)
	if err != nil {
		return nil, err
	}

	return &Variance{base: b, W: w}, nil
}

// NStats returns the length of the statistic vector.
func (s *Variance) NStats() int {
	return s.nqoi * s.nqoi
}

// MinSamples returns the minimum number of samples required to estimate the variance.
func (s *Variance) MinSamples() int {
	return 2
}

// SampleEstimate returns flattened unbiased sample covariance of values stored in rows.
// It returns error if values has invalid dimensions or fewer than two rows.
func (s *Variance) SampleEstimate(values mat.Matrix) (*mat.VecDense, error) {
	return sampleVariance(values, s.nqoi)
}

// CrossCov returns covariance between variance estimates of model i and model j.
func (s *Variance) CrossCov(i, j int, g, h float64) *mat.Dense {
	return varianceCrossCov(s.base, s.W, i, j, g, h)
}

// Subset returns variance statistic of the given models.
func (s *Variance) Subset(models []int) (acv.Statistic, error) {
	cov, err := s.subsetCov(models)
	if err != nil {
		return nil, err
	}

	q2 := s.nqoi * s.nqoi

	return NewVariance(s.nqoi, cov, matrix.Blocks(s.W, q2, q2, models, models))
}

func checkW(W mat.Matrix, b *base) (*mat.SymDense, error) {
	n := b.nmodels * b.nqoi * b.nqoi
	r, c := W.Dims()
	if r != n || c != n {
		return nil, fmt.Errorf("%w: invalid W dimensions: [%d x %d], expected [%d x %d]", acv.ErrConfig, r, c, n, n)
	}

	return matrix.Symmetrize(W)
}

func varianceCrossCov(b *base, W *mat.SymDense, i, j int, g, h float64) *mat.Dense {
	q2 := b.nqoi * b.nqoi
	w := matrix.Block(W, i, j, q2, q2)
	w.Scale(g, w)

	v := vBlock(b.covBlock(i, j), b.nqoi)
	v.Scale(h, v)
	w.Add(w, v)

	return w
}

func sampleVariance(values mat.Matrix, nqoi int) (*mat.VecDense, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: no values", acv.ErrShape)
	}

	r, c := values.Dims()
	if c != nqoi || r < 2 {
		return nil, fmt.Errorf("%w: invalid values dimensions: [%d x %d], expected at least 2 rows and %d columns", acv.ErrShape, r, c, nqoi)
	}

	cov := mat.NewSymDense(nqoi, nil)
	stat.CovarianceMatrix(cov, values, nil)

	est := mat.NewVecDense(nqoi*nqoi, nil)
	for a := 0; a < nqoi; a++ {
		for b := 0; b < nqoi; b++ {
			est.SetVec(a*nqoi+b, cov.At(a, b))
		}
	}

	return est, nil
}
