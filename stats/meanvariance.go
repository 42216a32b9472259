package stats

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/matrix"
	"gonum.org/v1/gonum/mat"
)

// MeanVariance is mean and covariance of model quantities of interest
type MeanVariance struct {
	*base
	// W is covariance of the centered second moments of all model outputs
	W *mat.SymDense
	// B is cross-covariance between model outputs and their centered second moments
	B *mat.Dense
}

// NewMeanVariance creates new MeanVariance statistic given the covariance of all model outputs,
// the covariance W of their centered second moments and the cross-covariance B between
// the outputs and their centered second moments.
// It returns error if cov, W or B have invalid dimensions.
func NewMeanVariance(nqoi int, cov, W, B mat.Matrix) (*MeanVariance, error) {
	b, err := newBase(nqoi, cov)
	if err != nil {
		return nil, err
	}

	w, err := checkW(W, b)
	if err != nil {
		return nil, err
	}

	r, c := B.Dims()
	if r != b.nmodels*nqoi || c != b.nmodels*nqoi*nqoi {
		return nil, fmt.Errorf("%w: invalid B dimensions: [%d x %d], expected [%d x %d]", acv.ErrConfig, r, c, b.nmodels*nqoi, b.nmodels*nqoi*nqoi)
	}

	return &MeanVariance{base: b, W: w, B: mat.DenseCopyOf(B)}, nil
}

// NStats returns the length of the statistic vector.
func (s *MeanVariance) NStats() int {
	return s.nqoi + s.nqoi*s.nqoi
}

// MinSamples returns the minimum number of samples required to estimate the statistic.
func (s *MeanVariance) MinSamples() int {
	return 2
}

// SampleEstimate returns sample mean followed by flattened unbiased sample covariance
// of values stored in rows.
// It returns error if values has invalid dimensions or fewer than two rows.
func (s *MeanVariance) SampleEstimate(values mat.Matrix) (*mat.VecDense, error) {
	mean, err := sampleMean(values, s.nqoi)
	if err != nil {
		return nil, err
	}

	variance, err := sampleVariance(values, s.nqoi)
	if err != nil {
		return nil, err
	}

	est := mat.NewVecDense(s.NStats(), nil)
	est.SliceVec(0, s.nqoi).(*mat.VecDense).CopyVec(mean)
	est.SliceVec(s.nqoi, s.NStats()).(*mat.VecDense).CopyVec(variance)

	return est, nil
}

// CrossCov returns covariance between mean and variance estimates of model i and model j.
func (s *MeanVariance) CrossCov(i, j int, g, h float64) *mat.Dense {
	q, q2 := s.nqoi, s.nqoi*s.nqoi

	out := mat.NewDense(s.NStats(), s.NStats(), nil)

	mm := s.covBlock(i, j)
	mm.Scale(g, mm)
	out.Slice(0, q, 0, q).(*mat.Dense).Copy(mm)

	mv := matrix.Block(s.B, i, j, q, q2)
	mv.Scale(g, mv)
	out.Slice(0, q, q, q+q2).(*mat.Dense).Copy(mv)

	vm := matrix.Block(s.B, j, i, q, q2)
	vm.Scale(g, vm)
	out.Slice(q, q+q2, 0, q).(*mat.Dense).Copy(vm.T())

	vv := varianceCrossCov(s.base, s.W, i, j, g, h)
	out.Slice(q, q+q2, q, q+q2).(*mat.Dense).Copy(vv)

	return out
}

// Subset returns mean and variance statistic of the given models.
func (s *MeanVariance) Subset(models []int) (acv.Statistic, error) {
	cov, err := s.subsetCov(models)
	if err != nil {
		return nil, err
	}

	q, q2 := s.nqoi, s.nqoi*s.nqoi

	return NewMeanVariance(q, cov,
		matrix.Blocks(s.W, q2, q2, models, models),
		matrix.Blocks(s.B, q, q2, models, models))
}
