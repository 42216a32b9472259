package stats

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/matrix"
	gomatrix "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// PilotStats stores moments of model outputs estimated from a pilot study
type PilotStats struct {
	// nqoi is the number of quantities of interest
	nqoi int
	// means stores the output means of all models
	means []float64
	// cov is covariance of all model outputs
	cov *mat.SymDense
	// w is covariance of the centered second moments
	w *mat.SymDense
	// b is cross-covariance of the outputs and their centered second moments
	b *mat.Dense
}

// Pilot estimates the moments required by the statistics from pilot values of all models
// evaluated at the same samples. Values of every model are stored in rows.
// It returns error if the values have inconsistent dimensions or fewer than two rows.
func Pilot(values []*mat.Dense) (*PilotStats, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no pilot values", acv.ErrShape)
	}

	n, nqoi := values[0].Dims()
	if n < 2 {
		return nil, fmt.Errorf("%w: invalid number of pilot samples: %d", acv.ErrShape, n)
	}

	ms := make([]mat.Matrix, len(values))
	for m, v := range values {
		r, c := v.Dims()
		if r != n || c != nqoi {
			return nil, fmt.Errorf("%w: invalid pilot values dimensions of model %d: [%d x %d], expected [%d x %d]", acv.ErrShape, m, r, c, n, nqoi)
		}
		ms[m] = v
	}

	X, err := matrix.HStack(ms...)
	if err != nil {
		return nil, err
	}

	nmodels := len(values)
	k := nmodels * nqoi
	means := make([]float64, k)
	for j := range means {
		means[j] = mat.Sum(X.ColView(j)) / float64(n)
	}

	// centered second moments of every model stored model by model
	q2 := nqoi * nqoi
	Y := mat.NewDense(n, nmodels*q2, nil)
	for i := 0; i < n; i++ {
		for m := 0; m < nmodels; m++ {
			for a := 0; a < nqoi; a++ {
				da := X.At(i, m*nqoi+a) - means[m*nqoi+a]
				for b := 0; b < nqoi; b++ {
					db := X.At(i, m*nqoi+b) - means[m*nqoi+b]
					Y.Set(i, m*q2+a*nqoi+b, da*db)
				}
			}
		}
	}

	Z, err := matrix.HStack(X, Y)
	if err != nil {
		return nil, err
	}

	// observations are stored in columns
	full, err := gomatrix.Cov(mat.DenseCopyOf(Z.T()), "cols")
	if err != nil {
		return nil, fmt.Errorf("failed to estimate pilot covariance: %v", err)
	}

	S := mat.DenseCopyOf(full)
	end := k + nmodels*q2

	cov, err := matrix.Symmetrize(S.Slice(0, k, 0, k))
	if err != nil {
		return nil, err
	}
	W, err := matrix.Symmetrize(S.Slice(k, end, k, end))
	if err != nil {
		return nil, err
	}
	B := mat.DenseCopyOf(S.Slice(0, k, k, end))

	return &PilotStats{
		nqoi:  nqoi,
		means: means,
		cov:   cov,
		w:     W,
		b:     B,
	}, nil
}

// NQoI returns the number of quantities of interest.
func (p *PilotStats) NQoI() int {
	return p.nqoi
}

// Means returns the output means of all models.
func (p *PilotStats) Means() []float64 {
	means := make([]float64, len(p.means))
	copy(means, p.means)

	return means
}

// Cov returns covariance of all model outputs.
func (p *PilotStats) Cov() mat.Symmetric {
	return copySym(p.cov)
}

// W returns covariance of the centered second moments.
func (p *PilotStats) W() mat.Symmetric {
	return copySym(p.w)
}

// B returns cross-covariance of the outputs and their centered second moments.
func (p *PilotStats) B() mat.Matrix {
	return mat.DenseCopyOf(p.b)
}

// Statistic returns statistic of type t built from the pilot moments.
func (p *PilotStats) Statistic(t Type) (acv.Statistic, error) {
	return Build(t, p.nqoi, p.cov, p.w, p.b)
}

func copySym(s *mat.SymDense) *mat.SymDense {
	c := mat.NewSymDense(s.SymmetricDim(), nil)
	c.CopySym(s)

	return c
}
