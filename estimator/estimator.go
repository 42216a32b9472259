// Package estimator evaluates approximate control variate estimators of sample allocation plans.
package estimator

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/estimate"
	"github.com/milosgajdos/go-acv/optim"
	"github.com/milosgajdos/go-acv/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Estimate returns the estimate of the statistic of the plan computed from values of every model
// evaluated on its samples, stored in rows and ordered by partition. The covariance of
// the returned estimate is the analytic covariance of the plan.
// It returns error if the number of values of any model does not match the plan.
func Estimate(p *optim.Plan, values []*mat.Dense) (*estimate.Base, error) {
	val, err := value(p, values, nil)
	if err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(val, p.Covariance())
}

// Bootstrap resamples the values of every partition with replacement nboot times and returns
// the mean and covariance of the resampled estimates. Models sharing a partition share its resampled indices.
// If src is nil a time-seeded source is used.
// It returns error if the values do not match the plan or nboot is smaller than 2.
func Bootstrap(p *optim.Plan, values []*mat.Dense, nboot int, src xrand.Source) (*estimate.Empirical, error) {
	if nboot < 2 {
		return nil, fmt.Errorf("%w: invalid number of bootstraps: %d", acv.ErrConfig, nboot)
	}

	if src == nil {
		src = rand.NewSource(0)
	}

	counts := p.PartitionSamples()
	reps := mat.NewDense(nboot, p.Statistic().NStats(), nil)

	for b := 0; b < nboot; b++ {
		perm := make([][]int, len(counts))
		for i, n := range counts {
			idx, err := rand.Resample(n, n, src)
			if err != nil {
				return nil, err
			}
			perm[i] = idx
		}

		val, err := value(p, values, perm)
		if err != nil {
			return nil, err
		}
		reps.SetRow(b, val.RawVector().Data)
	}

	return estimate.NewEmpirical(reps)
}

// value combines the statistics of the starred and plain sample sets of every model.
func value(p *optim.Plan, values []*mat.Dense, perm [][]int) (*mat.VecDense, error) {
	nmodels := p.NModels()
	if len(values) != nmodels {
		return nil, fmt.Errorf("%w: invalid number of model values: %d, expected %d", acv.ErrShape, len(values), nmodels)
	}

	pairs, err := p.Accountant().SeparateValues(values, perm)
	if err != nil {
		return nil, err
	}

	s := p.Statistic()
	hf, err := s.SampleEstimate(pairs[0].Plain)
	if err != nil {
		return nil, err
	}

	if nmodels == 1 {
		return hf, nil
	}

	nstats := s.NStats()
	lowfi := p.LowFidelityStats()
	delta := mat.NewVecDense(nstats*(nmodels-1), nil)

	for m := 1; m < nmodels; m++ {
		var starred *mat.VecDense
		switch {
		case pairs[m].Starred != nil:
			starred, err = s.SampleEstimate(pairs[m].Starred)
			if err != nil {
				return nil, err
			}
		case lowfi != nil:
			starred = mat.NewVecDense(nstats, lowfi[m-1])
		default:
			return nil, fmt.Errorf("%w: model %d has no starred samples", acv.ErrShape, m)
		}

		plain, err := s.SampleEstimate(pairs[m].Plain)
		if err != nil {
			return nil, err
		}

		for k := 0; k < nstats; k++ {
			delta.SetVec((m-1)*nstats+k, starred.AtVec(k)-plain.AtVec(k))
		}
	}

	out := mat.NewVecDense(nstats, nil)
	out.MulVec(p.Weights(), delta)
	out.AddVec(out, hf)

	return out, nil
}
