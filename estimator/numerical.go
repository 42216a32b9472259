package estimator

import (
	"context"
	"fmt"
	"runtime"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/estimate"
	"github.com/milosgajdos/go-acv/optim"
	"github.com/milosgajdos/go-acv/rand"
	"golang.org/x/sync/errgroup"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// SamplerFunc creates a sampler drawing from the given source
type SamplerFunc func(src xrand.Source) (acv.Sampler, error)

// NumericalCovariance runs ntrials independent trials of sampling, model evaluation and
// estimation and returns the mean and covariance of the trial estimates.
// Trial i draws from its own source seeded with seed+i+1.
// It returns error if any trial fails or ntrials is smaller than 2.
func NumericalCovariance(ctx context.Context, p *optim.Plan, models []acv.Model, newSampler SamplerFunc, ntrials int, seed uint64) (*estimate.Empirical, error) {
	if ntrials < 2 {
		return nil, fmt.Errorf("%w: invalid number of trials: %d", acv.ErrConfig, ntrials)
	}

	if len(models) != p.NModels() {
		return nil, fmt.Errorf("%w: invalid number of models: %d, expected %d", acv.ErrConfig, len(models), p.NModels())
	}

	nstats := p.Statistic().NStats()
	reps := make([][]float64, ntrials)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < ntrials; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			s, err := newSampler(rand.NewSource(seed + uint64(i) + 1))
			if err != nil {
				return err
			}

			samples, err := GenerateSamples(p, s, 0)
			if err != nil {
				return err
			}

			values := make([]*mat.Dense, len(models))
			for m := range models {
				if values[m], err = models[m].Evaluate(samples[m]); err != nil {
					return fmt.Errorf("trial %d, model %d: %w", i, m, err)
				}
			}

			val, err := value(p, values, nil)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			reps[i] = val.RawVector().Data

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := mat.NewDense(ntrials, nstats, nil)
	for i, r := range reps {
		data.SetRow(i, r)
	}

	return estimate.NewEmpirical(data)
}
