package estimator

import (
	"context"
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/matrix"
	"github.com/milosgajdos/go-acv/optim"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// GenerateSamples draws the samples of every partition of the plan and returns the samples
// of every model stored in columns and ordered by partition. The first npilot samples
// of the high fidelity partition are not drawn: they are the pilot samples whose values
// are inserted by InsertPilotValues.
// It returns error if npilot exceeds the number of samples of the high fidelity partition.
func GenerateSamples(p *optim.Plan, s acv.Sampler, npilot int) ([]*mat.Dense, error) {
	acc := p.Accountant()
	if npilot < 0 || npilot > acc.PartitionSamples()[0] {
		return nil, fmt.Errorf("%w: invalid number of pilot samples: %d, high fidelity partition has %d", acv.ErrConfig, npilot, acc.PartitionSamples()[0])
	}

	total := acc.Total() - npilot

	var pool *mat.Dense
	if total > 0 {
		var err error
		if pool, err = s.Sample(total); err != nil {
			return nil, err
		}

		if _, c := pool.Dims(); c != total {
			return nil, fmt.Errorf("%w: sampler returned %d samples, expected %d", acv.ErrShape, c, total)
		}
	}

	samples := make([]*mat.Dense, acc.NModels())
	for m := range samples {
		idx := acc.ModelIndices(m)
		if usesPilot(p, m) {
			idx = idx[npilot:]
		}
		// pool starts after the pilot samples
		for i := range idx {
			idx[i] -= npilot
		}
		samples[m] = matrix.SelectCols(pool, idx)
	}

	return samples, nil
}

// InsertPilotValues prepends the pilot values to the values of every model evaluating
// the high fidelity partition.
// It returns error if the number of models does not match the plan.
func InsertPilotValues(p *optim.Plan, pilot, values []*mat.Dense) ([]*mat.Dense, error) {
	nmodels := p.NModels()
	if len(pilot) != nmodels || len(values) != nmodels {
		return nil, fmt.Errorf("%w: invalid number of models: pilot %d, values %d, expected %d", acv.ErrShape, len(pilot), len(values), nmodels)
	}

	out := make([]*mat.Dense, nmodels)
	for m := range out {
		if !usesPilot(p, m) {
			out[m] = mat.DenseCopyOf(values[m])
			continue
		}

		v, err := matrix.VStack(pilot[m], values[m])
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", m, err)
		}
		out[m] = v
	}

	return out, nil
}

func usesPilot(p *optim.Plan, m int) bool {
	parts := p.Allocation().Partitions(m)
	return len(parts) > 0 && parts[0] == 0
}

// Evaluate evaluates every model on its samples concurrently and returns the values.
// It returns the first error returned by any model or the context error.
func Evaluate(ctx context.Context, models []acv.Model, samples []*mat.Dense) ([]*mat.Dense, error) {
	if len(models) != len(samples) {
		return nil, fmt.Errorf("%w: invalid number of models: %d, samples %d", acv.ErrShape, len(models), len(samples))
	}

	values := make([]*mat.Dense, len(models))
	g, ctx := errgroup.WithContext(ctx)
	for m := range models {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if samples[m] == nil {
				return nil
			}
			v, err := models[m].Evaluate(samples[m])
			if err != nil {
				return fmt.Errorf("model %d: %w", m, err)
			}
			values[m] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return values, nil
}
