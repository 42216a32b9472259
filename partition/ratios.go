package partition

import (
	"fmt"
	"math"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
)

// RoundTol is the tolerance added to sample counts before flooring them
const RoundTol = 1e-8

// ModelRatios returns for every model the ratio of the number of samples it evaluates
// to the number of samples of the high fidelity partition, given the ratios
// of the sample counts of partitions 1..M-1 to the count of partition 0.
// It returns error if the number of ratios does not match the allocation matrix.
func ModelRatios(a *alloc.Matrix, ratios []float64) ([]float64, error) {
	if len(ratios) != a.NModels()-1 {
		return nil, fmt.Errorf("%w: invalid number of partition ratios: %d, expected %d", acv.ErrConfig, len(ratios), a.NModels()-1)
	}

	out := make([]float64, a.NModels())
	for m := range out {
		for _, p := range a.Partitions(m) {
			if p == 0 {
				out[m]++
				continue
			}
			out[m] += ratios[p-1]
		}
	}

	return out, nil
}

// FromRatios returns the continuous partition sample counts which spend targetCost
// given the partition ratios and model costs.
// It returns error if the dimensions of costs or ratios do not match the allocation matrix.
func FromRatios(a *alloc.Matrix, costs []float64, targetCost float64, ratios []float64) ([]float64, error) {
	if len(costs) != a.NModels() {
		return nil, fmt.Errorf("%w: invalid number of costs: %d, expected %d", acv.ErrConfig, len(costs), a.NModels())
	}

	mr, err := ModelRatios(a, ratios)
	if err != nil {
		return nil, err
	}

	unit := 0.0
	for m := range mr {
		unit += mr[m] * costs[m]
	}

	counts := make([]float64, a.NModels())
	counts[0] = targetCost / unit
	for p := 1; p < len(counts); p++ {
		counts[p] = ratios[p-1] * counts[0]
	}

	return counts, nil
}

// Round floors continuous partition sample counts with RoundTol tolerance.
// It returns error if the high fidelity partition would be left without samples.
func Round(counts []float64) ([]int, error) {
	if len(counts) == 0 || counts[0] < 1-RoundTol {
		return nil, fmt.Errorf("%w: high fidelity partition would be empty: %v", acv.ErrInfeasible, counts)
	}

	out := make([]int, len(counts))
	for p, c := range counts {
		if c < 0 || math.IsNaN(c) {
			return nil, fmt.Errorf("%w: invalid sample count of partition %d: %g", acv.ErrInfeasible, p, c)
		}
		out[p] = int(math.Floor(c + RoundTol))
	}

	return out, nil
}

// Cost returns the cost of evaluating every model on its samples.
func (a *Accountant) Cost(costs []float64) (float64, error) {
	if len(costs) != a.NModels() {
		return 0, fmt.Errorf("%w: invalid number of costs: %d, expected %d", acv.ErrConfig, len(costs), a.NModels())
	}

	total := 0.0
	for m, n := range a.ModelSamplesAll() {
		total += float64(n) * costs[m]
	}

	return total, nil
}

// Ratios returns the ratios of the partition sample counts to the high fidelity partition count.
func (a *Accountant) Ratios() []float64 {
	ratios := make([]float64, len(a.counts)-1)
	for p := range ratios {
		ratios[p] = float64(a.counts[p+1]) / float64(a.counts[0])
	}

	return ratios
}
