package optim

import (
	"fmt"
	"math"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
)

// perfectTol is the distance from one of squared correlations treated as perfect
const perfectTol = 1e-12

// qoiCov returns the covariance between models of quantity of interest q.
func qoiCov(stat acv.Statistic, q int) *mat.SymDense {
	nqoi, nmodels := stat.NQoI(), stat.NModels()
	full := stat.Cov()

	cov := mat.NewSymDense(nmodels, nil)
	for i := 0; i < nmodels; i++ {
		for j := i; j < nmodels; j++ {
			cov.SetSym(i, j, full.At(i*nqoi+q, j*nqoi+q))
		}
	}

	return cov
}

// correlations returns correlations of every model with the high fidelity model.
func correlations(cov mat.Symmetric) []float64 {
	n := cov.SymmetricDim()
	rho := make([]float64, n)
	for m := 0; m < n; m++ {
		rho[m] = cov.At(0, m) / math.Sqrt(cov.At(0, 0)*cov.At(m, m))
	}

	return rho
}

// CheckMFMC checks that models are ordered by decreasing correlation with the high fidelity
// model, that the first low fidelity model is not perfectly correlated with it and that
// the costs satisfy the conditions of the optimal MFMC allocation.
// It returns error if any condition is violated.
func CheckMFMC(cov mat.Symmetric, costs []float64) error {
	n := cov.SymmetricDim()
	if n != len(costs) || n < 2 {
		return fmt.Errorf("%w: invalid dimensions: costs %d, covariance %d x %d", acv.ErrConfig, len(costs), n, n)
	}

	rho := correlations(cov)
	rho2 := make([]float64, n+1)
	for m := 0; m < n; m++ {
		rho2[m] = rho[m] * rho[m]
	}

	// the optimal ratios are proportional to 1/sqrt(1-rho_1^2)
	if rho2[1] >= 1-perfectTol {
		return fmt.Errorf("%w: model 1 is perfectly correlated with the high fidelity model: correlation %g", acv.ErrConfig, rho[1])
	}

	for m := 1; m < n-1; m++ {
		if rho2[m] < rho2[m+1] {
			return fmt.Errorf("%w: models must be ordered by decreasing correlation with the high fidelity model: %v", acv.ErrConfig, rho)
		}
	}

	for m := 1; m < n; m++ {
		den := rho2[m] - rho2[m+1]
		if den <= 0 || costs[m-1]/costs[m] <= (rho2[m-1]-rho2[m])/den {
			return fmt.Errorf("%w: model %d violates MFMC cost and correlation conditions: costs %v, correlations %v", acv.ErrConfig, m, costs, rho)
		}
	}

	return nil
}

// MFMCRatios returns the ratios of the number of samples of every low fidelity model
// to the number of high fidelity samples of the optimal MFMC allocation.
// It returns error if the models violate the MFMC conditions.
func MFMCRatios(cov mat.Symmetric, costs []float64) ([]float64, error) {
	if err := CheckMFMC(cov, costs); err != nil {
		return nil, err
	}

	n := cov.SymmetricDim()
	rho := correlations(cov)
	rho2 := make([]float64, n+1)
	for m := 0; m < n; m++ {
		rho2[m] = rho[m] * rho[m]
	}

	ratios := make([]float64, n-1)
	for m := 1; m < n; m++ {
		ratios[m-1] = math.Sqrt(costs[0] * (rho2[m] - rho2[m+1]) / (costs[m] * (1 - rho2[1])))
	}

	return ratios, nil
}

// MFMCPartitionRatios converts MFMC model ratios into the partition ratios of a GMF chain.
func MFMCPartitionRatios(modelRatios []float64) []float64 {
	ratios := make([]float64, len(modelRatios))
	prev := 1.0
	for i, r := range modelRatios {
		ratios[i] = r - prev
		prev = r
	}

	return ratios
}

// MLMCPartitionRatios returns the partition ratios of the optimal MLMC allocation
// of a GRD chain: the samples of level l are proportional to sqrt(V_l / C_l), where V_l
// is the variance of the difference of models l and l+1 and C_l the cost of evaluating both.
// It returns error if any level variance is not positive.
func MLMCPartitionRatios(cov mat.Symmetric, costs []float64) ([]float64, error) {
	n := cov.SymmetricDim()
	if n != len(costs) || n < 2 {
		return nil, fmt.Errorf("%w: invalid dimensions: costs %d, covariance %d x %d", acv.ErrConfig, len(costs), n, n)
	}

	levels := make([]float64, n)
	for l := 0; l < n; l++ {
		v, c := cov.At(l, l), costs[l]
		if l < n-1 {
			v += cov.At(l+1, l+1) - 2*cov.At(l, l+1)
			c += costs[l+1]
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: variance of level %d is not positive: %g", acv.ErrConfig, l, v)
		}
		levels[l] = math.Sqrt(v / c)
	}

	ratios := make([]float64, n-1)
	for l := 1; l < n; l++ {
		ratios[l-1] = levels[l] / levels[0]
	}

	return ratios, nil
}
