package acv

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrConfig is returned when an estimator is configured with invalid inputs.
	ErrConfig = errors.New("invalid configuration")
	// ErrInfeasible is returned when a budget can not buy the minimum number of samples.
	ErrInfeasible = errors.New("infeasible allocation")
	// ErrOptimization is returned when the numerical optimizer fails.
	ErrOptimization = errors.New("optimization failed")
	// ErrShape is returned when realized samples or values have unexpected dimensions.
	ErrShape = errors.New("shape mismatch")
)

// Model is a black-box model of quantities of interest
type Model interface {
	// Evaluate evaluates the model at samples stored in columns
	// and returns the values stored in rows: one row per sample.
	Evaluate(mat.Matrix) (*mat.Dense, error)
}

// Sampler draws random realizations of model inputs
type Sampler interface {
	// Sample returns n samples stored in matrix columns
	Sample(n int) (*mat.Dense, error)
}

// Statistic is a statistic of model quantities of interest
// whose estimators are combined by approximate control variates
type Statistic interface {
	// NQoI returns the number of quantities of interest per model
	NQoI() int
	// NModels returns the number of models
	NModels() int
	// NStats returns the length of the statistic vector
	NStats() int
	// MinSamples returns the minimum number of samples
	// required to compute the statistic
	MinSamples() int
	// Cov returns the covariance between all model outputs
	Cov() mat.Symmetric
	// SampleEstimate computes the statistic from values stored in rows
	SampleEstimate(mat.Matrix) (*mat.VecDense, error)
	// CrossCov returns the covariance between the estimates of the statistic of
	// model i and model j computed from two sample sets whose overlap is
	// described by the coefficients g = P/(NM) and h = P(P-1)/(N(N-1)M(M-1)),
	// where P is the number of shared samples and N and M are the set sizes.
	CrossCov(i, j int, g, h float64) *mat.Dense
	// Subset returns the statistic restricted to the given models
	Subset(models []int) (Statistic, error)
}

// Criterion reduces an estimator covariance to a scalar
type Criterion interface {
	// Value returns the criterion value of the covariance
	Value(mat.Symmetric) (float64, error)
}

// Estimate is a statistic estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}
