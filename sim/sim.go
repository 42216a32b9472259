// Package sim provides synthetic model ensembles whose output moments are known analytically.
package sim

import (
	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
)

// Ensemble is an ensemble of models with analytic output moments
type Ensemble interface {
	// Models returns models ordered from the high fidelity model
	Models() []acv.Model
	// Costs returns model costs
	Costs() []float64
	// NQoI returns the number of quantities of interest per model
	NQoI() int
	// Means returns the means of all model outputs
	Means() []float64
	// Cov returns the covariance between all model outputs
	Cov() *mat.SymDense
	// W returns the covariance between centered second moments of all model outputs
	W() *mat.SymDense
	// B returns the covariance between model outputs and their centered second moments
	B() *mat.Dense
}
