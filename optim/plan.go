package optim

import (
	"fmt"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/partition"
	gomatrix "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Plan is an immutable sample allocation produced by Optimizer
type Plan struct {
	// family is estimator family
	family Family
	// stat is estimated statistic
	stat acv.Statistic
	// costs stores model costs
	costs []float64
	// index is recursion index; nil for families without one
	index alloc.RecursionIndex
	// am is allocation matrix
	am *alloc.Matrix
	// acc keeps track of partition samples
	acc *partition.Accountant
	// targetCost is the cost of the rounded allocation
	targetCost float64
	// optimal stores continuous optimal partition ratios
	optimal []float64
	// criterion is the criterion value of the rounded allocation
	criterion float64
	// cov is estimator covariance
	cov *mat.SymDense
	// CF is covariance between discrepancies
	CF *mat.Dense
	// cf is cross-covariance between the high fidelity estimate and discrepancies
	cf *mat.Dense
	// weights are control variate weights
	weights *mat.Dense
	// lowfi stores known low fidelity statistics
	lowfi [][]float64
}

// Family returns estimator family.
func (p *Plan) Family() Family {
	return p.family
}

// Statistic returns the estimated statistic.
func (p *Plan) Statistic() acv.Statistic {
	return p.stat
}

// NModels returns the number of models sampled by the plan.
func (p *Plan) NModels() int {
	return p.acc.NModels()
}

// Costs returns model costs.
func (p *Plan) Costs() []float64 {
	return append([]float64(nil), p.costs...)
}

// RecursionIndex returns the recursion index or nil if the family does not use one.
func (p *Plan) RecursionIndex() alloc.RecursionIndex {
	if p.index == nil {
		return nil
	}

	return append(alloc.RecursionIndex(nil), p.index...)
}

// Allocation returns allocation matrix.
func (p *Plan) Allocation() *alloc.Matrix {
	return p.am
}

// Accountant returns partition accountant of the plan.
func (p *Plan) Accountant() *partition.Accountant {
	return p.acc
}

// PartitionSamples returns the number of samples of every partition.
func (p *Plan) PartitionSamples() []int {
	return p.acc.PartitionSamples()
}

// ModelSamples returns the number of samples evaluated by every model.
func (p *Plan) ModelSamples() []int {
	return p.acc.ModelSamplesAll()
}

// TargetCost returns the cost of the rounded allocation.
func (p *Plan) TargetCost() float64 {
	return p.targetCost
}

// PartitionRatios returns the ratios of the rounded partition counts to the high fidelity count.
func (p *Plan) PartitionRatios() []float64 {
	return p.acc.Ratios()
}

// OptimalRatios returns continuous optimal partition ratios before rounding.
func (p *Plan) OptimalRatios() []float64 {
	return append([]float64(nil), p.optimal...)
}

// Criterion returns the criterion value of the rounded allocation.
func (p *Plan) Criterion() float64 {
	return p.criterion
}

// Covariance returns estimator covariance.
func (p *Plan) Covariance() mat.Symmetric {
	cov := mat.NewSymDense(p.cov.SymmetricDim(), nil)
	cov.CopySym(p.cov)

	return cov
}

// Discrepancies returns covariance between discrepancies and cross-covariance between
// the high fidelity estimate and discrepancies. It returns nil matrices for MC.
func (p *Plan) Discrepancies() (CF, cf *mat.Dense) {
	if p.CF == nil {
		return nil, nil
	}

	return mat.DenseCopyOf(p.CF), mat.DenseCopyOf(p.cf)
}

// Weights returns control variate weights or nil for MC.
func (p *Plan) Weights() *mat.Dense {
	if p.weights == nil {
		return nil
	}

	return mat.DenseCopyOf(p.weights)
}

// LowFidelityStats returns known low fidelity statistics of CV estimators.
func (p *Plan) LowFidelityStats() [][]float64 {
	if p.lowfi == nil {
		return nil
	}

	out := make([][]float64, len(p.lowfi))
	for i := range p.lowfi {
		out[i] = append([]float64(nil), p.lowfi[i]...)
	}

	return out
}

// String implements the Stringer interface.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan{\nFamily=%s\n", p.family)
	if p.index != nil {
		fmt.Fprintf(&b, "RecursionIndex=%v\n", []int(p.index))
	}
	fmt.Fprintf(&b, "PartitionSamples=%v\n", p.PartitionSamples())
	fmt.Fprintf(&b, "ModelSamples=%v\n", p.ModelSamples())
	fmt.Fprintf(&b, "TargetCost=%g\n", p.targetCost)
	fmt.Fprintf(&b, "Criterion=%g\n", p.criterion)
	fmt.Fprintf(&b, "Allocation=\n%v\n", gomatrix.Format(p.am.Dense()))
	fmt.Fprintf(&b, "Covariance=\n%v\n}", gomatrix.Format(mat.DenseCopyOf(p.cov)))

	return b.String()
}
