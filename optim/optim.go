// Package optim finds sample allocations which minimize a criterion of the covariance
// of approximate control variate estimators for a given computational budget.
package optim

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"
	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/discrepancy"
	"github.com/milosgajdos/go-acv/partition"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// RatioTol is the smallest partition ratio
	RatioTol = 1e-8
	// DefaultMaxIterations is the default limit of solver iterations
	DefaultMaxIterations = 1000
)

// penalties are the weights of the minimum sample violations of successive solves
var penalties = []float64{1e2, 1e4, 1e6}

// Config configures Optimizer
type Config struct {
	// Family is estimator family
	Family Family
	// Criterion reduces estimator covariance to a scalar; LogTrace if nil
	Criterion acv.Criterion
	// Method is numerical optimization method
	Method Method
	// RecursionIndex is fixed recursion index; Zeros if nil and TreeDepth is 0
	RecursionIndex alloc.RecursionIndex
	// TreeDepth enables the search over all recursion indices up to the given depth
	TreeDepth int
	// AllowFailures records failed recursion indices as infinite criteria and continues the search
	AllowFailures bool
	// InitialGuess stores initial partition ratios
	InitialGuess []float64
	// LowFidelityStats stores known statistics of low fidelity models of CV estimators
	LowFidelityStats [][]float64
	// QoI is the quantity of interest used by analytic allocations
	QoI int
	// MaxIterations limits the number of solver iterations
	MaxIterations int
	// Logger is logger
	Logger logr.Logger
}

// Optimizer allocates samples of estimators of a statistic
type Optimizer struct {
	// stat is estimated statistic
	stat acv.Statistic
	// costs stores model costs
	costs []float64
	// cfg is optimizer configuration
	cfg Config
	// cons is estimator family constraint set
	cons ConstraintSet
	// crit is optimization criterion
	crit acv.Criterion
	// log is logger
	log logr.Logger
}

// New creates new Optimizer for the statistic of models with given costs and returns it.
// It returns error if the configuration is invalid.
func New(stat acv.Statistic, costs []float64, c *Config) (*Optimizer, error) {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}

	cons, err := cfg.Family.Constraints()
	if err != nil {
		return nil, err
	}

	nmodels := stat.NModels()
	if len(costs) != nmodels {
		return nil, fmt.Errorf("%w: invalid number of costs: %d, expected %d", acv.ErrConfig, len(costs), nmodels)
	}

	for m, c := range costs {
		if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: invalid cost of model %d: %g", acv.ErrConfig, m, c)
		}
	}

	if !cons.SingleFidelity && nmodels < 2 {
		return nil, fmt.Errorf("%w: %s estimator requires at least 2 models, got %d", acv.ErrConfig, cfg.Family, nmodels)
	}

	if cfg.Criterion == nil {
		cfg.Criterion = LogTrace{}
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	if err := validate(&cfg, cons, stat, costs); err != nil {
		return nil, err
	}

	return &Optimizer{
		stat:  stat,
		costs: append([]float64(nil), costs...),
		cfg:   cfg,
		cons:  cons,
		crit:  cfg.Criterion,
		log:   cfg.Logger.WithValues("estimator", cfg.Family.String()),
	}, nil
}

func validate(cfg *Config, cons ConstraintSet, stat acv.Statistic, costs []float64) error {
	nmodels := stat.NModels()

	if cons.KnownStats {
		if len(cfg.LowFidelityStats) != nmodels-1 {
			return fmt.Errorf("%w: invalid number of low fidelity statistics: %d, expected %d", acv.ErrConfig, len(cfg.LowFidelityStats), nmodels-1)
		}
		for m, s := range cfg.LowFidelityStats {
			if len(s) != stat.NStats() {
				return fmt.Errorf("%w: invalid statistic length of model %d: %d, expected %d", acv.ErrConfig, m+1, len(s), stat.NStats())
			}
		}
	}

	if !cons.Optimized {
		if cfg.TreeDepth != 0 || cfg.RecursionIndex != nil {
			return fmt.Errorf("%w: %s estimator does not accept recursion index or tree depth", acv.ErrConfig, cfg.Family)
		}
	}

	if cons.Chain {
		if cfg.QoI < 0 || cfg.QoI >= stat.NQoI() {
			return fmt.Errorf("%w: invalid quantity of interest: %d", acv.ErrConfig, cfg.QoI)
		}
		cov := qoiCov(stat, cfg.QoI)
		if cfg.Family == MFMC {
			if err := CheckMFMC(cov, costs); err != nil {
				return err
			}
		}
		if cfg.Family == MLMC {
			if _, err := MLMCPartitionRatios(cov, costs); err != nil {
				return err
			}
		}
	}

	if cons.Optimized {
		if cfg.TreeDepth != 0 && cfg.RecursionIndex != nil {
			return fmt.Errorf("%w: recursion index and tree depth are mutually exclusive", acv.ErrConfig)
		}
		if cfg.TreeDepth < 0 || cfg.TreeDepth > nmodels-1 {
			return fmt.Errorf("%w: invalid tree depth: %d, expected value in [1, %d]", acv.ErrConfig, cfg.TreeDepth, nmodels-1)
		}
		if cfg.RecursionIndex == nil && cfg.TreeDepth == 0 {
			cfg.RecursionIndex = alloc.Zeros(nmodels)
		}
		if cfg.RecursionIndex != nil {
			if err := cfg.RecursionIndex.Validate(nmodels); err != nil {
				return err
			}
		}
		if cfg.InitialGuess != nil {
			if len(cfg.InitialGuess) != nmodels-1 {
				return fmt.Errorf("%w: invalid initial guess length: %d, expected %d", acv.ErrConfig, len(cfg.InitialGuess), nmodels-1)
			}
			for _, r := range cfg.InitialGuess {
				if r <= 0 {
					return fmt.Errorf("%w: invalid initial guess: %v", acv.ErrConfig, cfg.InitialGuess)
				}
			}
		}
	}

	return nil
}

// Statistic returns the estimated statistic.
func (o *Optimizer) Statistic() acv.Statistic {
	return o.stat
}

// Family returns estimator family.
func (o *Optimizer) Family() Family {
	return o.cfg.Family
}

// Allocate finds the allocation of samples which spends at most targetCost.
// It returns error if the budget is too small, the solver fails or
// rounding leaves the high fidelity partition empty.
func (o *Optimizer) Allocate(targetCost float64) (*Plan, error) {
	if targetCost <= 0 || math.IsNaN(targetCost) || math.IsInf(targetCost, 0) {
		return nil, fmt.Errorf("%w: invalid target cost: %g", acv.ErrConfig, targetCost)
	}

	if o.cons.SingleFidelity {
		return o.allocateMC(targetCost)
	}

	if total := floats.Sum(o.costs); targetCost < total {
		return nil, fmt.Errorf("%w: target cost %g is smaller than the cost %g of evaluating every model once", acv.ErrInfeasible, targetCost, total)
	}

	switch {
	case o.cons.KnownStats:
		return o.allocateCV(targetCost)
	case o.cons.Chain:
		return o.allocateAnalytic(targetCost)
	case o.cfg.TreeDepth > 0:
		return o.allocateSweep(targetCost)
	default:
		return o.allocateIndex(o.cfg.RecursionIndex, targetCost)
	}
}

// AllocateAll allocates samples for every target cost.
// It returns error if any allocation fails.
func (o *Optimizer) AllocateAll(targetCosts []float64) ([]*Plan, error) {
	plans := make([]*Plan, len(targetCosts))
	for i, t := range targetCosts {
		p, err := o.Allocate(t)
		if err != nil {
			return nil, fmt.Errorf("target cost %g: %w", t, err)
		}
		plans[i] = p
	}

	return plans, nil
}

func (o *Optimizer) allocateMC(targetCost float64) (*Plan, error) {
	n := int(math.Floor(targetCost/o.costs[0] + partition.RoundTol))
	if n < o.stat.MinSamples() {
		return nil, fmt.Errorf("%w: target cost %g buys %d high fidelity samples, at least %d required", acv.ErrInfeasible, targetCost, n, o.stat.MinSamples())
	}

	stat, err := o.stat.Subset([]int{0})
	if err != nil {
		return nil, err
	}

	return o.plan(stat, o.costs[:1], alloc.MC(), nil, []int{n}, nil)
}

func (o *Optimizer) allocateCV(targetCost float64) (*Plan, error) {
	n := int(math.Floor(targetCost/floats.Sum(o.costs) + partition.RoundTol))
	if n < o.stat.MinSamples() {
		return nil, fmt.Errorf("%w: target cost %g buys %d samples per model, at least %d required", acv.ErrInfeasible, targetCost, n, o.stat.MinSamples())
	}

	a, err := alloc.CV(o.stat.NModels())
	if err != nil {
		return nil, err
	}

	counts := make([]int, o.stat.NModels())
	counts[0] = n

	return o.plan(o.stat, o.costs, a, nil, counts, nil)
}

func (o *Optimizer) allocateAnalytic(targetCost float64) (*Plan, error) {
	nmodels := o.stat.NModels()
	index := alloc.Chain(nmodels)
	cov := qoiCov(o.stat, o.cfg.QoI)

	var ratios []float64
	switch o.cfg.Family {
	case MFMC:
		mr, err := MFMCRatios(cov, o.costs)
		if err != nil {
			return nil, err
		}
		ratios = MFMCPartitionRatios(mr)
	case MLMC:
		r, err := MLMCPartitionRatios(cov, o.costs)
		if err != nil {
			return nil, err
		}
		ratios = r
	}

	a, err := alloc.New(o.cons.Policy, index)
	if err != nil {
		return nil, err
	}

	for i := range ratios {
		ratios[i] = math.Max(ratios[i], RatioTol)
	}

	ratios, err = o.repair(a, targetCost, ratios)
	if err != nil {
		return nil, err
	}

	return o.round(a, index, targetCost, ratios)
}

func (o *Optimizer) allocateSweep(targetCost float64) (*Plan, error) {
	indices, err := alloc.Enumerate(o.stat.NModels(), o.cfg.TreeDepth)
	if err != nil {
		return nil, err
	}

	var best *Plan
	for _, index := range indices {
		p, err := o.allocateIndex(index, targetCost)
		if err != nil {
			if !o.cfg.AllowFailures || !IsFailure(err) {
				return nil, fmt.Errorf("recursion index %v: %w", []int(index), err)
			}
			o.log.V(1).Info("recursion index failed", "index", []int(index), "criterion", math.Inf(1), "err", err.Error())
			continue
		}

		o.log.V(1).Info("recursion index optimized", "index", []int(index), "criterion", p.Criterion())
		if best == nil || p.Criterion() < best.Criterion() {
			best = p
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no recursion index of depth %d could be optimized", acv.ErrOptimization, o.cfg.TreeDepth)
	}

	return best, nil
}

func (o *Optimizer) allocateIndex(index alloc.RecursionIndex, targetCost float64) (*Plan, error) {
	a, err := alloc.New(o.cons.Policy, index)
	if err != nil {
		return nil, err
	}

	ratios, err := o.minimize(a, targetCost)
	if err != nil {
		return nil, err
	}

	return o.round(a, index, targetCost, ratios)
}

// Criterion returns the criterion of the estimator covariance for continuous
// partition ratios of the recursion index at targetCost.
// It returns error if the ratios are invalid for the allocation.
func (o *Optimizer) Criterion(index alloc.RecursionIndex, targetCost float64, ratios []float64) (float64, error) {
	if !o.cons.Optimized && !o.cons.Chain {
		return 0, fmt.Errorf("%w: %s estimator has no partition ratios", acv.ErrConfig, o.cfg.Family)
	}

	a, err := alloc.New(o.cons.Policy, index)
	if err != nil {
		return 0, err
	}

	eng, err := discrepancy.New(o.stat, a)
	if err != nil {
		return 0, err
	}

	n, err := partition.FromRatios(a, o.costs, targetCost, ratios)
	if err != nil {
		return 0, err
	}

	cov, err := o.covariance(eng, n)
	if err != nil {
		return 0, err
	}

	return o.crit.Value(cov)
}

// minimize returns continuous partition ratios minimizing the criterion.
func (o *Optimizer) minimize(a *alloc.Matrix, targetCost float64) ([]float64, error) {
	eng, err := discrepancy.New(o.stat, a)
	if err != nil {
		return nil, err
	}

	var (
		best    []float64
		bestVal = math.Inf(1)
		lastErr error
	)

	for _, guess := range o.guesses() {
		ratios, val, err := o.solve(eng, targetCost, guess)
		if err != nil {
			o.log.V(1).Info("initial guess failed", "guess", guess, "err", err.Error())
			lastErr = err
			continue
		}
		if val < bestVal {
			best, bestVal = ratios, val
		}
	}

	if best == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("%w: no finite criterion found", acv.ErrOptimization)
		}
		return nil, lastErr
	}

	return best, nil
}

// guesses returns initial partition ratios.
func (o *Optimizer) guesses() [][]float64 {
	nmodels := o.stat.NModels()
	if o.cfg.InitialGuess != nil {
		return [][]float64{append([]float64(nil), o.cfg.InitialGuess...)}
	}

	ones := make([]float64, nmodels-1)
	for i := range ones {
		ones[i] = 1
	}
	guesses := [][]float64{ones}

	if mr, err := MFMCRatios(qoiCov(o.stat, o.cfg.QoI), o.costs); err == nil {
		ratios := MFMCPartitionRatios(mr)
		finite := true
		for i := range ratios {
			finite = finite && isFinite(ratios[i])
			ratios[i] = math.Max(ratios[i], 1e-2)
		}
		if finite {
			guesses = append(guesses, ratios)
		}
	}

	return guesses
}

// objective returns the penalized criterion of the partition ratios exp(x).
func (o *Optimizer) objective(eng *discrepancy.Engine, targetCost, penalty float64) func([]float64) float64 {
	a := eng.Allocation()
	nmin := float64(o.stat.MinSamples())

	return func(x []float64) float64 {
		n, err := partition.FromRatios(a, o.costs, targetCost, toRatios(x))
		if err != nil {
			return math.Inf(1)
		}

		violation := 0.0
		for p := range n {
			if n[p] < nmin {
				v := (nmin - n[p]) / nmin
				violation += v * v
				n[p] = nmin
			}
		}

		cov, err := eng.EstimatorCovariance(n)
		if err != nil {
			return math.Inf(1)
		}

		val, err := o.crit.Value(cov)
		if err != nil || math.IsNaN(val) {
			return math.Inf(1)
		}

		return val + penalty*violation
	}
}

// solve minimizes the criterion starting at guess and returns
// the repaired optimal ratios and their criterion value.
func (o *Optimizer) solve(eng *discrepancy.Engine, targetCost float64, guess []float64) ([]float64, float64, error) {
	x := make([]float64, len(guess))
	for i, r := range guess {
		x[i] = math.Log(math.Max(r, RatioTol))
	}

	for _, penalty := range penalties {
		res, err := o.run(o.objective(eng, targetCost, penalty), x)
		if err != nil {
			return nil, 0, err
		}
		x = res.X
	}

	ratios, err := o.repair(eng.Allocation(), targetCost, toRatios(x))
	if err != nil {
		return nil, 0, err
	}

	n, err := partition.FromRatios(eng.Allocation(), o.costs, targetCost, ratios)
	if err != nil {
		return nil, 0, err
	}

	cov, err := o.covariance(eng, n)
	if err != nil {
		return nil, 0, err
	}

	val, err := o.crit.Value(cov)
	if err != nil {
		return nil, 0, err
	}

	if math.IsNaN(val) || math.IsInf(val, 0) {
		return nil, 0, fmt.Errorf("%w: criterion is not finite: %g", acv.ErrOptimization, val)
	}

	return ratios, val, nil
}

// run runs the configured solver falling back to Nelder-Mead if it fails.
func (o *Optimizer) run(f func([]float64) float64, x0 []float64) (*optimize.Result, error) {
	problem := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-9,
		MajorIterations:   o.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 50,
		},
	}

	res, err := optimize.Minimize(problem, x0, settings, o.cfg.Method.gonum())
	if err == nil && res != nil && isFinite(res.F) {
		return res, nil
	}

	if o.cfg.Method == NelderMead {
		if err == nil {
			err = fmt.Errorf("criterion is not finite: %g", res.F)
		}
		return nil, fmt.Errorf("%w: %v", acv.ErrOptimization, err)
	}

	start := x0
	if res != nil && isFinite(res.F) && res.F <= f(x0) {
		start = res.X
	}
	o.log.V(1).Info("solver failed, falling back to Nelder-Mead", "method", o.cfg.Method.String(), "err", fmt.Sprint(err))

	res, err = optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", acv.ErrOptimization, err)
	}

	if !isFinite(res.F) {
		return nil, fmt.Errorf("%w: criterion is not finite: %g", acv.ErrOptimization, res.F)
	}

	return res, nil
}

// repair raises the partition ratios until every partition holds the minimum number of samples.
func (o *Optimizer) repair(a *alloc.Matrix, targetCost float64, ratios []float64) ([]float64, error) {
	nmin := float64(o.stat.MinSamples())
	r := append([]float64(nil), ratios...)

	for iter := 0; iter < 1000; iter++ {
		n, err := partition.FromRatios(a, o.costs, targetCost, r)
		if err != nil {
			return nil, err
		}

		if n[0] < nmin-partition.RoundTol/10 {
			return nil, fmt.Errorf("%w: target cost %g leaves %g < %g high fidelity samples", acv.ErrInfeasible, targetCost, n[0], nmin)
		}

		feasible := true
		for p := 1; p < len(n); p++ {
			if n[p] < nmin-partition.RoundTol/10 {
				r[p-1] = nmin / n[0] * (1 + 1e-12)
				feasible = false
			}
		}

		if feasible {
			return r, nil
		}
	}

	return nil, fmt.Errorf("%w: partition ratios %v can not satisfy the minimum sample counts at target cost %g", acv.ErrInfeasible, ratios, targetCost)
}

// covariance returns the estimator covariance given partition counts n.
func (o *Optimizer) covariance(eng *discrepancy.Engine, n []float64) (*mat.SymDense, error) {
	if !o.cons.Recursive {
		return eng.EstimatorCovariance(n)
	}

	hf, err := eng.HighFidelityCovariance(n)
	if err != nil {
		return nil, err
	}

	CF, cf, err := eng.Covariances(n)
	if err != nil {
		return nil, err
	}

	W := discrepancy.RecursiveWeights(o.stat.NStats(), o.stat.NModels())

	return discrepancy.CovarianceWithWeights(hf, W, CF, cf)
}

// round floors the partition counts implied by the ratios and builds the plan.
func (o *Optimizer) round(a *alloc.Matrix, index alloc.RecursionIndex, targetCost float64, ratios []float64) (*Plan, error) {
	n, err := partition.FromRatios(a, o.costs, targetCost, ratios)
	if err != nil {
		return nil, err
	}

	counts, err := partition.Round(n)
	if err != nil {
		return nil, err
	}

	return o.plan(o.stat, o.costs, a, index, counts, ratios)
}

// plan builds the plan of rounded partition counts.
func (o *Optimizer) plan(stat acv.Statistic, costs []float64, a *alloc.Matrix, index alloc.RecursionIndex, counts []int, optimal []float64) (*Plan, error) {
	acc, err := partition.New(a, counts)
	if err != nil {
		return nil, err
	}

	nmin := stat.MinSamples()
	for m, n := range acc.ModelSamplesAll() {
		if n < nmin {
			return nil, fmt.Errorf("%w: model %d is allocated %d samples, at least %d required", acv.ErrInfeasible, m, n, nmin)
		}
	}

	if o.cons.Optimized || o.cons.Chain {
		for p, n := range counts {
			if n < nmin {
				return nil, fmt.Errorf("%w: partition %d is allocated %d samples, at least %d required", acv.ErrInfeasible, p, n, nmin)
			}
		}
	}

	eng, err := discrepancy.New(stat, a)
	if err != nil {
		return nil, err
	}

	n := make([]float64, len(counts))
	for i, c := range counts {
		n[i] = float64(c)
	}

	hf, err := eng.HighFidelityCovariance(n)
	if err != nil {
		return nil, err
	}

	CF, cf, err := eng.Covariances(n)
	if err != nil {
		return nil, err
	}

	cov := hf
	var W *mat.Dense
	if CF != nil {
		if o.cons.Recursive {
			W = discrepancy.RecursiveWeights(stat.NStats(), stat.NModels())
			cov, err = discrepancy.CovarianceWithWeights(hf, W, CF, cf)
		} else {
			W, err = discrepancy.Weights(CF, cf)
			if err == nil {
				cov, err = discrepancy.OptimalCovariance(hf, W, cf)
			}
		}
		if err != nil {
			return nil, err
		}
	}

	val, err := o.crit.Value(cov)
	if err != nil {
		return nil, err
	}

	cost, err := acc.Cost(costs)
	if err != nil {
		return nil, err
	}

	var lowfi [][]float64
	if o.cons.KnownStats {
		lowfi = make([][]float64, len(o.cfg.LowFidelityStats))
		for i := range lowfi {
			lowfi[i] = append([]float64(nil), o.cfg.LowFidelityStats[i]...)
		}
	}

	var idx alloc.RecursionIndex
	if index != nil {
		idx = append(alloc.RecursionIndex(nil), index...)
	}

	return &Plan{
		family:     o.cfg.Family,
		stat:       stat,
		costs:      append([]float64(nil), costs...),
		index:      idx,
		am:         a,
		acc:        acc,
		targetCost: cost,
		optimal:    append([]float64(nil), optimal...),
		criterion:  val,
		cov:        cov,
		CF:         CF,
		cf:         cf,
		weights:    W,
		lowfi:      lowfi,
	}, nil
}

func toRatios(x []float64) []float64 {
	r := make([]float64, len(x))
	for i, v := range x {
		r[i] = math.Max(math.Exp(math.Min(v, 50)), RatioTol)
	}

	return r
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsFailure reports whether err is an optimization failure which a sweep may skip.
func IsFailure(err error) bool {
	return errors.Is(err, acv.ErrOptimization) || errors.Is(err, acv.ErrInfeasible)
}

// VarianceReduction returns the ratio of crit evaluated at the covariance of single fidelity
// Monte Carlo estimator of the same cost to crit evaluated at the covariance of the plan.
// It returns error if either criterion can not be evaluated.
func VarianceReduction(p *Plan, crit acv.Criterion) (float64, error) {
	stat, err := p.Statistic().Subset([]int{0})
	if err != nil {
		return 0, err
	}

	eng, err := discrepancy.New(stat, alloc.MC())
	if err != nil {
		return 0, err
	}

	mc, err := eng.HighFidelityCovariance([]float64{p.TargetCost() / p.costs[0]})
	if err != nil {
		return 0, err
	}

	num, err := crit.Value(mc)
	if err != nil {
		return 0, err
	}

	den, err := crit.Value(p.cov)
	if err != nil {
		return 0, err
	}

	if den == 0 {
		return math.Inf(1), nil
	}

	return num / den, nil
}
