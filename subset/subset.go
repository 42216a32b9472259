// Package subset searches for the subset of low fidelity models and the estimator family
// whose optimal allocation minimizes the estimator criterion.
package subset

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/go-logr/logr"
	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/optim"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/combin"
)

// Config configures Search
type Config struct {
	// Families are searched estimator families; GMF if empty
	Families []optim.Family
	// MaxModels is the maximum number of models including the high fidelity model.
	// Only the full ensemble is searched if MaxModels is 0.
	MaxModels int
	// Criterion reduces estimator covariance to a scalar
	Criterion acv.Criterion
	// Method is numerical optimization method
	Method optim.Method
	// RecursionIndex is recursion index of the full ensemble restricted to every subset
	RecursionIndex alloc.RecursionIndex
	// TreeDepth enables the recursion index search of every subset
	TreeDepth int
	// AllowFailures skips failed recursion indices within a subset
	AllowFailures bool
	// LowFidelityStats stores known statistics of the low fidelity models of CV estimators
	LowFidelityStats [][]float64
	// MaxIterations limits the number of solver iterations
	MaxIterations int
	// Workers limits the number of concurrent optimizations; GOMAXPROCS if 0
	Workers int
	// Logger is logger
	Logger logr.Logger
}

// Result is the best plan found by Search
type Result struct {
	// Models stores indices of the selected models starting with the high fidelity model
	Models []int
	// Plan is the allocation of the selected models
	Plan *optim.Plan
}

// task is an immutable optimization task of a single model subset
type task struct {
	index  int
	models []int
	family optim.Family
	stat   acv.Statistic
	costs  []float64
	target float64
	cfg    optim.Config
}

// Search optimizes every configured estimator family for every subset of low fidelity models
// and returns the plan with the smallest criterion. Ties are broken by the enumeration order
// of subsets of increasing size, then by the order of families.
// Failed subsets are discarded. It returns error if no subset can be allocated.
func Search(ctx context.Context, stat acv.Statistic, costs []float64, target float64, c *Config) (*Result, error) {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}

	if len(cfg.Families) == 0 {
		cfg.Families = []optim.Family{optim.GMF}
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	tasks, err := newTasks(stat, costs, target, &cfg)
	if err != nil {
		return nil, err
	}

	plans := make([]*optim.Plan, len(tasks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, t := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			p, err := t.run()
			if err != nil {
				cfg.Logger.V(1).Info("discarding subset", "models", t.models, "estimator", t.family.String(), "err", err.Error())
				return nil
			}

			cfg.Logger.V(1).Info("subset optimized", "models", t.models, "estimator", t.family.String(), "criterion", p.Criterion())
			plans[t.index] = p

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := -1
	bestVal := math.Inf(1)
	for i, p := range plans {
		if p != nil && p.Criterion() < bestVal {
			best, bestVal = i, p.Criterion()
		}
	}

	if best < 0 {
		return nil, fmt.Errorf("%w: no subset of models can be allocated at target cost %g", acv.ErrInfeasible, target)
	}

	return &Result{
		Models: append([]int(nil), tasks[best].models...),
		Plan:   plans[best],
	}, nil
}

// newTasks enumerates the optimization tasks.
func newTasks(stat acv.Statistic, costs []float64, target float64, cfg *Config) ([]task, error) {
	nmodels := stat.NModels()
	if len(costs) != nmodels {
		return nil, fmt.Errorf("%w: invalid number of costs: %d, expected %d", acv.ErrConfig, len(costs), nmodels)
	}

	if nmodels < 2 {
		return nil, fmt.Errorf("%w: at least 2 models required, got %d", acv.ErrConfig, nmodels)
	}

	if cfg.MaxModels < 0 || cfg.MaxModels == 1 || cfg.MaxModels > nmodels {
		return nil, fmt.Errorf("%w: invalid maximum number of models: %d, expected value in [2, %d]", acv.ErrConfig, cfg.MaxModels, nmodels)
	}

	if cfg.RecursionIndex != nil {
		if err := cfg.RecursionIndex.Validate(nmodels); err != nil {
			return nil, err
		}
	}

	if cfg.LowFidelityStats != nil && len(cfg.LowFidelityStats) != nmodels-1 {
		return nil, fmt.Errorf("%w: invalid number of low fidelity statistics: %d, expected %d", acv.ErrConfig, len(cfg.LowFidelityStats), nmodels-1)
	}

	minSize, maxSize := nmodels-1, nmodels-1
	if cfg.MaxModels > 0 {
		minSize, maxSize = 1, cfg.MaxModels-1
	}

	var tasks []task
	for k := minSize; k <= maxSize; k++ {
		gen := combin.NewCombinationGenerator(nmodels-1, k)
		for gen.Next() {
			lowfi := gen.Combination(nil)
			for i := range lowfi {
				lowfi[i]++
			}
			models := append([]int{0}, lowfi...)

			sub, err := stat.Subset(models)
			if err != nil {
				return nil, err
			}

			subCosts := make([]float64, len(models))
			for i, m := range models {
				subCosts[i] = costs[m]
			}

			for _, f := range cfg.Families {
				ocfg, err := taskConfig(cfg, f, lowfi)
				if err != nil {
					return nil, err
				}
				tasks = append(tasks, task{
					index:  len(tasks),
					models: models,
					family: f,
					stat:   sub,
					costs:  subCosts,
					target: target,
					cfg:    ocfg,
				})
			}
		}
	}

	return tasks, nil
}

// taskConfig returns optimizer configuration of the subset of low fidelity models.
func taskConfig(cfg *Config, f optim.Family, lowfi []int) (optim.Config, error) {
	cons, err := f.Constraints()
	if err != nil {
		return optim.Config{}, err
	}

	ocfg := optim.Config{
		Family:        f,
		Criterion:     cfg.Criterion,
		Method:        cfg.Method,
		MaxIterations: cfg.MaxIterations,
		Logger:        cfg.Logger,
	}

	if cons.Optimized {
		ocfg.AllowFailures = cfg.AllowFailures
		if cfg.TreeDepth > 0 {
			ocfg.TreeDepth = min(cfg.TreeDepth, len(lowfi))
		}
		if cfg.RecursionIndex != nil {
			index, err := cfg.RecursionIndex.Restrict(lowfi)
			if err != nil {
				return optim.Config{}, err
			}
			ocfg.RecursionIndex = index
		}
	}

	if cons.KnownStats && cfg.LowFidelityStats != nil {
		ocfg.LowFidelityStats = make([][]float64, len(lowfi))
		for i, m := range lowfi {
			ocfg.LowFidelityStats[i] = append([]float64(nil), cfg.LowFidelityStats[m-1]...)
		}
	}

	return ocfg, nil
}

func (t task) run() (*optim.Plan, error) {
	o, err := optim.New(t.stat, t.costs, &t.cfg)
	if err != nil {
		return nil, err
	}

	return o.Allocate(t.target)
}
