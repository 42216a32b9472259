// Package config loads run options and allocation problems.
package config

import (
	"fmt"
	"strconv"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/optim"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables of run options
const EnvPrefix = "ACV"

// flagBindings maps viper keys (= env var names without prefix) to pflag names.
var flagBindings = map[string]string{
	"CONFIG":         "config",
	"PROBLEM":        "problem",
	"ESTIMATORS":     "estimators",
	"CRITERION":      "criterion",
	"METHOD":         "method",
	"TARGET_COSTS":   "target-costs",
	"TREE_DEPTH":     "tree-depth",
	"MAX_MODELS":     "max-models",
	"ALLOW_FAILURES": "allow-failures",
	"MAX_ITERATIONS": "max-iterations",
	"WORKERS":        "workers",
	"V":              "v",
	"DEVELOPMENT":    "development",
}

// Options are run options
type Options struct {
	// Problem is path to the problem file
	Problem string
	// Estimators are searched estimator families
	Estimators []optim.Family
	// Criterion is optimization criterion
	Criterion string
	// Method is optimization method
	Method optim.Method
	// TargetCosts are allocated budgets
	TargetCosts []float64
	// TreeDepth is the depth of the recursion index search
	TreeDepth int
	// MaxModels is the maximum number of models of the subset search
	MaxModels int
	// AllowFailures skips failed recursion indices
	AllowFailures bool
	// MaxIterations limits the number of solver iterations
	MaxIterations int
	// Workers limits the number of concurrent optimizations
	Workers int
	// Verbosity is log verbosity
	Verbosity int
	// Development enables human readable logs
	Development bool
}

// Flags returns flag set of run options.
func Flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "path to run options file")
	fs.String("problem", "", "path to problem file")
	fs.StringSlice("estimators", []string{"gmf"}, "estimator families: mc, cv, gmf, gis, grd, mfmc, mlmc")
	fs.String("criterion", "logtrace", "optimization criterion: logdet, det, logtrace, trace")
	fs.String("method", "lbfgs", "optimization method: lbfgs, bfgs, nelder-mead")
	fs.StringSlice("target-costs", []string{"100"}, "target costs")
	fs.Int("tree-depth", 0, "maximum depth of searched recursion indices")
	fs.Int("max-models", 0, "maximum number of models of searched subsets")
	fs.Bool("allow-failures", false, "skip recursion indices which fail to optimize")
	fs.Int("max-iterations", optim.DefaultMaxIterations, "maximum number of solver iterations")
	fs.Int("workers", 0, "number of concurrent optimizations")
	fs.Int("v", 0, "log verbosity")
	fs.Bool("development", false, "human readable logs")

	return fs
}

// Load loads run options.
// Precedence: flags > env > config file > defaults
// flagSet may be nil.
func Load(flagSet *flag.FlagSet) (*Options, error) {
	v := viper.New()

	v.SetDefault("CONFIG", "")
	v.SetDefault("PROBLEM", "")
	v.SetDefault("ESTIMATORS", []string{"gmf"})
	v.SetDefault("CRITERION", "logtrace")
	v.SetDefault("METHOD", "lbfgs")
	v.SetDefault("TARGET_COSTS", []string{"100"})
	v.SetDefault("TREE_DEPTH", 0)
	v.SetDefault("MAX_MODELS", 0)
	v.SetDefault("ALLOW_FAILURES", false)
	v.SetDefault("MAX_ITERATIONS", optim.DefaultMaxIterations)
	v.SetDefault("WORKERS", 0)
	v.SetDefault("V", 0)
	v.SetDefault("DEVELOPMENT", false)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flagSet != nil {
		for key, name := range flagBindings {
			if f := flagSet.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	if file := v.GetString("CONFIG"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", file, err)
		}
	}

	opts := &Options{
		Problem:       v.GetString("PROBLEM"),
		Criterion:     v.GetString("CRITERION"),
		TreeDepth:     v.GetInt("TREE_DEPTH"),
		MaxModels:     v.GetInt("MAX_MODELS"),
		AllowFailures: v.GetBool("ALLOW_FAILURES"),
		MaxIterations: v.GetInt("MAX_ITERATIONS"),
		Workers:       v.GetInt("WORKERS"),
		Verbosity:     v.GetInt("V"),
		Development:   v.GetBool("DEVELOPMENT"),
	}

	for _, name := range list(v.GetStringSlice("ESTIMATORS")) {
		f, err := optim.ParseFamily(name)
		if err != nil {
			return nil, err
		}
		opts.Estimators = append(opts.Estimators, f)
	}

	method, err := optim.ParseMethod(v.GetString("METHOD"))
	if err != nil {
		return nil, err
	}
	opts.Method = method

	for _, s := range list(v.GetStringSlice("TARGET_COSTS")) {
		c, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid target cost %q: %v", acv.ErrConfig, s, err)
		}
		opts.TargetCosts = append(opts.TargetCosts, c)
	}

	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return opts, nil
}

// Validate validates run options.
func Validate(opts *Options) error {
	if len(opts.Estimators) == 0 {
		return fmt.Errorf("%w: no estimators", acv.ErrConfig)
	}

	if _, err := optim.ParseCriterion(opts.Criterion); err != nil {
		return err
	}

	if len(opts.TargetCosts) == 0 {
		return fmt.Errorf("%w: no target costs", acv.ErrConfig)
	}

	for _, c := range opts.TargetCosts {
		if c <= 0 {
			return fmt.Errorf("%w: invalid target cost: %g", acv.ErrConfig, c)
		}
	}

	if opts.TreeDepth < 0 || opts.MaxModels < 0 || opts.Workers < 0 || opts.MaxIterations < 0 {
		return fmt.Errorf("%w: negative tree depth %d, max models %d, workers %d or max iterations %d",
			acv.ErrConfig, opts.TreeDepth, opts.MaxModels, opts.Workers, opts.MaxIterations)
	}

	return nil
}

// list splits comma separated values.
func list(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}

	return out
}
