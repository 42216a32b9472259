package optim

import (
	"fmt"
	"math"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
)

// LogDet is log-determinant criterion
type LogDet struct{}

// Value returns log-determinant of cov.
// It returns error if cov is not positive definite.
func (LogDet) Value(cov mat.Symmetric) (float64, error) {
	det, sign := mat.LogDet(cov)
	if sign <= 0 {
		return math.Inf(1), fmt.Errorf("%w: covariance is not positive definite", acv.ErrOptimization)
	}

	return det, nil
}

// Det is determinant criterion
type Det struct{}

// Value returns determinant of cov.
func (Det) Value(cov mat.Symmetric) (float64, error) {
	return mat.Det(cov), nil
}

// LogTrace is log-trace criterion
type LogTrace struct{}

// Value returns log of the trace of cov.
// It returns error if the trace is not positive.
func (LogTrace) Value(cov mat.Symmetric) (float64, error) {
	tr := mat.Trace(cov)
	if tr <= 0 {
		return math.Inf(1), fmt.Errorf("%w: covariance trace is not positive: %g", acv.ErrOptimization, tr)
	}

	return math.Log(tr), nil
}

// Trace is trace criterion
type Trace struct{}

// Value returns trace of cov.
func (Trace) Value(cov mat.Symmetric) (float64, error) {
	return mat.Trace(cov), nil
}

// LogLinear is log of a weighted sum of the covariance diagonal
type LogLinear struct {
	// Weights stores diagonal weights
	Weights []float64
}

// Value returns log of the weighted sum of the diagonal of cov.
// It returns error if the weights do not match cov or the sum is not positive.
func (c LogLinear) Value(cov mat.Symmetric) (float64, error) {
	if len(c.Weights) != cov.SymmetricDim() {
		return math.Inf(1), fmt.Errorf("%w: invalid number of criterion weights: %d, expected %d", acv.ErrConfig, len(c.Weights), cov.SymmetricDim())
	}

	sum := 0.0
	for i, w := range c.Weights {
		sum += w * cov.At(i, i)
	}

	if sum <= 0 {
		return math.Inf(1), fmt.Errorf("%w: weighted variance is not positive: %g", acv.ErrOptimization, sum)
	}

	return math.Log(sum), nil
}

// Func is criterion implemented by a user function
type Func func(mat.Symmetric) (float64, error)

// Value returns f(cov).
func (f Func) Value(cov mat.Symmetric) (float64, error) {
	return f(cov)
}

// ParseCriterion parses criterion name.
func ParseCriterion(s string) (acv.Criterion, error) {
	switch strings.ToLower(s) {
	case "logdet", "log_det":
		return LogDet{}, nil
	case "det":
		return Det{}, nil
	case "logtrace", "log_trace", "":
		return LogTrace{}, nil
	case "trace":
		return Trace{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported criterion: %q", acv.ErrConfig, s)
	}
}
