package optim

import (
	"fmt"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/optimize"
)

// Method is numerical optimization method
type Method int

const (
	// LBFGS is limited memory BFGS quasi-Newton method
	LBFGS Method = iota
	// BFGS is BFGS quasi-Newton method
	BFGS
	// NelderMead is derivative free Nelder-Mead simplex method
	NelderMead
)

// String implements the Stringer interface.
func (m Method) String() string {
	switch m {
	case LBFGS:
		return "lbfgs"
	case BFGS:
		return "bfgs"
	case NelderMead:
		return "nelder-mead"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses optimization method name.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "lbfgs", "":
		return LBFGS, nil
	case "bfgs":
		return BFGS, nil
	case "nelder-mead", "neldermead":
		return NelderMead, nil
	default:
		return 0, fmt.Errorf("%w: unsupported optimization method: %q", acv.ErrConfig, s)
	}
}

// gonum returns gonum optimization method.
func (m Method) gonum() optimize.Method {
	switch m {
	case BFGS:
		return &optimize.BFGS{}
	case NelderMead:
		return &optimize.NelderMead{}
	default:
		return &optimize.LBFGS{}
	}
}
