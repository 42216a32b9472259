package optim

import (
	"fmt"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
)

// Family is estimator family
type Family int

const (
	// MC is single fidelity Monte Carlo
	MC Family = iota
	// CV is control variate estimator with known low fidelity statistics
	CV
	// GMF is generalized multifidelity ACV estimator
	GMF
	// GIS is generalized independent samples ACV estimator
	GIS
	// GRD is generalized recursive difference ACV estimator
	GRD
	// MFMC is multifidelity Monte Carlo
	MFMC
	// MLMC is multilevel Monte Carlo
	MLMC
)

var familyNames = map[Family]string{
	MC:   "mc",
	CV:   "cv",
	GMF:  "gmf",
	GIS:  "gis",
	GRD:  "grd",
	MFMC: "mfmc",
	MLMC: "mlmc",
}

// String implements the Stringer interface.
func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}

	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily parses estimator family name.
func ParseFamily(s string) (Family, error) {
	for f, name := range familyNames {
		if strings.ToLower(s) == name {
			return f, nil
		}
	}

	return 0, fmt.Errorf("%w: unsupported estimator: %q", acv.ErrConfig, s)
}

// ConstraintSet describes how an estimator family constrains its allocation
type ConstraintSet struct {
	// Policy is allocation matrix construction policy
	Policy alloc.Policy
	// Optimized is true if the partition ratios are found by numerical optimization
	Optimized bool
	// Chain is true if the recursion index is fixed to a chain
	Chain bool
	// Recursive is true if the estimator uses fixed telescoping weights
	Recursive bool
	// KnownStats is true if the low fidelity statistics are known exactly
	KnownStats bool
	// SingleFidelity is true if only the high fidelity model is sampled
	SingleFidelity bool
}

// Constraints returns the constraint set of the family.
// MFMC ratios are non-decreasing along the chain by construction of the analytic allocation.
func (f Family) Constraints() (ConstraintSet, error) {
	switch f {
	case MC:
		return ConstraintSet{SingleFidelity: true}, nil
	case CV:
		return ConstraintSet{KnownStats: true}, nil
	case GMF:
		return ConstraintSet{Policy: alloc.GMF, Optimized: true}, nil
	case GIS:
		return ConstraintSet{Policy: alloc.GIS, Optimized: true}, nil
	case GRD:
		return ConstraintSet{Policy: alloc.GRD, Optimized: true}, nil
	case MFMC:
		return ConstraintSet{Policy: alloc.GMF, Chain: true}, nil
	case MLMC:
		return ConstraintSet{Policy: alloc.GRD, Chain: true, Recursive: true}, nil
	default:
		return ConstraintSet{}, fmt.Errorf("%w: unsupported estimator: %d", acv.ErrConfig, int(f))
	}
}
