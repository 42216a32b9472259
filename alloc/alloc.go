package alloc

import (
	"fmt"
	"strings"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/mat"
)

// Policy is allocation matrix construction policy
type Policy int

const (
	// GMF is generalized multifidelity policy
	GMF Policy = iota
	// GIS is generalized independent samples policy
	GIS
	// GRD is generalized recursive difference policy
	GRD
)

// String implements the Stringer interface.
func (p Policy) String() string {
	switch p {
	case GMF:
		return "gmf"
	case GIS:
		return "gis"
	case GRD:
		return "grd"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "gmf":
		return GMF, nil
	case "gis":
		return GIS, nil
	case "grd":
		return GRD, nil
	default:
		return 0, fmt.Errorf("%w: unsupported allocation policy: %q", acv.ErrConfig, s)
	}
}

// Matrix is a binary allocation matrix of shape (M, 2M).
// Rows index independent sample partitions; column 2m marks the partitions
// of the starred sample set of model m and column 2m+1 the partitions of its plain set.
type Matrix struct {
	// active stores active flags in row-major order
	active [][]bool
}

// New builds allocation matrix for recursion index using the given policy.
// It returns error if the recursion index is invalid or the policy is unknown.
func New(policy Policy, index RecursionIndex) (*Matrix, error) {
	nmodels := index.NModels()
	if err := index.Validate(nmodels); err != nil {
		return nil, err
	}

	a := newMatrix(nmodels)
	for m := 0; m < nmodels; m++ {
		a.active[m][2*m+1] = true
	}

	for m := 1; m < nmodels; m++ {
		a.copyCol(2*m, 2*index.Parent(m)+1)
	}

	switch policy {
	case GMF:
		a.propagate()
	case GIS:
		for m := 1; m < nmodels; m++ {
			for p := 0; p < nmodels; p++ {
				a.active[p][2*m+1] = a.active[p][2*m+1] || a.active[p][2*m]
			}
		}
	case GRD:
	default:
		return nil, fmt.Errorf("%w: unsupported allocation policy: %d", acv.ErrConfig, int(policy))
	}

	return a, nil
}

// MC returns allocation matrix of a single fidelity estimator.
func MC() *Matrix {
	a := newMatrix(1)
	a.active[0][1] = true

	return a
}

// CV returns allocation matrix of a control variate estimator of nmodels models:
// every model evaluates the samples of the only non-empty partition and
// starred sets are empty as the low fidelity statistics are known.
func CV(nmodels int) (*Matrix, error) {
	if nmodels < 1 {
		return nil, fmt.Errorf("%w: invalid number of models: %d", acv.ErrConfig, nmodels)
	}

	a := newMatrix(nmodels)
	for m := 0; m < nmodels; m++ {
		a.active[0][2*m+1] = true
	}

	return a, nil
}

// FromDense creates allocation matrix from a dense matrix of zeros and ones.
// It returns error if m has invalid dimensions or non-binary entries.
func FromDense(m mat.Matrix) (*Matrix, error) {
	r, c := m.Dims()
	if c != 2*r {
		return nil, fmt.Errorf("%w: invalid allocation matrix dimensions: [%d x %d]", acv.ErrConfig, r, c)
	}

	a := newMatrix(r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			switch m.At(i, j) {
			case 0:
			case 1:
				a.active[i][j] = true
			default:
				return nil, fmt.Errorf("%w: invalid allocation matrix entry [%d, %d]: %g", acv.ErrConfig, i, j, m.At(i, j))
			}
		}
	}

	if !a.active[0][1] {
		return nil, fmt.Errorf("%w: high fidelity model must use partition 0", acv.ErrConfig)
	}

	return a, nil
}

func newMatrix(nmodels int) *Matrix {
	active := make([][]bool, nmodels)
	for i := range active {
		active[i] = make([]bool, 2*nmodels)
	}

	return &Matrix{active: active}
}

func (a *Matrix) copyCol(dst, src int) {
	for p := range a.active {
		a.active[p][dst] = a.active[p][src]
	}
}

// propagate activates all partitions preceding the last active partition of every column.
func (a *Matrix) propagate() {
	for c := 2; c < 2*a.NModels(); c++ {
		last := -1
		for p := range a.active {
			if a.active[p][c] {
				last = p
			}
		}
		for p := 0; p < last; p++ {
			a.active[p][c] = true
		}
	}
}

// NModels returns the number of models.
func (a *Matrix) NModels() int {
	return len(a.active)
}

// Active returns true if partition p belongs to column c.
func (a *Matrix) Active(p, c int) bool {
	return a.active[p][c]
}

// Starred returns the partitions of the starred sample set of model m.
func (a *Matrix) Starred(m int) []int {
	return a.col(2 * m)
}

// Plain returns the partitions of the plain sample set of model m.
func (a *Matrix) Plain(m int) []int {
	return a.col(2*m + 1)
}

// Partitions returns the partitions evaluated by model m in increasing order.
func (a *Matrix) Partitions(m int) []int {
	var parts []int
	for p := range a.active {
		if a.active[p][2*m] || a.active[p][2*m+1] {
			parts = append(parts, p)
		}
	}

	return parts
}

func (a *Matrix) col(c int) []int {
	var parts []int
	for p := range a.active {
		if a.active[p][c] {
			parts = append(parts, p)
		}
	}

	return parts
}

// Dense returns allocation matrix as a dense matrix of zeros and ones.
func (a *Matrix) Dense() *mat.Dense {
	r := a.NModels()
	d := mat.NewDense(r, 2*r, nil)
	for i := range a.active {
		for j, v := range a.active[i] {
			if v {
				d.Set(i, j, 1)
			}
		}
	}

	return d
}

// String implements the Stringer interface.
func (a *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(a.Dense(), mat.Squeeze()))
}
