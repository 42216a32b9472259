package alloc

import (
	"fmt"

	acv "github.com/milosgajdos/go-acv"
	"gonum.org/v1/gonum/stat/combin"
)

// RecursionIndex stores the parent of every low fidelity model:
// entry i is the index of the model whose plain samples are shared
// with the starred samples of model i+1.
type RecursionIndex []int

// Zeros returns recursion index which pairs every low fidelity model with the high fidelity model.
func Zeros(nmodels int) RecursionIndex {
	return make(RecursionIndex, max(nmodels-1, 0))
}

// Chain returns recursion index [0, 1, ..., nmodels-2] which pairs every model with its predecessor.
func Chain(nmodels int) RecursionIndex {
	index := make(RecursionIndex, max(nmodels-1, 0))
	for i := range index {
		index[i] = i
	}

	return index
}

// NModels returns the number of models indexed by r.
func (r RecursionIndex) NModels() int {
	return len(r) + 1
}

// Parent returns the parent of model m.
// It panics if m is not a low fidelity model.
func (r RecursionIndex) Parent(m int) int {
	return r[m-1]
}

// Validate checks that r is a tree of nmodels models rooted at the high fidelity model.
// It returns error if r has a wrong length, contains out of range parents or cycles.
func (r RecursionIndex) Validate(nmodels int) error {
	if nmodels < 1 {
		return fmt.Errorf("%w: invalid number of models: %d", acv.ErrConfig, nmodels)
	}

	if len(r) != nmodels-1 {
		return fmt.Errorf("%w: invalid recursion index length: %d, expected %d", acv.ErrConfig, len(r), nmodels-1)
	}

	for i, p := range r {
		if p < 0 || p >= nmodels {
			return fmt.Errorf("%w: invalid recursion index %v: parent %d of model %d out of range", acv.ErrConfig, []int(r), p, i+1)
		}
		if p == i+1 {
			return fmt.Errorf("%w: invalid recursion index %v: model %d is its own parent", acv.ErrConfig, []int(r), p)
		}
	}

	if _, err := r.depths(); err != nil {
		return err
	}

	return nil
}

// Depth returns the depth of the tree encoded by r.
// It returns error if r contains cycles.
func (r RecursionIndex) Depth() (int, error) {
	d, err := r.depths()
	if err != nil {
		return 0, err
	}

	depth := 0
	for _, v := range d {
		depth = max(depth, v)
	}

	return depth, nil
}

// depths returns the distance of every model from the high fidelity model.
func (r RecursionIndex) depths() ([]int, error) {
	d := make([]int, r.NModels())
	for m := 1; m < r.NModels(); m++ {
		node, steps := m, 0
		for node != 0 {
			if node-1 >= len(r) || r[node-1] < 0 || r[node-1] >= r.NModels() {
				return nil, fmt.Errorf("%w: invalid recursion index %v", acv.ErrConfig, []int(r))
			}
			node = r[node-1]
			steps++
			if steps > r.NModels() {
				return nil, fmt.Errorf("%w: recursion index %v contains a cycle through model %d", acv.ErrConfig, []int(r), m)
			}
		}
		d[m] = steps
	}

	return d, nil
}

// Restrict returns recursion index of the sub-ensemble made of the high fidelity model
// and the low fidelity models listed in models, which must be sorted and must not contain 0.
// Every kept model is re-parented to its nearest kept ancestor.
// It returns error if r is invalid or models contains unknown models.
func (r RecursionIndex) Restrict(models []int) (RecursionIndex, error) {
	if err := r.Validate(r.NModels()); err != nil {
		return nil, err
	}

	pos := map[int]int{0: 0}
	for i, m := range models {
		if m <= 0 || m >= r.NModels() {
			return nil, fmt.Errorf("%w: invalid model %d for recursion index %v", acv.ErrConfig, m, []int(r))
		}
		if _, ok := pos[m]; ok {
			return nil, fmt.Errorf("%w: duplicate model %d", acv.ErrConfig, m)
		}
		pos[m] = i + 1
	}

	out := make(RecursionIndex, len(models))
	for i, m := range models {
		p := r[m-1]
		for {
			if k, ok := pos[p]; ok {
				out[i] = k
				break
			}
			p = r[p-1]
		}
	}

	return out, nil
}

// Enumerate returns all valid recursion indices of nmodels models whose tree depth
// does not exceed depth. The indices are returned in lexicographic order of parents.
// It returns error if depth is not in [1, nmodels-1].
func Enumerate(nmodels, depth int) ([]RecursionIndex, error) {
	if nmodels < 2 {
		return nil, fmt.Errorf("%w: invalid number of models: %d", acv.ErrConfig, nmodels)
	}

	if depth < 1 || depth > nmodels-1 {
		return nil, fmt.Errorf("%w: invalid tree depth: %d, expected value in [1, %d]", acv.ErrConfig, depth, nmodels-1)
	}

	lens := make([]int, nmodels-1)
	for i := range lens {
		lens[i] = nmodels
	}

	var indices []RecursionIndex
	gen := combin.NewCartesianGenerator(lens)
	for gen.Next() {
		index := RecursionIndex(gen.Product(nil))
		if err := index.Validate(nmodels); err != nil {
			continue
		}
		if d, _ := index.Depth(); d <= depth {
			indices = append(indices, index)
		}
	}

	return indices, nil
}
