// Package partition maps independent sample partitions to the sample sets of models.
package partition

import (
	"fmt"
	"math"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Range is a half-open range [Start, End) of sample indices
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Ranges returns contiguous non-overlapping ranges of indices into a pool of samples
// holding counts[p] samples of partition p, ordered by partition.
// Range bounds are computed by rounding the cumulative sums of counts.
func Ranges(counts []float64) []Range {
	cum := make([]float64, len(counts))
	floats.CumSum(cum, counts)

	ranges := make([]Range, len(counts))
	start := 0
	for p := range counts {
		end := int(math.Round(cum[p]))
		ranges[p] = Range{Start: start, End: end}
		start = end
	}

	return ranges
}

// Accountant keeps track of samples of independent partitions shared by models
type Accountant struct {
	// alloc is allocation matrix
	alloc *alloc.Matrix
	// counts stores the number of samples of every partition
	counts []int
	// ranges stores pool index ranges of every partition
	ranges []Range
}

// New creates new Accountant for allocation matrix a and partition sample counts.
// It returns error if the number of counts does not match the allocation matrix
// or if any count is negative.
func New(a *alloc.Matrix, counts []int) (*Accountant, error) {
	if len(counts) != a.NModels() {
		return nil, fmt.Errorf("%w: invalid number of partition counts: %d, expected %d", acv.ErrShape, len(counts), a.NModels())
	}

	fc := make([]float64, len(counts))
	for i, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("%w: invalid sample count of partition %d: %d", acv.ErrConfig, i, c)
		}
		fc[i] = float64(c)
	}

	cc := make([]int, len(counts))
	copy(cc, counts)

	return &Accountant{
		alloc:  a,
		counts: cc,
		ranges: Ranges(fc),
	}, nil
}

// NModels returns the number of models.
func (a *Accountant) NModels() int {
	return a.alloc.NModels()
}

// PartitionSamples returns the number of samples of every partition.
func (a *Accountant) PartitionSamples() []int {
	counts := make([]int, len(a.counts))
	copy(counts, a.counts)

	return counts
}

// Total returns the number of independent samples across all partitions.
func (a *Accountant) Total() int {
	total := 0
	for _, c := range a.counts {
		total += c
	}

	return total
}

// ModelSamples returns the number of samples evaluated by model m.
func (a *Accountant) ModelSamples(m int) int {
	n := 0
	for _, p := range a.alloc.Partitions(m) {
		n += a.counts[p]
	}

	return n
}

// ModelSamplesAll returns the number of samples evaluated by every model.
func (a *Accountant) ModelSamplesAll() []int {
	n := make([]int, a.NModels())
	for m := range n {
		n[m] = a.ModelSamples(m)
	}

	return n
}

// ModelIndices returns the indices into the pool of samples evaluated by model m.
func (a *Accountant) ModelIndices(m int) []int {
	var idx []int
	for _, p := range a.alloc.Partitions(m) {
		for i := a.ranges[p].Start; i < a.ranges[p].End; i++ {
			idx = append(idx, i)
		}
	}

	return idx
}

// Subsets stores indices of the starred and plain sample sets of a model
type Subsets struct {
	// Starred stores indices of the starred sample set
	Starred []int
	// Plain stores indices of the plain sample set
	Plain []int
}

// SubsetIndices returns for every model the indices of its starred and plain sample
// sets into the values of the model, which are ordered by partition.
// If perm is not nil, perm[p] replaces the identity ordering of the samples of partition p;
// the same perm[p] is applied to every model sharing partition p.
// It returns error if perm does not match the partition counts.
func (a *Accountant) SubsetIndices(perm [][]int) ([]Subsets, error) {
	if perm != nil {
		if len(perm) != len(a.counts) {
			return nil, fmt.Errorf("%w: invalid number of partition permutations: %d, expected %d", acv.ErrShape, len(perm), len(a.counts))
		}
		for p := range perm {
			if len(perm[p]) != a.counts[p] {
				return nil, fmt.Errorf("%w: invalid permutation length of partition %d: %d, expected %d", acv.ErrShape, p, len(perm[p]), a.counts[p])
			}
			for _, i := range perm[p] {
				if i < 0 || i >= a.counts[p] {
					return nil, fmt.Errorf("%w: invalid permutation index of partition %d: %d", acv.ErrShape, p, i)
				}
			}
		}
	}

	subsets := make([]Subsets, a.NModels())
	for m := range subsets {
		offsets := make(map[int]int)
		off := 0
		for _, p := range a.alloc.Partitions(m) {
			offsets[p] = off
			off += a.counts[p]
		}

		subsets[m] = Subsets{
			Starred: a.local(a.alloc.Starred(m), offsets, perm),
			Plain:   a.local(a.alloc.Plain(m), offsets, perm),
		}
	}

	return subsets, nil
}

func (a *Accountant) local(parts []int, offsets map[int]int, perm [][]int) []int {
	var idx []int
	for _, p := range parts {
		for i := 0; i < a.counts[p]; i++ {
			j := i
			if perm != nil {
				j = perm[p][i]
			}
			idx = append(idx, offsets[p]+j)
		}
	}

	return idx
}

// Pair stores the values of the starred and plain sample sets of a model.
// Empty sets are stored as nil matrices.
type Pair struct {
	// Starred stores values of the starred sample set
	Starred *mat.Dense
	// Plain stores values of the plain sample set
	Plain *mat.Dense
}

// SeparateValues splits the values of every model, stored in rows and ordered by partition,
// into the values of its starred and plain sample sets.
// If perm is not nil the partition samples are reordered as described in SubsetIndices.
// It returns error if the number of values of any model does not match its sample count.
func (a *Accountant) SeparateValues(values []*mat.Dense, perm [][]int) ([]Pair, error) {
	return a.separate(values, perm, true)
}

// SeparateSamples splits the samples of every model, stored in columns and ordered
// by partition, into its starred and plain sample sets.
// It returns error if the number of samples of any model does not match its sample count.
func (a *Accountant) SeparateSamples(samples []*mat.Dense) ([]Pair, error) {
	return a.separate(samples, nil, false)
}

func (a *Accountant) separate(data []*mat.Dense, perm [][]int, rows bool) ([]Pair, error) {
	if err := a.checkModels(data, rows); err != nil {
		return nil, err
	}

	subsets, err := a.SubsetIndices(perm)
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, len(data))
	for m, d := range data {
		if rows {
			pairs[m] = Pair{
				Starred: matrix.SelectRows(d, subsets[m].Starred),
				Plain:   matrix.SelectRows(d, subsets[m].Plain),
			}
			continue
		}
		pairs[m] = Pair{
			Starred: matrix.SelectCols(d, subsets[m].Starred),
			Plain:   matrix.SelectCols(d, subsets[m].Plain),
		}
	}

	return pairs, nil
}

// CombineValues reverts SeparateValues: it rebuilds the values of every model
// ordered by partition from the values of its starred and plain sample sets.
// Partitions shared by both sets are taken from the starred set only.
// It returns error if the size of any set does not match the partition counts.
func (a *Accountant) CombineValues(pairs []Pair) ([]*mat.Dense, error) {
	return a.combine(pairs, true)
}

// CombineSamples reverts SeparateSamples.
// It returns error if the size of any set does not match the partition counts.
func (a *Accountant) CombineSamples(pairs []Pair) ([]*mat.Dense, error) {
	return a.combine(pairs, false)
}

func (a *Accountant) combine(pairs []Pair, rows bool) ([]*mat.Dense, error) {
	if len(pairs) != a.NModels() {
		return nil, fmt.Errorf("%w: invalid number of models: %d, expected %d", acv.ErrShape, len(pairs), a.NModels())
	}

	out := make([]*mat.Dense, len(pairs))
	for m, pair := range pairs {
		starred, plain := a.alloc.Starred(m), a.alloc.Plain(m)
		if err := a.checkSet(m, "starred", pair.Starred, starred, rows); err != nil {
			return nil, err
		}
		if err := a.checkSet(m, "plain", pair.Plain, plain, rows); err != nil {
			return nil, err
		}

		inStarred := make(map[int]bool)
		for _, p := range starred {
			inStarred[p] = true
		}

		var chunks []*mat.Dense
		sOff, pOff := 0, 0
		for _, p := range a.alloc.Partitions(m) {
			n := a.counts[p]
			if inStarred[p] {
				chunks = append(chunks, chunk(pair.Starred, sOff, n, rows))
				sOff += n
			}
			if a.alloc.Active(p, 2*m+1) {
				if !inStarred[p] {
					chunks = append(chunks, chunk(pair.Plain, pOff, n, rows))
				}
				pOff += n
			}
		}

		var err error
		if rows {
			out[m], err = matrix.VStack(chunks...)
		} else {
			out[m], err = hstack(chunks)
		}
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func chunk(d *mat.Dense, off, n int, rows bool) *mat.Dense {
	if n == 0 {
		return nil
	}

	r, c := d.Dims()
	if rows {
		return mat.DenseCopyOf(d.Slice(off, off+n, 0, c))
	}

	return mat.DenseCopyOf(d.Slice(0, r, off, off+n))
}

func hstack(chunks []*mat.Dense) (*mat.Dense, error) {
	var ms []mat.Matrix
	for _, c := range chunks {
		if c != nil {
			ms = append(ms, c)
		}
	}

	if len(ms) == 0 {
		return nil, nil
	}

	return matrix.HStack(ms...)
}

func (a *Accountant) checkModels(data []*mat.Dense, rows bool) error {
	if len(data) != a.NModels() {
		return fmt.Errorf("%w: invalid number of models: %d, expected %d", acv.ErrShape, len(data), a.NModels())
	}

	for m, d := range data {
		want := a.ModelSamples(m)
		if got := size(d, rows); got != want {
			return fmt.Errorf("%w: model %d has %d samples, expected %d", acv.ErrShape, m, got, want)
		}
	}

	return nil
}

func (a *Accountant) checkSet(m int, name string, d *mat.Dense, parts []int, rows bool) error {
	want := 0
	for _, p := range parts {
		want += a.counts[p]
	}

	if got := size(d, rows); got != want {
		return fmt.Errorf("%w: %s set of model %d has %d samples, expected %d", acv.ErrShape, name, m, got, want)
	}

	return nil
}

func size(d *mat.Dense, rows bool) int {
	if d == nil {
		return 0
	}

	r, c := d.Dims()
	if rows {
		return r
	}

	return c
}
