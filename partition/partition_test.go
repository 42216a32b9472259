package partition

import (
	"errors"
	"os"
	"testing"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	mfmc *alloc.Matrix
)

func setup() {
	var err error
	mfmc, err = alloc.New(alloc.GMF, alloc.Chain(3))
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestRanges(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		counts []float64
		want   []Range
	}{
		{counts: []float64{2, 3, 1}, want: []Range{{0, 2}, {2, 5}, {5, 6}}},
		{counts: []float64{1, 0, 2}, want: []Range{{0, 1}, {1, 1}, {1, 3}}},
		{counts: []float64{0.9999999999, 2.0000000001, 1}, want: []Range{{0, 1}, {1, 3}, {3, 4}}},
	} {
		got := Ranges(test.counts)
		assert.Equal(test.want, got)
		for i, r := range got {
			assert.InDelta(test.counts[i], float64(r.Len()), 1e-6)
		}
	}
}

func TestAccountant(t *testing.T) {
	assert := assert.New(t)

	a, err := New(mfmc, []int{2, 3, 1})
	require.NoError(t, err)

	assert.Equal(6, a.Total())
	assert.Equal([]int{2, 5, 6}, a.ModelSamplesAll())
	assert.Equal([]int{0, 1}, a.ModelIndices(0))
	assert.Equal([]int{0, 1, 2, 3, 4}, a.ModelIndices(1))
	assert.Equal([]int{2, 3, 1}, a.PartitionSamples())
	assert.Equal([]float64{1.5, 0.5}, a.Ratios())

	subsets, err := a.SubsetIndices(nil)
	assert.NoError(err)
	assert.Empty(subsets[0].Starred)
	assert.Equal([]int{0, 1}, subsets[0].Plain)
	assert.Equal([]int{0, 1}, subsets[1].Starred)
	assert.Equal([]int{0, 1, 2, 3, 4}, subsets[1].Plain)
	assert.Equal([]int{0, 1, 2, 3, 4}, subsets[2].Starred)
	assert.Equal([]int{0, 1, 2, 3, 4, 5}, subsets[2].Plain)

	cost, err := a.Cost([]float64{1, 0.1, 0.01})
	assert.NoError(err)
	assert.InDelta(2.56, cost, 1e-12)

	_, err = New(mfmc, []int{1, 2})
	assert.True(errors.Is(err, acv.ErrShape))
	_, err = New(mfmc, []int{1, -2, 1})
	assert.True(errors.Is(err, acv.ErrConfig))
}

func TestSubsetIndicesPerm(t *testing.T) {
	assert := assert.New(t)

	a, err := New(mfmc, []int{2, 3, 1})
	require.NoError(t, err)

	perm := [][]int{{1, 1}, {2, 0, 0}, {0}}
	subsets, err := a.SubsetIndices(perm)
	assert.NoError(err)
	assert.Equal([]int{1, 1}, subsets[0].Plain)
	assert.Equal([]int{1, 1}, subsets[1].Starred)
	assert.Equal([]int{1, 1, 4, 2, 2}, subsets[1].Plain)
	assert.Equal([]int{1, 1, 4, 2, 2, 5}, subsets[2].Plain)

	_, err = a.SubsetIndices([][]int{{0, 0}})
	assert.True(errors.Is(err, acv.ErrShape))
	_, err = a.SubsetIndices([][]int{{0}, {0, 0, 0}, {0}})
	assert.True(errors.Is(err, acv.ErrShape))
	_, err = a.SubsetIndices([][]int{{0, 2}, {0, 0, 0}, {0}})
	assert.True(errors.Is(err, acv.ErrShape))
}

// partitionValues returns per model values holding partition ids in rows.
func partitionValues(a *Accountant, nqoi int) []*mat.Dense {
	values := make([]*mat.Dense, a.NModels())
	counts := a.PartitionSamples()
	for m := range values {
		var data []float64
		for _, p := range modelPartitions(a, m) {
			for i := 0; i < counts[p]; i++ {
				for q := 0; q < nqoi; q++ {
					data = append(data, float64(p))
				}
			}
		}
		if len(data) > 0 {
			values[m] = mat.NewDense(len(data)/nqoi, nqoi, data)
		}
	}

	return values
}

func modelPartitions(a *Accountant, m int) []int {
	return a.alloc.Partitions(m)
}

func TestSeparateCombineRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, policy := range []alloc.Policy{alloc.GMF, alloc.GIS, alloc.GRD} {
		for _, nmodels := range []int{2, 3, 4} {
			indices, err := alloc.Enumerate(nmodels, nmodels-1)
			require.NoError(t, err)
			for _, index := range indices {
				am, err := alloc.New(policy, index)
				require.NoError(t, err)

				counts := make([]int, nmodels)
				for p := range counts {
					counts[p] = p + 2
				}
				a, err := New(am, counts)
				require.NoError(t, err)

				values := partitionValues(a, 2)
				pairs, err := a.SeparateValues(values, nil)
				require.NoError(t, err)

				for m, pair := range pairs {
					if pair.Starred != nil {
						r, _ := pair.Starred.Dims()
						want := 0
						for _, p := range am.Starred(m) {
							want += counts[p]
						}
						assert.Equal(want, r)
					}
				}

				combined, err := a.CombineValues(pairs)
				require.NoError(t, err)
				for m := range values {
					assert.True(mat.Equal(values[m], combined[m]), "%v %v model %d", policy, index, m)
				}
			}
		}
	}
}

func TestSeparateCombineSamples(t *testing.T) {
	assert := assert.New(t)

	a, err := New(mfmc, []int{2, 3, 1})
	require.NoError(t, err)

	pool := mat.NewDense(2, a.Total(), nil)
	for j := 0; j < a.Total(); j++ {
		pool.Set(0, j, float64(j))
		pool.Set(1, j, float64(-j))
	}

	samples := make([]*mat.Dense, a.NModels())
	for m := range samples {
		idx := a.ModelIndices(m)
		samples[m] = mat.NewDense(2, len(idx), nil)
		for j, i := range idx {
			samples[m].SetCol(j, mat.Col(nil, i, pool))
		}
	}

	pairs, err := a.SeparateSamples(samples)
	require.NoError(t, err)
	assert.Nil(pairs[0].Starred)
	assert.Equal([]float64{0, 1}, pairs[1].Starred.RawRowView(0))

	combined, err := a.CombineSamples(pairs)
	require.NoError(t, err)
	for m := range samples {
		assert.True(mat.Equal(samples[m], combined[m]))
	}
}

func TestSeparateErrors(t *testing.T) {
	assert := assert.New(t)

	a, err := New(mfmc, []int{2, 3, 1})
	require.NoError(t, err)

	values := partitionValues(a, 1)
	_, err = a.SeparateValues(values[:2], nil)
	assert.True(errors.Is(err, acv.ErrShape))

	values[1] = mat.NewDense(4, 1, nil)
	_, err = a.SeparateValues(values, nil)
	assert.True(errors.Is(err, acv.ErrShape))
	assert.Contains(err.Error(), "model 1 has 4 samples, expected 5")

	_, err = a.CombineValues([]Pair{{Plain: mat.NewDense(2, 1, nil)}, {}, {}})
	assert.True(errors.Is(err, acv.ErrShape))
}

func TestFromRatios(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.1, 0.01}
	mr, err := ModelRatios(mfmc, []float64{1.5, 0.5})
	assert.NoError(err)
	assert.InDeltaSlice([]float64{1, 2.5, 3}, mr, 1e-12)

	counts, err := FromRatios(mfmc, costs, 12.8, []float64{1.5, 0.5})
	assert.NoError(err)
	assert.InDeltaSlice([]float64{10, 15, 5}, counts, 1e-9)

	_, err = FromRatios(mfmc, costs[:2], 12.8, []float64{1.5, 0.5})
	assert.True(errors.Is(err, acv.ErrConfig))
	_, err = FromRatios(mfmc, costs, 12.8, []float64{1.5})
	assert.True(errors.Is(err, acv.ErrConfig))
}

func TestRound(t *testing.T) {
	assert := assert.New(t)

	got, err := Round([]float64{3.999999999, 2.5, 0})
	assert.NoError(err)
	assert.Equal([]int{4, 2, 0}, got)

	_, err = Round([]float64{0.5, 10})
	assert.True(errors.Is(err, acv.ErrInfeasible))

	_, err = Round([]float64{1, -1})
	assert.True(errors.Is(err, acv.ErrInfeasible))
}
