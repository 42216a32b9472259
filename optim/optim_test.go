package optim

import (
	"errors"
	"math"
	"os"
	"testing"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	cov2 *mat.SymDense
	cov3 *mat.SymDense
)

func setup() {
	cov2 = mat.NewSymDense(2, []float64{1, 0.9, 0.9, 1})
	cov3 = mat.NewSymDense(3, []float64{
		1.0, 0.9, 0.5,
		0.9, 1.0, 0.4,
		0.5, 0.4, 1.0,
	})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func newMean(t *testing.T, cov mat.Matrix) acv.Statistic {
	s, err := stats.NewMean(1, cov)
	require.NoError(t, err)
	return s
}

// mfmcVariance returns variance of the two model MFMC estimator of unit variance models.
func mfmcVariance(rho2 float64, counts []int) float64 {
	n := float64(counts[0])
	r := float64(counts[0]+counts[1]) / n
	return 1 / n * (1 - rho2*(1-1/r))
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s := newMean(t, cov3)

	testCases := []struct {
		costs []float64
		cfg   *Config
	}{
		{[]float64{1, 0.1}, &Config{Family: GMF}},
		{[]float64{1, 0.1, 0}, &Config{Family: GMF}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: Family(100)}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: GMF, TreeDepth: 3}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: GMF, TreeDepth: 1, RecursionIndex: alloc.Zeros(3)}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: GMF, RecursionIndex: alloc.RecursionIndex{1, 2}}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: GMF, InitialGuess: []float64{1}}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: GMF, InitialGuess: []float64{1, -1}}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: CV}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: CV, LowFidelityStats: [][]float64{{0}, {0, 1}}}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: MFMC, RecursionIndex: alloc.Chain(3)}},
		{[]float64{1, 0.5, 0.4}, &Config{Family: MFMC}},
		{[]float64{1, 0.1, 0.01}, &Config{Family: MFMC, QoI: 1}},
	}

	for _, tc := range testCases {
		o, err := New(s, tc.costs, tc.cfg)
		assert.Nil(o)
		assert.True(errors.Is(err, acv.ErrConfig), "%v", err)
	}

	o, err := New(s, []float64{1, 0.1, 0.01}, nil)
	assert.NotNil(o)
	assert.NoError(err)
	assert.Equal(MC, o.Family())
	assert.Equal(s, o.Statistic())
}

func TestAllocateMC(t *testing.T) {
	assert := assert.New(t)

	o, err := New(newMean(t, cov3), []float64{1, 0.1, 0.01}, &Config{Family: MC, Criterion: Det{}})
	require.NoError(t, err)

	p, err := o.Allocate(100)
	require.NoError(t, err)
	assert.Equal([]int{100}, p.PartitionSamples())
	assert.Equal([]int{100}, p.ModelSamples())
	assert.Equal(1, p.NModels())
	assert.InDelta(0.01, p.Criterion(), 1e-15)
	assert.InDelta(100, p.TargetCost(), 1e-12)
	assert.Nil(p.Weights())
	assert.Nil(p.RecursionIndex())

	_, err = o.Allocate(0.5)
	assert.True(errors.Is(err, acv.ErrInfeasible))
	_, err = o.Allocate(-1)
	assert.True(errors.Is(err, acv.ErrConfig))
}

func TestAllocateCV(t *testing.T) {
	assert := assert.New(t)

	cfg := &Config{
		Family:           CV,
		Criterion:        Det{},
		LowFidelityStats: [][]float64{{0}},
	}
	o, err := New(newMean(t, cov2), []float64{1, 0.1}, cfg)
	require.NoError(t, err)

	p, err := o.Allocate(110)
	require.NoError(t, err)
	assert.Equal([]int{100, 0}, p.PartitionSamples())
	assert.Equal([]int{100, 100}, p.ModelSamples())
	// sigma^2 / N * (1 - rho^2)
	assert.InDelta(0.01*(1-0.81), p.Criterion(), 1e-12)
	assert.Equal([][]float64{{0}}, p.LowFidelityStats())

	_, err = o.Allocate(1)
	assert.True(errors.Is(err, acv.ErrInfeasible))
}

func TestAllocateMFMC(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.01}
	o, err := New(newMean(t, cov2), costs, &Config{Family: MFMC, Criterion: Det{}})
	require.NoError(t, err)

	p, err := o.Allocate(100)
	require.NoError(t, err)

	r := math.Sqrt(0.81 / (0.01 * (1 - 0.81)))
	assert.InEpsilon(r-1, p.OptimalRatios()[0], 1e-9)

	counts := p.PartitionSamples()
	assert.Equal(int(math.Floor(100/(1+r*0.01))), counts[0])
	assert.InDelta(mfmcVariance(0.81, counts), p.Criterion(), 1e-12)
	assert.LessOrEqual(p.TargetCost(), 100.0)
	assert.Equal(alloc.Chain(2), p.RecursionIndex())

	vr, err := VarianceReduction(p, Det{})
	assert.NoError(err)
	assert.Greater(vr, 1.0)
}

func TestAllocateMLMC(t *testing.T) {
	assert := assert.New(t)

	o, err := New(newMean(t, cov3), []float64{1, 0.1, 0.01}, &Config{Family: MLMC, Criterion: Det{}})
	require.NoError(t, err)

	p, err := o.Allocate(100)
	require.NoError(t, err)

	W := p.Weights()
	require.NotNil(t, W)
	assert.True(mat.Equal(mat.NewDense(1, 2, []float64{-1, -1}), W))
	assert.LessOrEqual(p.TargetCost(), 100.0)

	for _, n := range p.PartitionSamples() {
		assert.GreaterOrEqual(n, 1)
	}
}

func TestAllocateGMFMatchesMFMC(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.01}
	s := newMean(t, cov2)

	mfmc, err := New(s, costs, &Config{Family: MFMC, Criterion: Det{}})
	require.NoError(t, err)
	pm, err := mfmc.Allocate(100)
	require.NoError(t, err)

	for _, method := range []Method{LBFGS, BFGS, NelderMead} {
		gmf, err := New(s, costs, &Config{Family: GMF, Method: method, Criterion: Det{}})
		require.NoError(t, err)
		pg, err := gmf.Allocate(100)
		require.NoError(t, err)

		assert.InEpsilon(pm.OptimalRatios()[0], pg.OptimalRatios()[0], 1e-2, method.String())
		assert.InEpsilon(pm.Criterion(), pg.Criterion(), 1e-3, method.String())
	}
}

func TestAllocateRankOne(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.01}
	s := newMean(t, mat.NewSymDense(2, []float64{1, 1, 1, 1}))

	_, err := New(s, costs, &Config{Family: MFMC, Criterion: Det{}})
	assert.True(errors.Is(err, acv.ErrConfig))

	o, err := New(s, costs, &Config{Family: GMF, Criterion: Det{}})
	require.NoError(t, err)

	p, err := o.Allocate(100)
	require.NoError(t, err)

	// a perfectly correlated model removes the variance of every sample it evaluates
	counts := p.PartitionSamples()
	assert.InEpsilon(1/float64(counts[0]+counts[1]), p.Criterion(), 1e-9)
	assert.InEpsilon(1.0/9900, p.Criterion(), 1e-2)
	assert.LessOrEqual(p.TargetCost(), 100.0)

	vr, err := VarianceReduction(p, Det{})
	assert.NoError(err)
	assert.InEpsilon(99.0, vr, 2e-2)
}

func TestAllocateScenario(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.1, 0.01}
	o, err := New(newMean(t, cov3), costs, &Config{Family: GMF, Criterion: Det{}})
	require.NoError(t, err)

	p, err := o.Allocate(100)
	require.NoError(t, err)
	assert.Less(p.Criterion(), 0.01)
	assert.LessOrEqual(p.TargetCost(), 100.0+1e-9)
	assert.Equal(alloc.Zeros(3), p.RecursionIndex())

	for _, n := range p.PartitionSamples() {
		assert.GreaterOrEqual(n, 1)
	}

	// optimal weights solve CF W^T = -cf^T
	CF, cf := p.Discrepancies()
	W := p.Weights()
	var lhs mat.Dense
	lhs.Mul(CF, W.T())
	rhs := mat.DenseCopyOf(cf.T())
	rhs.Scale(-1, rhs)
	assert.True(mat.EqualApprox(&lhs, rhs, 1e-10))
}

func TestAllocateMonotonic(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.1, 0.01}
	for _, f := range []Family{GMF, GIS, GRD, MFMC, MLMC} {
		o, err := New(newMean(t, cov3), costs, &Config{Family: f})
		require.NoError(t, err)

		plans, err := o.AllocateAll([]float64{100, 200, 400})
		require.NoError(t, err)
		require.Len(t, plans, 3)

		for i := 1; i < len(plans); i++ {
			assert.Less(plans[i].Criterion(), plans[i-1].Criterion(), f.String())
			assert.GreaterOrEqual(plans[i].PartitionSamples()[0], plans[i-1].PartitionSamples()[0], f.String())
		}
	}
}

func TestAllocateVariance(t *testing.T) {
	assert := assert.New(t)

	W := mat.NewDense(3, 3, []float64{
		2.0, 1.62, 0.5,
		1.62, 2.0, 0.32,
		0.5, 0.32, 2.0,
	})
	s, err := stats.NewVariance(1, cov3, W)
	require.NoError(t, err)

	o, err := New(s, []float64{1, 0.1, 0.01}, &Config{Family: GMF, Criterion: Det{}})
	require.NoError(t, err)

	p, err := o.Allocate(100)
	require.NoError(t, err)
	for _, n := range p.PartitionSamples() {
		assert.GreaterOrEqual(n, 2)
	}

	mc, err := New(s, []float64{1, 0.1, 0.01}, &Config{Family: MC, Criterion: Det{}})
	require.NoError(t, err)
	pm, err := mc.Allocate(100)
	require.NoError(t, err)
	assert.Less(p.Criterion(), pm.Criterion())
}

func TestAllocateSweep(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.1, 0.01}
	s := newMean(t, cov3)

	zeros, err := New(s, costs, &Config{Family: GMF})
	require.NoError(t, err)
	pz, err := zeros.Allocate(100)
	require.NoError(t, err)

	sweep, err := New(s, costs, &Config{Family: GMF, TreeDepth: 2})
	require.NoError(t, err)
	ps, err := sweep.Allocate(100)
	require.NoError(t, err)

	assert.LessOrEqual(ps.Criterion(), pz.Criterion())
	assert.NoError(ps.RecursionIndex().Validate(3))
}

func TestAllocateFailures(t *testing.T) {
	assert := assert.New(t)

	fail := Func(func(mat.Symmetric) (float64, error) {
		return math.Inf(1), acv.ErrOptimization
	})

	costs := []float64{1, 0.1, 0.01}
	s := newMean(t, cov3)

	for _, allow := range []bool{false, true} {
		cfg := &Config{
			Family:        GMF,
			Criterion:     fail,
			Method:        NelderMead,
			TreeDepth:     2,
			AllowFailures: allow,
			MaxIterations: 20,
		}
		o, err := New(s, costs, cfg)
		require.NoError(t, err)

		p, err := o.Allocate(100)
		assert.Nil(p)
		assert.True(errors.Is(err, acv.ErrOptimization), "%v", err)
	}

	o, err := New(s, costs, &Config{Family: GMF})
	require.NoError(t, err)
	_, err = o.Allocate(1)
	assert.True(errors.Is(err, acv.ErrInfeasible))
	_, err = o.AllocateAll([]float64{100, 1})
	assert.True(errors.Is(err, acv.ErrInfeasible))
}

func TestCriterion(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.01}
	o, err := New(newMean(t, cov2), costs, &Config{Family: GMF, Criterion: Det{}})
	require.NoError(t, err)

	r := 19.0
	val, err := o.Criterion(alloc.Zeros(2), 100, []float64{r})
	assert.NoError(err)

	n := 100 / (1 + (1+r)*0.01)
	assert.InDelta(1/n*(1-0.81*(1-1/(1+r))), val, 1e-12)

	_, err = o.Criterion(alloc.Zeros(2), 100, []float64{1, 2})
	assert.True(errors.Is(err, acv.ErrConfig))
}
