package discrepancy

import (
	"errors"
	"testing"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/alloc"
	"github.com/milosgajdos/go-acv/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newEngine(t *testing.T, cov mat.Matrix, a *alloc.Matrix) *Engine {
	s, err := stats.NewMean(1, cov)
	require.NoError(t, err)
	e, err := New(s, a)
	require.NoError(t, err)
	return e
}

var cov2 = mat.NewSymDense(2, []float64{1, 1.8, 1.8, 4})

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s, err := stats.NewMean(1, cov2)
	require.NoError(t, err)

	a, err := alloc.New(alloc.GMF, alloc.Chain(3))
	require.NoError(t, err)

	e, err := New(s, a)
	assert.Nil(e)
	assert.True(errors.Is(err, acv.ErrConfig))
}

func TestTwoModelMFMC(t *testing.T) {
	assert := assert.New(t)

	a, err := alloc.New(alloc.GMF, alloc.Zeros(2))
	require.NoError(t, err)
	e := newEngine(t, cov2, a)

	n := []float64{10, 20}
	CF, cf, err := e.Covariances(n)
	require.NoError(t, err)
	assert.InDelta(4*2.0/30, CF.At(0, 0), 1e-14)
	assert.InDelta(1.8*2.0/30, cf.At(0, 0), 1e-14)

	hf, err := e.HighFidelityCovariance(n)
	assert.NoError(err)
	assert.InDelta(0.1, hf.At(0, 0), 1e-15)

	cov, err := e.EstimatorCovariance(n)
	assert.NoError(err)
	// sigma^2 / N * (1 - rho^2 (1 - 1/r))
	assert.InDelta(0.1*(1-0.81*2.0/3), cov.At(0, 0), 1e-14)

	_, _, err = e.Covariances([]float64{1})
	assert.True(errors.Is(err, acv.ErrShape))
	_, err = e.EstimatorCovariance([]float64{1, 2, 3})
	assert.True(errors.Is(err, acv.ErrShape))
}

func TestMLMC(t *testing.T) {
	assert := assert.New(t)

	a, err := alloc.New(alloc.GRD, alloc.Chain(2))
	require.NoError(t, err)
	e := newEngine(t, cov2, a)

	n := []float64{10, 40}
	CF, cf, err := e.Covariances(n)
	require.NoError(t, err)
	assert.InDelta(4.0/10+4.0/40, CF.At(0, 0), 1e-14)
	assert.InDelta(1.8/10, cf.At(0, 0), 1e-14)

	hf, err := e.HighFidelityCovariance(n)
	require.NoError(t, err)

	W := RecursiveWeights(1, 2)
	assert.Equal(-1.0, W.At(0, 0))

	cov, err := CovarianceWithWeights(hf, W, CF, cf)
	assert.NoError(err)
	assert.InDelta((1+4-2*1.8)/10+4.0/40, cov.At(0, 0), 1e-14)

	_, err = CovarianceWithWeights(hf, mat.NewDense(1, 2, nil), CF, cf)
	assert.True(errors.Is(err, acv.ErrShape))
}

func TestCV(t *testing.T) {
	assert := assert.New(t)

	a, err := alloc.CV(2)
	require.NoError(t, err)
	e := newEngine(t, cov2, a)

	cov, err := e.EstimatorCovariance([]float64{10, 0})
	assert.NoError(err)
	assert.InDelta(0.1*(1-0.81), cov.At(0, 0), 1e-14)
}

func TestMC(t *testing.T) {
	assert := assert.New(t)

	s, err := stats.NewMean(1, mat.NewSymDense(1, []float64{2}))
	require.NoError(t, err)
	e, err := New(s, alloc.MC())
	require.NoError(t, err)

	CF, cf, err := e.Covariances([]float64{4})
	assert.NoError(err)
	assert.Nil(CF)
	assert.Nil(cf)

	cov, err := e.EstimatorCovariance([]float64{4})
	assert.NoError(err)
	assert.InDelta(0.5, cov.At(0, 0), 1e-15)
}

func TestWeights(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(6, []float64{
		2.0, 0.5, 1.0, 0.2, 0.8, 0.1,
		0.5, 1.0, 0.3, 0.6, 0.2, 0.4,
		1.0, 0.3, 1.5, 0.1, 0.5, 0.1,
		0.2, 0.6, 0.1, 0.8, 0.1, 0.3,
		0.8, 0.2, 0.5, 0.1, 1.0, 0.2,
		0.1, 0.4, 0.1, 0.3, 0.2, 0.9,
	})
	s, err := stats.NewMean(2, cov)
	require.NoError(t, err)

	for _, policy := range []alloc.Policy{alloc.GMF, alloc.GIS, alloc.GRD} {
		a, err := alloc.New(policy, alloc.RecursionIndex{0, 1})
		require.NoError(t, err)
		e, err := New(s, a)
		require.NoError(t, err)

		n := []float64{5, 12, 30}
		CF, cf, err := e.Covariances(n)
		require.NoError(t, err)
		assert.True(mat.EqualApprox(CF, CF.T(), 1e-14))

		W, err := Weights(CF, cf)
		require.NoError(t, err)

		// CF W^T = -cf^T
		var lhs mat.Dense
		lhs.Mul(CF, W.T())
		rhs := mat.DenseCopyOf(cf.T())
		rhs.Scale(-1, rhs)
		assert.True(mat.EqualApprox(&lhs, rhs, 1e-10), "%v", policy)

		hf, err := e.HighFidelityCovariance(n)
		require.NoError(t, err)

		opt, err := e.EstimatorCovariance(n)
		require.NoError(t, err)
		general, err := CovarianceWithWeights(hf, W, CF, cf)
		require.NoError(t, err)
		assert.True(mat.EqualApprox(opt, general, 1e-12))

		// optimal weights never increase the variance
		assert.True(opt.At(0, 0) <= hf.At(0, 0))
		assert.True(opt.At(1, 1) <= hf.At(1, 1))
	}

	_, err = Weights(mat.NewDense(2, 2, nil), mat.NewDense(1, 3, nil))
	assert.True(errors.Is(err, acv.ErrShape))
}

func TestVarianceStatistic(t *testing.T) {
	assert := assert.New(t)

	W := mat.NewSymDense(2, []float64{2, 2 * 1.8 * 1.8, 2 * 1.8 * 1.8, 32})
	s, err := stats.NewVariance(1, cov2, W)
	require.NoError(t, err)

	a, err := alloc.New(alloc.GMF, alloc.Zeros(2))
	require.NoError(t, err)
	e, err := New(s, a)
	require.NoError(t, err)

	hf, err := e.HighFidelityCovariance([]float64{11, 22})
	assert.NoError(err)
	assert.InDelta(2.0/10, hf.At(0, 0), 1e-14)

	cov, err := e.EstimatorCovariance([]float64{11, 22})
	assert.NoError(err)
	assert.True(cov.At(0, 0) < hf.At(0, 0))
}
