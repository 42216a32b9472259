package optim

import (
	"errors"
	"math"
	"testing"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/stats"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestCheckMFMC(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		cov   *mat.SymDense
		costs []float64
		valid bool
	}{
		{cov3, []float64{1, 0.1, 0.01}, true},
		{cov3, []float64{1, 0.5, 0.4}, false},
		{cov3, []float64{1, 0.1}, false},
		{mat.NewSymDense(3, []float64{1, 0.5, 0.9, 0.5, 1, 0.4, 0.9, 0.4, 1}), []float64{1, 0.1, 0.01}, false},
		{mat.NewSymDense(2, []float64{1, 1, 1, 1}), []float64{1, 0.01}, false},
		{mat.NewSymDense(2, []float64{1, -1, -1, 1}), []float64{1, 0.01}, false},
	}

	for _, tc := range testCases {
		err := CheckMFMC(tc.cov, tc.costs)
		if tc.valid {
			assert.NoError(err)
			continue
		}
		assert.True(errors.Is(err, acv.ErrConfig))
	}
}

func TestMFMCRatios(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.1, 0.01}
	ratios, err := MFMCRatios(cov3, costs)
	assert.NoError(err)

	exp := []float64{
		math.Sqrt((0.81 - 0.25) / (0.1 * (1 - 0.81))),
		math.Sqrt(0.25 / (0.01 * (1 - 0.81))),
	}
	assert.InDeltaSlice(exp, ratios, 1e-12)

	parts := MFMCPartitionRatios(ratios)
	assert.InDeltaSlice([]float64{exp[0] - 1, exp[1] - exp[0]}, parts, 1e-12)

	_, err = MFMCRatios(cov3, []float64{1, 0.5, 0.4})
	assert.Error(err)
}

func TestMLMCPartitionRatios(t *testing.T) {
	assert := assert.New(t)

	costs := []float64{1, 0.1, 0.01}
	ratios, err := MLMCPartitionRatios(cov3, costs)
	assert.NoError(err)

	l0 := math.Sqrt((1 + 1 - 1.8) / 1.1)
	l1 := math.Sqrt((1 + 1 - 0.8) / 0.11)
	l2 := math.Sqrt(1 / 0.01)
	assert.InDeltaSlice([]float64{l1 / l0, l2 / l0}, ratios, 1e-12)

	_, err = MLMCPartitionRatios(mat.NewSymDense(2, []float64{1, 1, 1, 1}), []float64{1, 0.1})
	assert.True(errors.Is(err, acv.ErrConfig))
}

func TestQoICov(t *testing.T) {
	assert := assert.New(t)

	s, err := stats.NewMean(2, mat.NewSymDense(4, []float64{
		2.0, 0.5, 1.0, 0.2,
		0.5, 1.0, 0.3, 0.6,
		1.0, 0.3, 1.5, 0.1,
		0.2, 0.6, 0.1, 0.8,
	}))
	assert.NoError(err)

	cov := qoiCov(s, 1)
	assert.True(mat.Equal(mat.NewSymDense(2, []float64{1.0, 0.6, 0.6, 0.8}), cov))
}
