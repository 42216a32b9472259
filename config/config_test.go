package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/optim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	assert := assert.New(t)

	opts, err := Load(nil)
	require.NoError(t, err)
	assert.Equal([]optim.Family{optim.GMF}, opts.Estimators)
	assert.Equal([]float64{100}, opts.TargetCosts)
	assert.Equal("logtrace", opts.Criterion)
	assert.Equal(optim.LBFGS, opts.Method)
	assert.Equal(optim.DefaultMaxIterations, opts.MaxIterations)
	assert.False(opts.AllowFailures)
}

func TestLoadPrecedence(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("ACV_TARGET_COSTS", "100,200")
	t.Setenv("ACV_ESTIMATORS", "gmf,mfmc")
	t.Setenv("ACV_TREE_DEPTH", "1")

	dir := t.TempDir()
	file := filepath.Join(dir, "acv.yaml")
	require.NoError(t, os.WriteFile(file, []byte("criterion: det\nmax_models: 3\ntree_depth: 5\n"), 0o600))

	fs := Flags("test")
	require.NoError(t, fs.Parse([]string{"--tree-depth=2", "--config=" + file, "--method=nelder-mead"}))

	opts, err := Load(fs)
	require.NoError(t, err)
	assert.Equal([]float64{100, 200}, opts.TargetCosts)
	assert.Equal([]optim.Family{optim.GMF, optim.MFMC}, opts.Estimators)
	assert.Equal(2, opts.TreeDepth)
	assert.Equal(3, opts.MaxModels)
	assert.Equal("det", opts.Criterion)
	assert.Equal(optim.NelderMead, opts.Method)
}

func TestLoadErrors(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		key string
		val string
	}{
		{"ACV_METHOD", "newton"},
		{"ACV_ESTIMATORS", "acvxyz"},
		{"ACV_TARGET_COSTS", "-1"},
		{"ACV_TARGET_COSTS", "abc"},
		{"ACV_CRITERION", "max"},
		{"ACV_TREE_DEPTH", "-1"},
	}

	for _, tc := range testCases {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			opts, err := Load(nil)
			assert.Nil(opts)
			assert.True(errors.Is(err, acv.ErrConfig), "%v", err)
		})
	}

	t.Setenv("ACV_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load(nil)
	assert.Error(err)
}
