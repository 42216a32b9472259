package config

import (
	"fmt"
	"os"

	acv "github.com/milosgajdos/go-acv"
	"github.com/milosgajdos/go-acv/stats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Problem defines model costs and output moments of an allocation problem
type Problem struct {
	// Statistic is estimated statistic: mean, variance or meanvariance
	Statistic string `yaml:"statistic"`
	// NQoI is the number of quantities of interest per model
	NQoI int `yaml:"nqoi"`
	// Costs stores model costs starting with the high fidelity model
	Costs []float64 `yaml:"costs"`
	// Covariance is the covariance between all model outputs
	Covariance [][]float64 `yaml:"covariance"`
	// W is the covariance between centered second moments of model outputs
	W [][]float64 `yaml:"w,omitempty"`
	// B is the covariance between model outputs and their centered second moments
	B [][]float64 `yaml:"b,omitempty"`
	// LowFidelityStats stores known statistics of low fidelity models
	LowFidelityStats [][]float64 `yaml:"lowFidelityStats,omitempty"`
}

// LoadProblem reads the problem from a YAML file.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem %q: %w", path, err)
	}

	return ParseProblem(data)
}

// ParseProblem parses YAML encoded problem.
// It returns error if the problem is malformed.
func ParseProblem(data []byte) (*Problem, error) {
	p := &Problem{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: failed to parse problem: %v", acv.ErrConfig, err)
	}

	if p.Statistic == "" {
		p.Statistic = stats.MeanType.String()
	}

	if p.NQoI == 0 {
		p.NQoI = 1
	}

	if len(p.Costs) == 0 {
		return nil, fmt.Errorf("%w: no model costs", acv.ErrConfig)
	}

	if n := len(p.Costs) * p.NQoI; len(p.Covariance) != n {
		return nil, fmt.Errorf("%w: invalid covariance rows: %d, expected %d", acv.ErrConfig, len(p.Covariance), n)
	}

	return p, nil
}

// Stat builds the statistic of the problem.
// It returns error if the moments have invalid dimensions.
func (p *Problem) Stat() (acv.Statistic, error) {
	t, err := stats.ParseType(p.Statistic)
	if err != nil {
		return nil, err
	}

	cov, err := dense(p.Covariance)
	if err != nil {
		return nil, fmt.Errorf("covariance: %w", err)
	}

	W, err := dense(p.W)
	if err != nil {
		return nil, fmt.Errorf("w: %w", err)
	}

	B, err := dense(p.B)
	if err != nil {
		return nil, fmt.Errorf("b: %w", err)
	}

	return stats.Build(t, p.NQoI, cov, W, B)
}

// dense converts rows into a matrix. It returns nil interface for empty rows.
func dense(rows [][]float64) (mat.Matrix, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c || c == 0 {
			return nil, fmt.Errorf("%w: invalid length of row %d: %d, expected %d", acv.ErrConfig, i, len(row), c)
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), c, data), nil
}
