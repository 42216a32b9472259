package rand

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns a new random source seeded with seed.
// If seed is zero, the source is seeded with the current time.
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return rand.NewSource(seed)
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// If src is nil a time-seeded source is used.
// It fails with error if n is non-positive and/or smaller than 1 or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky fails if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(math.Max(vals[i], 0))
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	if src == nil {
		src = NewSource(0)
	}
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm.Rand()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// Resample draws size indices uniformly with replacement from [0, n).
// If src is nil a time-seeded source is used.
// It fails with error if n is non-positive while size is positive.
func Resample(n, size int, src rand.Source) ([]int, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", size)
	}

	if size > 0 && n <= 0 {
		return nil, fmt.Errorf("invalid population size: %d", n)
	}

	if src == nil {
		src = NewSource(0)
	}
	rnd := rand.New(src)

	indices := make([]int, size)
	for i := range indices {
		indices[i] = rnd.Intn(n)
	}

	return indices, nil
}
