package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Symmetrize returns (m + m^T)/2.
// It returns error if m is not a square matrix.
func Symmetrize(m mat.Matrix) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("invalid matrix dimensions: [%d x %d]", r, c)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s, nil
}

// Pinv returns Moore-Penrose pseudo-inverse of m.
// Singular values smaller than max(r, c) * eps * max singular value are treated as zero.
// It returns error if the SVD factorization of m fails.
func Pinv(m mat.Matrix) (*mat.Dense, error) {
	r, c := m.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	V := new(mat.Dense)
	svd.VTo(V)
	vals := svd.Values(nil)

	tol := 0.0
	if len(vals) > 0 {
		tol = float64(max(r, c)) * vals[0] * (math.Nextafter(1, 2) - 1)
	}

	inv := make([]float64, len(vals))
	for i, v := range vals {
		if v > tol {
			inv[i] = 1 / v
		}
	}

	// V * diag(1/s) * U^T
	V.Mul(V, mat.NewDiagDense(len(inv), inv))
	p := mat.NewDense(c, r, nil)
	p.Mul(V, U.T())

	return p, nil
}

// SelectRows returns a new matrix made of rows of m stored at indices idx.
// It returns nil if idx is empty.
func SelectRows(m mat.Matrix, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}

	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}

	return out
}

// SelectCols returns a new matrix made of columns of m stored at indices idx.
// It returns nil if idx is empty.
func SelectCols(m mat.Matrix, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}

	r, _ := m.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for j, c := range idx {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, c))
		}
	}

	return out
}

// Block returns a copy of the (i, j)-th block of m partitioned into
// blocks of size rsize x csize.
func Block(m mat.Matrix, i, j, rsize, csize int) *mat.Dense {
	out := mat.NewDense(rsize, csize, nil)
	for r := 0; r < rsize; r++ {
		for c := 0; c < csize; c++ {
			out.Set(r, c, m.At(i*rsize+r, j*csize+c))
		}
	}

	return out
}

// Blocks returns a matrix assembled from the blocks of m stored in the given
// block rows and block columns, where m is partitioned into rsize x csize blocks.
func Blocks(m mat.Matrix, rsize, csize int, rows, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows)*rsize, len(cols)*csize, nil)
	for bi, i := range rows {
		for bj, j := range cols {
			b := Block(m, i, j, rsize, csize)
			out.Slice(bi*rsize, (bi+1)*rsize, bj*csize, (bj+1)*csize).(*mat.Dense).Copy(b)
		}
	}

	return out
}

// HStack concatenates matrices horizontally.
// It returns error if the matrices have different number of rows.
func HStack(ms ...mat.Matrix) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("invalid number of matrices: %d", len(ms))
	}

	rows, cols := ms[0].Dims()
	for _, m := range ms[1:] {
		r, c := m.Dims()
		if r != rows {
			return nil, fmt.Errorf("invalid matrix dimensions: [%d x %d], expected %d rows", r, c, rows)
		}
		cols += c
	}

	out := mat.NewDense(rows, cols, nil)
	off := 0
	for _, m := range ms {
		_, c := m.Dims()
		out.Slice(0, rows, off, off+c).(*mat.Dense).Copy(m)
		off += c
	}

	return out, nil
}

// VStack concatenates matrices vertically skipping nil matrices.
// It returns nil if all matrices are nil and error if the matrices
// have different number of columns.
func VStack(ms ...*mat.Dense) (*mat.Dense, error) {
	rows, cols := 0, -1
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		if cols >= 0 && c != cols {
			return nil, fmt.Errorf("invalid matrix dimensions: [%d x %d], expected %d cols", r, c, cols)
		}
		rows, cols = rows+r, c
	}

	if rows == 0 {
		return nil, nil
	}

	out := mat.NewDense(rows, cols, nil)
	off := 0
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, _ := m.Dims()
		out.Slice(off, off+r, 0, cols).(*mat.Dense).Copy(m)
		off += r
	}

	return out, nil
}
