// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddlepoint

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/internal/blas1"
	"github.com/allanleal/optima/matrix"
)

// fullPivDecomp stores a Gauss elimination of the full assembled matrix with
// complete (row and column) pivoting. gonum's LU only pivots rows, so this
// is hand-rolled the same way Canonicalizer.Compute rank-reveals W: the
// combined L\U factors live in lu (unit lower triangle implicit, diagonal
// and above hold U), with rowPerm/colPerm recording where each original row
// and column ended up.
type fullPivDecomp struct {
	lu       *mat.Dense
	rowPerm  []int
	colPerm  []int
	free     []int
	rows     []int // original W row indices backing this decomposition's y-block
	m, nfree int
	dim      int
}

func (s *Solver) decomposeFullPivLU(M *Matrix) (matrix.Status, error) {
	free := s.free
	nfree := len(free)
	rows := s.effRows
	m := s.effM
	dim := nfree + m

	Hx := subRowsCols(M.H, free, free)
	Wx := subRowsCols(M.W, rows, free)
	full := assembleFull(Hx, Wx, subG(M.G, rows), nfree, m)

	rowPerm := seqRange(dim)
	colPerm := seqRange(dim)

	maxEntry := 0.0
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if v := math.Abs(full.At(i, j)); v > maxEntry {
				maxEntry = v
			}
		}
	}
	tol := s.opts.TolerancePivot * math.Max(maxEntry, 1)

	for k := 0; k < dim; k++ {
		pi, pj, pv := -1, -1, 0.0
		for i := k; i < dim; i++ {
			for j := k; j < dim; j++ {
				if v := math.Abs(full.At(i, j)); v > pv {
					pv, pi, pj = v, i, j
				}
			}
		}
		if pi < 0 || pv < tol {
			return matrix.NumericalFailure, errors.Errorf("saddlepoint: FullPivLU pivot %g below tolerance at step %d", pv, k)
		}
		if pi != k {
			swapRows(full, k, pi)
			rowPerm[k], rowPerm[pi] = rowPerm[pi], rowPerm[k]
		}
		if pj != k {
			swapCols(full, k, pj)
			colPerm[k], colPerm[pj] = colPerm[pj], colPerm[k]
		}
		pivot := full.At(k, k)
		for i := k + 1; i < dim; i++ {
			factor := full.At(i, k) / pivot
			full.Set(i, k, factor)
			for j := k + 1; j < dim; j++ {
				full.Set(i, j, full.At(i, j)-factor*full.At(k, j))
			}
		}
	}

	s.full = fullPivDecomp{lu: full, rowPerm: rowPerm, colPerm: colPerm, free: free, rows: rows, m: m, nfree: nfree, dim: dim}
	return matrix.Success, nil
}

func swapRows(m *mat.Dense, i, j int) {
	_, cols := m.Dims()
	for c := 0; c < cols; c++ {
		vi, vj := m.At(i, c), m.At(j, c)
		m.Set(i, c, vj)
		m.Set(j, c, vi)
	}
}

func swapCols(m *mat.Dense, i, j int) {
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		vi, vj := m.At(r, i), m.At(r, j)
		m.Set(r, i, vj)
		m.Set(r, j, vi)
	}
}

func (s *Solver) solveFullPivLU(a, b, x, y []float64) (matrix.Status, error) {
	fd := s.full
	rhs := make([]float64, fd.dim)
	copy(rhs[:fd.nfree], gatherVec(a, fd.free))
	copy(rhs[fd.nfree:], b)

	permuted := make([]float64, fd.dim)
	for i, r := range fd.rowPerm {
		permuted[i] = rhs[r]
	}

	// Forward substitution: L is unit lower triangular, stored below the
	// diagonal of lu.
	z := make([]float64, fd.dim)
	for i := 0; i < fd.dim; i++ {
		row := fd.lu.RawRowView(i)
		z[i] = permuted[i] - blas1.Dot(row[:i], z[:i])
	}

	// Back substitution: U is upper triangular including the diagonal.
	sol := make([]float64, fd.dim)
	for i := fd.dim - 1; i >= 0; i-- {
		row := fd.lu.RawRowView(i)
		sum := z[i] - blas1.Dot(row[i+1:fd.dim], sol[i+1:fd.dim])
		diag := row[i]
		if diag == 0 {
			return matrix.NumericalFailure, errors.New("saddlepoint: FullPivLU singular during back substitution")
		}
		sol[i] = sum / diag
	}

	unperm := make([]float64, fd.dim)
	for i, c := range fd.colPerm {
		unperm[c] = sol[i]
	}

	scatterVec(x, unperm[:fd.nfree], fd.free)
	scatterVec(y, unperm[fd.nfree:], fd.rows)
	return matrix.Success, nil
}
