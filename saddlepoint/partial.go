// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddlepoint

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/matrix"
)

// partialPivDecomp is the state kept between Decompose and Solve for the
// PartialPivLU method: a dense LU factorization of the full assembled
// (nfree+m)×(nfree+m) block matrix.
type partialPivDecomp struct {
	lu    mat.LU
	free  []int
	rows  []int // original W row indices backing this decomposition's y-block
	m     int
	nfree int
}

func assembleFull(Hx, Wx, G *mat.Dense, nfree, m int) *mat.Dense {
	full := mat.NewDense(nfree+m, nfree+m, nil)
	for i := 0; i < nfree; i++ {
		for j := 0; j < nfree; j++ {
			full.Set(i, j, Hx.At(i, j))
		}
		for j := 0; j < m; j++ {
			v := Wx.At(j, i)
			full.Set(i, nfree+j, v)
			full.Set(nfree+j, i, v)
		}
	}
	if G != nil {
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				full.Set(nfree+i, nfree+j, G.At(i, j))
			}
		}
	}
	return full
}

func (s *Solver) decomposePartialPivLU(M *Matrix) (matrix.Status, error) {
	free := s.free
	nfree := len(free)
	rows := s.effRows
	m := s.effM

	Hx := subRowsCols(M.H, free, free)
	Wx := subRowsCols(M.W, rows, free)
	full := assembleFull(Hx, Wx, subG(M.G, rows), nfree, m)

	var lu mat.LU
	lu.Factorize(full)
	if cond := lu.Cond(); cond > s.opts.ToleranceDecompose {
		return matrix.NumericalFailure, errors.Errorf("saddlepoint: PartialPivLU condition number %g exceeds tolerance %g", cond, s.opts.ToleranceDecompose)
	}

	s.partial = partialPivDecomp{lu: lu, free: free, rows: rows, m: m, nfree: nfree}
	return matrix.Success, nil
}

func (s *Solver) solvePartialPivLU(a, b, x, y []float64) (matrix.Status, error) {
	pd := s.partial
	rhs := make([]float64, pd.nfree+pd.m)
	copy(rhs[:pd.nfree], gatherVec(a, pd.free))
	copy(rhs[pd.nfree:], b)

	sol := mat.NewVecDense(pd.nfree+pd.m, nil)
	if err := pd.lu.SolveVecTo(sol, false, mat.NewVecDense(len(rhs), rhs)); err != nil {
		return matrix.NumericalFailure, errors.Wrap(err, "saddlepoint: PartialPivLU solve")
	}

	scatterVec(x, toSlice(sol)[:pd.nfree], pd.free)
	scatterVec(y, toSlice(sol)[pd.nfree:], pd.rows)
	return matrix.Success, nil
}
