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

// nullspaceDecomp holds a QR-derived null-space basis of Wxᵀ and the
// reduced Hessian factorization used to solve on it. Only supports
// G == nil: the multiplier block is assumed to come purely from the
// equality constraints on the free variables.
//
// q1/r1 carry the range-space complement used to recover both the
// constraint-satisfying particular solution and the multipliers; z is the
// null-space basis proper.
type nullspaceDecomp struct {
	hx    *mat.Dense
	q1    *mat.Dense // nfree × m, orthonormal columns spanning row(Wx)ᵀ
	r1    *mat.Dense // m × m upper triangular
	z     *mat.Dense // nfree × p, orthonormal columns spanning null(Wx)
	lu    *mat.LU    // nil when p == 0
	free  []int
	rows  []int // original W row indices backing this decomposition's y-block
	m     int
	nfree int
	p     int
}

func (s *Solver) decomposeNullspace(M *Matrix) (matrix.Status, error) {
	if M.G != nil {
		return matrix.Invalid, errors.New("saddlepoint: Nullspace requires G == nil")
	}
	free := s.free
	nfree := len(free)
	rows := s.effRows
	m := s.effM
	if nfree < m {
		return matrix.Invalid, errors.Errorf("saddlepoint: Nullspace needs nfree >= m, got nfree=%d m=%d", nfree, m)
	}

	wx := subRowsCols(M.W, rows, free)

	var wxt mat.Dense
	wxt.CloneFrom(wx.T())

	var qrf mat.QR
	qrf.Factorize(&wxt)

	rFull := new(mat.Dense)
	qrf.RTo(rFull)
	qFull := new(mat.Dense)
	qrf.QTo(qFull)

	r1 := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			r1.Set(i, j, rFull.At(i, j))
		}
	}
	if diagMin := minAbsDiag(r1); diagMin < s.opts.TolerancePivot {
		return matrix.NumericalFailure, errors.Errorf("saddlepoint: Wx has rank < %d (rank-deficient constraints, min |diag(R)|=%g)", m, diagMin)
	}

	p := nfree - m
	q1 := mat.NewDense(nfree, m, nil)
	for i := 0; i < nfree; i++ {
		for j := 0; j < m; j++ {
			q1.Set(i, j, qFull.At(i, j))
		}
	}
	z := mat.NewDense(nfree, p, nil)
	for i := 0; i < nfree; i++ {
		for j := 0; j < p; j++ {
			z.Set(i, j, qFull.At(i, m+j))
		}
	}

	hx := subRowsCols(M.H, free, free)

	var lu *mat.LU
	if p > 0 {
		var reduced mat.Dense
		var tmp mat.Dense
		tmp.Mul(hx, z)
		reduced.Mul(z.T(), &tmp)
		lu = &mat.LU{}
		lu.Factorize(&reduced)
		if cond := lu.Cond(); cond > s.opts.ToleranceDecompose {
			return matrix.NumericalFailure, errors.Errorf("saddlepoint: Nullspace reduced Hessian condition number %g exceeds tolerance %g", cond, s.opts.ToleranceDecompose)
		}
	}

	s.nullspace = nullspaceDecomp{hx: hx, q1: q1, r1: r1, z: z, lu: lu, free: free, rows: rows, m: m, nfree: nfree, p: p}
	return matrix.Success, nil
}

func minAbsDiag(m *mat.Dense) float64 {
	r, _ := m.Dims()
	if r == 0 {
		return 0
	}
	best := math.Abs(m.At(0, 0))
	for i := 1; i < r; i++ {
		if v := math.Abs(m.At(i, i)); v < best {
			best = v
		}
	}
	return best
}

// upperTriSolve solves an upper-triangular m×m system Rx=b.
func upperTriSolve(r *mat.Dense, b []float64) []float64 {
	m := len(b)
	x := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < m; j++ {
			sum -= r.At(i, j) * x[j]
		}
		x[i] = sum / r.At(i, i)
	}
	return x
}

// lowerTriSolveT solves Rᵀx=b, where R (passed in) is upper triangular, so
// Rᵀ is lower triangular: forward substitution reading R's transpose
// entries directly from R.
func lowerTriSolveT(r *mat.Dense, b []float64) []float64 {
	m := len(b)
	x := make([]float64, m)
	for i := 0; i < m; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= r.At(j, i) * x[j]
		}
		x[i] = sum / r.At(i, i)
	}
	return x
}

func (s *Solver) solveNullspace(a, b, x, y []float64) (matrix.Status, error) {
	nd := s.nullspace
	afree := gatherVec(a, nd.free)

	// Particular solution satisfying Wx·x1 = b exactly: Wxᵀ = Q1·R1, so
	// Wx = R1ᵀ·Q1ᵀ, and Wx·(Q1·z1) = b reduces to R1ᵀ·z1 = b.
	z1 := lowerTriSolveT(nd.r1, b)
	x1 := mat.NewVecDense(nd.nfree, nil)
	x1.MulVec(nd.q1, mat.NewVecDense(nd.m, z1))
	xlocal := toSlice(x1)

	if nd.p > 0 {
		hxX1 := mat.NewVecDense(nd.nfree, nil)
		hxX1.MulVec(nd.hx, x1)
		rhs := append([]float64(nil), afree...)
		blas1.Axpy(-1, toSlice(hxX1), rhs)
		ztRhs := mat.NewVecDense(nd.p, nil)
		ztRhs.MulVec(nd.z.T(), mat.NewVecDense(nd.nfree, rhs))

		xi := mat.NewVecDense(nd.p, nil)
		if err := nd.lu.SolveVecTo(xi, false, ztRhs); err != nil {
			return matrix.NumericalFailure, errors.Wrap(err, "saddlepoint: Nullspace reduced solve")
		}

		zxi := mat.NewVecDense(nd.nfree, nil)
		zxi.MulVec(nd.z, xi)
		blas1.Axpy(1, toSlice(zxi), xlocal)
	}
	scatterVec(x, xlocal, nd.free)

	// Multiplier recovery: Q1ᵀ(Hx·x + Wxᵀy) = Q1ᵀa reduces to R1·y =
	// Q1ᵀ(a - Hx·x), since Q1ᵀWxᵀ = Q1ᵀQ1R1 = R1 and Q1 has orthonormal
	// columns.
	hxX := mat.NewVecDense(nd.nfree, nil)
	hxX.MulVec(nd.hx, mat.NewVecDense(nd.nfree, xlocal))
	resid := make([]float64, nd.nfree)
	for i := 0; i < nd.nfree; i++ {
		resid[i] = afree[i] - hxX.AtVec(i)
	}
	q1tResid := mat.NewVecDense(nd.m, nil)
	q1tResid.MulVec(nd.q1.T(), mat.NewVecDense(nd.nfree, resid))
	scatterVec(y, upperTriSolve(nd.r1, toSlice(q1tResid)), nd.rows)

	return matrix.Success, nil
}
