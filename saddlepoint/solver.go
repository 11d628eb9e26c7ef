// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddlepoint

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/canonicalizer"
	"github.com/allanleal/optima/internal/blas1"
	"github.com/allanleal/optima/matrix"
)

// Method selects one of the four saddle-point solution strategies.
type Method int

const (
	// PartialPivLU factors the full (n+m)×(n+m) system with partial
	// pivoting. General purpose; the default.
	PartialPivLU Method = iota
	// FullPivLU factors the full system with complete pivoting, for
	// ill-conditioned small problems.
	FullPivLU
	// Nullspace eliminates x via a null-space basis of W, solving a dense
	// (n-m)-dimensional reduced system. Suited to dense H with m close to n.
	Nullspace
	// RangespaceDiagonal eliminates y via H⁻¹, solving an m-dimensional
	// system. Requires H diagonal; behavior is undefined otherwise.
	RangespaceDiagonal
)

func (m Method) String() string {
	switch m {
	case PartialPivLU:
		return "PartialPivLU"
	case FullPivLU:
		return "FullPivLU"
	case Nullspace:
		return "Nullspace"
	case RangespaceDiagonal:
		return "RangespaceDiagonal"
	default:
		return "unknown method"
	}
}

// Options carries the tolerances a Solver needs.
type Options struct {
	ToleranceLinear    float64
	TolerancePivot     float64
	ToleranceDecompose float64
}

// Solver decomposes and solves saddle-point systems with a fixed method.
// decompose() and solve() are separated so one decomposition can serve
// several right-hand sides; solve() is read-only over the decomposition and
// therefore repeatable.
type Solver struct {
	method Method
	opts   Options

	n, m  int
	free  []int
	fixed []int
	M     *Matrix

	// effRows/effM are the row selection used for the KKT assembly (§4.2's
	// shared canonical reduction): every row of W when M.Ili is empty, or
	// just the independent rows M.Ili names otherwise.
	effRows []int
	effM    int

	// canon is the embedded Canonicalizer §4.2 requires the solver route
	// through before method dispatch. Only RangespaceDiagonal's canonical
	// (b, s, u) reduction currently exercises it: PartialPivLU, FullPivLU
	// and Nullspace solve the assembled/reduced system directly and have
	// no canonical-form dependent step to route through it.
	canon *canonicalizer.Canonicalizer

	partial   partialPivDecomp
	full      fullPivDecomp
	nullspace nullspaceDecomp
	rangeDiag rangespaceDecomp

	ready        bool
	lastResidual float64
}

// New creates a Solver using the given method and tolerances.
func New(method Method, opts Options) *Solver {
	return &Solver{
		method: method,
		opts:   opts,
		canon:  canonicalizer.New(opts.ToleranceLinear, opts.TolerancePivot),
	}
}

// Method returns the strategy this solver was constructed with.
func (s *Solver) Method() Method { return s.method }

// LastResidual returns ‖M·[x;y] − [a;b]‖ from the most recent Solve call, a
// diagnostic supplementing the ternary Status result.
func (s *Solver) LastResidual() float64 { return s.lastResidual }

// Decompose factors M for the solver's configured method. A subsequent
// Decompose without an intervening Solve is allowed and simply replaces the
// stored factorization.
func (s *Solver) Decompose(M *Matrix) (matrix.Status, error) {
	if err := M.Validate(); err != nil {
		return matrix.Invalid, err
	}
	n, m := M.Dims()
	s.n, s.m = n, m
	s.free = M.free(n)
	s.fixed = append([]int(nil), M.Fixed...)
	s.effRows = M.effRows(m)
	s.effM = len(s.effRows)
	s.M = M
	s.ready = false

	var status matrix.Status
	var err error
	switch s.method {
	case PartialPivLU:
		status, err = s.decomposePartialPivLU(M)
	case FullPivLU:
		status, err = s.decomposeFullPivLU(M)
	case Nullspace:
		status, err = s.decomposeNullspace(M)
	case RangespaceDiagonal:
		status, err = s.decomposeRangespaceDiagonal(M)
	default:
		return matrix.Invalid, errors.Errorf("saddlepoint: unknown method %v", s.method)
	}
	if err != nil || status != matrix.Success {
		return status, err
	}
	s.ready = true
	return matrix.Success, nil
}

// Solve computes (x, y) satisfying M·[x;y] = [a;b], honoring the fixed
// mask (x[f] = a[f] for f in Fixed). x and y are caller-owned output
// buffers of length n and m.
func (s *Solver) Solve(a, b, x, y []float64) (matrix.Status, error) {
	if !s.ready {
		return matrix.Invalid, errors.New("saddlepoint: Solve called before a successful Decompose")
	}
	if len(a) != s.n || len(x) != s.n {
		return matrix.Invalid, errors.Errorf("saddlepoint: a/x length must be n=%d", s.n)
	}
	if len(b) != s.m || len(y) != s.m {
		return matrix.Invalid, errors.Errorf("saddlepoint: b/y length must be m=%d", s.m)
	}

	for i := range y {
		y[i] = 0
	}
	for _, f := range s.fixed {
		x[f] = a[f]
	}

	// bEff is restricted to the independent rows (§4.2's shared canonical
	// reduction, effRows): a dependent row contributes no equation of its
	// own once its independent combination is already enforced, so its
	// y-component stays zero (set above) and its b entry is never read.
	bEff := s.adjustedB(a, b)

	var status matrix.Status
	var err error
	switch s.method {
	case PartialPivLU:
		status, err = s.solvePartialPivLU(a, bEff, x, y)
	case FullPivLU:
		status, err = s.solveFullPivLU(a, bEff, x, y)
	case Nullspace:
		status, err = s.solveNullspace(a, bEff, x, y)
	case RangespaceDiagonal:
		status, err = s.solveRangespaceDiagonal(a, bEff, x, y)
	}
	if err != nil || status != matrix.Success {
		return status, err
	}

	s.lastResidual = Residual(s.M, a, b, x, y)
	return matrix.Success, nil
}

// adjustedB restricts b to the independent rows (effRows) and folds the
// fixed variables' contribution to the y-row out of it: the y-row of the
// masked system reads Wx·x_free + Wf·x_fixed = b, and since x_fixed is
// pinned to a[fixed] rather than solved for, the free-variable solve must
// target Wx·x_free = b - Wf·a[fixed], not b itself. The returned slice has
// length effM, matching what the four method-specific solves expect.
func (s *Solver) adjustedB(a, b []float64) []float64 {
	out := gatherVec(b, s.effRows)
	if len(s.fixed) == 0 {
		return out
	}
	wf := subRowsCols(s.M.W, s.effRows, s.fixed)
	afixed := gatherVec(a, s.fixed)
	wfa := mat.NewVecDense(s.effM, nil)
	wfa.MulVec(wf, mat.NewVecDense(len(s.fixed), afixed))

	blas1.Axpy(-1, toSlice(wfa), out)
	return out
}

// Residual computes ‖M·[x;y] − [a;b]‖∞, useful in tests and diagnostics
// without requiring the solver to retain M after Decompose.
func Residual(M *Matrix, a, b, x, y []float64) float64 {
	n, m := M.Dims()
	res := make([]float64, n+m)

	hx := mat.NewVecDense(n, nil)
	hx.MulVec(M.H, mat.NewVecDense(n, x))
	wty := mat.NewVecDense(n, nil)
	wt := mat.NewDense(n, m, nil)
	wt.CloneFrom(M.W.T())
	wty.MulVec(wt, mat.NewVecDense(m, y))

	for i := 0; i < n; i++ {
		res[i] = hx.AtVec(i) + wty.AtVec(i) - a[i]
	}

	wx := mat.NewVecDense(m, nil)
	wx.MulVec(M.W, mat.NewVecDense(n, x))
	var gy *mat.VecDense
	if M.G != nil {
		gy = mat.NewVecDense(m, nil)
		gy.MulVec(M.G, mat.NewVecDense(m, y))
	}
	for i := 0; i < m; i++ {
		v := wx.AtVec(i) - b[i]
		if gy != nil {
			v += gy.AtVec(i)
		}
		res[n+i] = v
	}

	return blas1.NormInf(res)
}
