// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stepper implements the interior-point Newton step: it folds the
// bound-slack blocks diag(Z), diag(W), diag(L), diag(U) of the expanded
// primal-dual KKT system into a plain saddle-point system and dispatches to
// package saddlepoint, following the decompose/solve state machine of
// lbfgsb's iteration driver.
package stepper

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/matrix"
	"github.com/allanleal/optima/saddlepoint"
)

// Options carries the tolerances and method selection the stepper's
// embedded saddlepoint.Solver needs, plus stepper-specific knobs.
type Options struct {
	SaddleMethod       saddlepoint.Method
	ToleranceLinear    float64
	TolerancePivot     float64
	ToleranceDecompose float64

	// AllowUnstableResidual controls whether Solve accepts a nonzero
	// x-equation residual at Fixed indices — the rows of variables a
	// stability classifier pinned at their bound for this step. Δx is zero
	// there, so the residual comes from H' entries coupling those rows to
	// the free variables (and from Aᵀ·Δy), and is large when that coupling
	// is large. When false, Solve reports Invalid if that residual exceeds
	// ToleranceDecompose instead of returning the step. The zero value is
	// false.
	AllowUnstableResidual bool
}

// Problem is the per-iteration input the stepper needs to build and solve
// the primal-dual Newton system. XLower[i] = math.Inf(-1) and
// XUpper[i] = math.Inf(1) mean "no lower/upper bound" respectively.
type Problem struct {
	H      *mat.Dense // n×n Hessian
	A      *mat.Dense // m×n combined linear+nonlinear constraint Jacobian
	G      *mat.Dense // optional m×m, negative-semidefinite convention (§9)
	X, Y   []float64  // current primal iterate (n), multipliers (m)
	Z, W   []float64  // current lower/upper-bound dual iterates (n each)
	Grad   []float64  // g, length n
	B      []float64  // constraint target, A·x should equal B, length m
	XLower []float64  // length n
	XUpper []float64  // length n
	Fixed  []int
	Mu     float64

	// Ili optionally names the independent rows of A, as reported by
	// canonicalizer.Canonicalizer.Ili(). Per §4.1, a linearly dependent row
	// of A is not an error as long as B is consistent with it; forwarded
	// unchanged to saddlepoint.Matrix.Ili so the KKT assembly drops
	// dependent rows rather than factoring a singular block. Empty means
	// every row of A is treated as independent.
	Ili []int
}

// Step holds the Newton increment produced by the most recent Solve.
type Step struct {
	X []float64
	Y []float64
	Z []float64
	W []float64
}

// Stepper runs the decompose/solve state machine of §4.3: Decompose folds
// the bound-slack blocks into an effective Hessian and factors the
// resulting saddle-point system; Solve is read-only over that
// factorization and may be called repeatedly with fresh problem data
// sharing the same bound-slack structure.
type Stepper struct {
	opts Options

	n, m  int
	fixed []int

	z, w, l, u []float64 // bound-slack vectors from the last Decompose
	hEff       *mat.Dense

	saddle *saddlepoint.Solver
	ready  bool

	last Step
	res  []float64 // last-computed residual vector r = [a b c d]
}

// New creates a Stepper with the given options.
func New(opts Options) *Stepper {
	return &Stepper{opts: opts}
}

// Decompose builds the bound-slack vectors and the effective Hessian
// H' = H + diag(Z/L) + diag(W/U), then factors the resulting saddle-point
// matrix. Re-Decompose without an intervening Solve is allowed.
func (s *Stepper) Decompose(p *Problem) (matrix.Status, error) {
	if err := validateProblem(p); err != nil {
		return matrix.Invalid, err
	}
	n, _ := p.H.Dims()
	m, _ := p.A.Dims()
	s.n, s.m = n, m
	s.fixed = append([]int(nil), p.Fixed...)
	s.ready = false

	z, w, l, u := buildBoundSlacks(p, p.Mu)
	s.z, s.w, s.l, s.u = z, w, l, u

	hEff := mat.DenseCopyOf(p.H)
	for i := 0; i < n; i++ {
		hEff.Set(i, i, hEff.At(i, i)+z[i]/l[i]+w[i]/u[i])
	}
	s.hEff = hEff

	M := &saddlepoint.Matrix{H: hEff, W: p.A, G: p.G, Fixed: s.fixed, Ili: p.Ili}
	s.saddle = saddlepoint.New(s.opts.SaddleMethod, saddlepoint.Options{
		ToleranceLinear:    s.opts.ToleranceLinear,
		TolerancePivot:     s.opts.TolerancePivot,
		ToleranceDecompose: s.opts.ToleranceDecompose,
	})
	status, err := s.saddle.Decompose(M)
	if err != nil || status != matrix.Success {
		return status, err
	}
	s.ready = true
	return matrix.Success, nil
}

// buildBoundSlacks computes (Z, W, L, U) per §4.3: Z/L carry the
// lower-bound dual and slack, W/U the upper-bound dual and slack. Fixed
// variables and variables without the relevant bound get a neutral entry
// (dual 0, slack 1) so they contribute nothing to the folded Hessian.
func buildBoundSlacks(p *Problem, mu float64) (z, w, l, u []float64) {
	n := len(p.X)
	z = make([]float64, n)
	w = make([]float64, n)
	l = make([]float64, n)
	u = make([]float64, n)
	fixed := make([]bool, n)
	for _, f := range p.Fixed {
		fixed[f] = true
	}
	for i := 0; i < n; i++ {
		l[i], u[i] = 1, 1
		if fixed[i] {
			continue
		}
		if !math.IsInf(p.XLower[i], -1) {
			z[i] = p.Z[i]
			li := p.X[i] - p.XLower[i]
			if li <= 0 {
				li = mu
			}
			l[i] = li
		}
		if !math.IsInf(p.XUpper[i], 1) {
			w[i] = p.W[i]
			ui := p.X[i] - p.XUpper[i]
			if ui >= 0 {
				ui = -mu
			}
			u[i] = ui
		}
	}
	return z, w, l, u
}

func validateProblem(p *Problem) error {
	n, hc := p.H.Dims()
	if n != hc {
		return errors.Errorf("stepper: H must be square, got %d×%d", n, hc)
	}
	if len(p.X) != n || len(p.Grad) != n || len(p.Z) != n || len(p.W) != n {
		return errors.Errorf("stepper: X/g/Z/W must have length n=%d", n)
	}
	if len(p.XLower) != n || len(p.XUpper) != n {
		return errors.Errorf("stepper: XLower/XUpper must have length n=%d", n)
	}
	m, ac := p.A.Dims()
	if ac != n {
		return errors.Errorf("stepper: A must have %d columns, got %d", n, ac)
	}
	if len(p.Y) != m || len(p.B) != m {
		return errors.Errorf("stepper: Y/B must have length m=%d", m)
	}
	for _, f := range p.Fixed {
		if f < 0 || f >= n {
			return errors.Errorf("stepper: fixed index %d out of range [0,%d)", f, n)
		}
	}
	return nil
}
