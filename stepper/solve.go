// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stepper

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/internal/blas1"
	"github.com/allanleal/optima/matrix"
)

// Solve builds the primal-dual residual RHS from fresh (x, y, z, w, g, A, b)
// data, dispatches to the decomposed saddle-point solver, and unpacks
// (Δx, Δy, Δz, Δw) from the combined solution. Valid only after a
// successful Decompose; may be called repeatedly with different problem
// data sharing the same bound-slack structure.
func (s *Stepper) Solve(p *Problem) (matrix.Status, error) {
	if !s.ready {
		return matrix.Invalid, errors.New("stepper: Solve called before a successful Decompose")
	}
	if err := validateProblem(p); err != nil {
		return matrix.Invalid, err
	}

	fixed := make([]bool, s.n)
	for _, f := range s.fixed {
		fixed[f] = true
	}

	// Optimality residual a = -(g + Aᵀy - z - w) = z + w - g - Aᵀy.
	aty := mat.NewVecDense(s.n, nil)
	var at mat.Dense
	at.CloneFrom(p.A.T())
	aty.MulVec(&at, mat.NewVecDense(s.m, p.Y))

	a := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		if fixed[i] {
			continue
		}
		a[i] = p.Z[i] + p.W[i] - p.Grad[i] - aty.AtVec(i)
	}

	// Feasibility residual b = B - A·x.
	ax := mat.NewVecDense(s.m, nil)
	ax.MulVec(p.A, mat.NewVecDense(s.n, p.X))
	b := make([]float64, s.m)
	for j := 0; j < s.m; j++ {
		b[j] = p.B[j] - ax.AtVec(j)
	}

	// Centrality residuals c = μ - L⊙z, d = μ - U⊙w, restricted to bounded,
	// unfixed indices; zero elsewhere by construction.
	c := make([]float64, s.n)
	d := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		if fixed[i] {
			continue
		}
		if !math.IsInf(p.XLower[i], -1) {
			c[i] = p.Mu - s.l[i]*p.Z[i]
		}
		if !math.IsInf(p.XUpper[i], 1) {
			d[i] = p.Mu - s.u[i]*p.W[i]
		}
	}

	aPrime := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		aPrime[i] = a[i] + c[i]/s.l[i] + d[i]/s.u[i]
	}

	dx, dy := make([]float64, s.n), make([]float64, s.m)
	status, err := s.saddle.Solve(aPrime, b, dx, dy)
	if err != nil || status != matrix.Success {
		return status, err
	}

	dz := make([]float64, s.n)
	dw := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		dz[i] = (c[i] - s.z[i]*dx[i]) / s.l[i]
		dw[i] = (d[i] - s.w[i]*dx[i]) / s.u[i]
	}

	s.res = make([]float64, s.n+s.m+s.n+s.n)
	copy(s.res[:s.n], a)
	copy(s.res[s.n:s.n+s.m], b)
	copy(s.res[s.n+s.m:s.n+s.m+s.n], c)
	copy(s.res[s.n+s.m+s.n:], d)
	s.last = Step{X: dx, Y: dy, Z: dz, W: dw}

	if !s.opts.AllowUnstableResidual {
		if bad := s.fixedRowResidual(p, dx, dy); bad > s.opts.ToleranceDecompose {
			return matrix.Invalid, errors.Errorf("stepper: fixed-row residual %g exceeds tolerance %g with AllowUnstableResidual=false", bad, s.opts.ToleranceDecompose)
		}
	}

	return matrix.Success, nil
}

// fixedRowResidual evaluates ‖H'·Δx + Aᵀ·Δy - a‖∞ restricted to fixed
// rows, using the effective Hessian from the last Decompose. Δx is exactly
// zero on a pinned (unstable-at-bound) variable, so its diagonal entry adds
// nothing; the row is left nonzero by H' entries coupling it to free
// variables and by Aᵀ·Δy, per §9's open question on the large-Huu edge
// case.
func (s *Stepper) fixedRowResidual(p *Problem, dx, dy []float64) float64 {
	if len(s.fixed) == 0 {
		return 0
	}
	hdx := mat.NewVecDense(s.n, nil)
	hdx.MulVec(s.hEff, mat.NewVecDense(s.n, dx))
	atdy := mat.NewVecDense(s.n, nil)
	var at mat.Dense
	at.CloneFrom(p.A.T())
	atdy.MulVec(&at, mat.NewVecDense(s.m, dy))

	rows := make([]float64, len(s.fixed))
	for i, f := range s.fixed {
		rows[i] = hdx.AtVec(f) + atdy.AtVec(f) - s.res[f]
	}
	return blas1.NormInf(rows)
}

// Step returns the Newton increment computed by the most recent Solve.
func (s *Stepper) Step() Step { return s.last }

// Residual returns the residual vector r = [a b c d] built by the most
// recent Solve, mirroring the diagnostic Optima's stepper exposes for its
// own tests.
func (s *Stepper) Residual() []float64 { return s.res }
