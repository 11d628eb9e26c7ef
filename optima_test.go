// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optima

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/matrix"
	"github.com/allanleal/optima/saddlepoint"
)

func flatBounds(n int) (lower, upper []float64) {
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range lower {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return lower, upper
}

func defaultTestOptions() Options {
	return Options{
		SaddleMethod:          saddlepoint.PartialPivLU,
		Mu:                    0.1,
		ToleranceLinear:       1e-10,
		TolerancePivot:        1e-10,
		ToleranceDecompose:    1e12,
		AllowUnstableResidual: true,
	}
}

// TestSimplexEqualityConstraintCentersEqually reproduces the acceptance
// scenario of an n=3, H=I, g=0, single equality constraint 1ᵀx=1 problem: a
// centered Newton step should move to the equal-weight point (1/3,1/3,1/3).
func TestSimplexEqualityConstraintCentersEqually(t *testing.T) {
	n := 3
	H := mat.NewDense(n, n, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	Jac := mat.NewDense(1, n, []float64{1, 1, 1})
	lower, upper := flatBounds(n)

	s := New(defaultTestOptions())
	p := &Problem{
		H: H, Jac: Jac,
		X: []float64{0, 0, 0}, Y: []float64{0},
		Zdual: make([]float64, n), Wdual: make([]float64, n),
		Grad:   []float64{0, 0, 0},
		Target: []float64{1},
		XLower: lower, XUpper: upper,
	}

	res, status, err := s.Step(p)
	if err != nil || status != matrix.Success {
		t.Fatalf("Step: status=%v err=%v", status, err)
	}
	for i, want := range []float64{1.0 / 3, 1.0 / 3, 1.0 / 3} {
		if math.Abs(res.Step.X[i]-want) > 1e-9 {
			t.Fatalf("Δx[%d] = %g, want %g", i, res.Step.X[i], want)
		}
	}
	if res.NumBasic != 1 {
		t.Fatalf("NumBasic = %d, want 1", res.NumBasic)
	}
}

// TestBoundActiveVariableTreatedAsFixed exercises the classifier→stepper
// wiring: a variable pinned at its upper bound with a negative instability
// signal should be folded into Fixed by Step, producing an exactly-zero
// step there even though the caller supplied no Fixed indices itself.
func TestBoundActiveVariableTreatedAsFixed(t *testing.T) {
	// W=[1 1] pivots on column 0, leaving column 1 nonbasic with
	// s[1] = g[1] - S^T*gb = 1 - 1*5 = -4 < 0. Pinning variable 1 at an
	// upper bound of 3 (its current value) makes it upper-unstable, so
	// Step should fold it into Fixed even though the caller didn't.
	n := 2
	H := mat.NewDense(n, n, []float64{2, 0, 0, 2})
	Jac := mat.NewDense(1, n, []float64{1, 1})
	lower := []float64{0, math.Inf(-1)}
	upper := []float64{math.Inf(1), 3}

	s := New(defaultTestOptions())
	p := &Problem{
		H: H, Jac: Jac,
		X: []float64{0, 3}, Y: []float64{0},
		Zdual: make([]float64, n), Wdual: make([]float64, n),
		Grad:   []float64{5, 1},
		Target: []float64{3},
		XLower: lower, XUpper: upper,
	}

	res, status, err := s.Step(p)
	if err != nil || status != matrix.Success {
		t.Fatalf("Step: status=%v err=%v", status, err)
	}
	if res.FixedTotal == 0 {
		t.Fatalf("expected the classifier to pin at least one variable, FixedTotal=0")
	}
	if len(res.Stability.Juu) != 1 || res.Stability.Juu[0] != 1 {
		t.Fatalf("Juu = %v, want [1]", res.Stability.Juu)
	}
	if res.Step.X[1] != 0 {
		t.Fatalf("Δx[1] = %g, want 0 for a variable folded into Fixed", res.Step.X[1])
	}
}

// TestRankDeficientConstraintsReportedNotFatal checks that a linearly
// dependent constraint row (a scaled duplicate of another row) is absorbed
// by the canonicalizer rather than causing an error: it lowers NumBasic
// below the row count instead of failing Recanonicalize. Per §4.1 this
// diagnostic is independent of whether the raw saddle-point system built
// from the same (singular) Jac can itself be factored — that is a separate
// concern the saddle-point method's own tolerance governs.
func TestRankDeficientConstraintsReportedNotFatal(t *testing.T) {
	Jac := mat.NewDense(2, 2, []float64{1, 1, 2, 2}) // row 2 = 2 * row 1

	s := New(defaultTestOptions())
	if _, err := s.Recanonicalize(Jac); err != nil {
		t.Fatalf("Recanonicalize: %v", err)
	}
	if got := s.Canonicalizer().NumBasicVariables(); got != 1 {
		t.Fatalf("NumBasicVariables() = %d, want 1 for a rank-deficient 2-row constraint set", got)
	}
}

// TestRankDeficientConstraintsStepSolvesWithConsistentTarget exercises the
// full acceptance scenario §4.1 describes as "not an error": a rank-deficient
// Jac (row 1 is twice row 0) with a Target consistent with that dependency
// must still let Step produce a Newton increment, not merely a canonical
// form diagnostic. Step forwards Canonicalizer.Ili() into the stepper's KKT
// assembly so the saddle-point solve drops the dependent row instead of
// factoring the resulting singular block.
func TestRankDeficientConstraintsStepSolvesWithConsistentTarget(t *testing.T) {
	n := 2
	H := mat.NewDense(n, n, []float64{1, 0, 0, 1})
	Jac := mat.NewDense(2, n, []float64{1, 1, 2, 2}) // row 1 = 2 * row 0
	lower, upper := flatBounds(n)

	s := New(defaultTestOptions())
	p := &Problem{
		H: H, Jac: Jac,
		X: []float64{0, 0}, Y: []float64{0, 0},
		Zdual: make([]float64, n), Wdual: make([]float64, n),
		Grad:   []float64{0, 0},
		Target: []float64{1, 2}, // consistent: Target[1] = 2*Target[0]
		XLower: lower, XUpper: upper,
	}

	res, status, err := s.Step(p)
	if err != nil || status != matrix.Success {
		t.Fatalf("Step: status=%v err=%v", status, err)
	}
	if res.Rank != 1 {
		t.Fatalf("Rank = %d, want 1 for a rank-deficient 2-row constraint set", res.Rank)
	}
	wx0 := p.X[0] + res.Step.X[0] + p.X[1] + res.Step.X[1]
	if math.Abs(wx0-1) > 1e-8 {
		t.Fatalf("Jac row 0 residual = %g, want <= 1e-8", wx0-1)
	}
}

// TestStepRepeatableWithSameJac checks that calling Step twice in a row
// with the same Jac pointer and unchanged problem data is idempotent.
func TestStepRepeatableWithSameJac(t *testing.T) {
	n := 2
	H := mat.NewDense(n, n, []float64{1, 0, 0, 1})
	Jac := mat.NewDense(1, n, []float64{1, 1})
	lower, upper := flatBounds(n)

	s := New(defaultTestOptions())
	p := &Problem{
		H: H, Jac: Jac,
		X: []float64{0, 0}, Y: []float64{0},
		Zdual: make([]float64, n), Wdual: make([]float64, n),
		Grad:   []float64{0, 0},
		Target: []float64{1},
		XLower: lower, XUpper: upper,
	}
	res1, status, err := s.Step(p)
	if err != nil || status != matrix.Success {
		t.Fatalf("first Step: status=%v err=%v", status, err)
	}
	res2, status, err := s.Step(p)
	if err != nil || status != matrix.Success {
		t.Fatalf("second Step: status=%v err=%v", status, err)
	}
	if res1.NumBasic != res2.NumBasic {
		t.Fatalf("NumBasic changed across repeated Step calls: %d vs %d", res1.NumBasic, res2.NumBasic)
	}
	for i := range res1.Step.X {
		if res1.Step.X[i] != res2.Step.X[i] {
			t.Fatalf("Step not repeatable: %v vs %v", res1.Step.X, res2.Step.X)
		}
	}
}
