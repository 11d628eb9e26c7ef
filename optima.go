// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package optima wires the canonicalizer, saddlepoint, stepper and
// stability packages into the single per-iteration entry point an outer
// Newton/trust-region loop drives (§2's data flow): canonicalize W,
// reweight the basic partition from the current x and bounds, classify
// variable stability from the current gradient, fold the resulting
// fixed-at-bound set into the interior-point stepper, and hand back the
// primal-dual Newton increment.
//
// Everything outside that per-iteration step — the outer loop itself,
// objective/constraint evaluation, line search, logging — is explicitly out
// of scope; optima.Solver only ever produces one Newton step per call.
package optima

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/canonicalizer"
	"github.com/allanleal/optima/matrix"
	"github.com/allanleal/optima/saddlepoint"
	"github.com/allanleal/optima/stability"
	"github.com/allanleal/optima/stepper"
)

// Options is the single configuration record the core recognizes (§6): no
// files, wire protocols, or environment variables at this layer.
type Options struct {
	// SaddleMethod selects the saddle-point solution strategy. Default
	// (zero value) is PartialPivLU.
	SaddleMethod saddlepoint.Method
	// Rationalize, when positive, is the maximum denominator used to clean
	// up the canonicalizer's R and S after each Recanonicalize. Zero
	// disables it.
	Rationalize int64
	// Mu is the barrier/central-path parameter used for bound-slack
	// regularization and centrality residuals (§4.3). Callers update it
	// between calls to Step as the outer loop drives it down.
	Mu float64

	ToleranceLinear    float64
	TolerancePivot     float64
	ToleranceDecompose float64

	// AllowUnstableResidual, see stepper.Options.
	AllowUnstableResidual bool
}

func (o Options) stepperOptions() stepper.Options {
	return stepper.Options{
		SaddleMethod:          o.SaddleMethod,
		ToleranceLinear:       o.ToleranceLinear,
		TolerancePivot:        o.TolerancePivot,
		ToleranceDecompose:    o.ToleranceDecompose,
		AllowUnstableResidual: o.AllowUnstableResidual,
	}
}

// Problem is the per-iteration input an outer loop supplies (§3's "Data
// flow per outer iteration"): evaluators produce (H, g, A, J, h, x, y, z, w)
// and the current bounds; Jac = [A; J] is passed pre-stacked by the caller,
// matching MasterMatrix's "stored as references, never materialized dense
// unless a method requires it" contract at the boundary this package owns.
type Problem struct {
	H      *mat.Dense
	Jac    *mat.Dense // stacked [A; J], (m+mj)×n
	G      *mat.Dense // optional, negative-semidefinite convention
	X, Y   []float64
	Zdual  []float64 // lower-bound duals
	Wdual  []float64 // upper-bound duals
	Grad   []float64
	Target []float64 // Jac·x should equal Target
	XLower []float64
	XUpper []float64
	// Fixed lists variables the caller wants pinned regardless of the
	// stability classifier's verdict (e.g. degrees of freedom removed by a
	// modeling layer above this package).
	Fixed []int
}

// Result is the Newton increment and diagnostics from one Step call.
type Result struct {
	Step       stepper.Step
	Stability  stability.Result
	NumBasic   int
	Rank       int
	FixedTotal int
}

// Solver holds the canonicalizer and interior-point stepper across outer
// iterations, per §5's resource-ownership model: it owns its scratch state
// and is not safe for concurrent use by multiple threads. Use Clone for an
// independent copy.
type Solver struct {
	opts Options

	canon   *canonicalizer.Canonicalizer
	step    *stepper.Stepper
	wCached *mat.Dense
}

// New creates a Solver with the given options.
func New(opts Options) *Solver {
	return &Solver{
		opts:  opts,
		canon: canonicalizer.New(nonZero(opts.ToleranceLinear), nonZero(opts.TolerancePivot)),
		step:  stepper.New(opts.stepperOptions()),
	}
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1e-14
	}
	return v
}

// Clone returns a copy of s that shares no scratch state with it. Only the
// canonical form is deep-copied: the clone gets a new stepper holding no
// decomposition, and no cached Jac, so its first Step recomputes the
// canonical form from that Step's p.Jac.
func (s *Solver) Clone() *Solver {
	return &Solver{
		opts:  s.opts,
		canon: s.canon.Clone(),
		step:  stepper.New(s.opts.stepperOptions()),
	}
}

// Canonicalizer exposes the embedded canonicalizer for callers that need to
// inspect the canonical form directly (basis, R, S, independent rows).
func (s *Solver) Canonicalizer() *canonicalizer.Canonicalizer { return s.canon }

// Recanonicalize (re)computes the canonical form of w = [A; J] and, if
// Options.Rationalize > 0, cleans up R and S to nearby rationals.
func (s *Solver) Recanonicalize(w *mat.Dense) (canonicalizer.RationalizeResult, error) {
	if err := s.canon.Compute(w); err != nil {
		return canonicalizer.RationalizeResult{}, err
	}
	s.wCached = w
	var rr canonicalizer.RationalizeResult
	if s.opts.Rationalize > 0 {
		rr = s.canon.Rationalize(s.opts.Rationalize)
	}
	return rr, nil
}

// Step performs one full outer-iteration pass: classify stability from the
// current canonical form and gradient, union the caller's Fixed set with
// the unstable ranges the classifier reports, then decompose and solve the
// interior-point stepper for this problem, returning the Newton increment.
//
// Step reuses the cached canonical form when p.Jac is the same pointer it
// was last recanonicalized with, and calls Recanonicalize itself otherwise
// (including on the first Step of a Solver).
func (s *Solver) Step(p *Problem) (Result, matrix.Status, error) {
	if p.Jac != s.wCached {
		if _, err := s.Recanonicalize(p.Jac); err != nil {
			return Result{}, matrix.Invalid, errors.Wrap(err, "optima: recanonicalize")
		}
	}

	n := s.canon.NumVariables()
	if len(p.X) != n || len(p.XLower) != n || len(p.XUpper) != n {
		return Result{}, matrix.Invalid, errors.Errorf("optima: X/XLower/XUpper must have length n=%d", n)
	}
	for _, f := range p.Fixed {
		if f < 0 || f >= n {
			return Result{}, matrix.Invalid, errors.Errorf("optima: fixed index %d out of range [0,%d)", f, n)
		}
	}

	if err := s.canon.UpdateWeights(boundWeights(p.X, p.XLower, p.XUpper, p.Fixed)); err != nil {
		return Result{}, matrix.Invalid, errors.Wrap(err, "optima: update weights")
	}

	st, err := stability.Classify(s.canon, p.X, p.Grad, p.XLower, p.XUpper)
	if err != nil {
		return Result{}, matrix.Invalid, errors.Wrap(err, "optima: classify stability")
	}

	fixed := unionFixed(p.Fixed, st.Jlu, st.Juu)

	sp := &stepper.Problem{
		H: p.H, A: p.Jac, G: p.G,
		X: p.X, Y: p.Y, Z: p.Zdual, W: p.Wdual,
		Grad:   p.Grad,
		B:      p.Target,
		XLower: p.XLower, XUpper: p.XUpper,
		Fixed: fixed,
		Mu:    s.opts.Mu,
		Ili:   s.canon.Ili(),
	}

	status, err := s.step.Decompose(sp)
	if err != nil || status != matrix.Success {
		return Result{Stability: st}, status, err
	}
	status, err = s.step.Solve(sp)
	if err != nil || status != matrix.Success {
		return Result{Stability: st}, status, err
	}

	return Result{
		Step:       s.step.Step(),
		Stability:  st,
		NumBasic:   s.canon.NumBasicVariables(),
		Rank:       len(s.canon.Ili()),
		FixedTotal: len(fixed),
	}, matrix.Success, nil
}

// boundWeights derives per-variable basis-selection priority (spec §2's
// "canonicalizer updates ... using priority weights derived from x and
// bounds") from distance to the nearest active bound: a variable sitting
// well inside its bounds is safe to keep basic, one sitting close to a
// bound is a candidate to fall nonbasic before the stability classifier
// even runs. Unbounded sides contribute +Inf, so a variable free on both
// sides gets the largest possible weight. Caller-pinned fixed variables get
// a non-positive weight, per Canonicalizer.hpp's documented contract that
// non-positive weights keep a variable out of the basis whenever
// structural feasibility allows it.
func boundWeights(x, xlower, xupper []float64, fixed []int) []float64 {
	n := len(x)
	w := make([]float64, n)
	for i := range w {
		lo := xlower[i]
		hi := xupper[i]
		dLower := math.Inf(1)
		if !math.IsInf(lo, -1) {
			dLower = x[i] - lo
		}
		dUpper := math.Inf(1)
		if !math.IsInf(hi, 1) {
			dUpper = hi - x[i]
		}
		w[i] = math.Min(dLower, dUpper)
	}
	for _, f := range fixed {
		w[f] = -1
	}
	return w
}

// unionFixed merges the caller-supplied fixed set with the classifier's
// unstable ranges, deduplicating and sorting for determinism. The fixed set
// stays small (it is bounded by n and typically far smaller), so a linear
// matrix.IsMember scan against the accumulated result is cheaper to reason
// about than a map and needs no extra allocation for the seen-set.
func unionFixed(fixed, jlu, juu []int) []int {
	out := make([]int, 0, len(fixed)+len(jlu)+len(juu))
	add := func(idx []int) {
		for _, i := range idx {
			if !matrix.IsMember(out, i) {
				out = append(out, i)
			}
		}
	}
	add(fixed)
	add(jlu)
	add(juu)
	sortInts(out)
	return out
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
