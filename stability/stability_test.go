// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stability

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/canonicalizer"
)

func partitionSet(n int, r Result) []bool {
	seen := make([]bool, n)
	mark := func(idx []int) {
		for _, i := range idx {
			seen[i] = true
		}
	}
	mark(r.Js)
	mark(r.Jlu)
	mark(r.Juu)
	return seen
}

// TestPartitionCoversAllVariables checks that Js, Jlu, Juu partition
// {0,...,n-1} with no overlaps and no gaps.
func TestPartitionCoversAllVariables(t *testing.T) {
	n := 5
	w := mat.NewDense(2, n, []float64{
		1, 0, 1, 0, 0,
		0, 1, 0, 1, 0,
	})
	c := canonicalizer.New(1e-12, 1e-10)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	x := []float64{0, 1, 2, 1, 5}
	g := []float64{1, -1, 0.5, -0.5, 2}
	xlower := []float64{0, -math.Inf(1), -math.Inf(1), -math.Inf(1), -math.Inf(1)}
	xupper := []float64{math.Inf(1), 1, math.Inf(1), 1, math.Inf(1)}

	res, err := Classify(c, x, g, xlower, xupper)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	total := len(res.Js) + len(res.Jlu) + len(res.Juu)
	if total != n {
		t.Fatalf("partition sizes sum to %d, want %d", total, n)
	}
	seen := partitionSet(n, res)
	for i, ok := range seen {
		if !ok {
			t.Fatalf("index %d missing from partition", i)
		}
	}
}

// TestBasicIndicesHaveZeroSignal checks that s[i] == 0 for every basic
// index i (jb), since s is only ever set on the nonbasic partition.
func TestBasicIndicesHaveZeroSignal(t *testing.T) {
	n := 4
	w := mat.NewDense(1, n, []float64{1, 1, 0, 0})
	c := canonicalizer.New(1e-12, 1e-10)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	x := make([]float64, n)
	g := []float64{1, 2, 3, 4}
	xlower, xupper := make([]float64, n), make([]float64, n)
	for i := range xlower {
		xlower[i] = math.Inf(-1)
		xupper[i] = math.Inf(1)
	}

	res, err := Classify(c, x, g, xlower, xupper)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for _, j := range c.Jb() {
		if res.S[j] != 0 {
			t.Fatalf("s[%d] = %g on a basic index, want 0", j, res.S[j])
		}
	}
}

// TestUnstableBoundConditionsHold verifies the defining conditions of Jlu
// and Juu directly against the classifier's output.
func TestUnstableBoundConditionsHold(t *testing.T) {
	n := 3
	w := mat.NewDense(1, n, []float64{1, 1, 1})
	c := canonicalizer.New(1e-12, 1e-10)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	xlower := []float64{0, math.Inf(-1), math.Inf(-1)}
	xupper := []float64{math.Inf(1), 1, math.Inf(1)}
	// Put variable 0 at its lower bound, variable 1 at its upper bound.
	x := []float64{0, 1, 5}
	g := []float64{10, -10, 1}

	res, err := Classify(c, x, g, xlower, xupper)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for _, j := range res.Jlu {
		if !(x[j] == xlower[j] && res.S[j] > 0) {
			t.Fatalf("index %d in Jlu fails lower-unstable condition: x=%g xlower=%g s=%g", j, x[j], xlower[j], res.S[j])
		}
	}
	for _, j := range res.Juu {
		if !(x[j] == xupper[j] && res.S[j] < 0) {
			t.Fatalf("index %d in Juu fails upper-unstable condition: x=%g xupper=%g s=%g", j, x[j], xupper[j], res.S[j])
		}
	}
}

// TestNoBasicVariablesFallsBackToRawGradient exercises the k == 0 edge case
// (an empty constraint matrix row range), where s should equal g directly on
// every nonbasic (here: every) index.
func TestNoBasicVariablesFallsBackToRawGradient(t *testing.T) {
	n := 3
	// A single all-zero row cannot pivot, so k == 0 after Compute.
	w := mat.NewDense(1, n, []float64{0, 0, 0})
	c := canonicalizer.New(1e-12, 1e-10)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if c.NumBasicVariables() != 0 {
		t.Fatalf("expected k == 0, got %d", c.NumBasicVariables())
	}

	x := make([]float64, n)
	g := []float64{1, -2, 3}
	xlower, xupper := make([]float64, n), make([]float64, n)
	for i := range xlower {
		xlower[i] = math.Inf(-1)
		xupper[i] = math.Inf(1)
	}

	res, err := Classify(c, x, g, xlower, xupper)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for i := range g {
		if res.S[i] != g[i] {
			t.Fatalf("s[%d] = %g, want raw gradient %g when k == 0", i, res.S[i], g[i])
		}
	}
	if res.Lambda != nil {
		t.Fatalf("Lambda = %v, want nil when k == 0", res.Lambda)
	}
}

// TestUnboundedVariablesNeverUnstable checks that a variable with no lower
// or upper bound (±Inf sentinels) can never land in Jlu or Juu, regardless
// of its current value or gradient sign, since x can never equal ±Inf.
func TestUnboundedVariablesNeverUnstable(t *testing.T) {
	n := 2
	w := mat.NewDense(1, n, []float64{1, 1})
	c := canonicalizer.New(1e-12, 1e-10)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	x := []float64{1e300, -1e300}
	g := []float64{-1, 1}
	xlower := []float64{math.Inf(-1), math.Inf(-1)}
	xupper := []float64{math.Inf(1), math.Inf(1)}

	res, err := Classify(c, x, g, xlower, xupper)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.Jlu) != 0 || len(res.Juu) != 0 {
		t.Fatalf("unbounded variables classified unstable: Jlu=%v Juu=%v", res.Jlu, res.Juu)
	}
}

func TestClassifyRejectsMismatchedLengths(t *testing.T) {
	n := 3
	w := mat.NewDense(1, n, []float64{1, 1, 1})
	c := canonicalizer.New(1e-12, 1e-10)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	_, err := Classify(c, []float64{0, 0}, []float64{0, 0, 0}, []float64{0, 0, 0}, []float64{0, 0, 0})
	if err == nil {
		t.Fatalf("Classify with mismatched x length should error")
	}
}
