// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canonicalizer

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func approxEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// checkCanonicalForm computes R·W·Q and compares it against [I S; 0 0]
// within tol.
func checkCanonicalForm(t *testing.T, c *Canonicalizer, w *mat.Dense, tol float64) {
	t.Helper()
	r, n := w.Dims()

	var rw mat.Dense
	rw.Mul(c.R(), w)

	// Apply column permutation Q.
	permuted := mat.NewDense(r, n, nil)
	for j, orig := range c.Q() {
		for i := 0; i < r; i++ {
			permuted.Set(i, j, rw.At(i, orig))
		}
	}

	k := c.NumBasicVariables()
	for i := 0; i < r; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i < k {
				if j == i {
					want = 1
				} else if j >= k {
					want = c.S().At(i, j-k)
				}
			}
			if got := permuted.At(i, j); !approxEqual(got, want, tol) {
				t.Fatalf("R*W*Q[%d][%d] = %g, want %g", i, j, got, want)
			}
		}
	}
}

func TestComputeCanonicalForm(t *testing.T) {
	w := mat.NewDense(2, 4, []float64{
		1, 2, 0, 1,
		0, 1, 1, 3,
	})
	c := New(1e-9, 1e-9)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if c.NumBasicVariables() != 2 {
		t.Fatalf("NumBasicVariables() = %d, want 2", c.NumBasicVariables())
	}
	if err := (partitionErr(c)); err != nil {
		t.Fatalf("partition invalid: %v", err)
	}
	checkCanonicalForm(t, c, w, 1e-9)
}

func partitionErr(c *Canonicalizer) error {
	seen := make(map[int]bool, c.n)
	for _, j := range c.Jb() {
		if seen[j] {
			return errDup(j)
		}
		seen[j] = true
	}
	for _, j := range c.Jn() {
		if seen[j] {
			return errDup(j)
		}
		seen[j] = true
	}
	if len(seen) != c.n {
		return errDup(-1)
	}
	return nil
}

type errDup int

func (e errDup) Error() string { return "duplicate or missing index" }

func TestRankDeficientRow(t *testing.T) {
	// Row 2 = row 0 - row 1.
	w := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		1, -1, 0,
	})
	c := New(1e-9, 1e-9)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if c.NumBasicVariables() != 2 {
		t.Fatalf("NumBasicVariables() = %d, want 2 (rank deficient)", c.NumBasicVariables())
	}
}

func TestSwapIsInvolution(t *testing.T) {
	w := mat.NewDense(2, 4, []float64{
		2, 1, 0, 3,
		1, 0, 1, 1,
	})
	c := New(1e-9, 1e-9)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	origJb := append([]int(nil), c.Jb()...)
	origJn := append([]int(nil), c.Jn()...)
	origS := mat.DenseCopyOf(c.S())
	origR := mat.DenseCopyOf(c.R())

	// Pick a nonbasic column with a usable pivot in row 0.
	in := -1
	for j := 0; j < c.NumNonBasicVariables(); j++ {
		if math.Abs(c.S().At(0, j)) > 1e-6 {
			in = j
			break
		}
	}
	if in < 0 {
		t.Skip("no usable pivot found for this matrix")
	}

	if err := c.Swap(0, in); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	// Swap back: the entering nonbasic slot is now `in`'s old basic slot 0,
	// and the departed basic is now nonbasic at slot in.
	if err := c.Swap(0, in); err != nil {
		t.Fatalf("Swap back: %v", err)
	}

	for i := range origJb {
		if c.Jb()[i] != origJb[i] {
			t.Fatalf("jb not restored: got %v want %v", c.Jb(), origJb)
		}
	}
	for i := range origJn {
		if c.Jn()[i] != origJn[i] {
			t.Fatalf("jn not restored: got %v want %v", c.Jn(), origJn)
		}
	}
	rows, cols := origS.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !approxEqual(c.S().At(i, j), origS.At(i, j), 1e-9) {
				t.Fatalf("S not restored at [%d][%d]: got %g want %g", i, j, c.S().At(i, j), origS.At(i, j))
			}
		}
	}
	rr, rc := origR.Dims()
	for i := 0; i < rr; i++ {
		for j := 0; j < rc; j++ {
			if !approxEqual(c.R().At(i, j), origR.At(i, j), 1e-9) {
				t.Fatalf("R not restored at [%d][%d]: got %g want %g", i, j, c.R().At(i, j), origR.At(i, j))
			}
		}
	}
}

func TestUpdateWeightsRespectsPriority(t *testing.T) {
	w := mat.NewDense(2, 4, []float64{
		1, 2, 0, 1,
		0, 1, 1, 3,
	})
	c := New(1e-9, 1e-6)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	weights := []float64{1, 5, 10, 2}
	if err := c.UpdateWeights(weights); err != nil {
		t.Fatalf("UpdateWeights: %v", err)
	}
	for _, b := range c.Jb() {
		for ni, n := range c.Jn() {
			if weights[b] < weights[n] && math.Abs(c.S().At(indexOf(c.Jb(), b), ni)) >= 1e-6 {
				t.Fatalf("basic %d (w=%g) has usable pivot against heavier nonbasic %d (w=%g)", b, weights[b], n, weights[n])
			}
		}
	}
	checkCanonicalForm(t, c, w, 1e-9)
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestRationalize(t *testing.T) {
	w := mat.NewDense(1, 2, []float64{3, 4})
	c := New(1e-9, 1e-9)
	if err := c.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// Compute pivots on the larger entry 4, so S holds 3/4. Overwrite it
	// with a value one ulp above 4/3 to emulate accumulated round-off, then
	// rationalize back.
	c.S().Set(0, 0, 1.3333333333333335)
	res := c.Rationalize(100)
	if res.Overflowed != 0 {
		t.Fatalf("unexpected overflow count %d", res.Overflowed)
	}
	if got := c.S().At(0, 0); !approxEqual(got, 4.0/3.0, 1e-12) {
		t.Fatalf("S[0][0] = %v, want 4/3", got)
	}
}

func TestComputeIdempotent(t *testing.T) {
	w := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	c1 := New(1e-9, 1e-9)
	c2 := New(1e-9, 1e-9)
	if err := c1.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := c2.Compute(w); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	rows, cols := c1.S().Dims()
	rows2, cols2 := c2.S().Dims()
	if rows != rows2 || cols != cols2 {
		t.Fatalf("S dims differ")
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if c1.S().At(i, j) != c2.S().At(i, j) {
				t.Fatalf("S differs at [%d][%d]", i, j)
			}
		}
	}
}
