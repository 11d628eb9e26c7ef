// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package canonicalizer reduces a general linear constraint matrix
// W = [A; J] to canonical form C = R·W·Q = [I S], and maintains that form
// incrementally across outer iterations.
//
// # Canonical form
//
// Given W ∈ ℝ^{r×n} with r ≤ n, compute() produces an invertible R ∈ ℝ^{r×r}
// and a column permutation Q such that
//
//	R·W·Q = [I_k  S; 0  0]
//
// after discarding the rows of R·W that vanish within tolerance τ_lin —
// those correspond to constraints that are linear combinations of the
// others. k = |jb| = |ili| is the number of linearly independent rows,
// jb/jn are the resulting basic/nonbasic column indices, and ili holds the
// original row indices retained as independent.
//
// The initial computation is a Gauss-Jordan elimination with complete
// (row and column) pivoting: at each step the largest-magnitude entry of
// the remaining submatrix is chosen as pivot, matching the column-pivoted
// Householder strategy of a rank-revealing triangularization — the same
// stability criterion (pivot magnitude against the tolerance) used to
// determine pseudo-rank there is used here to determine k.
package canonicalizer

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/internal/blas1"
	"github.com/allanleal/optima/matrix"
)

// Canonicalizer holds the canonical form (R, S, Q, jb, jn, ili) of a matrix
// W and the elementary operations that keep it valid as W changes.
//
// A Canonicalizer is a value-owning type: it never shares its buffers with
// another instance. Clone returns an independent deep copy.
type Canonicalizer struct {
	toleranceLinear float64
	tolerancePivot  float64

	n, r, k int

	r_ *mat.Dense // r×r canonicalizer matrix R
	s  *mat.Dense // k×(n-k) off-diagonal block S

	q   []int // length n, Q[pos] = original column index at pos
	jb  []int // length k, basic column indices (= q[:k])
	jn  []int // length n-k, nonbasic column indices (= q[k:])
	ili []int // length k, original row indices retained as independent
}

// New creates a Canonicalizer using the given tolerances for rank detection
// (τ_lin) and pivot rejection during swap/update_weights (τ_pivot).
func New(toleranceLinear, tolerancePivot float64) *Canonicalizer {
	return &Canonicalizer{toleranceLinear: toleranceLinear, tolerancePivot: tolerancePivot}
}

// Clone returns an independent deep copy of c, per the value-type,
// explicit-clone composition rule: no shared pointers between subsystems.
func (c *Canonicalizer) Clone() *Canonicalizer {
	out := &Canonicalizer{
		toleranceLinear: c.toleranceLinear,
		tolerancePivot:  c.tolerancePivot,
		n:               c.n,
		r:               c.r,
		k:               c.k,
		q:               append([]int(nil), c.q...),
		jb:              append([]int(nil), c.jb...),
		jn:              append([]int(nil), c.jn...),
		ili:             append([]int(nil), c.ili...),
	}
	if c.r_ != nil {
		out.r_ = mat.DenseCopyOf(c.r_)
	}
	if c.s != nil {
		out.s = mat.DenseCopyOf(c.s)
	}
	return out
}

// NumVariables returns n, the number of columns of W.
func (c *Canonicalizer) NumVariables() int { return c.n }

// NumBasicVariables returns k = |jb| = |ili|. Rank deficiency of W is not an
// error: it shows up here as k < min(rows(W), n).
func (c *Canonicalizer) NumBasicVariables() int { return c.k }

// NumNonBasicVariables returns n - k.
func (c *Canonicalizer) NumNonBasicVariables() int { return c.n - c.k }

// R returns the canonicalizer matrix.
func (c *Canonicalizer) R() *mat.Dense { return c.r_ }

// S returns the off-diagonal block of the canonical form, or nil when that
// block is empty (no basic or no nonbasic variables).
func (c *Canonicalizer) S() *mat.Dense { return c.s }

// Q returns the column ordering: Q[pos] is the original column index placed
// at position pos, with the first NumBasicVariables() positions basic.
func (c *Canonicalizer) Q() []int { return c.q }

// Jb returns the basic column indices, in canonical row order.
func (c *Canonicalizer) Jb() []int { return c.jb }

// Jn returns the nonbasic column indices, in canonical column order.
func (c *Canonicalizer) Jn() []int { return c.jn }

// Ili returns the indices of the linearly independent rows of the original W.
func (c *Canonicalizer) Ili() []int { return c.ili }

// Partition returns the basic/nonbasic column split as a matrix.IndexSet
// (A = jb, B = jn), the form stability.Classify reads it in.
func (c *Canonicalizer) Partition() matrix.IndexSet {
	return matrix.IndexSet{A: c.jb, B: c.jn}
}

// Compute performs the initial factorization of W ∈ ℝ^{r×n}.
func (c *Canonicalizer) Compute(w *mat.Dense) error {
	r, n := w.Dims()
	if r == 0 || n == 0 {
		return errors.Errorf("canonicalizer: degenerate dimensions r=%d n=%d", r, n)
	}

	work := mat.DenseCopyOf(w)
	R := identity(r)

	colPerm := iota_(n)
	rowID := iota_(r)

	tol := c.toleranceLinear * math.Max(maxAbsEntry(w), 1)

	limit := r
	if n < limit {
		limit = n
	}

	k := 0
	for k < limit {
		pi, pj, pv := -1, -1, 0.0
		for i := k; i < r; i++ {
			row := work.RawRowView(i)
			for j := k; j < n; j++ {
				if v := math.Abs(row[j]); v > pv {
					pv, pi, pj = v, i, j
				}
			}
		}
		if pi < 0 || pv < tol {
			break
		}
		if pi != k {
			swapRows(work, k, pi)
			swapRows(R, k, pi)
			rowID[k], rowID[pi] = rowID[pi], rowID[k]
		}
		if pj != k {
			swapCols(work, k, pj)
			colPerm[k], colPerm[pj] = colPerm[pj], colPerm[k]
		}
		pivot := work.At(k, k)
		floats.Scale(1/pivot, work.RawRowView(k))
		floats.Scale(1/pivot, R.RawRowView(k))
		for i := 0; i < r; i++ {
			if i == k {
				continue
			}
			factor := work.At(i, k)
			if factor == 0 {
				continue
			}
			floats.AddScaled(work.RawRowView(i), -factor, work.RawRowView(k))
			floats.AddScaled(R.RawRowView(i), -factor, R.RawRowView(k))
		}
		k++
	}

	c.n, c.r, c.k = n, r, k
	c.r_ = R
	c.q = colPerm
	c.jb = append([]int(nil), colPerm[:k]...)
	c.jn = append([]int(nil), colPerm[k:]...)
	c.ili = append([]int(nil), rowID[:k]...)

	// gonum has no zero-sized Dense, so S stays nil when it would have no
	// rows (k == 0) or no columns (k == n).
	var s *mat.Dense
	if k > 0 && k < n {
		s = mat.NewDense(k, n-k, nil)
		for i := 0; i < k; i++ {
			row := work.RawRowView(i)
			srow := s.RawRowView(i)
			copy(srow, row[k:n])
		}
	}
	c.s = s

	if err := matrix.ValidatePartition(c.jb, c.jn, n); err != nil {
		return errors.Wrap(err, "canonicalizer: jb/jn column partition")
	}
	return nil
}

func iota_(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func maxAbsEntry(m *mat.Dense) float64 {
	r, c := m.Dims()
	best := 0.0
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			if v := math.Abs(row[j]); v > best {
				best = v
			}
		}
	}
	return best
}

func swapRows(m *mat.Dense, i, j int) {
	if i == j {
		return
	}
	blas1.Swap(m.RawRowView(i), m.RawRowView(j))
}

func swapCols(m *mat.Dense, j1, j2 int) {
	if j1 == j2 {
		return
	}
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		row[j1], row[j2] = row[j2], row[j1]
	}
}
