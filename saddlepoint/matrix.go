// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package saddlepoint solves the augmented KKT system
//
//	[H  Wᵀ] [x]   [a]
//	[W  G ] [y] = [b]
//
// with four selectable strategies that exploit its block structure
// differently (PartialPivLU, FullPivLU, Nullspace, RangespaceDiagonal),
// modeled as a tagged variant rather than virtual dispatch since each
// method carries its own precondition (RangespaceDiagonal requires a
// diagonal H; the others do not).
package saddlepoint

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/matrix"
)

// Matrix is the saddle-point coefficient matrix [[H Wᵀ]; [W G]] together
// with the fixed-variable mask of §3: rows/columns of fixed variables are
// logically replaced by an identity block, so a fixed row's solution
// component equals its right-hand side entry exactly.
//
// G may be nil, meaning the zero matrix — the common case for the plain
// KKT system of an equality-constrained quadratic model.
type Matrix struct {
	H     *mat.Dense
	W     *mat.Dense
	G     *mat.Dense
	Fixed []int

	// Ili optionally names the indices of the linearly independent rows of
	// W, as reported by canonicalizer.Canonicalizer.Ili() for the same W.
	// Per §4.1, a linearly dependent row of W is not an error as long as the
	// caller's b is consistent with it; the shared canonical reduction of
	// §4.2 handles this by dropping dependent rows from the KKT assembly
	// entirely rather than factoring a singular block. When Ili is empty,
	// every row of W is treated as independent (the common, full-rank
	// case), matching prior behavior exactly.
	//
	// The y-components of rows not listed in Ili are left at zero by Solve:
	// a dependent row carries no information beyond what its independent
	// combination already supplies, so it has no multiplier of its own.
	Ili []int
}

// Dims returns (n, m): the number of primal variables and the number of
// constraint rows.
func (m *Matrix) Dims() (n, mrows int) {
	n, _ = m.H.Dims()
	mrows, _ = m.W.Dims()
	return n, mrows
}

// Validate checks that H, W and G (when present) have compatible shapes and
// that Fixed indexes valid variables.
func (m *Matrix) Validate() error {
	n, mrows := m.Dims()
	hr, hc := m.H.Dims()
	if hr != n || hc != n {
		t := "saddlepoint: H must be square, got %d×%d"
		return errors.Errorf(t, hr, hc)
	}
	wr, wc := m.W.Dims()
	if wr != mrows || wc != n {
		return errors.Errorf("saddlepoint: W shape %d×%d inconsistent with n=%d m=%d", wr, wc, n, mrows)
	}
	if m.G != nil {
		gr, gc := m.G.Dims()
		if gr != mrows || gc != mrows {
			return errors.Errorf("saddlepoint: G must be %d×%d, got %d×%d", mrows, mrows, gr, gc)
		}
	}
	for _, f := range m.Fixed {
		if f < 0 || f >= n {
			return errors.Errorf("saddlepoint: fixed index %d out of range [0,%d)", f, n)
		}
	}
	seen := make(map[int]bool, len(m.Ili))
	for _, r := range m.Ili {
		if r < 0 || r >= mrows {
			return errors.Errorf("saddlepoint: Ili index %d out of range [0,%d)", r, mrows)
		}
		if seen[r] {
			return errors.Errorf("saddlepoint: Ili index %d appears more than once", r)
		}
		seen[r] = true
	}
	return nil
}

// free returns the sorted complement of Fixed within {0,...,n-1}.
func (m *Matrix) free(n int) []int {
	return matrix.Complement(m.Fixed, n)
}

// effRows returns the sorted row indices participating in the KKT assembly:
// Ili when the caller supplied it, or every row of W when it did not.
func (m *Matrix) effRows(mrows int) []int {
	if len(m.Ili) == 0 {
		return seqRange(mrows)
	}
	out := append([]int(nil), m.Ili...)
	sort.Ints(out)
	return out
}

func subRowsCols(m *mat.Dense, rows, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, m.At(r, c))
		}
	}
	return out
}

func gatherVec(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func scatterVec(dst, src []float64, idx []int) {
	for i, j := range idx {
		dst[j] = src[i]
	}
}
