// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canonicalizer

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Swap exchanges the basic variable at basic-slot ib with the nonbasic
// variable at nonbasic-slot in — an elementary Gauss-Jordan pivot on the
// canonical tableau [I S]. It costs O(r·n): one row of S is scaled, every
// other row of S and every row of R receive one AddScaled call.
//
// Swap rejects pivots whose magnitude falls below tolerancePivot, leaving
// the canonical form untouched — callers such as UpdateWeights treat this
// as "reject the swap", not as a fatal condition.
func (c *Canonicalizer) Swap(ib, in int) error {
	if ib < 0 || ib >= c.k {
		return errors.Errorf("canonicalizer: basic slot %d out of range [0,%d)", ib, c.k)
	}
	if in < 0 || in >= c.n-c.k {
		return errors.Errorf("canonicalizer: nonbasic slot %d out of range [0,%d)", in, c.n-c.k)
	}

	p := c.s.At(ib, in)
	if math.Abs(p) < c.tolerancePivot {
		return errors.Errorf("canonicalizer: pivot magnitude %g below tolerance %g", p, c.tolerancePivot)
	}
	invp := 1 / p
	width := c.n - c.k

	oldColIn := make([]float64, c.k)
	for i := 0; i < c.k; i++ {
		oldColIn[i] = c.s.At(i, in)
	}

	newRowIb := append([]float64(nil), c.s.RawRowView(ib)...)
	floats.Scale(invp, newRowIb)
	newRowIb[in] = invp

	for i := 0; i < c.k; i++ {
		if i == ib {
			continue
		}
		factor := oldColIn[i]
		row := c.s.RawRowView(i)
		if factor != 0 {
			floats.AddScaled(row, -factor, newRowIb)
		}
		row[in] = -factor * invp
	}
	copy(c.s.RawRowView(ib), newRowIb[:width])

	rIb := append([]float64(nil), c.r_.RawRowView(ib)...)
	floats.Scale(invp, rIb)
	for i := 0; i < c.k; i++ {
		if i == ib {
			continue
		}
		if factor := oldColIn[i]; factor != 0 {
			floats.AddScaled(c.r_.RawRowView(i), -factor, rIb)
		}
	}
	copy(c.r_.RawRowView(ib), rIb)

	c.jb[ib], c.jn[in] = c.jn[in], c.jb[ib]
	c.q[ib] = c.jb[ib]
	c.q[c.k+in] = c.jn[in]
	return nil
}

// UpdateWeights permutes the basic/nonbasic partition so that, for every
// basic index b and nonbasic index n, either weight(b) ≥ weight(n) or the
// pivot that would exchange them falls below tolerancePivot.
//
// For each nonbasic column, taken in decreasing weight order, it looks for
// the lowest-weight basic row with a usable pivot in that column and swaps
// them in. A row whose only usable pivots sit under candidates already
// heavier than its own basic keeps that basic in place — the degenerate
// case the contract allows.
func (c *Canonicalizer) UpdateWeights(w []float64) error {
	if len(w) != c.n {
		return errors.Errorf("canonicalizer: weights length %d != n %d", len(w), c.n)
	}

	for pass := 0; pass < c.n+1; pass++ {
		order := make([]int, len(c.jn))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return w[c.jn[order[a]]] > w[c.jn[order[b]]]
		})

		swapped := false
		for _, in := range order {
			wn := w[c.jn[in]]
			bestRow, bestWeight := -1, wn
			for ib := 0; ib < c.k; ib++ {
				wb := w[c.jb[ib]]
				if wb < wn && math.Abs(c.s.At(ib, in)) >= c.tolerancePivot {
					if bestRow < 0 || wb < bestWeight {
						bestRow, bestWeight = ib, wb
					}
				}
			}
			if bestRow >= 0 {
				if err := c.Swap(bestRow, in); err == nil {
					swapped = true
					break
				}
			}
		}
		if !swapped {
			break
		}
	}

	newJb := append([]int(nil), c.jb...)
	newJn := append([]int(nil), c.jn...)
	sort.Slice(newJb, func(a, b int) bool { return w[newJb[a]] > w[newJb[b]] })
	sort.Slice(newJn, func(a, b int) bool { return w[newJn[a]] > w[newJn[b]] })
	c.reorder(newJb, newJn)
	return nil
}

// UpdateOrdering applies an externally supplied variable ordering without
// changing which variables are basic: it only relabels the storage order of
// jb and jn to match perm's relative order.
func (c *Canonicalizer) UpdateOrdering(perm []int) error {
	if len(perm) != c.n {
		return errors.Errorf("canonicalizer: ordering length %d != n %d", len(perm), c.n)
	}
	rank := make(map[int]int, c.n)
	for i, v := range perm {
		rank[v] = i
	}
	newJb := append([]int(nil), c.jb...)
	newJn := append([]int(nil), c.jn...)
	sort.Slice(newJb, func(a, b int) bool { return rank[newJb[a]] < rank[newJb[b]] })
	sort.Slice(newJn, func(a, b int) bool { return rank[newJn[a]] < rank[newJn[b]] })
	c.reorder(newJb, newJn)
	return nil
}

// reorder physically permutes the rows of S and R to match newJb, and the
// columns of S to match newJn, then adopts the new labels.
func (c *Canonicalizer) reorder(newJb, newJn []int) {
	rowPos := make(map[int]int, c.k)
	for i, j := range c.jb {
		rowPos[j] = i
	}
	rowOrder := make([]int, c.k)
	for i, j := range newJb {
		rowOrder[i] = rowPos[j]
	}
	permuteRows(c.s, rowOrder)
	permuteRows(c.r_, rowOrder)

	colPos := make(map[int]int, len(c.jn))
	for i, j := range c.jn {
		colPos[j] = i
	}
	colOrder := make([]int, len(newJn))
	for i, j := range newJn {
		colOrder[i] = colPos[j]
	}
	permuteCols(c.s, colOrder)

	c.jb, c.jn = newJb, newJn
	copy(c.q[:c.k], c.jb)
	copy(c.q[c.k:], c.jn)
}

// permuteRows reorders the rows of m so row i becomes the row currently at
// order[i]. order need not be a subset of 0..rows(m)-1 sized to rows(m); it
// is sized to the number of rows being reordered starting at row 0 (used
// for R's top k rows only when k < rows(R)).
func permuteRows(m *mat.Dense, order []int) {
	scratch := make([][]float64, len(order))
	for i, o := range order {
		scratch[i] = append([]float64(nil), m.RawRowView(o)...)
	}
	for i, row := range scratch {
		copy(m.RawRowView(i), row)
	}
}

func permuteCols(m *mat.Dense, order []int) {
	rows, cols := m.Dims()
	if cols == 0 {
		return
	}
	scratch := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		newRow := make([]float64, cols)
		for j, o := range order {
			newRow[j] = row[o]
		}
		scratch[i] = newRow
	}
	for i := 0; i < rows; i++ {
		copy(m.RawRowView(i), scratch[i])
	}
}
