// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddlepoint

import "gonum.org/v1/gonum/mat"

func seqRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func toSlice(v *mat.VecDense) []float64 {
	n := v.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}

// subG restricts G to the rows/cols in rows, or returns nil unchanged.
func subG(G *mat.Dense, rows []int) *mat.Dense {
	if G == nil {
		return nil
	}
	return subRowsCols(G, rows, rows)
}
