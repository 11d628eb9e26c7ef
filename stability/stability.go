// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stability partitions primal variables into stable and
// bound-unstable ranges from the current gradient and the canonical form
// of the constraint matrix, grounded in the free/active-variable
// classification lbfgsb's cauchy point and subspace projection use
// (lbfgsb/cauchy.go's freeVar, lbfgsb/project.go's projInitActive), both of
// which partition variables by bound activity and gradient sign the same
// way this package does.
package stability

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/allanleal/optima/canonicalizer"
	"github.com/allanleal/optima/matrix"
)

// Result is the outcome of one Classify call: jsu = (Js, Jlu, Juu) is a
// partition of {0,...,n-1} into stable, lower-unstable, and upper-unstable
// index ranges, S is the per-variable instability signal, and Lambda is the
// Lagrange multiplier estimate on the basic partition.
type Result struct {
	Js, Jlu, Juu []int
	S            []float64
	Lambda       []float64
}

// Classify computes λ = Rᵀ·gb and s = g − Sᵀ·gb on the nonbasic partition
// (zero on basic), then partitions variables into (Js, Jlu, Juu) in two
// stable passes: upper-unstable variables (at their upper bound with
// s < 0) move to the tail first, then lower-unstable variables (at their
// lower bound with s > 0) move to the tail of what remains. Variables
// without a bound never satisfy either predicate, since XLower/XUpper use
// ±Inf sentinels for "no bound" and x never equals an infinite value.
func Classify(canon *canonicalizer.Canonicalizer, x, g, xlower, xupper []float64) (Result, error) {
	n := canon.NumVariables()
	if len(x) != n || len(g) != n || len(xlower) != n || len(xupper) != n {
		return Result{}, errors.Errorf("stability: x/g/xlower/xupper must have length n=%d", n)
	}

	part := canon.Partition()
	jb, jn := part.A, part.B
	k := len(jb)

	gb := make([]float64, k)
	for i, j := range jb {
		gb[i] = g[j]
	}
	gn := make([]float64, len(jn))
	for i, j := range jn {
		gn[i] = g[j]
	}

	var lambda []float64
	if k > 0 {
		r := canon.R()
		rk := mat.NewDense(k, k, nil)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				rk.Set(i, j, r.At(i, j))
			}
		}
		lambdaVec := mat.NewVecDense(k, nil)
		lambdaVec.MulVec(rk.T(), mat.NewVecDense(k, gb))
		lambda = toSlice(lambdaVec)
	}

	s := make([]float64, n)
	if len(jn) > 0 && k > 0 {
		sMat := canon.S()
		stgb := mat.NewVecDense(len(jn), nil)
		stgb.MulVec(sMat.T(), mat.NewVecDense(k, gb))
		sn := make([]float64, len(jn))
		floats.SubTo(sn, gn, toSlice(stgb))
		for i, j := range jn {
			s[j] = sn[i]
		}
	} else {
		for i, j := range jn {
			s[j] = gn[i]
		}
	}

	jsu := make([]int, n)
	for i := range jsu {
		jsu[i] = i
	}

	isUpperUnstable := func(i int) bool { return x[i] == xupper[i] && s[i] < 0 }
	isLowerUnstable := func(i int) bool { return x[i] == xlower[i] && s[i] > 0 }

	pos1 := moveRightIf(jsu, isUpperUnstable)
	pos2 := moveRightIf(jsu[:pos1], isLowerUnstable)

	js := append([]int(nil), jsu[:pos2]...)
	unstable := append([]int(nil), jsu[pos2:]...)
	if err := matrix.ValidatePartition(js, unstable, n); err != nil {
		return Result{}, errors.Wrap(err, "stability: Js/unstable range partition")
	}

	return Result{
		Js:     js,
		Jlu:    append([]int(nil), jsu[pos2:pos1]...),
		Juu:    append([]int(nil), jsu[pos1:]...),
		S:      s,
		Lambda: lambda,
	}, nil
}

// moveRightIf stable-partitions idx so elements failing pred keep their
// relative order at the front and elements satisfying pred keep their
// relative order at the back, returning the split position (the count of
// elements that stayed at the front).
func moveRightIf(idx []int, pred func(int) bool) int {
	front := make([]int, 0, len(idx))
	back := make([]int, 0, len(idx))
	for _, v := range idx {
		if pred(v) {
			back = append(back, v)
		} else {
			front = append(front, v)
		}
	}
	copy(idx, front)
	copy(idx[len(front):], back)
	return len(front)
}

func toSlice(v *mat.VecDense) []float64 {
	n := v.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}
