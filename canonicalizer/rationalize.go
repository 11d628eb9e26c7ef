// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canonicalizer

import (
	"math"
	"math/big"

	"gonum.org/v1/gonum/mat"
)

// RationalizeResult reports whether every entry of R and S was successfully
// replaced by a nearby rational with denominator at most maxDenominator.
type RationalizeResult struct {
	// Overflowed counts entries for which no rational within tolerance
	// could be found at the requested denominator bound; those entries are
	// left as their original floating-point value (§7: non-fatal warning,
	// fall back to floating-point form).
	Overflowed int
}

// Rationalize replaces every entry of R and S by the nearest rational with
// denominator ≤ maxDenominator, using a continued-fraction approximation.
// Ties are broken toward the smaller denominator. An entry with no rational
// approximation within toleranceLinear at the given bound is left
// unchanged and counted in the result's Overflowed field — this is a
// resolution of the spec's open rationalization-fidelity question, not a
// documented behavior of the source it distills.
func (c *Canonicalizer) Rationalize(maxDenominator int64) RationalizeResult {
	var result RationalizeResult
	rationalizeMatrix(c.r_, maxDenominator, c.toleranceLinear, &result)
	rationalizeMatrix(c.s, maxDenominator, c.toleranceLinear, &result)
	return result
}

func rationalizeMatrix(m *mat.Dense, maxDen int64, tol float64, result *RationalizeResult) {
	if m == nil {
		return
	}
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			approx, ok := nearestRational(v, maxDen, tol)
			if !ok {
				result.Overflowed++
				continue
			}
			row[j] = approx
		}
	}
}

// nearestRational finds the best rational approximation of x with
// denominator at most maxDen and |approx-x| ≤ tol, via the continued
// fraction convergents of x. It keeps the convergent closest to x; between
// two equally close convergents it keeps the smaller denominator.
func nearestRational(x float64, maxDen int64, tol float64) (float64, bool) {
	if x == 0 {
		return 0, true
	}
	sign := 1.0
	v := x
	if v < 0 {
		sign, v = -1, -v
	}

	// Continued fraction expansion of v via successive convergents
	// p_k/q_k, stopping once the denominator would exceed maxDen.
	var p0, q0 int64 = 0, 1
	var p1, q1 int64 = 1, 0
	frac := v
	bestNum, bestDen := int64(0), int64(1)
	bestErr := math.Abs(v)

	for i := 0; i < 64; i++ {
		a := int64(math.Floor(frac))
		p2 := a*p1 + p0
		q2 := a*q1 + q0
		if q2 <= 0 || q2 > maxDen {
			break
		}
		p0, q0 = p1, q1
		p1, q1 = p2, q2

		approx := float64(p2) / float64(q2)
		if err := math.Abs(approx - v); err < bestErr || (err == bestErr && q2 < bestDen) {
			bestErr, bestNum, bestDen = err, p2, q2
		}

		rem := frac - float64(a)
		if rem < 1e-15 {
			break
		}
		frac = 1 / rem
	}

	if bestErr > tol {
		return 0, false
	}
	r := big.NewRat(bestNum, bestDen)
	out, _ := new(big.Float).SetRat(r).Float64()
	return sign * out, true
}
