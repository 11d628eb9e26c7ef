// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blas1 collects the handful of BLAS-1 style vector operations the
// core's linear-algebra kernels and diagnostics need — elimination updates,
// row swaps and residual norms — kept as a thin unit-stride package rather
// than pulling in a full BLAS binding for the small vectors involved here.
// Adapted from slsqp's daxpy/ddot/dswap family, dropping the incx/incy
// stride generality that package never actually needed outside its own
// callers.
package blas1

// Axpy computes y += a*x in place.
func Axpy(a float64, x, y []float64) {
	if a == 0 {
		return
	}
	for i, xi := range x {
		y[i] += a * xi
	}
}

// Dot returns the dot product of x and y.
func Dot(x, y []float64) float64 {
	var sum float64
	for i, xi := range x {
		sum += xi * y[i]
	}
	return sum
}

// Swap exchanges the contents of x and y.
func Swap(x, y []float64) {
	for i := range x {
		x[i], y[i] = y[i], x[i]
	}
}

// NormInf returns the infinity norm (largest absolute entry) of x, the norm
// the core's residual diagnostics report throughout.
func NormInf(x []float64) float64 {
	var best float64
	for _, v := range x {
		if v < 0 {
			v = -v
		}
		if v > best {
			best = v
		}
	}
	return best
}
