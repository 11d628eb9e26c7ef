// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package matrix holds the dense matrix/vector types and index-partition
// invariants shared by the canonicalizer, saddlepoint, stepper and
// stability packages.
//
// Matrices are represented with gonum's *mat.Dense, which already gives the
// (data, rows, cols, stride) shape the core's design calls for: callers pass
// read-only views in and receive mutable views out, and nothing here retains
// a view past the call that received it. Vectors are plain []float64, the
// same convention the rest of the pack's dense numerical code uses.
package matrix

import "github.com/pkg/errors"

// Status is the ternary result of a decompose/solve operation (§7).
// A failed operation returns a non-nil error describing the failure
// together with a Status saying which kind it is: NumericalFailure for
// recoverable outcomes the caller (the outer Newton loop) may choose to
// retry after regularizing, Invalid for dimension mismatches and other
// caller errors, which are fatal. Rank deficiency of W is not a failure at
// all; the canonicalizer reports it through its basic-variable count.
type Status int

const (
	// Success indicates the operation completed within tolerance.
	Success Status = iota
	// NumericalFailure indicates a pivot fell below the configured
	// tolerance during decomposition; the caller may regularize and retry.
	NumericalFailure
	// Invalid indicates the inputs violate a method precondition (e.g. a
	// non-diagonal Hessian was given to RangespaceDiagonal).
	Invalid
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NumericalFailure:
		return "numerical failure"
	case Invalid:
		return "invalid"
	default:
		return "unknown status"
	}
}

// Dims collects the dimension counts referenced throughout §3: n primal
// variables, m linear equality constraints, mj nonlinear equality
// constraints, and nf fixed variables (nx = n - nf).
type Dims struct {
	N, M, Mj, Nf int
}

// Nx returns the number of free (non-fixed) variables.
func (d Dims) Nx() int { return d.N - d.Nf }

// Rows returns the combined row count m+mj of W = [A; J].
func (d Dims) Rows() int { return d.M + d.Mj }

// Validate returns an error if the dimension counts are structurally
// inconsistent (negative, or more fixed variables than variables).
func (d Dims) Validate() error {
	if d.N < 0 || d.M < 0 || d.Mj < 0 || d.Nf < 0 {
		return errors.Errorf("matrix: negative dimension in %+v", d)
	}
	if d.Nf > d.N {
		return errors.Errorf("matrix: nf=%d exceeds n=%d", d.Nf, d.N)
	}
	return nil
}

// IndexSet is a disjoint partition of {0,...,n-1} into two labeled index
// slices, used for the canonicalizer's basic/nonbasic split (jb, jn).
type IndexSet struct {
	A, B []int
}

// ValidatePartition checks that A and B are disjoint and that their union is
// exactly {0,...,n-1}, the invariant every partition in this module must
// satisfy (§8).
func ValidatePartition(a, b []int, n int) error {
	seen := make([]bool, n)
	for _, i := range a {
		if i < 0 || i >= n {
			return errors.Errorf("matrix: index %d out of range [0,%d)", i, n)
		}
		if seen[i] {
			return errors.Errorf("matrix: index %d appears more than once", i)
		}
		seen[i] = true
	}
	for _, i := range b {
		if i < 0 || i >= n {
			return errors.Errorf("matrix: index %d out of range [0,%d)", i, n)
		}
		if seen[i] {
			return errors.Errorf("matrix: index %d appears more than once", i)
		}
		seen[i] = true
	}
	if len(a)+len(b) != n {
		return errors.Errorf("matrix: partition covers %d of %d indices", len(a)+len(b), n)
	}
	return nil
}

// Complement returns the sorted indices in {0,...,n-1} not present in idx.
func Complement(idx []int, n int) []int {
	member := make([]bool, n)
	for _, i := range idx {
		member[i] = true
	}
	out := make([]int, 0, n-len(idx))
	for i := 0; i < n; i++ {
		if !member[i] {
			out = append(out, i)
		}
	}
	return out
}

// IsMember reports whether v is present in idx.
func IsMember(idx []int, v int) bool {
	for _, i := range idx {
		if i == v {
			return true
		}
	}
	return false
}
