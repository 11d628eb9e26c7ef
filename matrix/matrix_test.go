// Copyright ©2026 the optima authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matrix

import "testing"

func TestValidatePartitionOK(t *testing.T) {
	if err := ValidatePartition([]int{0, 2}, []int{1, 3}, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePartitionOverlap(t *testing.T) {
	if err := ValidatePartition([]int{0, 1}, []int{1, 2}, 3); err == nil {
		t.Fatal("expected error for overlapping partition")
	}
}

func TestValidatePartitionIncomplete(t *testing.T) {
	if err := ValidatePartition([]int{0}, []int{1}, 4); err == nil {
		t.Fatal("expected error for incomplete partition")
	}
}

func TestComplement(t *testing.T) {
	got := Complement([]int{1, 3}, 5)
	want := []int{0, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestDimsNxRows(t *testing.T) {
	d := Dims{N: 5, M: 2, Mj: 1, Nf: 2}
	if d.Nx() != 3 {
		t.Fatalf("Nx() = %d, want 3", d.Nx())
	}
	if d.Rows() != 3 {
		t.Fatalf("Rows() = %d, want 3", d.Rows())
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDimsValidateRejectsBadNf(t *testing.T) {
	d := Dims{N: 2, Nf: 3}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error when nf > n")
	}
}
