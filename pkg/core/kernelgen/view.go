// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import "math"

// View classifies the structural sparsity of a matrix region. It is a bitmask:
// the Lower bit means the region strictly below the main diagonal may hold
// nonzeros, the Upper bit likewise for above. The main diagonal is always
// assumed possibly nonzero.
//
// Views restrict the work of generated kernels: a load from a matrix with a
// narrower view can skip (or zero out) positions proven zero.
type View uint8

const (
	// Diagonal allows nonzeros only on the main diagonal.
	Diagonal View = 0
	// Lower allows nonzeros on and below the main diagonal.
	Lower View = 1
	// Upper allows nonzeros on and above the main diagonal.
	Upper View = 2
	// Entire allows nonzeros anywhere.
	Entire View = Lower | Upper
)

// Diagonal range sentinels meaning "no restriction" in the corresponding
// direction. Diagonal indices are col-row: negative below the main diagonal,
// positive above.
const (
	NoLowerRestriction = math.MinInt32
	NoUpperRestriction = math.MaxInt32
)

func (v View) String() string {
	switch v {
	case Diagonal:
		return "Diagonal"
	case Lower:
		return "Lower"
	case Upper:
		return "Upper"
	default:
		return "Entire"
	}
}

// Union combines the views of two regions written into the same matrix: a
// position may be nonzero if either write can make it so.
func Union(a, b View) View {
	return a | b
}

// Intersection combines the views of two operands multiplied elementwise (or
// otherwise consumed jointly): a position may be nonzero only where both are.
func Intersection(a, b View) View {
	return a & b
}

// ContainsNonzero reports whether the region of the given diagonal index
// (col-row) can hold nonzeros under v.
func (v View) ContainsNonzero(diag int) bool {
	if diag < 0 {
		return v&Lower != 0
	}
	if diag > 0 {
		return v&Upper != 0
	}
	return true
}

// updateViewForWrite returns the view of a rows x cols matrix after a kernel
// wrote it: nonzeros on diagonals [bottomDiag, topDiag], zeros extending to
// [bottomZeroDiag, topZeroDiag] where those are more extreme.
func updateViewForWrite(v View, rows, cols, bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) View {
	if bottomDiag < 0 {
		v = Union(v, Lower)
	} else if bottomZeroDiag <= minDiagonal(rows) {
		v = Intersection(v, Upper)
	}
	if topDiag > 0 {
		v = Union(v, Upper)
	} else if topZeroDiag >= maxDiagonal(cols) {
		v = Intersection(v, Lower)
	}
	return v
}

// minDiagonal is the lowest diagonal index of a matrix with the given number of rows.
func minDiagonal(rows int) int {
	return min(0, 1-rows)
}

// maxDiagonal is the highest diagonal index of a matrix with the given number of columns.
func maxDiagonal(cols int) int {
	return max(0, cols-1)
}
