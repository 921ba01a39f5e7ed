// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernelgen builds expression graphs of matrix operations and lazily
// fuses them into a single compiled device kernel at evaluation time, instead
// of dispatching one kernel per operation.
//
// The main elements of the package are:
//
//   - Node is a symbolic matrix-valued expression: a device matrix operand
//     (Load), a scalar, the loop indices (RowIndex/ColIndex), elementwise
//     operations (Add, Sub, Mul, Exp, ...) or a gather/scatter view (Indexing).
//     Nodes are immutable after construction; shapes are checked eagerly, and
//     invalid combinations panic with a stack trace (see package
//     github.com/gomlx/exceptions).
//
//   - Matrix is a device-resident column-major matrix: a backend buffer plus
//     shape, view (structural sparsity) and the completion events of pending
//     asynchronous operations touching it.
//
//   - Assign and Eval walk the graph once to generate a single kernel source,
//     compile it through the backend (cached by source text), walk it again in
//     the same order to bind arguments, enqueue the launch, and attach
//     completion events to every buffer read or written.
//
// Example, gathering elements of a matrix through two index matrices:
//
//	m := kernelgen.MatrixFromRows(backend, [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
//	ri := kernelgen.MatrixFromRows(backend, [][]int32{{0, 1}, {2, 0}})
//	ci := kernelgen.MatrixFromRows(backend, [][]int32{{0, 0}, {1, 2}})
//	out := kernelgen.Eval(kernelgen.Indexing(kernelgen.Load(m), kernelgen.Load(ri), kernelgen.Load(ci)))
//
// Host-side graph construction, generation and binding are single-threaded and
// synchronous; kernel execution is asynchronous and data-parallel. Callers
// synchronize through the events attached to matrices, which happens
// transparently when reading data back with RowsFromMatrix.
package kernelgen

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// DynamicSize marks a dimension resolved from sibling operands or from the
// assignment target, instead of being fixed at construction.
const DynamicSize = -1

// cTypeName maps an element dtype to the type name used in generated kernel sources.
func cTypeName(dtype dtypes.DType) string {
	switch dtype {
	case dtypes.Float64:
		return "double"
	case dtypes.Float32:
		return "float"
	case dtypes.Float16:
		return "half"
	case dtypes.Int32:
		return "int"
	case dtypes.Int64:
		return "long"
	}
	exceptions.Panicf("kernelgen: dtype %s is not supported in generated kernels", dtype)
	return ""
}

// checkSizeMatch fails with a descriptive invalid-dimension error when the two
// values differ. All shape invariant checks in the package go through it.
func checkSizeMatch(context, aLabel string, a int, bLabel string, b int) {
	if a != b {
		exceptions.Panicf("%s: %s (%d) must match %s (%d)", context, aLabel, a, bLabel, b)
	}
}

// checkConcreteSizeMatch is like checkSizeMatch but skips the check if either
// value is still DynamicSize.
func checkConcreteSizeMatch(context, aLabel string, a int, bLabel string, b int) {
	if a == DynamicSize || b == DynamicSize {
		return
	}
	checkSizeMatch(context, aLabel, a, bLabel, b)
}

// checkIndexSizeMatch is the shape check for the two index operands of
// Indexing: sizes must agree when both are concrete, except that a degenerate
// size of 1 broadcasts against any other size.
func checkIndexSizeMatch(aLabel string, a int, bLabel string, b int) {
	if a == DynamicSize || b == DynamicSize || a == 1 || b == 1 {
		return
	}
	checkSizeMatch("Indexing", aLabel, a, bLabel, b)
}

func flatIndex(row, rows, col int) int {
	return row + rows*col
}
