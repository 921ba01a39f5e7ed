// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
)

// Assign evaluates rhs and writes it into lhs with a single fused kernel
// launch: the whole expression tree compiles into one kernel, arguments are
// bound in generation order, the launch is enqueued asynchronously, and
// completion events are attached to every buffer read or written.
//
// Shape errors are raised here, before anything is compiled or enqueued. A
// zero-sized assignment shape-checks and then does nothing.
//
// When lhs scatters through an irregular index pattern and shares a buffer
// with rhs (other than as the gathered matrix, see Indexing), rhs is first
// materialized into a temporary to avoid reading partially overwritten data.
func Assign(lhs Assignable, rhs Node) {
	rows, cols := resolveShape(lhs, rhs)
	lhs.CheckAssignDimensions(rows, cols)
	if rows == 0 || cols == 0 {
		return
	}

	if lhs.writesIrregular() {
		ids := make(map[backends.Buffer]int)
		nextID := 0
		lhsUIDs := lhs.collectUniqueAccesses(nil, ids, &nextID)
		rhsUIDs := rhs.collectUniqueAccesses(nil, ids, &nextID)
		if intersects(lhsUIDs, rhsUIDs) {
			rhs = Load(evalShaped(rhs, rows, cols))
		}
	}

	backend := firstBackend(lhs, rhs)
	if backend == nil {
		exceptions.Panicf("Assign: expression has no device-backed operand to take a backend from")
	}

	program, bottom, top, restricted := assemble(lhs, rhs, rows, cols)
	kernel := backend.Compile(program)

	binder := newArgBinder(kernel)
	bindScope := newScope()
	rhs.bindArguments(bindScope, binder)
	lhs.bindArguments(bindScope, binder)

	// Read-after-write for every buffer rhs reads, and additionally
	// write-after-read and write-after-write for buffers lhs touches.
	waitFor := rhs.appendWaitEvents(false, nil)
	waitFor = lhs.appendWaitEvents(true, waitFor)

	event := backend.Queue().Enqueue(kernel, rows, cols, waitFor)
	rhs.AddReadEvent(event)
	lhs.AddWriteEvent(event)

	if restricted {
		lhs.SetView(bottom, top, minDiagonal(rows), maxDiagonal(cols))
	} else {
		lhs.SetView(minDiagonal(rows), maxDiagonal(cols), minDiagonal(rows), maxDiagonal(cols))
	}
}

// Eval materializes expr into a freshly allocated matrix. The expression must
// have a concrete shape.
func Eval(expr Node) *Matrix {
	rows, cols := expr.Rows(), expr.Cols()
	if rows == DynamicSize || cols == DynamicSize {
		exceptions.Panicf("Eval: expression shape is dynamic, assign it to a concrete-shaped target instead")
	}
	return evalShaped(expr, rows, cols)
}

func evalShaped(expr Node, rows, cols int) *Matrix {
	backend := expr.backendHandle()
	if backend == nil {
		exceptions.Panicf("Eval: expression has no device-backed operand to take a backend from")
	}
	m := NewMatrix(backend, expr.DType(), rows, cols)
	Assign(Load(m), expr)
	return m
}

func intersects(a, b []int) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, found := set[id]; found {
			return true
		}
	}
	return false
}
