// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"fmt"
	"math"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// binaryOp is an elementwise binary operation. A DynamicSize dimension on one
// operand broadcasts against the other.
type binaryOp struct {
	nid      nodeID
	label    string // e.g. "Add", for error messages.
	operator string // e.g. "+", spliced into generated code.
	lhs, rhs Node

	// diagUnion selects how operand diagonal ranges combine: union for
	// operations where either operand's nonzeros survive (add, sub),
	// intersection where both are required (elementwise mul).
	diagUnion bool
	hostFn    func(a, b float64) float64
}

var _ Node = (*binaryOp)(nil)

// Add returns the elementwise sum of a and b.
func Add(a, b Node) Node {
	return newBinaryOp("Add", "+", true, a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns the elementwise difference of a and b.
func Sub(a, b Node) Node {
	return newBinaryOp("Sub", "-", true, a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns the elementwise product of a and b.
func Mul(a, b Node) Node {
	return newBinaryOp("Mul", "*", false, a, b, func(x, y float64) float64 { return x * y })
}

func newBinaryOp(label, operator string, diagUnion bool, a, b Node, hostFn func(x, y float64) float64) Node {
	if a.DType() != b.DType() {
		exceptions.Panicf("%s: operands must have the same dtype, got %s and %s", label, a.DType(), b.DType())
	}
	checkConcreteSizeMatch(label, "rows of first operand", a.Rows(), "rows of second operand", b.Rows())
	checkConcreteSizeMatch(label, "columns of first operand", a.Cols(), "columns of second operand", b.Cols())
	return &binaryOp{
		nid:       newNodeID(),
		label:     label,
		operator:  operator,
		lhs:       a,
		rhs:       b,
		diagUnion: diagUnion,
		hostFn:    hostFn,
	}
}

func (op *binaryOp) Rows() int           { return max(op.lhs.Rows(), op.rhs.Rows()) }
func (op *binaryOp) Cols() int           { return max(op.lhs.Cols(), op.rhs.Cols()) }
func (op *binaryOp) DType() dtypes.DType { return op.lhs.DType() }
func (op *binaryOp) id() nodeID          { return op.nid }

func (op *binaryOp) backendHandle() backends.Backend { return firstBackend(op.lhs, op.rhs) }

func (op *binaryOp) DeepCopy() Node {
	cp := *op
	cp.nid = newNodeID()
	cp.lhs = op.lhs.DeepCopy()
	cp.rhs = op.rhs.DeepCopy()
	return &cp
}

func (op *binaryOp) generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts {
	var parts Parts
	if !sc.firstVisit(op.nid) {
		return parts
	}
	parts.Append(
		op.lhs.generate(ctx, sc, rowIdx, colIdx, viewHandled),
		op.rhs.generate(ctx, sc, rowIdx, colIdx, viewHandled))
	name := ctx.newVarName(op)
	parts.Body += fmt.Sprintf("%s %s = %s %s %s;\n",
		cTypeName(op.DType()), name, ctx.varName(op.lhs), op.operator, ctx.varName(op.rhs))
	return parts
}

func (op *binaryOp) bindArguments(sc *scope, binder *argBinder) {
	if !sc.firstVisit(op.nid) {
		return
	}
	op.lhs.bindArguments(sc, binder)
	op.rhs.bindArguments(sc, binder)
}

func (op *binaryOp) evalAt(args []any, slots map[nodeID]int, row, col int) float64 {
	return op.hostFn(op.lhs.evalAt(args, slots, row, col), op.rhs.evalAt(args, slots, row, col))
}

func (op *binaryOp) SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) {
	op.lhs.SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag)
	op.rhs.SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag)
}

func (op *binaryOp) ExtremeDiagonals() (bottom, top int) {
	aBottom, aTop := op.lhs.ExtremeDiagonals()
	bBottom, bTop := op.rhs.ExtremeDiagonals()
	if op.diagUnion {
		return min(aBottom, bBottom), max(aTop, bTop)
	}
	return max(aBottom, bBottom), min(aTop, bTop)
}

func (op *binaryOp) AddWriteEvent(e backends.Event) {
	op.lhs.AddWriteEvent(e)
	op.rhs.AddWriteEvent(e)
}

func (op *binaryOp) AddReadEvent(e backends.Event) {
	op.lhs.AddReadEvent(e)
	op.rhs.AddReadEvent(e)
}

func (op *binaryOp) appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event {
	events = op.lhs.appendWaitEvents(forWrite, events)
	return op.rhs.appendWaitEvents(forWrite, events)
}

func (op *binaryOp) collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int {
	uids = op.lhs.collectUniqueAccesses(uids, ids, nextID)
	return op.rhs.collectUniqueAccesses(uids, ids, nextID)
}

// unaryOp applies an elementwise function to its operand.
type unaryOp struct {
	nid     nodeID
	label   string
	exprFmt string // format with one %s for the operand's variable name.
	operand Node

	// zeroPreserving: f(0)==0, so the operand's sparsity survives.
	zeroPreserving bool
	hostFn         func(x float64) float64
}

var _ Node = (*unaryOp)(nil)

// Neg returns the elementwise negation of x.
func Neg(x Node) Node {
	return newUnaryOp("Neg", "-(%s)", true, x, func(v float64) float64 { return -v })
}

// Exp returns the elementwise exponential of x.
func Exp(x Node) Node {
	return newUnaryOp("Exp", "exp(%s)", false, x, math.Exp)
}

// Log returns the elementwise natural logarithm of x.
func Log(x Node) Node {
	return newUnaryOp("Log", "log(%s)", false, x, math.Log)
}

// Log10 returns the elementwise base-10 logarithm of x.
func Log10(x Node) Node {
	return newUnaryOp("Log10", "log10(%s)", false, x, math.Log10)
}

// Sqrt returns the elementwise square root of x.
func Sqrt(x Node) Node {
	return newUnaryOp("Sqrt", "sqrt(%s)", true, x, math.Sqrt)
}

func newUnaryOp(label, exprFmt string, zeroPreserving bool, x Node, hostFn func(v float64) float64) Node {
	if !x.DType().IsFloat() {
		exceptions.Panicf("%s: operand must be a float expression, got dtype %s", label, x.DType())
	}
	return &unaryOp{
		nid:            newNodeID(),
		label:          label,
		exprFmt:        exprFmt,
		operand:        x,
		zeroPreserving: zeroPreserving,
		hostFn:         hostFn,
	}
}

func (op *unaryOp) Rows() int           { return op.operand.Rows() }
func (op *unaryOp) Cols() int           { return op.operand.Cols() }
func (op *unaryOp) DType() dtypes.DType { return op.operand.DType() }
func (op *unaryOp) id() nodeID          { return op.nid }

func (op *unaryOp) backendHandle() backends.Backend { return op.operand.backendHandle() }

func (op *unaryOp) DeepCopy() Node {
	cp := *op
	cp.nid = newNodeID()
	cp.operand = op.operand.DeepCopy()
	return &cp
}

func (op *unaryOp) generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts {
	var parts Parts
	if !sc.firstVisit(op.nid) {
		return parts
	}
	parts.Append(op.operand.generate(ctx, sc, rowIdx, colIdx, viewHandled))
	name := ctx.newVarName(op)
	parts.Body += fmt.Sprintf("%s %s = %s;\n",
		cTypeName(op.DType()), name, fmt.Sprintf(op.exprFmt, ctx.varName(op.operand)))
	return parts
}

func (op *unaryOp) bindArguments(sc *scope, binder *argBinder) {
	if !sc.firstVisit(op.nid) {
		return
	}
	op.operand.bindArguments(sc, binder)
}

func (op *unaryOp) evalAt(args []any, slots map[nodeID]int, row, col int) float64 {
	return op.hostFn(op.operand.evalAt(args, slots, row, col))
}

func (op *unaryOp) SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) {
	op.operand.SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag)
}

func (op *unaryOp) ExtremeDiagonals() (bottom, top int) {
	if op.zeroPreserving {
		return op.operand.ExtremeDiagonals()
	}
	return NoLowerRestriction, NoUpperRestriction
}

func (op *unaryOp) AddWriteEvent(e backends.Event) { op.operand.AddWriteEvent(e) }
func (op *unaryOp) AddReadEvent(e backends.Event)  { op.operand.AddReadEvent(e) }

func (op *unaryOp) appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event {
	return op.operand.appendWaitEvents(forWrite, events)
}

func (op *unaryOp) collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int {
	return op.operand.collectUniqueAccesses(uids, ids, nextID)
}
