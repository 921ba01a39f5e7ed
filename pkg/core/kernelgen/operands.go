// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"fmt"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/gopjrt/dtypes"
)

// load is the buffer-backed operand node: it reads (or, as an assignment
// target, writes) one element of a device matrix per output position.
type load struct {
	nid    nodeID
	matrix *Matrix
}

var (
	_ Node       = (*load)(nil)
	_ Assignable = (*load)(nil)
)

// Load wraps a device matrix as an expression node. The returned node is also
// a valid assignment target for Assign.
func Load(m *Matrix) Assignable {
	return &load{nid: newNodeID(), matrix: m}
}

func (l *load) Rows() int           { return l.matrix.rows }
func (l *load) Cols() int           { return l.matrix.cols }
func (l *load) DType() dtypes.DType { return l.matrix.dtype }
func (l *load) id() nodeID          { return l.nid }

func (l *load) backendHandle() backends.Backend { return l.matrix.backend }

func (l *load) DeepCopy() Node {
	// The buffer is shared; only node identity is fresh.
	return &load{nid: newNodeID(), matrix: l.matrix}
}

func (l *load) generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts {
	var parts Parts
	if !sc.firstVisit(l.nid) {
		return parts
	}
	name := ctx.newVarName(l)
	cType := cTypeName(l.matrix.dtype)
	parts.Args = l.argDeclarations(name, cType)
	addr := fmt.Sprintf("%s_global[(%s) + %s_rows * (%s)]", name, rowIdx, name, colIdx)
	if l.viewCovered(ctx, viewHandled) {
		parts.Body = fmt.Sprintf("%s %s = %s;\n", cType, name, addr)
		return parts
	}
	// Positions outside the matrix view are zero and must not be read.
	parts.Declarations = fmt.Sprintf("%s %s = 0;\n", cType, name)
	parts.Body = fmt.Sprintf(
		"if (!((%s_view & %d) == 0 && (%s) < (%s)) && !((%s_view & %d) == 0 && (%s) > (%s))) {\n"+
			"  %s = %s;\n"+
			"}\n",
		name, Lower, colIdx, rowIdx, name, Upper, colIdx, rowIdx, name, addr)
	return parts
}

// viewCovered reports whether reading the element needs no view check: either
// the view is Entire, or an ancestor emitted an output guard whose diagonal
// range this matrix's view fully contains. A view narrower than the guard
// still needs its own check, or the kernel would read positions the view
// declares zero.
func (l *load) viewCovered(ctx *genContext, viewHandled bool) bool {
	if l.matrix.view == Entire {
		return true
	}
	if !viewHandled {
		return false
	}
	bottom, top := l.ExtremeDiagonals()
	return bottom <= ctx.guardBottom && top >= ctx.guardTop
}

func (l *load) generateLHS(ctx *genContext, sc *scope, rowIdx, colIdx string) Parts {
	var parts Parts
	if !sc.firstVisit(l.nid) {
		return parts
	}
	name := ctx.names.generate()
	parts.Args = l.argDeclarations(name, cTypeName(l.matrix.dtype))
	// The variable name is the assignable element reference itself.
	ctx.setVarName(l, fmt.Sprintf("%s_global[(%s) + %s_rows * (%s)]", name, rowIdx, name, colIdx))
	return parts
}

func (l *load) argDeclarations(name, cType string) []string {
	return []string{
		fmt.Sprintf("__global %s* %s_global", cType, name),
		fmt.Sprintf("int %s_rows", name),
		fmt.Sprintf("int %s_view", name),
	}
}

func (l *load) bindArguments(sc *scope, binder *argBinder) {
	if !sc.firstVisit(l.nid) {
		return
	}
	binder.bind(l, l.matrix.buffer, int32(l.matrix.rows), int32(l.matrix.view))
}

func (l *load) evalAt(args []any, slots map[nodeID]int, row, col int) float64 {
	slot := slots[l.nid]
	buffer := args[slot].(backends.HostBuffer)
	rows := int(args[slot+1].(int32))
	view := View(args[slot+2].(int32))
	if !view.ContainsNonzero(col - row) {
		return 0
	}
	return buffer.Float64(flatIndex(row, rows, col))
}

func (l *load) assignAt(args []any, slots map[nodeID]int, row, col int, value float64) {
	slot := slots[l.nid]
	buffer := args[slot].(backends.HostBuffer)
	rows := int(args[slot+1].(int32))
	buffer.SetFloat64(flatIndex(row, rows, col), value)
}

func (l *load) writesIrregular() bool { return false }

func (l *load) SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) {
	m := l.matrix
	m.view = updateViewForWrite(m.view, m.rows, m.cols, bottomDiag, topDiag, bottomZeroDiag, topZeroDiag)
}

func (l *load) ExtremeDiagonals() (bottom, top int) {
	if l.matrix.view&Lower != 0 {
		bottom = minDiagonal(l.matrix.rows)
	}
	if l.matrix.view&Upper != 0 {
		top = maxDiagonal(l.matrix.cols)
	}
	return
}

func (l *load) CheckAssignDimensions(rows, cols int) {
	checkSizeMatch("Load.CheckAssignDimensions", "rows of matrix", l.matrix.rows, "rows of expression", rows)
	checkSizeMatch("Load.CheckAssignDimensions", "columns of matrix", l.matrix.cols, "columns of expression", cols)
}

func (l *load) AddWriteEvent(e backends.Event) { l.matrix.AddWriteEvent(e) }
func (l *load) AddReadEvent(e backends.Event)  { l.matrix.AddReadEvent(e) }

func (l *load) appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event {
	events = append(events, l.matrix.writeEvents...)
	if forWrite {
		events = append(events, l.matrix.readEvents...)
	}
	return events
}

func (l *load) collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int {
	id, found := ids[l.matrix.buffer]
	if !found {
		id = *nextID
		ids[l.matrix.buffer] = id
		*nextID++
	}
	return append(uids, id)
}

// scalarNode binds one runtime scalar kernel argument, broadcast to every
// output position.
type scalarNode struct {
	nid   nodeID
	dtype dtypes.DType
	value float64
}

var _ Node = (*scalarNode)(nil)

// Scalar returns a node holding a runtime float64 scalar argument.
func Scalar(value float64) Node {
	return &scalarNode{nid: newNodeID(), dtype: dtypes.Float64, value: value}
}

func (s *scalarNode) Rows() int                       { return DynamicSize }
func (s *scalarNode) Cols() int                       { return DynamicSize }
func (s *scalarNode) DType() dtypes.DType             { return s.dtype }
func (s *scalarNode) id() nodeID                      { return s.nid }
func (s *scalarNode) backendHandle() backends.Backend { return nil }

func (s *scalarNode) DeepCopy() Node {
	return &scalarNode{nid: newNodeID(), dtype: s.dtype, value: s.value}
}

func (s *scalarNode) generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts {
	var parts Parts
	if !sc.firstVisit(s.nid) {
		return parts
	}
	name := ctx.newVarName(s)
	parts.Args = []string{fmt.Sprintf("%s %s", cTypeName(s.dtype), name)}
	return parts
}

func (s *scalarNode) bindArguments(sc *scope, binder *argBinder) {
	if !sc.firstVisit(s.nid) {
		return
	}
	binder.bind(s, s.value)
}

func (s *scalarNode) evalAt(args []any, slots map[nodeID]int, row, col int) float64 {
	return args[slots[s.nid]].(float64)
}

func (s *scalarNode) SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) {}

func (s *scalarNode) ExtremeDiagonals() (bottom, top int) {
	return NoLowerRestriction, NoUpperRestriction
}

func (s *scalarNode) AddWriteEvent(e backends.Event) {}
func (s *scalarNode) AddReadEvent(e backends.Event)  {}

func (s *scalarNode) appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event {
	return events
}

func (s *scalarNode) collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int {
	return uids
}

// loopIndex is the integer row (or column) loop index of the generated kernel,
// as an expression operand. Under an indexing node it takes the substituted
// index variable's value instead of the natural loop variable.
type loopIndex struct {
	nid    nodeID
	forCol bool
}

var _ Node = (*loopIndex)(nil)

// RowIndex returns a node valued as the output row index of each position.
func RowIndex() Node {
	return &loopIndex{nid: newNodeID()}
}

// ColIndex returns a node valued as the output column index of each position.
func ColIndex() Node {
	return &loopIndex{nid: newNodeID(), forCol: true}
}

func (x *loopIndex) Rows() int                       { return DynamicSize }
func (x *loopIndex) Cols() int                       { return DynamicSize }
func (x *loopIndex) DType() dtypes.DType             { return dtypes.Int32 }
func (x *loopIndex) id() nodeID                      { return x.nid }
func (x *loopIndex) backendHandle() backends.Backend { return nil }

func (x *loopIndex) DeepCopy() Node {
	return &loopIndex{nid: newNodeID(), forCol: x.forCol}
}

func (x *loopIndex) generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts {
	var parts Parts
	if !sc.firstVisit(x.nid) {
		return parts
	}
	name := ctx.newVarName(x)
	src := rowIdx
	if x.forCol {
		src = colIdx
	}
	parts.Body = fmt.Sprintf("int %s = %s;\n", name, src)
	return parts
}

func (x *loopIndex) bindArguments(sc *scope, binder *argBinder) {
	sc.firstVisit(x.nid)
}

func (x *loopIndex) evalAt(args []any, slots map[nodeID]int, row, col int) float64 {
	if x.forCol {
		return float64(col)
	}
	return float64(row)
}

func (x *loopIndex) SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) {}

func (x *loopIndex) ExtremeDiagonals() (bottom, top int) {
	return NoLowerRestriction, NoUpperRestriction
}

func (x *loopIndex) AddWriteEvent(e backends.Event) {}
func (x *loopIndex) AddReadEvent(e backends.Event)  {}

func (x *loopIndex) appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event {
	return events
}

func (x *loopIndex) collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int {
	return uids
}
