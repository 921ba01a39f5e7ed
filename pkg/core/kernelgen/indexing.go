// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// indexing gathers (or, as an assignment target, scatters) elements of a
// matrix through two independently shaped integer index expressions:
//
//	Indexing(mat, rowIdx, colIdx)[i,j] = mat[rowIdx[i,j], colIdx[i,j]]
//
// Its shape is the component-wise maximum of the two index shapes, which
// broadcasts a degenerate 1-row or 1-column index against the other. The
// result is purely a renaming/gather view: no storage is allocated for it.
type indexing struct {
	nid    nodeID
	mat    Node
	rowIdx Node
	colIdx Node
}

var (
	_ Node       = (*indexing)(nil)
	_ Assignable = (*indexing)(nil)
)

// Indexing returns the expression mat[rowIdx[i,j], colIdx[i,j]]. Both index
// expressions must have an integer dtype and, where both report concrete
// sizes, matching shapes, except that a size of 1 on either axis broadcasts
// against the other index. The returned node is also a valid assignment target,
// scattering the assigned expression into mat.
//
// Aliasing hazard: if the same matrix appears as both the assignment target
// and the source of an indexing read within one statement, results are only
// well-defined if the reads and writes don't overlap in index pattern, or if
// the source is first materialized with Eval. If the index pattern maps
// multiple output positions to the same target element, the element ends up
// with one of the assigned values, chosen by the write ordering of parallel
// work-items.
func Indexing(mat, rowIdx, colIdx Node) Assignable {
	if !rowIdx.DType().IsInt() {
		exceptions.Panicf("Indexing: row index dtype must be an integer, got %s", rowIdx.DType())
	}
	if !colIdx.DType().IsInt() {
		exceptions.Panicf("Indexing: column index dtype must be an integer, got %s", colIdx.DType())
	}
	checkIndexSizeMatch("rows of row index", rowIdx.Rows(), "rows of column index", colIdx.Rows())
	checkIndexSizeMatch("columns of row index", rowIdx.Cols(), "columns of column index", colIdx.Cols())
	// The matrix operand is deep-copied so its identity (and thus its dedup
	// and binding scope) is private to this indexing, even when the caller
	// also uses the same subexpression elsewhere in the tree.
	return &indexing{nid: newNodeID(), mat: mat.DeepCopy(), rowIdx: rowIdx, colIdx: colIdx}
}

func (n *indexing) Rows() int           { return max(n.rowIdx.Rows(), n.colIdx.Rows()) }
func (n *indexing) Cols() int           { return max(n.rowIdx.Cols(), n.colIdx.Cols()) }
func (n *indexing) DType() dtypes.DType { return n.mat.DType() }
func (n *indexing) id() nodeID          { return n.nid }

func (n *indexing) backendHandle() backends.Backend { return firstBackend(n.mat, n.rowIdx, n.colIdx) }

func (n *indexing) DeepCopy() Node {
	return &indexing{
		nid:    newNodeID(),
		mat:    n.mat.DeepCopy(),
		rowIdx: n.rowIdx.DeepCopy(),
		colIdx: n.colIdx.DeepCopy(),
	}
}

// generate emits the two index expressions against the outer loop indices and
// the outer scope (so shared index expressions are emitted exactly once), then
// the matrix operand under a fresh private scope with the index variable names
// substituted for the loop indices. The node's own variable name becomes an
// alias of the matrix operand's.
func (n *indexing) generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts {
	var parts Parts
	if !sc.firstVisit(n.nid) {
		return parts
	}
	riRow, riCol := n.broadcastCoords(n.rowIdx, rowIdx, colIdx)
	ciRow, ciCol := n.broadcastCoords(n.colIdx, rowIdx, colIdx)
	rowParts := n.rowIdx.generate(ctx, sc, riRow, riCol, viewHandled)
	colParts := n.colIdx.generate(ctx, sc, ciRow, ciCol, viewHandled)
	matParts := n.mat.generate(ctx, newScope(), ctx.varName(n.rowIdx), ctx.varName(n.colIdx), false)
	parts.Append(rowParts, colParts, matParts)
	ctx.setVarName(n, ctx.varName(n.mat))
	return parts
}

// generateLHS is the write path: the matrix operand goes through its
// assignable-reference path, and viewHandled is forced false for the index
// expressions because an indexed write touches an irregular pattern that
// cannot honor the caller's sparsity guard.
func (n *indexing) generateLHS(ctx *genContext, sc *scope, rowIdx, colIdx string) Parts {
	var parts Parts
	if !sc.firstVisit(n.nid) {
		return parts
	}
	riRow, riCol := n.broadcastCoords(n.rowIdx, rowIdx, colIdx)
	ciRow, ciCol := n.broadcastCoords(n.colIdx, rowIdx, colIdx)
	rowParts := n.rowIdx.generate(ctx, sc, riRow, riCol, false)
	colParts := n.colIdx.generate(ctx, sc, ciRow, ciCol, false)
	matParts := n.assignableMat().generateLHS(ctx, newScope(), ctx.varName(n.rowIdx), ctx.varName(n.colIdx))
	parts.Append(rowParts, colParts, matParts)
	ctx.setVarName(n, ctx.varName(n.mat))
	return parts
}

// bindArguments binds the index expressions against the outer scope, then the
// matrix operand under a private scope, exactly mirroring the generation
// order.
func (n *indexing) bindArguments(sc *scope, binder *argBinder) {
	if !sc.firstVisit(n.nid) {
		return
	}
	n.rowIdx.bindArguments(sc, binder)
	n.colIdx.bindArguments(sc, binder)
	n.mat.bindArguments(newScope(), binder)
}

func (n *indexing) evalAt(args []any, slots map[nodeID]int, row, col int) float64 {
	riRow, riCol := n.broadcastAt(n.rowIdx, row, col)
	ciRow, ciCol := n.broadcastAt(n.colIdx, row, col)
	r := int(n.rowIdx.evalAt(args, slots, riRow, riCol))
	c := int(n.colIdx.evalAt(args, slots, ciRow, ciCol))
	return n.mat.evalAt(args, slots, r, c)
}

func (n *indexing) assignAt(args []any, slots map[nodeID]int, row, col int, value float64) {
	riRow, riCol := n.broadcastAt(n.rowIdx, row, col)
	ciRow, ciCol := n.broadcastAt(n.colIdx, row, col)
	r := int(n.rowIdx.evalAt(args, slots, riRow, riCol))
	c := int(n.colIdx.evalAt(args, slots, ciRow, ciCol))
	n.assignableMat().assignAt(args, slots, r, c, value)
}

func (n *indexing) writesIrregular() bool { return true }

// broadcastCoords substitutes the constant coordinate 0 on any axis where the
// index operand is degenerate (size 1) but the indexing result is not, so a
// 1×N or M×1 index broadcasts against the other.
func (n *indexing) broadcastCoords(operand Node, rowIdx, colIdx string) (string, string) {
	if operand.Rows() == 1 && n.Rows() > 1 {
		rowIdx = "0"
	}
	if operand.Cols() == 1 && n.Cols() > 1 {
		colIdx = "0"
	}
	return rowIdx, colIdx
}

// broadcastAt is the host-side counterpart of broadcastCoords.
func (n *indexing) broadcastAt(operand Node, row, col int) (int, int) {
	if operand.Rows() == 1 && n.Rows() > 1 {
		row = 0
	}
	if operand.Cols() == 1 && n.Cols() > 1 {
		col = 0
	}
	return row, col
}

func (n *indexing) assignableMat() Assignable {
	mat, ok := n.mat.(Assignable)
	if !ok {
		exceptions.Panicf("Indexing: matrix operand %T cannot be the target of an assignment", n.mat)
	}
	return mat
}

// SetView forces the indexed matrix to unrestricted in both directions: an
// indexed write can scatter to any position, regardless of the requested
// range.
func (n *indexing) SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int) {
	n.mat.SetView(NoLowerRestriction, NoUpperRestriction, NoLowerRestriction, NoUpperRestriction)
}

// ExtremeDiagonals reports no structural sparsity: a gather can populate any
// position.
func (n *indexing) ExtremeDiagonals() (bottom, top int) {
	return NoLowerRestriction, NoUpperRestriction
}

func (n *indexing) CheckAssignDimensions(rows, cols int) {
	checkConcreteSizeMatch("Indexing.CheckAssignDimensions", "rows of indexing", n.Rows(), "rows of expression", rows)
	checkConcreteSizeMatch("Indexing.CheckAssignDimensions", "columns of indexing", n.Cols(), "columns of expression", cols)
}

// AddWriteEvent registers e as a write on the indexed matrix and as a read on
// both index expressions.
func (n *indexing) AddWriteEvent(e backends.Event) {
	n.rowIdx.AddReadEvent(e)
	n.colIdx.AddReadEvent(e)
	n.mat.AddWriteEvent(e)
}

func (n *indexing) AddReadEvent(e backends.Event) {
	n.rowIdx.AddReadEvent(e)
	n.colIdx.AddReadEvent(e)
	n.mat.AddReadEvent(e)
}

func (n *indexing) appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event {
	events = n.rowIdx.appendWaitEvents(false, events)
	events = n.colIdx.appendWaitEvents(false, events)
	return n.mat.appendWaitEvents(forWrite, events)
}

// collectUniqueAccesses reports the matrix operand's buffer ids offset into a
// disjoint id range, then the index expressions' ids in the caller's range.
// Index buffers therefore alias-match against the caller's other accesses,
// while the gathered matrix deliberately does not (its aliasing is the
// documented caller-responsibility hazard).
func (n *indexing) collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int {
	matIDs := make(map[backends.Buffer]int)
	matNextID := 0
	matUIDs := n.mat.collectUniqueAccesses(nil, matIDs, &matNextID)
	for _, id := range matUIDs {
		uids = append(uids, id+*nextID)
	}
	*nextID += matNextID
	uids = n.rowIdx.collectUniqueAccesses(uids, ids, nextID)
	return n.colIdx.collectUniqueAccesses(uids, ids, nextID)
}
