// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/gopjrt/dtypes"
)

// Node is one element of an expression graph: a matrix-valued computation or
// access pattern that can be fused into a single generated kernel.
//
// Nodes are immutable after construction. A composite node exclusively owns
// the nodes passed to its constructor (the graph is a tree; structural sharing
// is detected by identity only for deduplication, never for ownership).
//
// The code generation half of the contract is unexported: the set of node
// kinds is closed within this package, matching the flat
// one-interface-many-implementors design.
type Node interface {
	// Rows and Cols return the shape of the result of evaluating this node.
	// Either may be DynamicSize at tree-construction boundaries, resolved from
	// sibling operands or the assignment target before any kernel is compiled.
	Rows() int
	Cols() int

	// DType of the elements produced.
	DType() dtypes.DType

	// DeepCopy clones the subtree, recursively assigning fresh node
	// identities. Buffers are shared, identity is not: the copy deduplicates
	// independently of the original, which makes aliased reuse of a
	// subexpression safe.
	DeepCopy() Node

	// SetView propagates, top-down, the diagonal range a write call will
	// touch, so operand matrices can update their structural sparsity.
	// Nonzeros are written on diagonals [bottomDiag, topDiag]; zeros extend
	// to [bottomZeroDiag, topZeroDiag] where those are more extreme. A node
	// whose output sparsity cannot be statically related to its operands'
	// must force operands to unrestricted instead of propagating a possibly
	// wrong narrower range.
	SetView(bottomDiag, topDiag, bottomZeroDiag, topZeroDiag int)

	// ExtremeDiagonals returns the bottom and top diagonal indices (col-row)
	// actually read or written; NoLowerRestriction/NoUpperRestriction when
	// unrestricted. The assembler uses it to size conditional guards.
	ExtremeDiagonals() (bottom, top int)

	// AddWriteEvent registers the completion event of a kernel writing
	// through this node with every buffer it (transitively) writes, and as a
	// read event with buffers it only reads.
	AddWriteEvent(e backends.Event)

	// AddReadEvent registers the completion event of a kernel reading this
	// node with every buffer it (transitively) reads.
	AddReadEvent(e backends.Event)

	// id returns the node's stable identity used by dedup scopes.
	id() nodeID

	// backendHandle returns the device backend of the first buffer-backed
	// operand in the subtree, or nil if there is none.
	backendHandle() backends.Backend

	// generate emits this node's kernel source fragments. It recursively
	// generates operands first, against the given row/col index variable
	// names. It is idempotent per scope: if the node was already generated it
	// returns an empty Parts and keeps its previously assigned variable name.
	// viewHandled signals that an ancestor already emitted the sparsity
	// guard, letting loads skip redundant bounds checks.
	generate(ctx *genContext, sc *scope, rowIdx, colIdx string, viewHandled bool) Parts

	// bindArguments binds this node's runtime data (buffers, scalars,
	// dimensions) to consecutive kernel argument slots. It must visit
	// operands in exactly the same relative order as generate, under the
	// same dedup semantics.
	bindArguments(sc *scope, binder *argBinder)

	// collectUniqueAccesses appends one opaque identifier per physically
	// distinct buffer touched in the subtree, assigning fresh ids from nextID
	// for buffers not yet in ids. Callers use the result to detect aliasing
	// between an assignment target and its source.
	collectUniqueAccesses(uids []int, ids map[backends.Buffer]int, nextID *int) []int

	// appendWaitEvents appends the events a new kernel launch touching this
	// subtree must wait for: prior writes for a read, prior reads and writes
	// for a write.
	appendWaitEvents(forWrite bool, events []backends.Event) []backends.Event

	// evalAt computes this node's value at (row, col) on the host, reading
	// bound arguments by the slots assigned during binding. It is the
	// reference single-work-item semantics used by backends that cannot
	// compile the generated source.
	evalAt(args []any, slots map[nodeID]int, row, col int) float64
}

// Assignable is a Node that can be the target of an assignment: it produces an
// assignable reference expression instead of a value expression.
type Assignable interface {
	Node

	// CheckAssignDimensions fails when the target's shape disagrees with the
	// shape computed from the assigned expression.
	CheckAssignDimensions(rows, cols int)

	// generateLHS is the code path for assignment targets. It propagates
	// index names so nested targets resolve correctly, and leaves the node's
	// variable name holding an assignable reference.
	generateLHS(ctx *genContext, sc *scope, rowIdx, colIdx string) Parts

	// assignAt writes value at (row, col) on the host; counterpart of evalAt.
	assignAt(args []any, slots map[nodeID]int, row, col int, value float64)

	// writesIrregular reports whether a write through this node can touch an
	// irregular position pattern (e.g. an indexed scatter), in which case
	// in-place evaluation over aliased buffers is unsafe.
	writesIrregular() bool
}

// firstBackend returns the first non-nil backend among the given nodes.
func firstBackend(nodes ...Node) backends.Backend {
	for _, n := range nodes {
		if b := n.backendHandle(); b != nil {
			return b
		}
	}
	return nil
}
