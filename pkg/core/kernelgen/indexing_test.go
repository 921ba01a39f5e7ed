// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"testing"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/clgen/backends/simdevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingKernel captures SetArg calls in order, to verify that argument
// binding follows generation order.
type recordingKernel struct {
	slots  []int
	values []any
}

func (k *recordingKernel) SetArg(slot int, value any) {
	k.slots = append(k.slots, slot)
	k.values = append(k.values, value)
}

func newTestBackend() backends.Backend {
	return simdevice.New("")
}

func testMatrices(t *testing.T) (backend backends.Backend, m, ri, ci *Matrix) {
	backend = newTestBackend()
	m = MatrixFromRows(backend, [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	ri = MatrixFromRows(backend, [][]int32{{0, 1}, {2, 0}})
	ci = MatrixFromRows(backend, [][]int32{{0, 0}, {1, 2}})
	return
}

func TestIndexingConstructorChecks(t *testing.T) {
	backend, m, ri, ci := testMatrices(t)

	require.NotPanics(t, func() { Indexing(Load(m), Load(ri), Load(ci)) })

	// Index expressions must be integers.
	require.Panics(t, func() { Indexing(Load(m), Load(m), Load(ci)) })
	require.Panics(t, func() { Indexing(Load(m), Load(ri), Load(m)) })

	// Concrete index shapes that disagree (and don't broadcast) fail eagerly.
	ri3 := MatrixFromRows(backend, [][]int32{{0, 1, 2}, {0, 1, 2}, {0, 1, 2}})
	require.Panics(t, func() { Indexing(Load(m), Load(ri3), Load(ci)) })

	// A 1-row or 1-column index broadcasts against the other index.
	riRow := MatrixFromRows(backend, [][]int32{{0, 1}})
	require.NotPanics(t, func() { Indexing(Load(m), Load(riRow), Load(ci)) })
	ciCol := MatrixFromRows(backend, [][]int32{{0}, {1}})
	require.NotPanics(t, func() { Indexing(Load(m), Load(ri), Load(ciCol)) })

	// Dynamically shaped indices are resolved later, not rejected here.
	require.NotPanics(t, func() { Indexing(Load(m), RowIndex(), ColIndex()) })
}

func TestIndexingShape(t *testing.T) {
	backend, m, ri, ci := testMatrices(t)

	idx := Indexing(Load(m), Load(ri), Load(ci))
	assert.Equal(t, 2, idx.Rows())
	assert.Equal(t, 2, idx.Cols())
	assert.Equal(t, m.DType(), idx.DType())

	// The shape is the component-wise maximum of the index shapes.
	riRow := MatrixFromRows(backend, [][]int32{{0, 1}})
	idx = Indexing(Load(m), Load(riRow), Load(ci))
	assert.Equal(t, 2, idx.Rows())
	assert.Equal(t, 2, idx.Cols())

	idx = Indexing(Load(m), RowIndex(), ColIndex())
	assert.Equal(t, DynamicSize, idx.Rows())
	assert.Equal(t, DynamicSize, idx.Cols())
}

func TestIndexingBindOrder(t *testing.T) {
	_, m, ri, ci := testMatrices(t)
	idx := Indexing(Load(m), Load(ri), Load(ci))

	kernel := &recordingKernel{}
	binder := newArgBinder(kernel)
	idx.bindArguments(newScope(), binder)

	// Row index, column index, then the matrix under its private scope; each
	// load binds buffer, rows and view.
	require.Len(t, kernel.values, 9)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, kernel.slots)
	assert.Same(t, ri.Buffer(), kernel.values[0])
	assert.Equal(t, int32(2), kernel.values[1])
	assert.Same(t, ci.Buffer(), kernel.values[3])
	assert.Same(t, m.Buffer(), kernel.values[6])
	assert.Equal(t, int32(3), kernel.values[7])
}

func TestIndexingGenerateDedup(t *testing.T) {
	_, m, ri, _ := testMatrices(t)

	// The same node used as both row and column index generates (and binds)
	// exactly once.
	shared := Load(ri)
	idx := Indexing(Load(m), shared, shared)

	ctx := newGenContext()
	sc := newScope()
	parts := idx.generate(ctx, sc, "i", "j", false)
	assert.Len(t, parts.Args, 6) // 3 for the shared index, 3 for the matrix.

	// Re-generating within the same scope contributes nothing.
	again := idx.generate(ctx, sc, "i", "j", false)
	assert.Empty(t, again.Args)
	assert.Empty(t, again.Body)

	kernel := &recordingKernel{}
	idx.bindArguments(newScope(), newArgBinder(kernel))
	assert.Len(t, kernel.values, 6)
}

func TestIndexingAliasesMatrixVarName(t *testing.T) {
	_, m, ri, ci := testMatrices(t)
	idx := Indexing(Load(m), Load(ri), Load(ci)).(*indexing)

	ctx := newGenContext()
	idx.generate(ctx, newScope(), "i", "j", false)
	assert.Equal(t, ctx.varName(idx.mat), ctx.varName(idx))
	assert.NotEmpty(t, ctx.varName(idx))
}

func TestIndexingCollectUniqueAccesses(t *testing.T) {
	_, m, ri, ci := testMatrices(t)
	idx := Indexing(Load(m), Load(ri), Load(ci))

	ids := make(map[backends.Buffer]int)
	nextID := 0
	uids := idx.collectUniqueAccesses(nil, ids, &nextID)

	// The matrix gets an id in a range disjoint from every other access; the
	// indices get ids in the caller's range.
	assert.Equal(t, []int{0, 1, 2}, uids)
	assert.Equal(t, 3, nextID)

	// A second indexing over the same buffers: index buffers alias-match
	// against the first, the matrix again lands in a fresh disjoint range.
	idx2 := Indexing(Load(m), Load(ri), Load(ci))
	uids2 := idx2.collectUniqueAccesses(nil, ids, &nextID)
	assert.Equal(t, []int{3, 1, 2}, uids2)

	// Reading one of the index buffers directly does alias-match.
	uids3 := Load(ri).collectUniqueAccesses(nil, ids, &nextID)
	assert.Equal(t, []int{1}, uids3)
}

func TestIndexingSetViewForcesEntire(t *testing.T) {
	_, m, ri, ci := testMatrices(t)
	m.SetView(Lower)
	idx := Indexing(Load(m), Load(ri), Load(ci))

	// A scatter can touch any position of the matrix, whatever diagonal range
	// the caller declares for the assignment.
	idx.SetView(0, 0, 0, 0)
	assert.Equal(t, Entire, m.View())

	bottom, top := idx.ExtremeDiagonals()
	assert.Equal(t, NoLowerRestriction, bottom)
	assert.Equal(t, NoUpperRestriction, top)
}

func TestIndexingCheckAssignDimensions(t *testing.T) {
	_, m, ri, ci := testMatrices(t)
	idx := Indexing(Load(m), Load(ri), Load(ci))

	require.NotPanics(t, func() { idx.CheckAssignDimensions(2, 2) })
	require.Panics(t, func() { idx.CheckAssignDimensions(3, 2) })
	require.Panics(t, func() { idx.CheckAssignDimensions(2, 3) })
}

func TestIndexingDeepCopy(t *testing.T) {
	_, m, ri, ci := testMatrices(t)
	idx := Indexing(Load(m), Load(ri), Load(ci))
	cp := idx.DeepCopy()

	// Fresh identities: both trees generate independently in one scope.
	ctx := newGenContext()
	sc := newScope()
	parts := idx.generate(ctx, sc, "i", "j", false)
	cpParts := cp.generate(ctx, sc, "i", "j", false)
	assert.Len(t, parts.Args, 9)
	assert.Len(t, cpParts.Args, 9)

	// Shared buffers: the copies alias-match against the originals.
	ids := make(map[backends.Buffer]int)
	nextID := 0
	idx.collectUniqueAccesses(nil, ids, &nextID)
	uids := cp.(*indexing).rowIdx.collectUniqueAccesses(nil, ids, &nextID)
	assert.Equal(t, []int{1}, uids)
}

func TestIndexingBroadcastCoordinates(t *testing.T) {
	backend, m, _, ci := testMatrices(t)
	riRow := MatrixFromRows(backend, [][]int32{{0, 1}})
	idx := Indexing(Load(m), Load(riRow), Load(ci)).(*indexing)

	// The degenerate 1-row index reads row 0 whatever the output row is.
	row, col := idx.broadcastAt(idx.rowIdx, 1, 1)
	assert.Equal(t, 0, row)
	assert.Equal(t, 1, col)
	rowName, colName := idx.broadcastCoords(idx.rowIdx, "i", "j")
	assert.Equal(t, "0", rowName)
	assert.Equal(t, "j", colName)

	// The full-shaped index is untouched.
	row, col = idx.broadcastAt(idx.colIdx, 1, 1)
	assert.Equal(t, 1, row)
	assert.Equal(t, 1, col)
}
