// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import "sync/atomic"

// nodeID is a stable, process-unique identity assigned to every node at
// construction. Deduplication maps key on it instead of on Go pointers, so
// identity survives independently of object lifetime, and DeepCopy can clone a
// subtree into fresh identities.
type nodeID int64

var nodeIDCounter atomic.Int64

func newNodeID() nodeID {
	return nodeID(nodeIDCounter.Add(1))
}

// scope tracks which nodes already emitted code, or already bound their kernel
// arguments, within one traversal. A node found in the scope contributes an
// empty fragment (or binds nothing) and reuses its previously assigned
// variable name, so shared subexpressions are emitted exactly once.
//
// The top-level compilation pass holds one scope for the whole tree; the
// indexing node additionally opens a fresh private scope for its matrix
// operand, whose generation runs under substituted index names and must not
// leak into (or be shadowed by) the outer scope's records.
type scope struct {
	seen map[nodeID]struct{}
}

func newScope() *scope {
	return &scope{seen: make(map[nodeID]struct{})}
}

// firstVisit marks id as visited, returning false if it already was.
func (s *scope) firstVisit(id nodeID) bool {
	if _, found := s.seen[id]; found {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// genContext holds the per-compilation mutable state of code generation:
// the variable name generator and the names assigned to each node. It is
// created fresh for every compilation pass and discarded afterwards, keeping
// nodes themselves immutable.
type genContext struct {
	names    nameGenerator
	varNames map[nodeID]string

	// Diagonal range the emitted output guard restricts the kernel body to.
	// Loads consult it under viewHandled to decide whether their own view
	// check is subsumed by the guard.
	guardBottom, guardTop int
}

func newGenContext() *genContext {
	return &genContext{
		varNames:    make(map[nodeID]string),
		guardBottom: NoLowerRestriction,
		guardTop:    NoUpperRestriction,
	}
}

// newVarName assigns a fresh variable name to n and returns it.
func (ctx *genContext) newVarName(n Node) string {
	name := ctx.names.generate()
	ctx.varNames[n.id()] = name
	return name
}

// varName returns the name previously assigned to n in this compilation pass.
func (ctx *genContext) varName(n Node) string {
	return ctx.varNames[n.id()]
}

// setVarName aliases n to an already generated name or reference expression.
func (ctx *genContext) setVarName(n Node, name string) {
	ctx.varNames[n.id()] = name
}
