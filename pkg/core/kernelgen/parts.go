// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"github.com/gomlx/clgen/backends"
)

// Parts holds the kernel source fragments one node (and its operands)
// contribute: kernel parameter declarations in binding order, variable
// declarations hoisted to the top of the kernel, and body statements.
type Parts struct {
	// Args are kernel parameter declarations, e.g. "__global double* v1_global".
	// Their order must match the order values are bound by bindArguments.
	Args []string

	// Declarations are hoisted variable declarations.
	Declarations string

	// Body are the statements computing this node's value.
	Body string
}

// Append concatenates fragments of operand parts, preserving order.
func (p *Parts) Append(others ...Parts) {
	for _, o := range others {
		p.Args = append(p.Args, o.Args...)
		p.Declarations += o.Declarations
		p.Body += o.Body
	}
}

// argBinder advances a positional argument cursor over a compiled kernel's
// parameter slots, in the same traversal order used by code generation.
//
// With a nil kernel it performs a dry run that only assigns slots; the
// assembler uses that to build the host-step program of backends that cannot
// compile the kernel source.
type argBinder struct {
	kernel backends.Kernel
	cursor int

	// slots records the first argument slot of each node that bound anything.
	slots map[nodeID]int
}

func newArgBinder(kernel backends.Kernel) *argBinder {
	return &argBinder{kernel: kernel, slots: make(map[nodeID]int)}
}

// bind assigns the next len(values) slots to n, setting them on the kernel
// when not in a dry run.
func (b *argBinder) bind(n Node, values ...any) {
	if _, found := b.slots[n.id()]; !found {
		b.slots[n.id()] = b.cursor
	}
	for _, value := range values {
		if b.kernel != nil {
			b.kernel.SetArg(b.cursor, value)
		}
		b.cursor++
	}
}
