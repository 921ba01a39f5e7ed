// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"fmt"
	"strings"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

const kernelName = "clgen_calc"

// resolveShape computes the output shape of assigning rhs into lhs, resolving
// DynamicSize dimensions of the expression from the target.
func resolveShape(lhs Assignable, rhs Node) (rows, cols int) {
	rows, cols = rhs.Rows(), rhs.Cols()
	if rows == DynamicSize {
		rows = lhs.Rows()
	}
	if cols == DynamicSize {
		cols = lhs.Cols()
	}
	if rows == DynamicSize || cols == DynamicSize {
		exceptions.Panicf("kernelgen: cannot resolve assignment shape, both target and expression " +
			"have dynamic dimensions")
	}
	return
}

// assemble walks the tree once, concatenating the generated parts of rhs and
// then the assignable reference of lhs into a single compilable kernel source,
// with arguments declared in traversal order. It also builds the host-step
// reference program and reports the diagonal range the kernel writes nonzeros
// to (clamped to the output shape) and whether a sparsity guard was emitted.
func assemble(lhs Assignable, rhs Node, rows, cols int) (program backends.Program, bottom, top int, restricted bool) {
	bottom, top = rhs.ExtremeDiagonals()
	restricted = (bottom > minDiagonal(rows) || top < maxDiagonal(cols)) && !lhs.writesIrregular()
	bottom = max(bottom, minDiagonal(rows))
	top = min(top, maxDiagonal(cols))

	ctx := newGenContext()
	if restricted {
		ctx.guardBottom, ctx.guardTop = bottom, top
	}
	sc := newScope()
	var parts Parts
	parts.Append(
		rhs.generate(ctx, sc, "i", "j", restricted),
		lhs.generateLHS(ctx, sc, "i", "j"))
	lhsVar := ctx.varName(lhs)
	rhsVar := ctx.varName(rhs)

	var source strings.Builder
	fmt.Fprintf(&source, "__kernel void %s(%s) {\n", kernelName, strings.Join(parts.Args, ", "))
	source.WriteString("const int i = get_global_id(0);\n")
	source.WriteString("const int j = get_global_id(1);\n")
	source.WriteString(parts.Declarations)
	if restricted {
		fmt.Fprintf(&source, "if (j - i < (%d) || j - i > (%d)) {\n%s = 0;\n} else {\n", bottom, top, lhsVar)
		source.WriteString(parts.Body)
		fmt.Fprintf(&source, "%s = %s;\n}\n", lhsVar, rhsVar)
	} else {
		source.WriteString(parts.Body)
		fmt.Fprintf(&source, "%s = %s;\n", lhsVar, rhsVar)
	}
	source.WriteString("}\n")

	// A dry-run binding pass assigns the argument slots the host-step program
	// reads from; the real binding repeats the same traversal on the compiled
	// kernel.
	binder := newArgBinder(nil)
	bindScope := newScope()
	rhs.bindArguments(bindScope, binder)
	lhs.bindArguments(bindScope, binder)
	slots := binder.slots

	guardBottom, guardTop, guarded := bottom, top, restricted
	program = backends.Program{
		Name:   kernelName,
		Source: source.String(),
		HostStep: func(args []any, row, col int) {
			if guarded && (col-row < guardBottom || col-row > guardTop) {
				lhs.assignAt(args, slots, row, col, 0)
				return
			}
			lhs.assignAt(args, slots, row, col, rhs.evalAt(args, slots, row, col))
		},
	}
	if klog.V(1).Enabled() {
		klog.Infof("kernelgen: assembled kernel for %dx%d output:\n%s", rows, cols, program.Source)
	}
	return
}

// Source returns the fused kernel source Assign would compile for lhs = rhs.
// Useful for debugging and for inspecting what a given expression fuses into.
func Source(lhs Assignable, rhs Node) string {
	rows, cols := resolveShape(lhs, rhs)
	program, _, _, _ := assemble(lhs, rhs, rows, cols)
	return program.Source
}
