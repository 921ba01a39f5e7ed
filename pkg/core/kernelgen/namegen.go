// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import "strconv"

// nameGenerator produces unique identifiers for kernel-local variables within
// one compilation pass.
type nameGenerator struct {
	count int
}

func (g *nameGenerator) generate() string {
	g.count++
	return "v" + strconv.Itoa(g.count)
}
