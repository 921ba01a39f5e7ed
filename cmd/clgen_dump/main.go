// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// clgen_dump prints the fused kernel source generated for a sample expression:
// an indexed gather of a square matrix combined with an elementwise operation.
// Useful to eyeball what the kernel generator fuses a graph into.
//
// Usage:
//
//	go run ./cmd/clgen_dump -size 16 -o /tmp/kernel.cl
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/clgen/pkg/core/kernelgen"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/clgen/backends/simdevice"
)

var (
	flagSize   = flag.Int("size", 4, "Size of the square matrix being indexed.")
	flagOutput = flag.String("o", "", "File to write the kernel source to; prints to stdout if empty.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	backend := backends.New()
	size := *flagSize

	matRows := make([][]float64, size)
	idxRows := make([][]int32, size)
	for i := range matRows {
		matRows[i] = make([]float64, size)
		idxRows[i] = make([]int32, size)
		for j := range matRows[i] {
			matRows[i][j] = float64(i*size + j)
			idxRows[i][j] = int32((i + j) % size)
		}
	}
	mat := kernelgen.MatrixFromRows(backend, matRows)
	rowIdx := kernelgen.MatrixFromRows(backend, idxRows)
	colIdx := kernelgen.MatrixFromRows(backend, idxRows)
	out := kernelgen.NewMatrix(backend, mat.DType(), size, size)

	gathered := kernelgen.Indexing(kernelgen.Load(mat), kernelgen.Load(rowIdx), kernelgen.Load(colIdx))
	expr := kernelgen.Add(gathered, kernelgen.Mul(kernelgen.Load(mat), kernelgen.Scalar(0.5)))
	source := kernelgen.Source(kernelgen.Load(out), expr)

	if *flagOutput == "" {
		fmt.Print(source)
		return
	}
	f := must.M1(os.Create(*flagOutput))
	must.M1(f.WriteString(source))
	must.M(f.Close())
	fmt.Printf("Wrote %d bytes of kernel source to %s\n", len(source), *flagOutput)
}
