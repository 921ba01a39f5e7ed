// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simdevice implements a pure-Go simulated compute device for the
// kernel generator: dtype-aware memory buffers, a kernel cache keyed by the
// generated source text, and an asynchronous command queue that executes each
// launch's work-items concurrently, with no ordering between work-items --
// like a real device, only slower.
//
// It cannot JIT the textual kernel source; instead it executes the host-step
// reference program carried by backends.Program, which implements the same
// single-work-item semantics. The cache is still keyed on the source text, so
// caching behaves exactly as on a compiling device.
//
// To use it, import it as:
//
//	import _ "github.com/gomlx/clgen/backends/simdevice"
//
// And select it with CLGEN_BACKEND="simdevice". Parallelism can be configured
// with the backend config, e.g. CLGEN_BACKEND="simdevice:parallelism=4".
package simdevice

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/clgen/internal/workitems"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to use in CLGEN_BACKEND to select this backend.
const BackendName = "simdevice"

// New creates a simdevice backend. The config string is a comma-separated
// list of key=value options; the only option is "parallelism" (0 disables
// parallel work-items, -1 makes it unlimited).
func New(config string) backends.Backend {
	b := &Backend{
		pool:    workitems.New(),
		kernels: make(map[string]*Kernel),
	}
	b.queue = &Queue{backend: b}
	for _, option := range strings.Split(config, ",") {
		if option == "" {
			continue
		}
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "parallelism":
			parallelism, err := strconv.Atoi(value)
			if err != nil {
				panic(errors.Wrapf(err, "simdevice: bad parallelism value %q in config", value))
			}
			b.pool.SetMaxParallelism(parallelism)
		default:
			exceptions.Panicf("simdevice: unknown backend config option %q", key)
		}
	}
	return b
}

func init() {
	backends.Register(BackendName, New)
}

// Backend is a simulated device: buffers live in host memory and kernels
// execute through their host-step programs.
type Backend struct {
	pool  *workitems.Pool
	queue *Queue

	mu      sync.Mutex
	kernels map[string]*Kernel

	numBuffers     atomic.Int64
	allocatedBytes atomic.Int64
	finalized      atomic.Bool
}

var _ backends.Backend = (*Backend)(nil)

// Name returns "simdevice".
func (b *Backend) Name() string { return BackendName }

// Description pretty-prints the backend and its current memory usage.
func (b *Backend) Description() string {
	return fmt.Sprintf("simdevice: pure Go simulated device, %s allocated in %d buffers",
		humanize.Bytes(uint64(b.allocatedBytes.Load())), b.numBuffers.Load())
}

// Compile returns the kernel for the program, reusing a previously compiled
// kernel when the source text matches.
func (b *Backend) Compile(program backends.Program) backends.Kernel {
	b.checkValid()
	if program.HostStep == nil {
		exceptions.Panicf("simdevice: program %q carries no host-step fallback, and simdevice cannot "+
			"compile kernel source", program.Name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if kernel, found := b.kernels[program.Source]; found {
		klog.V(2).Infof("simdevice: kernel cache hit for %q (%d cached)", program.Name, len(b.kernels))
		return kernel
	}
	klog.V(2).Infof("simdevice: compiling kernel %q (%d bytes of source)", program.Name, len(program.Source))
	kernel := &Kernel{backend: b, program: program}
	b.kernels[program.Source] = kernel
	return kernel
}

// NewBuffer allocates a zero-initialized device buffer.
func (b *Backend) NewBuffer(dtype dtypes.DType, length int) backends.Buffer {
	b.checkValid()
	if length < 0 {
		exceptions.Panicf("simdevice: invalid buffer length %d", length)
	}
	buffer := &Buffer{dtype: dtype, data: make([]byte, length*dtype.Size())}
	b.numBuffers.Add(1)
	b.allocatedBytes.Add(int64(len(buffer.data)))
	return buffer
}

// WriteBuffer copies raw host bytes into the buffer after waitFor completes.
func (b *Backend) WriteBuffer(buffer backends.Buffer, data []byte, waitFor []backends.Event) {
	b.checkValid()
	simBuffer := b.ownBuffer(buffer)
	if len(data) != len(simBuffer.data) {
		exceptions.Panicf("simdevice: WriteBuffer got %d bytes for a %d-byte buffer", len(data), len(simBuffer.data))
	}
	waitAll(waitFor)
	copy(simBuffer.data, data)
}

// ReadBuffer copies the buffer back to host bytes after waitFor completes.
func (b *Backend) ReadBuffer(buffer backends.Buffer, waitFor []backends.Event) []byte {
	b.checkValid()
	simBuffer := b.ownBuffer(buffer)
	waitAll(waitFor)
	data := make([]byte, len(simBuffer.data))
	copy(data, simBuffer.data)
	return data
}

// Queue returns the backend's single command queue.
func (b *Backend) Queue() backends.Queue {
	b.checkValid()
	return b.queue
}

// Finalize drops the kernel cache and invalidates the backend.
func (b *Backend) Finalize() {
	b.finalized.Store(true)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kernels = nil
}

func (b *Backend) checkValid() {
	if b.finalized.Load() {
		exceptions.Panicf("simdevice: backend already finalized")
	}
}

func (b *Backend) ownBuffer(buffer backends.Buffer) *Buffer {
	simBuffer, ok := buffer.(*Buffer)
	if !ok {
		exceptions.Panicf("simdevice: buffer %T was not created by this backend", buffer)
	}
	return simBuffer
}

func waitAll(events []backends.Event) {
	for _, e := range events {
		e.Wait()
	}
}
