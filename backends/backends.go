// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a compute device needs to implement to
// execute kernels generated by github.com/gomlx/clgen/pkg/core/kernelgen.
//
// A backend provides device memory buffers, a kernel compiler/cache keyed by the
// generated source text, and a command queue with event-based synchronization.
// The kernel generator only depends on this small surface; everything else
// (device discovery, context management, actual JIT) is the backend's business.
//
// To simplify error handling, backend implementations are expected to throw
// (panic) with a stack trace in case of errors. See package
// github.com/gomlx/exceptions.
package backends

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Program is the compilation unit handed to a Backend.
//
// Source is the kernel in the backend's textual dialect (OpenCL C for real
// devices); it is the cache key for compilation. HostStep is a host-side
// reference implementation of a single work-item, used only by backends that
// cannot compile Source (like simdevice); device backends ignore it.
//
// HostStep reads its inputs from args, the values previously bound with
// Kernel.SetArg in slot order.
type Program struct {
	Name   string
	Source string

	HostStep func(args []any, row, col int)
}

// Backend is the device API required by the kernel generator.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "simdevice".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Compile compiles (or fetches from cache) the kernel for the given program.
	// Caching is keyed on Program.Source.
	Compile(program Program) Kernel

	// NewBuffer allocates a device buffer for length elements of the given dtype.
	NewBuffer(dtype dtypes.DType, length int) Buffer

	// WriteBuffer copies raw host bytes into the buffer, after waitFor events complete.
	WriteBuffer(buffer Buffer, data []byte, waitFor []Event)

	// ReadBuffer copies the buffer back to host bytes, after waitFor events complete.
	ReadBuffer(buffer Buffer, waitFor []Event) []byte

	// Queue returns the command queue kernels are enqueued on.
	Queue() Queue

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Kernel is a compiled kernel handle with positional argument slots.
type Kernel interface {
	// SetArg binds value to the given parameter slot. Accepted values are
	// Buffer, int32, float32 and float64. It panics on invalid slot or type.
	SetArg(slot int, value any)
}

// Queue is an asynchronous device command queue.
type Queue interface {
	// Enqueue schedules kernel over a rows x cols global work range, to start
	// after all waitFor events have completed. It returns the completion event
	// of this launch without blocking.
	Enqueue(kernel Kernel, rows, cols int, waitFor []Event) Event
}

// Event represents the completion of an asynchronously enqueued operation.
type Event interface {
	// Wait blocks until the operation has completed.
	Wait()
}

// Buffer is an opaque handle to device memory.
type Buffer interface {
	// DType of the elements stored.
	DType() dtypes.DType

	// Len is the number of elements.
	Len() int
}

// HostBuffer is implemented by buffers of backends that execute Program.HostStep
// on the host. Elements are accessed as float64 regardless of dtype; integer
// dtypes round-trip exactly within their range.
type HostBuffer interface {
	Buffer

	Float64(flatIdx int) float64
	SetFloat64(flatIdx int, value float64)
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) Backend

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as
// input a configuration string that is passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the backend configuration to use if CLGEN_BACKEND is not set.
var DefaultConfig string

// CLGEN_BACKEND is the environment variable with the default backend
// configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "simdevice")
// and "<backend_configuration>" is backend specific.
const CLGEN_BACKEND = "CLGEN_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment CLGEN_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
//
// It panics if no backend was registered.
func New() Backend {
	config, found := os.LookupEnv(CLGEN_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	if firstRegistered == "" {
		exceptions.Panicf("no backend registered -- import a backend implementation, e.g. " +
			"github.com/gomlx/clgen/backends/simdevice")
	}
	return NewWithConfig(firstRegistered)
}

// NewWithConfig takes a configuration string formatted as
// "<backend_name>:<backend_configuration>" and returns a new Backend.
func NewWithConfig(config string) Backend {
	name := config
	backendConfig := ""
	if idx := strings.Index(config, ":"); idx != -1 {
		name = config[:idx]
		backendConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[name]
	if !found {
		exceptions.Panicf("unknown backend %q requested (config=%q) -- registered backends: %v",
			name, config, List())
	}
	return constructor(backendConfig)
}

// List returns the names of the registered backends.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	return names
}
