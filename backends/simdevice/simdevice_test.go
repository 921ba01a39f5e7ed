// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"testing"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigParsing(t *testing.T) {
	require.NotPanics(t, func() { New("") })
	require.NotPanics(t, func() { New("parallelism=2") })
	require.NotPanics(t, func() { New("parallelism=0") })
	require.NotPanics(t, func() { New("parallelism=-1") })
	require.Panics(t, func() { New("parallelism=two") })
	require.Panics(t, func() { New("warpSize=32") })
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, backends.List(), BackendName)
	backend := backends.NewWithConfig("simdevice:parallelism=1")
	assert.Equal(t, BackendName, backend.Name())
	assert.Contains(t, backend.Description(), "simdevice")
}

func TestBufferElementAccess(t *testing.T) {
	backend := New("")
	for _, test := range []struct {
		dtype dtypes.DType
		value float64
	}{
		{dtypes.Float64, -1.25},
		{dtypes.Float32, 3.5},
		{dtypes.Float16, 1.5},
		{dtypes.Int32, -7},
		{dtypes.Int64, 1 << 40},
	} {
		buffer := backend.NewBuffer(test.dtype, 4).(*Buffer)
		assert.Equal(t, 4, buffer.Len())
		assert.Equal(t, test.dtype, buffer.DType())
		buffer.SetFloat64(2, test.value)
		assert.Equal(t, test.value, buffer.Float64(2), "dtype %s", test.dtype)
		assert.Zero(t, buffer.Float64(1), "dtype %s", test.dtype)
	}
}

func TestBufferReadWrite(t *testing.T) {
	backend := New("")
	buffer := backend.NewBuffer(dtypes.Int32, 3)
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	backend.WriteBuffer(buffer, data, nil)
	assert.Equal(t, data, backend.ReadBuffer(buffer, nil))

	require.Panics(t, func() { backend.WriteBuffer(buffer, data[:8], nil) })
}

func TestCompileCache(t *testing.T) {
	backend := New("")
	step := func(args []any, row, col int) {}
	k1 := backend.Compile(backends.Program{Name: "a", Source: "source A", HostStep: step})
	k2 := backend.Compile(backends.Program{Name: "a", Source: "source A", HostStep: step})
	k3 := backend.Compile(backends.Program{Name: "a", Source: "source B", HostStep: step})
	assert.Same(t, k1, k2)
	assert.NotSame(t, k1, k3)

	// A program without a host step cannot run on a simulated device.
	require.Panics(t, func() {
		backend.Compile(backends.Program{Name: "a", Source: "source C"})
	})
}

func TestEnqueue(t *testing.T) {
	for _, config := range []string{"parallelism=0", "parallelism=2", "parallelism=-1", ""} {
		backend := New(config)
		buffer := backend.NewBuffer(dtypes.Float64, 6).(*Buffer)
		kernel := backend.Compile(backends.Program{
			Name:   "fill",
			Source: "fill " + config, // Distinct cache entries per subtest.
			HostStep: func(args []any, row, col int) {
				out := args[0].(backends.HostBuffer)
				out.SetFloat64(row+3*col, float64(10*row+col))
			},
		})
		kernel.SetArg(0, buffer)

		event := backend.Queue().Enqueue(kernel, 3, 2, nil)
		event.Wait()
		for col := 0; col < 2; col++ {
			for row := 0; row < 3; row++ {
				assert.Equal(t, float64(10*row+col), buffer.Float64(row+3*col),
					"config %q, work-item (%d,%d)", config, row, col)
			}
		}
	}
}

func TestEnqueueWaitsForEvents(t *testing.T) {
	backend := New("")
	buffer := backend.NewBuffer(dtypes.Int32, 1).(*Buffer)

	// A chain of launches, each incrementing the same element, each waiting
	// for the previous one.
	kernel := backend.Compile(backends.Program{
		Name:   "incr",
		Source: "incr",
		HostStep: func(args []any, row, col int) {
			out := args[0].(backends.HostBuffer)
			out.SetFloat64(0, out.Float64(0)+1)
		},
	})
	kernel.SetArg(0, buffer)

	var waitFor []backends.Event
	for i := 0; i < 50; i++ {
		event := backend.Queue().Enqueue(kernel, 1, 1, waitFor)
		waitFor = []backends.Event{event}
	}
	waitFor[0].Wait()
	assert.Equal(t, float64(50), buffer.Float64(0))
}

func TestArgsSnapshot(t *testing.T) {
	backend := New("parallelism=0")
	b1 := backend.NewBuffer(dtypes.Float64, 1).(*Buffer)
	b2 := backend.NewBuffer(dtypes.Float64, 1).(*Buffer)

	kernel := backend.Compile(backends.Program{
		Name:   "mark",
		Source: "mark",
		HostStep: func(args []any, row, col int) {
			args[0].(backends.HostBuffer).SetFloat64(0, 1)
		},
	})
	kernel.SetArg(0, b1)
	e1 := backend.Queue().Enqueue(kernel, 1, 1, nil)
	// Rebinding the shared kernel must not affect the launch in flight.
	kernel.SetArg(0, b2)
	e2 := backend.Queue().Enqueue(kernel, 1, 1, []backends.Event{e1})
	e2.Wait()
	assert.Equal(t, float64(1), b1.Float64(0))
	assert.Equal(t, float64(1), b2.Float64(0))
}

func TestSetArgValidation(t *testing.T) {
	backend := New("")
	kernel := backend.Compile(backends.Program{
		Name: "noop", Source: "noop", HostStep: func(args []any, row, col int) {},
	})
	require.NotPanics(t, func() { kernel.SetArg(0, int32(1)) })
	require.NotPanics(t, func() { kernel.SetArg(5, 1.0) })
	require.Panics(t, func() { kernel.SetArg(-1, int32(1)) })
	require.Panics(t, func() { kernel.SetArg(0, "not a kernel argument") })
	require.Panics(t, func() { kernel.SetArg(0, 1) }) // Plain int is not accepted.
}

func TestFinalize(t *testing.T) {
	backend := New("")
	backend.Finalize()
	require.Panics(t, func() { backend.NewBuffer(dtypes.Float64, 1) })
	require.Panics(t, func() {
		backend.Compile(backends.Program{Name: "a", Source: "a", HostStep: func(args []any, row, col int) {}})
	})
}
