// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"sync"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
)

// Kernel is a "compiled" kernel: the program plus the values currently bound
// to its argument slots. Kernels are shared through the backend's cache, so a
// launch snapshots the bound arguments at enqueue time.
type Kernel struct {
	backend *Backend
	program backends.Program

	mu   sync.Mutex
	args []any
}

var _ backends.Kernel = (*Kernel)(nil)

// SetArg binds value to the given parameter slot.
func (k *Kernel) SetArg(slot int, value any) {
	if slot < 0 {
		exceptions.Panicf("simdevice: SetArg with negative slot %d", slot)
	}
	switch value.(type) {
	case backends.Buffer, int32, float32, float64:
		// Accepted argument kinds.
	default:
		exceptions.Panicf("simdevice: SetArg(%d) with unsupported argument type %T", slot, value)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for len(k.args) <= slot {
		k.args = append(k.args, nil)
	}
	k.args[slot] = value
}

// argsSnapshot copies the currently bound arguments, so a launch is unaffected
// by later rebinding of the shared kernel.
func (k *Kernel) argsSnapshot() []any {
	k.mu.Lock()
	defer k.mu.Unlock()
	args := make([]any, len(k.args))
	copy(args, k.args)
	return args
}
