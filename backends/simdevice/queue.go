// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Queue is the simulated command queue: launches run asynchronously in the
// background, after their dependency events complete, with work-items spread
// over the backend's pool of compute units.
type Queue struct {
	backend *Backend
}

var _ backends.Queue = (*Queue)(nil)

// Enqueue schedules the kernel over a rows x cols global range and returns its
// completion event without blocking.
func (q *Queue) Enqueue(kernel backends.Kernel, rows, cols int, waitFor []backends.Event) backends.Event {
	q.backend.checkValid()
	simKernel, ok := kernel.(*Kernel)
	if !ok {
		exceptions.Panicf("simdevice: kernel %T was not compiled by this backend", kernel)
	}
	args := simKernel.argsSnapshot()
	event := newEvent()
	go func() {
		defer event.fire()
		waitAll(waitFor)
		klog.V(2).Infof("simdevice: launching %q over %dx%d work-items", simKernel.program.Name, rows, cols)
		// One task per column; work-items within and across tasks have no
		// ordering guarantee.
		tasks := make([]func(), 0, cols)
		for j := 0; j < cols; j++ {
			j := j
			tasks = append(tasks, func() {
				for i := 0; i < rows; i++ {
					simKernel.program.HostStep(args, i, j)
				}
			})
		}
		q.backend.pool.RunAll(tasks)
	}()
	return event
}

// Event signals the completion of one enqueued launch.
type Event struct {
	done chan struct{}
}

var _ backends.Event = (*Event)(nil)

func newEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// Wait blocks until the launch has completed.
func (e *Event) Wait() {
	<-e.done
}

func (e *Event) fire() {
	close(e.done)
}
