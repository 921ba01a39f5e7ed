// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workitems throttles the goroutines that play the role of a device's
// parallel compute units: each enqueued kernel launch runs its work-items
// through a Pool, which caps host parallelism without imposing any ordering
// between work-items (as on a real device, none is guaranteed).
package workitems

import (
	"runtime"
	"sync"
)

// Pool caps the number of concurrently running work-item tasks.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning decreases.
	numRunning     int
}

// New returns a new Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	p := &Pool{}
	p.maxParallelism = runtime.NumCPU()
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// MaxParallelism is the soft target for parallelism.
// 0 disables parallelism (tasks run inline); -1 makes it unlimited.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// SetMaxParallelism sets the parallelism target. Only change it before any
// tasks start running; changing it during execution is undefined.
func (p *Pool) SetMaxParallelism(maxParallelism int) {
	p.maxParallelism = maxParallelism
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0).
func (p *Pool) IsUnlimited() bool {
	return p.maxParallelism < 0
}

// lockedIsFull returns whether all compute units are in use.
// It must be called with p.mu acquired.
func (p *Pool) lockedIsFull() bool {
	if p.maxParallelism == 0 {
		return true
	} else if p.maxParallelism < 0 {
		return false
	}
	return p.numRunning >= p.maxParallelism
}

// WaitToStart waits until a compute unit is available, then runs task on it
// asynchronously.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline
// and returns when it is finished.
func (p *Pool) WaitToStart(task func()) {
	if p.IsUnlimited() {
		go task()
		return
	} else if p.maxParallelism == 0 {
		task()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine runs task and keeps tabs on p.numRunning.
// It must be called with p.mu acquired.
func (p *Pool) lockedRunTaskInGoroutine(task func()) {
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// RunAll runs all tasks through the pool and returns once every one of them
// has finished. Tasks may run in any order and concurrently.
func (p *Pool) RunAll(tasks []func()) {
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for _, task := range tasks {
		task := task
		p.WaitToStart(func() {
			defer wg.Done()
			task()
		})
	}
	wg.Wait()
}
