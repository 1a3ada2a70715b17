// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package taskrt

import "sync"

// FiberPool recycles TaskFibers (and the goroutines backing them) across
// task instances instead of handing one out per Spawn and letting it be
// garbage collected: acquire pulls from the free list if non-empty and
// only spins up a fresh goroutine on a miss, and recycle returns a used
// fiber to the pool instead of discarding it.
type FiberPool struct {
	mu    sync.Mutex
	sched *TaskScheduler
	free  []*TaskFiber

	// StackSizeHint is a per-pool fiber stack size hint. Go goroutine
	// stacks grow and shrink on demand at runtime; there is no supported
	// way to pre-size one, so this field is accepted for API
	// compatibility with callers that configure it but otherwise unused.
	StackSizeHint int
}

// NewFiberPool returns an empty pool whose fibers all belong to sched.
func NewFiberPool(sched *TaskScheduler) *FiberPool {
	return &FiberPool{sched: sched}
}

// acquire returns an idle TaskFiber, reusing one from the free list if
// available and otherwise creating a new one.
func (p *FiberPool) acquire() *TaskFiber {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		return f
	}

	return newTaskFiber(p.sched)
}

// recycle returns f to the free list and signals f's trampoline
// goroutine that this task instance's invocation (and the resumeTask
// call that started it) is complete. It must only be called by f's own
// goroutine, at the end of TaskFiber.trampoline's per-instance cleanup.
func (p *FiberPool) recycle(f *TaskFiber) {
	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()

	f.suspendCh <- struct{}{}
}

// Len reports how many idle fibers are currently held in the pool.
func (p *FiberPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
