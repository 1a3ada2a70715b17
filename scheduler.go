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

import (
	"runtime"
	"sync/atomic"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/taskrt/internal/fiberqueue"
)

// TaskScheduler owns one run queue and drives task execution on exactly
// one OS thread. Every TaskFiber it resumes runs on its own
// goroutine, but the handoff channels in TaskFiber.suspend/resumeTask
// guarantee that only one of {the scheduler's driving goroutine, one
// fiber} is ever actually executing at a time, which is what lets the
// rest of this package reason about the run queue and fiber state
// without additional locking from a task's point of view.
//
// Process and WaitAndProcess pin their calling goroutine with
// runtime.LockOSThread on first use, so the goroutine that drives the
// scheduler (and therefore everything it synchronously resumes) never
// migrates threads mid-task.
type TaskScheduler struct {
	mu    syncutil.InvariantMutex
	queue fiberqueue.Queue

	marker *schedMarker
	driver EventDriver
	clock  timeutil.Clock
	pool   *FiberPool

	// threadLocked records that the driving goroutine has already pinned
	// itself. Only ever touched by that goroutine.
	threadLocked bool

	eventLoopRunning atomic.Bool
}

// schedMarker is the sentinel fiberqueue.Node Schedule uses to bound one
// drain round: it is never itself resumed, just used to detect "we have
// now visited everything that was runnable when this round started."
type schedMarker struct {
	fiberqueue.Links
}

func (m *schedMarker) QueueLinks() *fiberqueue.Links {
	return &m.Links
}

// NewTaskScheduler returns a scheduler driven by driver. clock is used
// only for logging/debugging timestamps; pass timeutil.RealClock() in
// production and a timeutil.SimulatedClock in tests that need
// deterministic timing (see the fakeEventDriver test double in
// driver_test.go).
func NewTaskScheduler(driver EventDriver, clock timeutil.Clock) *TaskScheduler {
	s := &TaskScheduler{
		marker: &schedMarker{},
		driver: driver,
		clock:  clock,
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	s.pool = NewFiberPool(s)
	return s
}

func (s *TaskScheduler) checkInvariants() {
	s.queue.CheckInvariants()
}

// enqueue appends f to the run queue under the invariant-checked lock,
// skipping the insert if f is already enqueued. This is the entry point
// ManualEvent.Emit and other wait-list owners use to make a suspended
// fiber runnable again.
func (s *TaskScheduler) enqueue(f *TaskFiber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Contains(f) {
		return
	}
	s.queue.InsertBack(f)
}

// dequeue removes f from the run queue if it is currently enqueued.
func (s *TaskScheduler) dequeue(f *TaskFiber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Contains(f) {
		s.queue.Remove(f)
	}
}

func (s *TaskScheduler) queueEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Empty()
}

// Pool returns the FiberPool backing this scheduler's Spawn/SpawnArg
// calls, for tests and diagnostics that want to observe fiber reuse.
func (s *TaskScheduler) Pool() *FiberPool {
	return s.pool
}

// MarkEventLoopRunning records that this scheduler's owning event loop
// has started processing events. Before this is called, a freshly
// spawned task's first run uninterruptibly yields back to its spawner
// immediately (the bootstrap pattern in TaskFiber.trampoline), so that
// Spawn never blocks the program's startup code on an arbitrarily long
// task body before the event loop exists to keep driving it.
func (s *TaskScheduler) MarkEventLoopRunning() {
	s.eventLoopRunning.Store(true)
}

// resumeTask resumes f, blocking the calling goroutine until f next
// suspends (via Yield, Hibernate, SwitchTo, or running its task to
// completion). This is the only place a fiber's goroutine is ever woken.
func (s *TaskScheduler) resumeTask(f *TaskFiber) {
	f.resumeCh <- struct{}{}
	<-f.suspendCh
}

// Schedule drains the run queue exactly once: every fiber enqueued at
// the moment Schedule is called gets resumed in FIFO order, but fibers
// that re-enqueue themselves during this round (by calling Yield again
// before Schedule returns) are picked up on the *next* call to Schedule,
// not this one. It reports whether any fiber remains runnable when it
// returns.
func (s *TaskScheduler) Schedule() bool {
	s.mu.Lock()
	s.queue.InsertBack(s.marker)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.queue.Empty() {
			// The marker itself is always still pending until popped, so an
			// empty queue here means something removed it without our
			// knowledge: a real invariant violation. Treat it as "nothing
			// left to do" rather than panicking out of the event loop.
			s.mu.Unlock()
			getLogger().Println("taskrt: Schedule found an empty queue before popping its own marker")
			return false
		}
		n := s.queue.PopFront()
		s.mu.Unlock()

		if n == fiberqueue.Node(s.marker) {
			break
		}

		f, ok := n.(*TaskFiber)
		if !ok {
			violate("non-TaskFiber node %v found in scheduler run queue", n)
		}
		s.resumeTask(f)
	}

	return !s.queueEmpty()
}

// yield is the fiber-bound half of Context.Yield.
func (s *TaskScheduler) yield(f *TaskFiber) {
	if f == nil {
		return
	}

	f.handleInterrupt()

	s.mu.Lock()
	if s.queue.Contains(f) {
		s.mu.Unlock()
		return
	}
	s.queue.InsertBack(f)
	s.mu.Unlock()

	emitEvent(Yield, f.Task())
	f.suspend()
	f.handleInterrupt()
}

// yieldUninterruptible is the fiber-bound half of
// Context.YieldUninterruptible.
func (s *TaskScheduler) yieldUninterruptible(f *TaskFiber) {
	if f == nil {
		return
	}

	s.mu.Lock()
	if s.queue.Contains(f) {
		s.mu.Unlock()
		return
	}
	s.queue.InsertBack(f)
	s.mu.Unlock()

	f.suspend()
}

// hibernate is the fiber-bound half of Context.Hibernate.
func (s *TaskScheduler) hibernate(f *TaskFiber) {
	f.suspend()
}

// Hibernate drives one round of the event loop on behalf of bootstrap
// code that is not itself running inside a task (there is no fiber to
// suspend, so "suspend" is realized as "make some forward progress and
// return").
func (s *TaskScheduler) Hibernate() {
	s.Schedule()
	s.driver.ProcessEvents(0)
}

// switchTo is the shared implementation behind Context.SwitchTo (caller
// non-nil) and TaskScheduler.SwitchTo (caller nil, for bootstrap code
// outside any task).
func (s *TaskScheduler) switchTo(caller *TaskFiber, target Task) {
	tf := target.fiber
	if !target.Running() {
		return
	}
	if caller != nil && caller == tf {
		return
	}

	if caller == nil {
		s.resumeTask(tf)
		return
	}

	s.mu.Lock()
	if s.queue.Contains(tf) {
		s.queue.Remove(tf)
	}
	s.queue.InsertFront(caller)
	s.queue.InsertFront(tf)
	s.mu.Unlock()

	caller.suspend()
}

// SwitchTo resumes target directly, blocking the calling goroutine until
// it suspends, for use by bootstrap code running outside any task. Code
// running inside a task should call Context.SwitchTo instead, which
// reorders the run queue rather than nesting the resume synchronously.
func (s *TaskScheduler) SwitchTo(target Task) {
	s.switchTo(nil, target)
}

// Process repeatedly drains the run queue and polls driver for events,
// without blocking, until either the program is exiting, the driver has
// nothing left to wait on, or there is nothing left for this round to
// do.
func (s *TaskScheduler) Process() ExitReason {
	s.lockOSThread()
	sawEvent := false

	for {
		s.Schedule()

		reason := s.driver.ProcessEvents(0)
		switch reason {
		case Exited:
			return Exited

		case OutOfWaiters:
			if s.queueEmpty() {
				return OutOfWaiters
			}

		case Timeout:
			if s.queueEmpty() {
				if sawEvent {
					return Idle
				}
				return Timeout
			}

		case Idle:
			sawEvent = true
			if s.queueEmpty() {
				return Idle
			}
		}
	}
}

// WaitAndProcess behaves like Process, but if a drain round produces
// nothing to do and no event arrives within the non-blocking poll, it
// blocks (via one Indefinitely-timeout call to driver.ProcessEvents)
// until something happens, rather than returning Timeout to a caller
// that would otherwise have to busy-loop.
func (s *TaskScheduler) WaitAndProcess() ExitReason {
	switch r := s.Process(); r {
	case Exited, OutOfWaiters, Idle:
		return r
	}

	start := s.clock.Now()
	reason := s.driver.ProcessEvents(Indefinitely)
	getLogger().Printf(
		"taskrt: blocking wait returned %v after %v",
		reason,
		s.clock.Now().Sub(start))
	if reason == Exited {
		return Exited
	}

	if r2 := s.Process(); r2 != Timeout {
		return r2
	}
	return Idle
}

// lockOSThread pins the driving goroutine to its current OS thread the
// first time it drives this scheduler, and never unpins it: everything
// the scheduler synchronously resumes via resumeTask then runs without
// the driving goroutine migrating threads mid-task.
func (s *TaskScheduler) lockOSThread() {
	if s.threadLocked {
		return
	}
	s.threadLocked = true
	runtime.LockOSThread()
}
