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
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/jacobsa/reqtrace"

	"github.com/jacobsa/taskrt/internal/fiberqueue"
	"github.com/jacobsa/taskrt/internal/fls"
)

// TaskFiber is a reusable execution context: a dedicated goroutine parked
// on a pair of handoff channels, standing in for the stack a native fiber
// would switch to. The scheduler (or the spawn layer) resumes a
// TaskFiber by handing it a TaskFuncInfo and waking its goroutine; the
// call blocks until the fiber suspends again, exactly as resuming a real
// fiber would block until that fiber yields the stack back.
//
// A TaskFiber is never freed once created; FiberPool recycles it across
// task instances. The generation counter is what lets a Task handle
// detect that the instance it was issued for has already ended.
type TaskFiber struct {
	fiberqueue.Links

	sched *TaskScheduler

	generation atomic.Uint64
	running    atomic.Bool

	// interruptPending is set by interrupt() on another task's goroutine and
	// read by handleInterrupt on this fiber's own goroutine. Every set is
	// followed by a switch_to call before this fiber can observe it, and
	// switch_to always passes through a channel operation in resumeTask;
	// that channel operation is what makes the write visible under Go's
	// memory model, so no separate atomic or mutex guards this field.
	interruptPending bool

	cleanupHook func()

	onExit *ManualEvent

	fls fls.Store

	resumeCh  chan struct{}
	suspendCh chan struct{}

	taskFunc *TaskFuncInfo
}

// newTaskFiber creates a fresh TaskFiber bound to sched and starts its
// trampoline goroutine. The fiber begins life idle, parked waiting for
// its first task.
func newTaskFiber(sched *TaskScheduler) *TaskFiber {
	f := &TaskFiber{
		sched:     sched,
		onExit:    NewManualEvent(),
		resumeCh:  make(chan struct{}),
		suspendCh: make(chan struct{}),
	}
	go f.trampoline()
	return f
}

// QueueLinks implements fiberqueue.Node.
func (f *TaskFiber) QueueLinks() *fiberqueue.Links {
	return &f.Links
}

// Task returns a handle to f's current task instance.
func (f *TaskFiber) Task() Task {
	return Task{fiber: f, generation: f.generation.Load()}
}

// FLS returns f's fiber-local storage, for use with fls.TaskLocal[T].
func (f *TaskFiber) FLS() *fls.Store {
	return &f.fls
}

// InstallInterruptCleanup registers a one-shot hook that runs instead of
// panicking the next time this fiber observes a pending interrupt. This
// lets a resource-guard layer (a mutex wrapper, a condition variable
// wait) convert "I was interrupted while waiting" into ordinary
// housekeeping instead of unwinding through it, then re-arm the panic
// path for any later interrupt check. It must only be called by the
// fiber's own goroutine.
func (f *TaskFiber) InstallInterruptCleanup(hook func()) {
	f.cleanupHook = hook
}

// handleInterrupt panics with an *InterruptException if an interrupt is
// pending, clearing the flag first. If a one-shot cleanup hook is
// installed, it runs instead of panicking and is then discarded.
func (f *TaskFiber) handleInterrupt() {
	if !f.interruptPending {
		return
	}
	f.interruptPending = false

	if f.cleanupHook != nil {
		hook := f.cleanupHook
		f.cleanupHook = nil
		hook()
		return
	}

	panic(&InterruptException{Task: f.Task()})
}

// join blocks ctx's calling task on f.onExit for as long as f is still
// running f's expectedGen instance.
func (f *TaskFiber) join(ctx Context, expectedGen uint64) {
	for f.generation.Load() == expectedGen && f.running.Load() {
		f.onExit.Wait(ctx)
	}
}

// interrupt requests cooperative cancellation of f's expectedGen
// instance, as seen from ctx's calling task.
func (f *TaskFiber) interrupt(ctx Context, expectedGen uint64) {
	caller := ctx.Fiber()
	if caller == f {
		violate("a task cannot interrupt itself")
	}
	if caller != nil && caller.sched != nil && f.sched != nil && caller.sched != f.sched {
		violate("interrupt target belongs to a different scheduler")
	}
	if f.generation.Load() != expectedGen {
		return
	}

	f.interruptPending = true
	ctx.SwitchTo(f.Task())
}

// suspend hands control back to whoever last resumed this fiber (the
// scheduler's drain loop, or the spawner) and blocks until resumed again.
// It must only be called on f's own goroutine.
func (f *TaskFiber) suspend() {
	f.suspendCh <- struct{}{}
	<-f.resumeCh
	emitEvent(Resume, f.Task())
}

// trampoline is the body of the goroutine backing this fiber. It
// realizes the run-task inner loop: wait for a task, run it to
// completion or cooperative interruption, tear down, recycle, repeat
// forever. The loop never exits; a TaskFiber's goroutine lives for the
// rest of the process.
func (f *TaskFiber) trampoline() {
	for {
		<-f.resumeCh
		if f.taskFunc == nil {
			// Spurious wake with nothing assigned; hand control straight
			// back and wait again.
			f.suspendCh <- struct{}{}
			continue
		}

		tfi := f.taskFunc
		f.taskFunc = nil

		f.running.Store(true)
		ctx := Context{Context: context.Background(), fiber: f}

		emitEvent(PreStart, f.Task())
		emitEvent(PostStart, f.Task())

		if !f.sched.eventLoopRunning.Load() {
			f.sched.yieldUninterruptible(f)
		}

		f.runOnce(ctx, tfi)

		f.interruptPending = false
		f.onExit.Emit()
		if f.Queue != nil {
			f.sched.dequeue(f)
		}
		f.fls.Destroy()
		f.running.Store(false)
		f.generation.Add(1)

		f.sched.pool.recycle(f)
	}
}

// runOnce invokes the task body under a reqtrace span and turns a panic
// into an End/Fail event plus, for anything other than the task's own
// cooperative interrupt exit, a logged stack trace. Ordinary task
// panics never escape (the fiber's goroutine must survive to be
// recycled), but a runtime.Error or a *ContractViolation is re-raised
// after logging: corrupted runtime state and broken preconditions are
// not something a scheduler can paper over.
func (f *TaskFiber) runOnce(ctx Context, tfi *TaskFuncInfo) {
	emitEvent(Start, f.Task())

	traceCtx, report := reqtrace.StartSpan(ctx, "taskrt.Task")
	ctx.Context = traceCtx

	defer func() {
		r := recover()
		if r == nil {
			report(nil)
			emitEvent(End, f.Task())
			return
		}

		if _, ok := r.(*InterruptException); ok {
			report(nil)
			emitEvent(End, f.Task())
			return
		}

		err := fmt.Errorf("%v", r)
		report(err)
		emitEvent(Fail, f.Task())

		_, isRuntimeErr := r.(runtime.Error)
		_, isViolation := r.(*ContractViolation)
		if isRuntimeErr || isViolation {
			getLogger().Printf(
				"taskrt: task %s hit an unrecoverable error: %v\n%s",
				f.Task().DebugID(), r, debug.Stack())
			panic(r)
		}

		getLogger().Printf("taskrt: task %s panicked: %v\n%s", f.Task().DebugID(), r, debug.Stack())
	}()

	tfi.fn(ctx, tfi.argPointer())
}

var (
	dummyFiberOnce sync.Once
	dummyFiberVal  *TaskFiber
)

// DummyFiber returns a process-wide TaskFiber that is never scheduled
// and never runs a task. It exists purely to give code running outside
// any task (library initialization, tests, a plain goroutine) a valid,
// addressable fls.Store, without every caller of fiber-local storage
// needing to special-case "what if there is no current fiber."
func DummyFiber() *TaskFiber {
	dummyFiberOnce.Do(func() {
		dummyFiberVal = &TaskFiber{onExit: NewManualEvent()}
	})
	return dummyFiberVal
}

func ptrOf(f *TaskFiber) unsafe.Pointer {
	return unsafe.Pointer(f)
}
