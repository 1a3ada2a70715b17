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

import "context"

// Context is what every task function receives. It embeds
// context.Context so it composes with ordinary Go APIs (cancellation,
// deadlines, request-scoped values), and adds the scheduling operations
// that only make sense from inside a running task: Yield, Hibernate, and
// SwitchTo.
//
// Go has no supported goroutine-local storage, so instead of
// reconstructing a "current fiber" lookup with runtime introspection,
// the fiber identity is carried explicitly as part of the value every
// task function is handed. Code that needs fiber-local storage or
// scheduling access outside of a task (tests, plain goroutines) uses
// DummyFiber instead.
type Context struct {
	context.Context
	fiber *TaskFiber
}

// Fiber returns the TaskFiber running this Context's task.
func (c Context) Fiber() *TaskFiber {
	return c.fiber
}

// Scheduler returns the TaskScheduler driving this Context's task.
func (c Context) Scheduler() *TaskScheduler {
	return c.fiber.sched
}

// Task returns a handle to the task instance this Context belongs to.
func (c Context) Task() Task {
	return c.fiber.Task()
}

// Yield is an interruptible cooperative yield: it enqueues the calling
// task at the back of its scheduler's run queue and suspends until the
// scheduler resumes it, giving every other runnable task a turn first.
// If the task was already enqueued (for example by a ManualEvent.Emit
// while it was running), Yield neither re-enqueues nor suspends, keeping it idempotent
// with respect to an already-pending wakeup.
//
// Both on entry and on resume, Yield checks for a pending interrupt and
// panics with *InterruptException if one is set.
func (c Context) Yield() {
	c.fiber.sched.yield(c.fiber)
}

// YieldUninterruptible behaves like Yield but never checks for or raises
// an interrupt. It exists for bootstrap code paths (the fiber
// trampoline's first run, before the owning event loop has started) that
// must not be cancellable.
func (c Context) YieldUninterruptible() {
	c.fiber.sched.yieldUninterruptible(c.fiber)
}

// Hibernate suspends the calling task without enqueueing it anywhere.
// The caller is expected to already be on some wait list (a
// ManualEvent's waiter list, for example) whose owner will later make
// it runnable again, by enqueueing it (as ManualEvent.Emit does) or by
// switching to it.
func (c Context) Hibernate() {
	c.fiber.sched.hibernate(c.fiber)
}

// SwitchTo transfers control directly to target: target is moved to the
// front of the run queue, the calling task is enqueued directly behind
// it, and the calling task suspends. When the scheduler's drain loop
// next runs, target is guaranteed to run before anything that was
// already waiting. SwitchTo is a no-op if target is not currently
// running (including a stale generation) or if target is the calling
// task itself.
func (c Context) SwitchTo(target Task) {
	c.fiber.sched.switchTo(c.fiber, target)
}
