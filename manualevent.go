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
	"fmt"

	"github.com/jacobsa/syncutil"
)

// ManualEvent is a broadcast wakeup primitive for tasks: any number of
// tasks can Wait on it; a single Emit wakes all of them. It is the
// building block Task.Join and EventDriver implementations use to
// suspend a task until some external condition becomes true.
//
// Unlike sync.Cond, Wait and Emit never block the underlying OS thread:
// Wait suspends the calling task cooperatively via Context.Hibernate,
// and Emit simply re-enqueues the waiters for their scheduler to resume
// in its own time.
type ManualEvent struct {
	mu      syncutil.InvariantMutex
	waiters []*TaskFiber
}

// NewManualEvent returns a ManualEvent ready for use.
func NewManualEvent() *ManualEvent {
	e := &ManualEvent{}
	e.mu = syncutil.NewInvariantMutex(e.checkInvariants)
	return e
}

func (e *ManualEvent) checkInvariants() {
	seen := make(map[*TaskFiber]struct{}, len(e.waiters))
	for _, w := range e.waiters {
		if _, dup := seen[w]; dup {
			panic(fmt.Sprintf("taskrt: ManualEvent has duplicate waiter %v", w))
		}
		seen[w] = struct{}{}
	}
}

// Wait suspends ctx's calling task until Emit is next called. It is a
// no-op if ctx does not belong to a running task (DummyFiber, or any
// other fiber with no scheduler): there would be nothing for Emit to
// wake.
func (e *ManualEvent) Wait(ctx Context) {
	f := ctx.Fiber()
	if f == nil || f.sched == nil {
		return
	}

	e.mu.Lock()
	e.waiters = append(e.waiters, f)
	e.mu.Unlock()

	ctx.Hibernate()
}

// Emit wakes every task currently waiting on e by enqueueing its fiber
// on its own scheduler's run queue, then clears the waiter list. Tasks
// that call Wait after Emit returns wait for the next Emit.
func (e *ManualEvent) Emit() {
	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, w := range waiters {
		if w.sched != nil {
			w.sched.enqueue(w)
		}
	}
}
