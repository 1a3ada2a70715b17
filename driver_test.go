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

package taskrt_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/taskrt"
)

// fakeEventDriver is a minimal EventDriver test double: it plays back a
// fixed script of ExitReasons, one per call, then settles into always
// reporting OutOfWaiters (as a real driver would once nothing is left
// registered to wait on). It never actually produces I/O or timer
// events of its own; tests that need tasks to resume each other do so
// directly through the scheduler (Yield/SwitchTo/ManualEvent), so only
// the collaborator is faked and the runtime under test behaves
// normally.
type fakeEventDriver struct {
	mu      sync.Mutex
	reasons []taskrt.ExitReason
	i       int
}

func (d *fakeEventDriver) ProcessEvents(_ time.Duration) taskrt.ExitReason {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.i >= len(d.reasons) {
		return taskrt.OutOfWaiters
	}
	r := d.reasons[d.i]
	d.i++
	return r
}

func newTestScheduler(d taskrt.EventDriver) *taskrt.TaskScheduler {
	return taskrt.NewTaskScheduler(d, timeutil.RealClock())
}

func TestProcessStopsOnExited(t *testing.T) {
	d := &fakeEventDriver{reasons: []taskrt.ExitReason{taskrt.Exited}}
	sched := newTestScheduler(d)

	if got := sched.Process(); got != taskrt.Exited {
		t.Fatalf("Process() = %v, want Exited", got)
	}
}

func TestProcessReturnsOutOfWaitersWhenIdle(t *testing.T) {
	sched := newTestScheduler(&fakeEventDriver{})

	if got := sched.Process(); got != taskrt.OutOfWaiters {
		t.Fatalf("Process() = %v, want OutOfWaiters", got)
	}
}

// TestWaitAndProcessStopsOnExitedWithNonEmptyQueue scripts the driver to
// report Exited on its third call. Even with a task still re-yielding
// itself (so the run queue is never empty), WaitAndProcess must stop and
// report Exited: a shutdown beats runnable work.
func TestWaitAndProcessStopsOnExitedWithNonEmptyQueue(t *testing.T) {
	d := &fakeEventDriver{reasons: []taskrt.ExitReason{
		taskrt.Timeout,
		taskrt.Timeout,
		taskrt.Exited,
	}}
	sched := newTestScheduler(d)

	taskrt.Spawn(sched, func(ctx taskrt.Context) {
		for i := 0; i < 1000000; i++ {
			ctx.Yield()
		}
	})

	if got := sched.WaitAndProcess(); got != taskrt.Exited {
		t.Fatalf("WaitAndProcess() = %v, want Exited", got)
	}
	if d.i != 3 {
		t.Fatalf("driver was polled %d times, want 3", d.i)
	}
}

// TestWaitAndProcessTranslatesTimeoutToIdle: when even the blocking wait
// times out and a final non-blocking pass still has nothing to do,
// WaitAndProcess reports Idle rather than bouncing Timeout back to a
// caller that would have to busy-loop on it.
func TestWaitAndProcessTranslatesTimeoutToIdle(t *testing.T) {
	d := &fakeEventDriver{reasons: []taskrt.ExitReason{
		taskrt.Timeout,
		taskrt.Timeout,
		taskrt.Timeout,
	}}
	sched := newTestScheduler(d)

	if got := sched.WaitAndProcess(); got != taskrt.Idle {
		t.Fatalf("WaitAndProcess() = %v, want Idle", got)
	}
}

func TestSchedulerAcceptsSimulatedClock(t *testing.T) {
	var clock timeutil.SimulatedClock
	clock.SetTime(time.Unix(0, 0))

	sched := taskrt.NewTaskScheduler(&fakeEventDriver{}, &clock)
	if got := sched.Process(); got != taskrt.OutOfWaiters {
		t.Fatalf("Process() = %v, want OutOfWaiters", got)
	}
}
