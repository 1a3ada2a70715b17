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
	"reflect"
	"testing"

	"github.com/jacobsa/taskrt"
)

// TestTaskEventLifecycle records the lifecycle events for one task that
// yields once. The bootstrap step (the uninterruptible yield back to the
// spawner before the event loop is marked running) contributes the
// Resume that precedes Start.
func TestTaskEventLifecycle(t *testing.T) {
	sched := newTestScheduler(&fakeEventDriver{})

	var events []taskrt.TaskEvent
	taskrt.SetTaskEventHandler(func(e taskrt.TaskEvent, _ taskrt.Task) {
		events = append(events, e)
	})
	defer taskrt.SetTaskEventHandler(nil)

	taskrt.Spawn(sched, func(ctx taskrt.Context) {
		ctx.Yield()
	})
	drain(sched)

	want := []taskrt.TaskEvent{
		taskrt.PreStart,
		taskrt.PostStart,
		taskrt.Resume,
		taskrt.Start,
		taskrt.Yield,
		taskrt.Resume,
		taskrt.End,
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

// TestPanickingTaskEmitsFailAndDoesNotCrashScheduler: an ordinary panic
// in one task body is contained at the fiber boundary; other tasks and
// the scheduler itself keep running, and the failing task reports Fail
// rather than End.
func TestPanickingTaskEmitsFailAndDoesNotCrashScheduler(t *testing.T) {
	sched := newTestScheduler(&fakeEventDriver{})

	var sawFail, sawEnd bool
	taskrt.SetTaskEventHandler(func(e taskrt.TaskEvent, _ taskrt.Task) {
		switch e {
		case taskrt.Fail:
			sawFail = true
		case taskrt.End:
			sawEnd = true
		}
	})
	defer taskrt.SetTaskEventHandler(nil)

	bad := taskrt.Spawn(sched, func(ctx taskrt.Context) {
		panic("task body exploded")
	})

	var survivorRan bool
	taskrt.Spawn(sched, func(ctx taskrt.Context) {
		ctx.Yield()
		survivorRan = true
	})

	drain(sched)

	if !sawFail {
		t.Errorf("panicking task never emitted Fail")
	}
	if !sawEnd {
		t.Errorf("surviving task never emitted End")
	}
	if bad.Running() {
		t.Errorf("panicking task still reports Running")
	}
	if !survivorRan {
		t.Errorf("scheduler stopped driving other tasks after one task panicked")
	}
}
