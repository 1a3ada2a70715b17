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
	"testing"

	"github.com/jacobsa/taskrt"
)

// TestFiberPoolReusesCompletedFibers spawns and fully drains a series of
// tasks, one at a time, and checks that the pool's idle count never
// grows past one: each completed task's fiber is recycled and handed
// back out to the next Spawn instead of a fresh one being created.
func TestFiberPoolReusesCompletedFibers(t *testing.T) {
	sched := newTestScheduler(&fakeEventDriver{})

	for i := 0; i < 5; i++ {
		taskrt.Spawn(sched, func(ctx taskrt.Context) {
			ctx.Yield()
		})
		drain(sched)

		if got := sched.Pool().Len(); got != 1 {
			t.Fatalf("iteration %d: pool idle count = %d, want 1", i, got)
		}
	}
}

// TestFiberPoolGrowsForConcurrentTasks spawns several tasks that are all
// outstanding at once (each blocked on its own Yield) before any of them
// finish, then drains them together. The pool must grow to cover the
// concurrent high-water mark, then settle back down once everything is
// recycled.
func TestFiberPoolGrowsForConcurrentTasks(t *testing.T) {
	sched := newTestScheduler(&fakeEventDriver{})

	const n = 4
	for i := 0; i < n; i++ {
		taskrt.Spawn(sched, func(ctx taskrt.Context) {
			ctx.Yield()
		})
	}
	drain(sched)

	if got := sched.Pool().Len(); got != n {
		t.Fatalf("pool idle count after draining %d concurrent tasks = %d, want %d", n, got, n)
	}
}
