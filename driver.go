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

import "time"

// ExitReason describes why a single round of EventDriver.ProcessEvents
// returned, and is what TaskScheduler.Process and WaitAndProcess use to
// decide whether to keep draining, block, or stop.
type ExitReason int

const (
	// Exited means the surrounding program is shutting down; the
	// scheduler should stop processing entirely.
	Exited ExitReason = iota

	// OutOfWaiters means the driver has no outstanding event sources left
	// to wait on (no timers, no I/O registrations) and, absent new work
	// being spawned, will never produce another event.
	OutOfWaiters

	// Timeout means ProcessEvents' deadline elapsed with no event having
	// arrived.
	Timeout

	// Idle means at least one event was delivered during this round, and
	// the driver was polled non-blockingly (so "idle" describes the
	// scheduler's run queue, not the driver).
	Idle
)

func (r ExitReason) String() string {
	switch r {
	case Exited:
		return "Exited"
	case OutOfWaiters:
		return "OutOfWaiters"
	case Timeout:
		return "Timeout"
	case Idle:
		return "Idle"
	default:
		return "ExitReason(?)"
	}
}

// Indefinitely is passed to EventDriver.ProcessEvents to request an
// unbounded wait: block until at least one event is ready, the driver
// runs out of waiters, or the program is exiting.
const Indefinitely time.Duration = -1

// EventDriver is the collaborator a TaskScheduler polls for outside
// events (I/O readiness, timers, external shutdown). This package
// supplies no concrete driver: plugging in an actual I/O multiplexer
// (epoll, kqueue, an HTTP server's accept loop) is the embedding
// program's job. ProcessEvents must deliver any ready events (by
// resuming the tasks waiting on them, typically via
// TaskScheduler.SwitchTo or a ManualEvent.Emit) before returning.
//
// timeout of Indefinitely means block until something happens; a
// non-negative timeout bounds how long ProcessEvents may block before
// returning Timeout.
type EventDriver interface {
	ProcessEvents(timeout time.Duration) ExitReason
}
