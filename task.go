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

import "encoding/base64"

// Task is a lightweight, copyable handle to one task instance running on
// a TaskFiber: the pair (fiber pointer, generation). Because TaskFibers
// are reused across task instances rather than freed, the generation
// counter is what makes a stale handle detectable: once the fiber it
// points at has moved on to a later generation, every operation on the
// handle becomes a silent no-op rather than touching unrelated state.
//
// The zero Task is the "null" task: its fiber pointer is nil.
type Task struct {
	fiber      *TaskFiber
	generation uint64
}

// IsNull reports whether t is the default, fiber-less task handle.
func (t Task) IsNull() bool {
	return t.fiber == nil
}

// Equal reports whether t and o refer to the same (fiber, generation)
// pair. Two stale handles to the same fiber at different generations are
// never equal.
func (t Task) Equal(o Task) bool {
	return t.fiber == o.fiber && t.generation == o.generation
}

// Running reports whether t still refers to a live, executing task
// instance: its fiber is non-nil, has not moved on to a later
// generation, and is currently between task start and task end.
func (t Task) Running() bool {
	if t.fiber == nil {
		return false
	}
	return t.fiber.generation.Load() == t.generation && t.fiber.running.Load()
}

// Join blocks ctx's calling task until t's task instance ends, or
// returns immediately if t is not Running (including the case where t's
// generation is already stale). ctx must belong to the same scheduler
// that owns t's fiber.
func (t Task) Join(ctx Context) {
	if !t.Running() {
		return
	}
	t.fiber.join(ctx, t.generation)
}

// Interrupt requests cooperative cancellation of t: the target observes
// the request as an *InterruptException the next time it checks for one
// at a suspension point. It is a no-op if t is not Running. It panics
// with a *ContractViolation if ctx's task is t itself (self-interrupt is
// forbidden) or belongs to a different scheduler than t's fiber
// (cross-scheduler interrupt is not supported).
func (t Task) Interrupt(ctx Context) {
	if !t.Running() {
		return
	}
	t.fiber.interrupt(ctx, t.generation)
}

// DebugID returns a short, stable digest of (fiber pointer, generation)
// suitable for correlating log lines with a specific task instance. It
// makes no cryptographic claim; it exists purely to be short and
// deterministic for a given handle.
func (t Task) DebugID() string {
	var buf [8]byte
	mixTaskID(&buf, t.fiber, t.generation)
	return base64.RawURLEncoding.EncodeToString(buf[:])[:4]
}

func mixTaskID(buf *[8]byte, fiber *TaskFiber, generation uint64) {
	// FNV-1a over the fiber's address and the generation counter. This is
	// purely a log-correlation digest, not a security-sensitive hash.
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	mix := func(x uint64) {
		for i := 0; i < 8; i++ {
			h ^= (x >> (8 * i)) & 0xff
			h *= prime64
		}
	}
	mix(uint64(uintptr(ptrOf(fiber))))
	mix(generation)

	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (8 * i))
	}
}
