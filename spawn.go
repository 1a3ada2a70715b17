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

import "unsafe"

// maxArgBytes bounds how large a SpawnArg argument may be. Go gives no
// safe way to hand-pack an arbitrary closure into a couple of machine
// words of inline storage, so this package keeps the callable itself as
// an ordinary Go func value (which the runtime may or may not
// heap-allocate, outside this package's control) and instead makes
// genuinely heap-free the one part it safely can: the argument payload,
// inline in TaskFuncInfo.
const maxArgBytes = 128

// TaskFuncInfo is what Spawn/SpawnArg hand to a TaskFiber to run: a
// callable plus, for SpawnArg, its argument copied into an inline byte
// array rather than boxed on the heap.
type TaskFuncInfo struct {
	fn      func(Context, unsafe.Pointer)
	args    [maxArgBytes]byte
	argSize uintptr
}

func (tfi *TaskFuncInfo) argPointer() unsafe.Pointer {
	if tfi.argSize == 0 {
		return nil
	}
	return unsafe.Pointer(&tfi.args[0])
}

// Spawn creates a new task running fn on s, and returns a handle to it.
// If s's event loop is not yet marked running, the new task enqueues
// itself uninterruptibly before its body starts and Spawn returns at
// once; the body first runs when a later Schedule resumes it. Once the
// loop is marked running, Spawn runs the task body synchronously until
// its first suspension point (see TaskScheduler.MarkEventLoopRunning).
func Spawn(s *TaskScheduler, fn func(Context)) Task {
	tfi := &TaskFuncInfo{
		fn: func(ctx Context, _ unsafe.Pointer) { fn(ctx) },
	}
	return spawn(s, tfi)
}

// SpawnArg creates a new task running fn(ctx, arg) on s. arg is copied
// inline into the new task's TaskFuncInfo; SpawnArg panics with a
// *ContractViolation if A is larger than the inline capacity.
func SpawnArg[A any](s *TaskScheduler, fn func(Context, A), arg A) Task {
	var probe A
	size := unsafe.Sizeof(probe)
	if size > maxArgBytes {
		violate("SpawnArg argument type is %d bytes, exceeds the %d-byte inline limit", size, maxArgBytes)
	}

	tfi := &TaskFuncInfo{argSize: size}
	if size > 0 {
		*(*A)(unsafe.Pointer(&tfi.args[0])) = arg
	}
	tfi.fn = func(ctx Context, p unsafe.Pointer) {
		fn(ctx, *(*A)(p))
	}

	return spawn(s, tfi)
}

func spawn(s *TaskScheduler, tfi *TaskFuncInfo) Task {
	f := s.pool.acquire()

	// Capture the generation this instance is spawned at before resuming:
	// resumeTask may not return until the task has already run to
	// completion (if it never yields), by which point f.generation may
	// already have moved on. The handle we return must describe the
	// instance we just started, not whatever f is doing by the time we
	// look again.
	gen := f.generation.Load()

	f.taskFunc = tfi
	s.resumeTask(f)

	return Task{fiber: f, generation: gen}
}
