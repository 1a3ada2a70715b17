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
	"flag"
	"io"
	"io/ioutil"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

var fEnableDebug = flag.Bool(
	"taskrt.debug",
	false,
	"Write taskrt scheduler debugging messages to stderr.")

var gLogger *log.Logger
var gLoggerOnce sync.Once

func initLogger() {
	if !flag.Parsed() {
		panic("initLogger called before flags available.")
	}

	var writer io.Writer = ioutil.Discard
	if *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gLogger = log.New(writer, "taskrt: ", flags)
}

func getLogger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// TaskEvent names a point in a task's lifecycle at which the process-global
// debug hook installed with SetTaskEventHandler, if any, is invoked.
type TaskEvent int

const (
	// PreStart fires once a fiber has taken its freshly-assigned
	// TaskFuncInfo and marked itself running.
	PreStart TaskEvent = iota
	// PostStart fires immediately after PreStart, just before the
	// event-loop-running check.
	PostStart
	// Start fires immediately before the task function is invoked.
	Start
	// Yield fires each time Context.Yield enqueues the task and suspends
	// it.
	Yield
	// Resume fires when a previously yielded or hibernated task is about
	// to run again.
	Resume
	// End fires when a task function returns normally or ends by
	// panicking with *InterruptException.
	End
	// Fail fires when a task function panics with anything other than
	// *InterruptException.
	Fail
)

func (e TaskEvent) String() string {
	switch e {
	case PreStart:
		return "PreStart"
	case PostStart:
		return "PostStart"
	case Start:
		return "Start"
	case Yield:
		return "Yield"
	case Resume:
		return "Resume"
	case End:
		return "End"
	case Fail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// taskEventHandler is a process-global nothrow callback invoked at each
// TaskEvent, for optional debug instrumentation. It is stored behind an
// atomic.Value so installing it races safely with fibers emitting events.
var taskEventHandler atomic.Value // func(TaskEvent, Task)

// SetTaskEventHandler installs a process-global callback invoked whenever
// a task crosses one of the lifecycle points named by TaskEvent. The
// callback must not panic and must not block; it is called synchronously
// on the fiber's own goroutine. Pass nil to remove a previously installed
// handler.
func SetTaskEventHandler(fn func(TaskEvent, Task)) {
	if fn == nil {
		taskEventHandler.Store(func(TaskEvent, Task) {})
		return
	}
	taskEventHandler.Store(fn)
}

func emitEvent(evt TaskEvent, t Task) {
	if v := taskEventHandler.Load(); v != nil {
		if fn, ok := v.(func(TaskEvent, Task)); ok {
			fn(evt, t)
		}
	}
}

func init() {
	taskEventHandler.Store(func(TaskEvent, Task) {})
}
