// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package taskrt

import "fmt"

// InterruptException is raised inside a task's goroutine when the task
// observes a pending interrupt at a cooperative suspension point (yield,
// and anything that proxies through handle_interrupt). It is an ordinary
// catchable condition from the task's point of view: a task may recover
// it, run cleanup, and either exit or clear the condition and continue.
type InterruptException struct {
	// Task is the handle of the task that was interrupted.
	Task Task
}

func (e *InterruptException) Error() string {
	return fmt.Sprintf("task %s interrupted", e.Task.DebugID())
}

// ContractViolation indicates that calling code broke one of this
// package's preconditions: interrupting a task that belongs to a
// different scheduler, self-interrupting, spawning with an oversized
// argument, or leaving a foreign node in the scheduler's run queue.
// These are programming errors, not runtime conditions a task can
// recover from; they panic rather than returning an error. (Misaligned
// fiber-local storage and intrusive-queue misuse are rejected inside
// internal/fls and internal/fiberqueue with plain string panics.)
type ContractViolation struct {
	Msg string
}

func (e *ContractViolation) Error() string {
	return "taskrt: contract violation: " + e.Msg
}

// violate panics with a *ContractViolation built from format and args.
func violate(format string, args ...interface{}) {
	panic(&ContractViolation{Msg: fmt.Sprintf(format, args...)})
}
