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

// Package taskrt is the scheduling core of a cooperative, fiber-based task
// runtime. It multiplexes many lightweight tasks onto a single goroutine by
// suspending and resuming reusable TaskFibers around an externally supplied
// EventDriver.
//
// The primary elements of interest are:
//
//   - TaskScheduler, which owns the run queue and drives task execution.
//
//   - TaskFiber and Task, the reusable execution context and the
//     generation-guarded handle to it.
//
//   - Spawn and SpawnArg, which create and schedule a new task.
//
//   - NewTaskLocal and NewTaskLocalWithInitial, for per-task local
//     storage with stable offsets and per-instance teardown.
//
// This package does not include an event driver, an I/O multiplexer, or
// timers; those are the responsibility of the evented I/O framework that
// embeds this scheduler. See EventDriver for the contract this package
// expects from that collaborator.
package taskrt
