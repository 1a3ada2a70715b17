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

import "github.com/jacobsa/taskrt/internal/fls"

// NewTaskLocal returns a fiber-local variable of type T. Each fiber sees
// its own instance, default-constructed (T's zero value) on first access
// within each task instance and torn down when that task ends. Access it
// with Get(ctx.Fiber().FLS()), or with Get(taskrt.DummyFiber().FLS())
// from code running outside any task.
//
// The variable's storage offset is assigned process-wide the first time
// it is accessed on any fiber, and is permanent from then on. T's
// alignment must be no greater than 8.
func NewTaskLocal[T any]() *fls.TaskLocal[T] {
	return fls.NewTaskLocal[T]()
}

// NewTaskLocalWithInitial behaves like NewTaskLocal, but each fiber's
// first access within a task instance copies initial rather than using
// T's zero value.
func NewTaskLocalWithInitial[T any](initial T) *fls.TaskLocal[T] {
	return fls.NewTaskLocalWithInitial(initial)
}
