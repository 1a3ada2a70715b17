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

// Package fls implements fiber-local storage: per-fiber typed storage
// slots addressed by a stable byte offset assigned the first time each
// TaskLocal[T] is used, allocated lazily per fiber and destroyed per
// task instance.
//
// The storage discipline mirrors the unsafe, pointer-arithmetic style of
// github.com/jacobsa/fuse's internal/buffer package: a single growable
// byte slice is addressed with unsafe.Pointer rather than boxed per
// variable, so that registering many fiber-local variables does not cost
// one heap allocation each.
package fls

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

const maxAlign = 8

// destructor tears down the value previously constructed in storage (its
// own offset is baked into the closure by the caller that built it).
// The implementation TaskLocal registers zeroes T's slot; it registers
// one only for types that typeNeedsDestructor reports as holding
// pointers.
type destructor func(storage []byte)

// registry is the process-wide FLS registration table: fill is the
// number of bytes reserved so far (8-byte aligned after each entry),
// counter is the number of variables registered, and info holds each
// variable's destructor (nil for trivially-destructible types).
type registry struct {
	mu      sync.Mutex
	fill    int
	counter int
	info    []destructor
}

var global registry

// Register reserves storage for one fiber-local variable of the given
// size and alignment, and records its destructor (which may be nil for
// trivially destructible types). It returns the variable's id and its
// fixed byte offset within every fiber's storage slice. Both are
// permanent for the lifetime of the process.
//
// align must be no greater than 8; Register panics otherwise.
func Register(size, align int, destruct destructor) (id, offset int) {
	if align > maxAlign {
		panic(fmt.Sprintf("fls: alignment %d exceeds maximum of %d", align, maxAlign))
	}
	if align <= 0 {
		align = 1
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	offset = roundUp(global.fill, 8)
	global.fill = roundUp(offset+size, 8)

	id = global.counter
	global.counter++
	global.info = append(global.info, destruct)

	return
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return n + (multiple - n%multiple)
}

func fillAndCount() (fill, count int) {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.fill, global.counter
}

func destructorFor(id int) destructor {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.info[id]
}

// bitset is a minimal growable bit vector used to track which fiber-local
// slots have been lazily initialized on a particular fiber.
type bitset []uint64

func (b *bitset) ensure(nbits int) {
	need := (nbits + 63) / 64
	for len(*b) < need {
		*b = append(*b, 0)
	}
}

func (b bitset) get(i int) bool {
	return b[i/64]&(1<<uint(i%64)) != 0
}

func (b bitset) set(i int, v bool) {
	if v {
		b[i/64] |= 1 << uint(i%64)
	} else {
		b[i/64] &^= 1 << uint(i%64)
	}
}

// Store is the per-fiber half of fiber-local storage: a growable byte
// slice plus a parallel bitset of which slots have been initialized for
// the current task instance. The zero value is ready to use.
type Store struct {
	storage []byte
	init    bitset
}

// ensureCapacity grows s.storage and s.init to cover the current global
// fill/counter, with slack (128 bytes, 64 bits) so that a burst of new
// registrations does not force a reallocation per variable. It must be
// called with the calling fiber's exclusive access already established
// (FLS is only ever touched by the fiber that owns it).
func (s *Store) ensureCapacity() {
	fill, count := fillAndCount()

	if len(s.storage) < fill {
		grown := make([]byte, fill+128)
		copy(grown, s.storage)
		s.storage = grown
	}

	s.init.ensure(count + 64)
}

// slot returns a pointer to the byte at offset within s's storage,
// growing storage first if necessary.
func (s *Store) slot(offset int) unsafe.Pointer {
	s.ensureCapacity()
	return unsafe.Pointer(&s.storage[offset])
}

// initialized reports whether the variable with the given id has been
// constructed for the current task instance on this fiber.
func (s *Store) initialized(id int) bool {
	s.ensureCapacity()
	return s.init.get(id)
}

// markInitialized records that the variable with the given id has now
// been constructed for the current task instance.
func (s *Store) markInitialized(id int) {
	s.ensureCapacity()
	s.init.set(id, true)
}

// Destroy runs the destructor for every initialized slot and clears the
// initialized bits. Storage bytes themselves are retained for reuse by
// the next task instance on this fiber.
func (s *Store) Destroy() {
	_, count := fillAndCount()
	s.init.ensure(count + 64)

	for id := 0; id < count; id++ {
		if !s.init.get(id) {
			continue
		}
		if d := destructorFor(id); d != nil {
			d(s.storage)
		}
		s.init.set(id, false)
	}
}

// TaskLocal is a fiber-local variable of type T. The zero value lazily
// registers itself, process-wide, the first time Get is called on any
// fiber; id and offset are then permanent.
//
// T's alignment must be no more than 8; Register enforces this.
type TaskLocal[T any] struct {
	once    sync.Once
	id      int
	offset  int
	initial T
	hasInit bool
}

// NewTaskLocal creates a TaskLocal[T] with no explicit initial value;
// first access on each fiber default-constructs T (T's zero value).
func NewTaskLocal[T any]() *TaskLocal[T] {
	return &TaskLocal[T]{}
}

// NewTaskLocalWithInitial creates a TaskLocal[T] whose first access on
// each fiber copies initial rather than using T's zero value.
func NewTaskLocalWithInitial[T any](initial T) *TaskLocal[T] {
	return &TaskLocal[T]{initial: initial, hasInit: true}
}

func (tl *TaskLocal[T]) register() {
	tl.once.Do(func() {
		var zero T
		size := int(unsafe.Sizeof(zero))
		align := int(unsafe.Alignof(zero))

		needsDestruct := typeNeedsDestructor[T]()
		var d destructor
		if needsDestruct {
			d = func(storage []byte) {
				p := (*T)(unsafe.Pointer(&storage[tl.offset]))
				var zero T
				*p = zero
			}
		}

		tl.id, tl.offset = Register(size, align, d)
	})
}

// typeNeedsDestructor decides whether a slot must be torn down when its
// task ends. Go has no user-defined destructors, so any type that
// contains a pointer, slice, map, chan, interface, or string anywhere
// in its layout is treated as needing its slot zeroed on task end, so a
// recycled fiber's retained storage cannot keep the old value alive as
// a false GC root.
func typeNeedsDestructor[T any]() bool {
	var v T
	return containsPointer(reflect.TypeOf(&v).Elem())
}

// containsPointer reports whether t's layout holds anything the garbage
// collector must scan: pointers, slices, maps, channels, functions,
// interfaces, or strings (which hold a data pointer). Structs and arrays
// are inspected field-by-field / element-wise.
func containsPointer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.String, reflect.UnsafePointer:
		return true
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if containsPointer(t.Field(i).Type) {
				return true
			}
		}
		return false
	case reflect.Array:
		return t.Len() > 0 && containsPointer(t.Elem())
	default:
		return false
	}
}

// Get returns a pointer to this fiber's instance of T, lazily
// constructing it (using the configured initial value, if any) on first
// access within the current task instance.
func (tl *TaskLocal[T]) Get(s *Store) *T {
	tl.register()

	p := (*T)(s.slot(tl.offset))
	if !s.initialized(tl.id) {
		if tl.hasInit {
			*p = tl.initial
		} else {
			var zero T
			*p = zero
		}
		s.markInitialized(tl.id)
	}
	return p
}
