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

package fls_test

import (
	"testing"

	"github.com/jacobsa/taskrt/internal/fls"
)

func TestIsolationAcrossFibers(t *testing.T) {
	name := fls.NewTaskLocalWithInitial("init")

	var a, b fls.Store

	pa := name.Get(&a)
	pb := name.Get(&b)

	*pa = "alice"
	*pb = "bob"

	if got := *name.Get(&a); got != "alice" {
		t.Errorf("fiber a's value = %q, want %q", got, "alice")
	}
	if got := *name.Get(&b); got != "bob" {
		t.Errorf("fiber b's value = %q, want %q", got, "bob")
	}
}

func TestLazyInitialValue(t *testing.T) {
	counter := fls.NewTaskLocalWithInitial(42)

	var s fls.Store
	p := counter.Get(&s)
	if *p != 42 {
		t.Fatalf("initial value = %d, want 42", *p)
	}

	*p += 1
	if got := *counter.Get(&s); got != 43 {
		t.Errorf("value after mutation = %d, want 43", got)
	}
}

func TestDefaultConstructionWithoutInitial(t *testing.T) {
	var s fls.Store
	v := fls.NewTaskLocal[int]()

	if got := *v.Get(&s); got != 0 {
		t.Errorf("default value = %d, want 0", got)
	}
}

func TestDestroyZeroesPointerTypes(t *testing.T) {
	type box struct{ s string }

	v := fls.NewTaskLocalWithInitial(&box{s: "hello"})

	var s fls.Store
	p := v.Get(&s)
	if (*p).s != "hello" {
		t.Fatalf("got %+v", *p)
	}

	s.Destroy()

	// After Destroy, the slot holding a pointer-bearing type must have
	// been zeroed so it cannot keep the old value alive as a false GC
	// root; the next access re-runs the initializer.
	if *p != nil {
		t.Fatalf("after Destroy, slot still holds %+v, want nil", *p)
	}
	p2 := v.Get(&s)
	if (*p2).s != "hello" {
		t.Fatalf("after Destroy + re-access, got %+v, want re-initialized value", *p2)
	}
}

func TestRegisterAcceptsAlignmentEight(t *testing.T) {
	id, offset := fls.Register(8, 8, nil)

	if id < 0 {
		t.Errorf("id = %d, want non-negative", id)
	}
	if offset%8 != 0 {
		t.Errorf("offset = %d, want 8-byte aligned", offset)
	}
}

func TestRegisterRejectsAlignmentSixteen(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected Register to panic on 16-byte alignment")
		}
	}()

	fls.Register(16, 16, nil)
}

func TestOffsetsAreStableAndDisjoint(t *testing.T) {
	idA, offA := fls.Register(3, 1, nil)
	idB, offB := fls.Register(8, 8, nil)

	if idB != idA+1 {
		t.Errorf("ids not monotonic: %d then %d", idA, idB)
	}
	if offB < offA+8 {
		t.Errorf("offsets overlap: %d (3 bytes, padded) then %d", offA, offB)
	}
	if offB%8 != 0 {
		t.Errorf("offset %d not 8-byte aligned", offB)
	}
}

func TestMultipleVariablesDoNotAlias(t *testing.T) {
	a := fls.NewTaskLocalWithInitial("a-value")
	b := fls.NewTaskLocalWithInitial(7)

	var s fls.Store
	pa := a.Get(&s)
	pb := b.Get(&s)

	if *pa != "a-value" {
		t.Errorf("pa = %q, want a-value", *pa)
	}
	if *pb != 7 {
		t.Errorf("pb = %d, want 7", *pb)
	}
}
