// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "testing"

// TestRingBasics is seed scenario S1: capacity 4, push a,b,c,d (all
// accept), fifth push rejects, pop yields a, push e accepts into the
// freed slot, and the remaining drain yields b,c,d,e.
func TestRingBasics(t *testing.T) {
	r := NewRing[byte](4)

	for _, v := range []byte{'a', 'b', 'c', 'd'} {
		if !r.Push(v) {
			t.Fatalf("push(%c): want accept, got reject", v)
		}
	}
	if r.Push('x') {
		t.Fatal("fifth push: want reject, got accept")
	}

	v, ok := r.Pop()
	if !ok || v != 'a' {
		t.Fatalf("pop: got (%c, %v), want ('a', true)", v, ok)
	}

	if !r.Push('e') {
		t.Fatal("push('e') after a pop: want accept")
	}

	want := []byte{'b', 'c', 'd', 'e'}
	for _, w := range want {
		v, ok := r.Pop()
		if !ok || v != w {
			t.Fatalf("drain: got (%c, %v), want (%c, true)", v, ok, w)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop after drain: want empty")
	}
}

func TestRingNewPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewRing(3): want panic, got none")
		}
	}()
	NewRing[int](3)
}

func TestRingBurst(t *testing.T) {
	r := NewRing[int](8)
	in := []int{1, 2, 3, 4, 5}
	if n := r.PushBurst(in); n != 5 {
		t.Fatalf("PushBurst: got %d, want 5", n)
	}
	out := make([]int, 3)
	if n := r.PopBurst(out); n != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("PopBurst: got n=%d out=%v", n, out)
	}
	out2 := make([]int, 4)
	if n := r.PopBurst(out2); n != 2 || out2[0] != 4 || out2[1] != 5 {
		t.Fatalf("PopBurst remainder: got n=%d out=%v", n, out2)
	}
}
