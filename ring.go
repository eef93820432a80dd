// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "sync/atomic"

// Ring is a bounded single-producer/single-consumer ring of handles.
// Capacity must be a power of two. Exactly one goroutine may call
// Push/PushBurst; exactly one (possibly different) goroutine may call
// Pop/PopBurst. Ring is generic over the handed-off element type
// rather than an untyped pointer, per the spec's design notes, so the
// compiler enforces that only buffer handles (or whatever T the
// instantiation picks) cross the ring.
type Ring[T any] struct {
	_ noCopy

	slots []T
	mask  uint64

	head atomic.Uint64 // producer-owned
	tail atomic.Uint64 // consumer-owned
}

// NewRing creates a Ring with the given power-of-two capacity.
// It panics if capacity is not a power of two, per spec §4.2's "init
// rejects otherwise".
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("upe: ring capacity must be a power of two")
	}
	return &Ring[T]{
		slots: make([]T, capacity),
		mask:  uint64(capacity - 1),
	}
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.slots) }

// Push is a single-element convenience wrapper around PushBurst.
func (r *Ring[T]) Push(v T) bool {
	buf := [1]T{v}
	return r.PushBurst(buf[:]) == 1
}

// PushBurst writes as many of vs as fit and returns the count
// actually written (0 if the ring is full). Producer-only.
func (r *Ring[T]) PushBurst(vs []T) int {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: synchronizes with the consumer's release-store
	available := int(uint64(len(r.slots)) - (head - tail))
	n := min(available, len(vs))
	for i := 0; i < n; i++ {
		r.slots[(head+uint64(i))&r.mask] = vs[i]
	}
	if n > 0 {
		r.head.Store(head + uint64(n)) // release: publishes the writes above
	}
	return n
}

// Pop is a single-element convenience wrapper around PopBurst.
func (r *Ring[T]) Pop() (v T, ok bool) {
	var buf [1]T
	if r.PopBurst(buf[:]) == 1 {
		return buf[0], true
	}
	return v, false
}

// PopBurst reads up to len(dst) entries into dst and returns the
// count actually read (0 if the ring is empty). Consumer-only.
func (r *Ring[T]) PopBurst(dst []T) int {
	tail := r.tail.Load()
	head := r.head.Load() // acquire: synchronizes with the producer's release-store
	entries := int(head - tail)
	n := min(entries, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = r.slots[(tail+uint64(i))&r.mask]
	}
	if n > 0 {
		r.tail.Store(tail + uint64(n)) // release
	}
	return n
}
