// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import (
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
	"code.hybscloud.com/upe/internal"
	"golang.org/x/sys/unix"
)

// PacketBuffer is a single MTU-sized frame slot. It is owned by
// exactly one party at a time; see the package doc for the ownership
// lifecycle. Len is the number of valid bytes in Data; a buffer on the
// free stack always has Len == 0.
type PacketBuffer struct {
	Data     [BufferSize]byte
	Len      int
	RxCycles uint64
}

// noFreeHandle is returned by ThreadCache.Alloc when both the caller's
// thread cache and the global stack are empty.
const noFreeHandle = ^uint32(0)

// Pool is a lock-free, bounded pool of PacketBuffer slots backed by a
// single contiguous region. Construction attempts huge pages first,
// falls back to an anonymous mapping, and finally to a plain heap
// slice; in every case exactly capacity distinct buffer handles exist
// for the lifetime of the Pool.
//
// Pool itself only owns the backing region and the global free stack;
// per-thread caching is provided by ThreadCache, obtained via
// Pool.NewCache. The Pool must not be destroyed while any ThreadCache
// obtained from it is still in use by a running goroutine/thread.
type Pool struct {
	_ noCopy

	region   []PacketBuffer
	mapping  []byte // non-nil when region backs onto an mmap'd mapping
	free     []uint32
	capacity uint32

	// top is CAS'd by every popBulk/pushBulk call from every worker; it
	// gets its own cache line so contention on it never false-shares
	// with the read-mostly fields above.
	_   [internal.CacheLineSize]byte
	top atomic.Uint32
}

// NewPool creates a Pool with the given capacity (rounded up to a
// power of two is not required by the spec's stack algorithm, but
// capacity must be representable in the free-stack's uint32 index
// space). All capacity buffers start on the free stack.
func NewPool(capacity int) (*Pool, error) {
	if capacity < 1 {
		panic("upe: pool capacity must be >= 1")
	}
	n := uint32(capacity)

	region, mapping, err := allocPacketBufferRegion(int(n))
	if err != nil {
		return nil, &FatalError{Op: "pool init", Err: err}
	}

	p := &Pool{
		region:   region,
		mapping:  mapping,
		free:     make([]uint32, n),
		capacity: n,
	}
	for i := range p.free {
		p.free[i] = uint32(i)
	}
	p.top.Store(n)
	return p, nil
}

const sizeofPacketBuffer = int(unsafe.Sizeof(PacketBuffer{}))

// bytesToPacketBuffers reinterprets a raw mapping as a []PacketBuffer
// without copying, mirroring the teacher's AlignedMem-style unsafe
// slice reinterpretation.
func bytesToPacketBuffers(m []byte, n int) []PacketBuffer {
	return unsafe.Slice((*PacketBuffer)(unsafe.Pointer(unsafe.SliceData(m))), n)
}

// allocPacketBufferRegion tries 2 MiB huge pages, then an anonymous
// mapping, then a heap allocation, in that order, per spec §4.1.
func allocPacketBufferRegion(n int) (region []PacketBuffer, mapping []byte, err error) {
	size := n * sizeofPacketBuffer

	if m, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB); err == nil {
		return bytesToPacketBuffers(m, n), m, nil
	}

	if m, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS); err == nil {
		return bytesToPacketBuffers(m, n), m, nil
	}

	return make([]PacketBuffer, n), nil, nil
}

// Cap returns the pool's fixed capacity.
func (p *Pool) Cap() int { return int(p.capacity) }

// Value returns a pointer to the buffer identified by handle. The
// caller must currently own handle (via Alloc or a ring handoff).
func (p *Pool) Value(handle uint32) *PacketBuffer {
	return &p.region[handle]
}

// Close unmaps the pool's backing memory, if any. All ThreadCaches
// and rings referencing this pool's handles must have been drained
// and discarded first; this is a documented precondition, not an
// enforced one.
func (p *Pool) Close() error {
	if p.mapping != nil {
		return unix.Munmap(p.mapping)
	}
	return nil
}

// popBulk pops up to request handles from the global free stack,
// writing them into dst and returning the count obtained. Implements
// the lock-free CAS-loop from spec §4.1: speculative reads of
// slots [new_top, old_top) are only valid once the CAS below commits.
func (p *Pool) popBulk(dst []uint32) (n int) {
	sw := spin.Wait{}
	for {
		top := p.top.Load()
		if top == 0 {
			return 0
		}
		actual := min(int(top), len(dst))
		newTop := top - uint32(actual)
		// Speculative read: only becomes authoritative once the CAS
		// below succeeds without another popper racing us first.
		copy(dst[:actual], p.free[newTop:top])
		if p.top.CompareAndSwap(top, newTop) {
			return actual
		}
		sw.Once()
	}
}

// pushBulk pushes src onto the global free stack, retrying on CAS
// contention. Writes into slots [top, top+len(src)) happen before the
// CAS publishes them, per spec §4.1's push-before-publish ordering.
func (p *Pool) pushBulk(src []uint32) {
	sw := spin.Wait{}
	for {
		top := p.top.Load()
		newTop := top + uint32(len(src))
		copy(p.free[top:newTop], src)
		if p.top.CompareAndSwap(top, newTop) {
			return
		}
		sw.Once()
	}
}

// ThreadCache is a bounded, unsynchronized buffer-handle cache meant
// to be held by exactly one goroutine pinned to one OS thread at a
// time; it is not safe for concurrent use (mirrors the spec's
// "thread-local buffer cache"). Refill and flush are the only
// operations that touch the owning Pool's global stack.
type ThreadCache struct {
	_ noCopy

	pool    *Pool
	handles [ThreadCacheSize]uint32
	count   int
}

// NewCache returns a ThreadCache bound to p.
func (p *Pool) NewCache() *ThreadCache {
	return &ThreadCache{pool: p}
}

// Rebind flushes every cached handle back to the cache's current pool
// and rebinds the cache to pool, per spec §4.1 "switching pools".
func (c *ThreadCache) Rebind(pool *Pool) {
	if c.pool != nil && c.count > 0 {
		c.pool.pushBulk(c.handles[:c.count])
		c.count = 0
	}
	c.pool = pool
}

// Alloc returns a free buffer handle, refilling from the global stack
// in bulk (BulkSize) when the cache is empty. Returns iox.ErrWouldBlock
// when both the cache and the global stack are exhausted; it never
// actually blocks, matching the teacher's non-blocking-mode Get.
func (c *ThreadCache) Alloc() (handle uint32, err error) {
	if c.count == 0 {
		c.count = c.pool.popBulk(c.handles[:BulkSize])
		if c.count == 0 {
			return noFreeHandle, iox.ErrWouldBlock
		}
	}
	c.count--
	return c.handles[c.count], nil
}

// Free returns handle to the cache, flushing BulkSize handles to the
// global stack in bulk when the cache is full.
func (c *ThreadCache) Free(handle uint32) {
	if c.count == ThreadCacheSize {
		c.pool.pushBulk(c.handles[ThreadCacheSize-BulkSize:])
		c.count -= BulkSize
	}
	c.handles[c.count] = handle
	c.count++
}
