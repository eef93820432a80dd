// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import (
	"sync/atomic"
	"time"
)

// pollTimeout bounds how long the capture thread blocks per poll,
// which in turn bounds how stale a staged-but-unflushed batch can get.
const pollTimeout = time.Millisecond

// Capture is the interface the core consumes for frame ingestion; its
// concrete implementation (pcap, AF_PACKET, ...) lives outside the
// core per spec §1/§6.
type Capture interface {
	// ReadPacket blocks for up to timeout and returns the captured
	// frame bytes (valid only until the next call) and its capture
	// timestamp in RxCycles units. ok is false on timeout or, for an
	// offline capture, end of file.
	ReadPacket(timeout time.Duration) (data []byte, rxCycles uint64, ok bool)
	Close() error
}

// Dispatcher owns every Pool allocation on the RX side: it reads
// frames from a Capture, copies them into pool buffers, computes an
// RSS ring index (or round-robins on parse failure), and batches
// buffer handles into per-ring staging arrays before burst-pushing
// them to worker rings. See spec §4.7.
type Dispatcher struct {
	capture Capture
	cache   *ThreadCache
	rings   []*Ring[uint32]
	ringMask uint32

	rrCounter uint32
	staging   [][]uint32 // len(staging) == len(rings), cap BurstSize each
}

// NewDispatcher builds a Dispatcher over capture, allocating buffers
// from pool, fanning out across rings. len(rings) must be a power of
// two.
func NewDispatcher(capture Capture, pool *Pool, rings []*Ring[uint32]) *Dispatcher {
	n := len(rings)
	if n == 0 || n&(n-1) != 0 {
		panic("upe: ring_count must be a power of two")
	}
	staging := make([][]uint32, n)
	for i := range staging {
		staging[i] = make([]uint32, 0, BurstSize)
	}
	return &Dispatcher{
		capture:  capture,
		cache:    pool.NewCache(),
		rings:    rings,
		ringMask: uint32(n - 1),
		staging:  staging,
	}
}

// Run drives the capture/dispatch loop until stop reports true and no
// more frames are available. It owns capture and does not close it.
func (d *Dispatcher) Run(stop *atomic.Bool) {
	for {
		data, rxCycles, ok := d.capture.ReadPacket(pollTimeout)
		if ok {
			d.dispatchOne(data, rxCycles)
		}
		d.flushStaging()
		if !ok && stop.Load() {
			return
		}
	}
}

// dispatchOne implements the per-frame steps of spec §4.7.
func (d *Dispatcher) dispatchOne(data []byte, rxCycles uint64) {
	if len(data) > BufferSize {
		return // dropped: exceeds buffer capacity
	}
	handle, err := d.cache.Alloc()
	if err != nil {
		return // dropped: pool exhausted
	}

	buf := d.poolValue(handle)
	buf.Len = copy(buf.Data[:], data)
	buf.RxCycles = rxCycles

	ringIdx := d.ringIndex(buf.Data[:buf.Len])
	d.stage(ringIdx, handle)
}

func (d *Dispatcher) poolValue(handle uint32) *PacketBuffer {
	return d.cache.pool.Value(handle)
}

func (d *Dispatcher) ringIndex(frame []byte) uint32 {
	if key, ok := ParseFlowKey(frame); ok {
		return HashFlowKey(key) & d.ringMask
	}
	idx := atomic.AddUint32(&d.rrCounter, 1) - 1
	return idx & d.ringMask
}

// stage appends handle to ring ringIdx's staging batch, flushing
// immediately at BurstSize and freeing handle if the ring is full.
func (d *Dispatcher) stage(ringIdx uint32, handle uint32) {
	batch := append(d.staging[ringIdx], handle)
	if len(batch) == BurstSize {
		d.flushOne(ringIdx, batch)
		batch = d.staging[ringIdx][:0]
	}
	d.staging[ringIdx] = batch
}

func (d *Dispatcher) flushStaging() {
	for i, batch := range d.staging {
		if len(batch) > 0 {
			d.flushOne(uint32(i), batch)
			d.staging[i] = batch[:0]
		}
	}
}

// flushOne burst-pushes batch to its ring, freeing any handles that
// do not fit (ring full) back to the pool.
func (d *Dispatcher) flushOne(ringIdx uint32, batch []uint32) {
	n := d.rings[ringIdx].PushBurst(batch)
	for _, h := range batch[n:] {
		d.cache.Free(h)
	}
}
