// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package upe implements the datapath of a userspace packet engine: a
// multi-threaded L2/L3 switch/filter that classifies Ethernet frames
// against a priority-ordered rule table, optionally rewrites them for
// forwarding, and batches them onto an egress interface.
//
// # Datapath
//
// The datapath is formed by five pieces, wired together by the caller
// (typically cmd/upe-engine):
//
//	Pool        lock-free, thread-cached fixed-size packet buffer pool
//	Ring[T]     bounded SPSC ring of buffer handles
//	ParseFlowKey / HashFlowKey    zero-copy 5-tuple extraction + symmetric RSS
//	RuleTable   priority-ordered linear classifier
//	NeighborTable   ARP/NDP IP->MAC learning with a per-worker L1 cache
//
// A single capture goroutine (Dispatcher) owns every Pool allocation
// on the RX side and hands buffer handles to worker rings; Worker
// goroutines own the rest of a packet's lifetime: parse, classify,
// rewrite and batch-transmit or drop, then free the buffer back to the
// Pool.
//
// # Buffer ownership
//
// A buffer handle moves through exactly one owner at a time: Pool ->
// Dispatcher -> one Ring slot -> one Worker -> either Pool (drop) or a
// worker's pending TX batch -> Pool (after egress). No two goroutines
// ever hold the same handle concurrently; Ring and Pool use
// acquire/release atomics to make that handoff safe without a mutex.
//
// # Dependencies
//
// upe depends on:
//   - code.hybscloud.com/iox: semantic error types (ErrWouldBlock)
//   - code.hybscloud.com/spin: spin-wait primitives for the pool's CAS retry loop
//   - golang.org/x/sys/unix: huge-page/anonymous mmap
//
// Its subpackages add:
//   - capture/pcapio: github.com/google/gopacket/pcap for live/offline
//     frame capture, golang.org/x/sys/unix for AF_PACKET raw sockets
//   - enginelog: github.com/joeycumines/logiface + stumpy for structured
//     logging, github.com/agilira/lethe for rotating log files
package upe
