// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import (
	"encoding/binary"
	"sync/atomic"
	"time"
)

// workerIdleSleep is how long a worker sleeps when its ring is empty
// and the stop flag is not yet set, to avoid burning CPU.
const workerIdleSleep = time.Microsecond

const (
	icmpv6TypeNeighborSolicit    = 135
	icmpv6TypeNeighborAdvertise  = 136
	ndpOptSourceLinkLayerAddr    = 1
	ndpOptTargetLinkLayerAddr    = 2
)

// RuleStat is a worker-private, unsynchronized per-rule counter.
// Aggregation across workers reads a Snapshot without synchronization
// and tolerates mildly stale values by design (spec §5).
type RuleStat struct {
	Packets uint64
	Bytes   uint64
}

// Worker runs the per-thread packet processing loop of spec §4.8: it
// owns rxRing as the sole consumer, owns its TX batch state, holds a
// read-only reference to the rule table, and shares the neighbor
// tables, which it reads when forwarding and updates when learning
// from ARP/NDP control packets.
type Worker struct {
	id      int
	rxRing  *Ring[uint32]
	cache   *ThreadCache
	rules   *RuleTable
	arp     *NeighborTable
	ndp     *NeighborTable
	tx      FrameSender
	ownMAC  MACAddr

	l1ARP L1Cache
	l1NDP L1Cache

	ruleStats []RuleStat

	pktsIn        uint64
	pktsDropped   uint64
	pktsForwarded uint64

	txFrames  [][]byte
	txLens    []int
	txHandles []uint32
}

// NewWorker builds a Worker. rules must already be frozen.
func NewWorker(id int, rxRing *Ring[uint32], pool *Pool, rules *RuleTable, arp, ndp *NeighborTable, tx FrameSender, ownMAC MACAddr) *Worker {
	return &Worker{
		id:        id,
		rxRing:    rxRing,
		cache:     pool.NewCache(),
		rules:     rules,
		arp:       arp,
		ndp:       ndp,
		tx:        tx,
		ownMAC:    ownMAC,
		ruleStats: make([]RuleStat, rules.Len()),
		txFrames:  make([][]byte, 0, BurstSize),
		txLens:    make([]int, 0, BurstSize),
		txHandles: make([]uint32, 0, BurstSize),
	}
}

// Snapshot returns a copy of the worker's per-rule counters, safe to
// read without synchronization with the worker loop per spec §5.
func (w *Worker) Snapshot() []RuleStat {
	out := make([]RuleStat, len(w.ruleStats))
	copy(out, w.ruleStats)
	return out
}

// Run is the BURST_WAIT/PROCESS/DRAIN_TX state machine of spec §4.8.
// It returns once stop is set and the ring has drained to empty.
func (w *Worker) Run(stop *atomic.Bool) {
	burst := make([]uint32, BurstSize)
	for {
		n := w.rxRing.PopBurst(burst)
		if n == 0 {
			if stop.Load() {
				return
			}
			time.Sleep(workerIdleSleep)
			continue
		}
		w.pktsIn += uint64(n)
		for i := 0; i < n; i++ {
			w.processOne(burst[i])
		}
		w.drainTX()
	}
}

// processOne runs the per-packet sub-state machine of spec §4.8.
func (w *Worker) processOne(handle uint32) {
	buf := w.cache.pool.Value(handle)
	frame := buf.Data[:buf.Len]

	if len(frame) < ethHeaderLen {
		w.dropHandle(handle)
		return
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])

	if etherType == EtherTypeARP {
		w.handleARP(frame)
		w.cache.Free(handle)
		return
	}
	if etherType == EtherTypeIPv6 && w.handleNDP(frame) {
		w.cache.Free(handle)
		return
	}

	key, ok := ParseFlowKey(frame)
	if !ok {
		w.dropHandle(handle)
		return
	}
	rule := w.rules.Match(&key)
	if rule == nil {
		w.dropHandle(handle)
		return
	}
	if int(rule.RuleID) < len(w.ruleStats) {
		w.ruleStats[rule.RuleID].Packets++
		w.ruleStats[rule.RuleID].Bytes += uint64(buf.Len)
	}

	switch rule.Action.Type {
	case ActionDrop:
		w.dropHandle(handle)
	case ActionFwd:
		w.forward(handle, buf, &key)
	default:
		w.dropHandle(handle)
	}
}

func (w *Worker) dropHandle(handle uint32) {
	w.cache.Free(handle)
	w.pktsDropped++
}

// handleARP validates and learns from an Ethernet/IPv4 ARP packet
// (spec §4.8 sub-state 1). Malformed packets are ignored without
// learning.
func (w *Worker) handleARP(frame []byte) {
	const arpBodyLen = 28
	if len(frame) < ethHeaderLen+arpBodyLen {
		return
	}
	body := frame[ethHeaderLen:]
	hwType := binary.BigEndian.Uint16(body[0:2])
	protoType := binary.BigEndian.Uint16(body[2:4])
	hlen, plen := body[4], body[5]
	if hwType != 1 || protoType != EtherTypeIPv4 || hlen != 6 || plen != 4 {
		return
	}
	senderMAC := macFrom(body[8:14])
	senderIP := IPv4Addr(body[14:18])
	w.arp.Update(senderIP, senderMAC)
}

// handleNDP inspects frame for an ICMPv6 Neighbor Solicitation or
// Advertisement and, if found, walks its TLV options and learns the
// advertised link-layer address (spec §4.8 sub-state 2). It returns
// true iff frame was a recognized NDP control packet, regardless of
// whether any option yielded a learnable address.
func (w *Worker) handleNDP(frame []byte) bool {
	const icmpHdrLen = 24 // type+code+checksum(4) + reserved/flags(4) + target(16)
	ip6 := frame[ethHeaderLen:]
	if len(ip6) < 40 || ip6[6] != ProtoICMPv6 {
		return false
	}
	icmp := ip6[40:]
	if len(icmp) < icmpHdrLen {
		return false
	}
	icmpType := icmp[0]
	if icmpType != icmpv6TypeNeighborSolicit && icmpType != icmpv6TypeNeighborAdvertise {
		return false
	}

	srcIP := IPv6Addr(ip6[8:24])
	target := IPv6Addr(icmp[8:24])
	options := icmp[icmpHdrLen:]

	for len(options) >= 8 {
		optType := options[0]
		optLen8 := int(options[1])
		if optLen8 == 0 {
			break
		}
		total := optLen8 * 8
		if total > len(options) {
			break
		}
		mac := macFrom(options[2:8])
		switch {
		case icmpType == icmpv6TypeNeighborSolicit && optType == ndpOptSourceLinkLayerAddr:
			w.ndp.Update(srcIP, mac)
		case icmpType == icmpv6TypeNeighborAdvertise && optType == ndpOptTargetLinkLayerAddr:
			w.ndp.Update(target, mac)
		}
		options = options[total:]
	}
	return true
}

func macFrom(b []byte) MACAddr {
	var m MACAddr
	copy(m[:], b)
	return m
}

// forward performs the L3 rewrite and TX-batch accumulation of spec
// §4.8's FWD action. The buffer is not freed here; DRAIN_TX frees it
// after the send.
func (w *Worker) forward(handle uint32, buf *PacketBuffer, key *FlowKey) {
	frame := buf.Data[:buf.Len]
	l3 := frame[ethHeaderLen:]

	if key.IPVer == 4 {
		if l3[8] <= 1 {
			w.dropHandle(handle)
			return
		}
		l3[8]--
		ihl := int(l3[0]&0x0F) * 4
		l3[10], l3[11] = 0, 0
		binary.BigEndian.PutUint16(l3[10:12], IPv4Checksum(l3[:ihl]))
	} else {
		if l3[7] <= 1 {
			w.dropHandle(handle)
			return
		}
		l3[7]--
	}

	var (
		mac MACAddr
		ok  bool
	)
	if key.IPVer == 4 {
		mac, ok = w.l1ARP.Lookup(w.arp, 4, key.DstIP)
	} else {
		mac, ok = w.l1NDP.Lookup(w.ndp, 6, key.DstIP)
	}
	if ok {
		copy(frame[0:6], mac[:])
		copy(frame[6:12], w.ownMAC[:])
	}

	w.txFrames = append(w.txFrames, frame)
	w.txLens = append(w.txLens, len(frame))
	w.txHandles = append(w.txHandles, handle)
}

// drainTX implements DRAIN_TX: emit the accumulated batch in a single
// send-batch call, credit successes/shortfall, and free every batched
// buffer regardless of per-frame outcome.
func (w *Worker) drainTX() {
	if len(w.txHandles) == 0 {
		return
	}
	accepted := w.tx.SendBatch(w.txFrames, w.txLens)
	for i, h := range w.txHandles {
		if i < accepted {
			w.pktsForwarded++
		} else {
			w.pktsDropped++
		}
		w.cache.Free(h)
	}
	w.txFrames = w.txFrames[:0]
	w.txLens = w.txLens[:0]
	w.txHandles = w.txHandles[:0]
}
