// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import (
	"encoding/binary"
	"testing"
)

// fakeSender records every batch handed to SendBatch and accepts all
// of it, unless capped via accept.
type fakeSender struct {
	batches [][][]byte
	accept  int // -1 means accept everything
}

func (s *fakeSender) SendBatch(frames [][]byte, lengths []int) int {
	cp := make([][]byte, len(frames))
	for i, f := range frames {
		b := make([]byte, lengths[i])
		copy(b, f[:lengths[i]])
		cp[i] = b
	}
	s.batches = append(s.batches, cp)
	if s.accept < 0 || s.accept > len(frames) {
		return len(frames)
	}
	return s.accept
}

func (s *fakeSender) Close() error { return nil }

func newTestWorker(t *testing.T, rules *RuleTable, sender FrameSender) (*Worker, *Pool, *ThreadCache) {
	t.Helper()
	pool, err := NewPool(16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	arp := NewNeighborTable(4, 8)
	ndp := NewNeighborTable(6, 8)
	ring := NewRing[uint32](16)
	w := NewWorker(0, ring, pool, rules, arp, ndp, sender, MACAddr{0xDE, 0xAD, 0xBE, 0xEF, 0, 1})
	return w, pool, pool.NewCache()
}

func allocFrame(t *testing.T, pool *Pool, cache *ThreadCache, data []byte) uint32 {
	t.Helper()
	h, err := cache.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	buf := pool.Value(h)
	buf.Len = copy(buf.Data[:], data)
	return h
}

func dropAllRules() *RuleTable {
	rt := NewRuleTable()
	rt.Add(Rule{Action: Action{Type: ActionDrop}})
	rt.Freeze()
	return rt
}

func TestWorkerDropsOnMatchingDropRule(t *testing.T) {
	rules := dropAllRules()
	sender := &fakeSender{accept: -1}
	w, pool, cache := newTestWorker(t, rules, sender)

	frame := udpFrame([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 1, 2)
	h := allocFrame(t, pool, cache, frame)

	w.processOne(h)

	if w.pktsDropped != 1 {
		t.Fatalf("pktsDropped: got %d, want 1", w.pktsDropped)
	}
	if w.ruleStats[0].Packets != 1 {
		t.Fatalf("rule 0 packet count: got %d, want 1", w.ruleStats[0].Packets)
	}
	if len(sender.batches) != 0 {
		t.Fatal("a dropped packet must never reach the sender")
	}
}

func TestWorkerForwardsAndDecrementsTTLAndResolvesMAC(t *testing.T) {
	rt := NewRuleTable()
	rt.Add(Rule{Action: Action{Type: ActionFwd, OutIface: 0}})
	rt.Freeze()

	sender := &fakeSender{accept: -1}
	w, pool, cache := newTestWorker(t, rt, sender)

	dstMAC := MACAddr{1, 2, 3, 4, 5, 6}
	w.arp.Update(IPv4Addr([]byte{10, 0, 0, 2}), dstMAC)

	frame := udpFrame([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 1111, 2222)
	ip := frame[ethHeaderLen:]
	ip[8] = 64 // TTL
	ip[10], ip[11] = 0, 0
	binary.BigEndian.PutUint16(ip[10:12], IPv4Checksum(ip[:20]))

	h := allocFrame(t, pool, cache, frame)
	w.processOne(h)
	w.drainTX()

	if w.pktsForwarded != 1 {
		t.Fatalf("pktsForwarded: got %d, want 1", w.pktsForwarded)
	}
	if len(sender.batches) != 1 || len(sender.batches[0]) != 1 {
		t.Fatalf("expected exactly one batch of one frame, got %v", sender.batches)
	}

	out := sender.batches[0][0]
	outIP := out[ethHeaderLen:]
	if outIP[8] != 63 {
		t.Fatalf("TTL: got %d, want 63", outIP[8])
	}
	if !VerifyIPv4Checksum(outIP[:20]) {
		t.Fatal("outgoing header checksum does not verify")
	}
	var gotMAC MACAddr
	copy(gotMAC[:], out[0:6])
	if gotMAC != dstMAC {
		t.Fatalf("destination MAC: got %v, want %v", gotMAC, dstMAC)
	}
	var gotSrcMAC MACAddr
	copy(gotSrcMAC[:], out[6:12])
	if gotSrcMAC != w.ownMAC {
		t.Fatalf("source MAC: got %v, want own MAC %v", gotSrcMAC, w.ownMAC)
	}
}

func TestWorkerForwardDropsExpiredTTL(t *testing.T) {
	rt := NewRuleTable()
	rt.Add(Rule{Action: Action{Type: ActionFwd}})
	rt.Freeze()

	sender := &fakeSender{accept: -1}
	w, pool, cache := newTestWorker(t, rt, sender)

	frame := udpFrame([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 1, 2)
	frame[ethHeaderLen+8] = 1 // TTL=1, must not be forwarded

	h := allocFrame(t, pool, cache, frame)
	w.processOne(h)

	if w.pktsForwarded != 0 || w.pktsDropped != 1 {
		t.Fatalf("got forwarded=%d dropped=%d, want forwarded=0 dropped=1", w.pktsForwarded, w.pktsDropped)
	}
}

func TestWorkerPartialSendCreditsShortfallAsDropped(t *testing.T) {
	rt := NewRuleTable()
	rt.Add(Rule{Action: Action{Type: ActionFwd}})
	rt.Freeze()

	sender := &fakeSender{accept: 0}
	w, pool, cache := newTestWorker(t, rt, sender)

	frame := udpFrame([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 1, 2)
	frame[ethHeaderLen+8] = 64
	h := allocFrame(t, pool, cache, frame)

	w.processOne(h)
	w.drainTX()

	if w.pktsForwarded != 0 || w.pktsDropped != 1 {
		t.Fatalf("got forwarded=%d dropped=%d, want forwarded=0 dropped=1 on a rejected send", w.pktsForwarded, w.pktsDropped)
	}
}

func arpFrame(senderIP [4]byte, senderMAC MACAddr) []byte {
	frame := make([]byte, ethHeaderLen+28)
	binary.BigEndian.PutUint16(frame[12:14], EtherTypeARP)
	body := frame[ethHeaderLen:]
	binary.BigEndian.PutUint16(body[0:2], 1)      // hw type = Ethernet
	binary.BigEndian.PutUint16(body[2:4], EtherTypeIPv4)
	body[4], body[5] = 6, 4
	copy(body[8:14], senderMAC[:])
	copy(body[14:18], senderIP[:])
	return frame
}

func TestWorkerLearnsFromARP(t *testing.T) {
	rules := dropAllRules()
	w, pool, cache := newTestWorker(t, rules, &fakeSender{accept: -1})

	mac := MACAddr{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	h := allocFrame(t, pool, cache, arpFrame([4]byte{192, 168, 1, 5}, mac))

	w.processOne(h)

	got, ok := w.arp.Get(IPv4Addr([]byte{192, 168, 1, 5}))
	if !ok || got != mac {
		t.Fatalf("arp.Get after learning: got (%v, %v), want (%v, true)", got, ok, mac)
	}
}

// ndpSolicitFrame builds an ICMPv6 Neighbor Solicitation with a
// Source Link-Layer Address option.
func ndpSolicitFrame(srcIP, target [16]byte, srcMAC MACAddr) []byte {
	frame := make([]byte, ethHeaderLen+40+24+8)
	binary.BigEndian.PutUint16(frame[12:14], EtherTypeIPv6)
	ip6 := frame[ethHeaderLen:]
	ip6[0] = 0x60
	ip6[6] = ProtoICMPv6
	copy(ip6[8:24], srcIP[:])

	icmp := ip6[40:]
	icmp[0] = 135 // Neighbor Solicitation
	copy(icmp[8:24], target[:])

	opt := icmp[24:]
	opt[0] = 1 // Source Link-Layer Address
	opt[1] = 1 // length in units of 8 bytes
	copy(opt[2:8], srcMAC[:])
	return frame
}

func TestWorkerLearnsFromNDP(t *testing.T) {
	rules := dropAllRules()
	w, pool, cache := newTestWorker(t, rules, &fakeSender{accept: -1})

	var srcIP [16]byte
	srcIP[0] = 0xFE
	srcIP[1] = 0x80
	srcIP[15] = 1
	mac := MACAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

	h := allocFrame(t, pool, cache, ndpSolicitFrame(srcIP, [16]byte{}, mac))
	w.processOne(h)

	got, ok := w.ndp.Get(IPv6Addr(srcIP[:]))
	if !ok || got != mac {
		t.Fatalf("ndp.Get after learning: got (%v, %v), want (%v, true)", got, ok, mac)
	}
}
