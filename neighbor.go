// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import (
	"encoding/binary"
	"sync"
)

// MACAddr is a 6-byte Ethernet hardware address.
type MACAddr [6]byte

// neighborEntry is one slot of a NeighborTable.
type neighborEntry struct {
	valid bool
	ip    IPAddr
	mac   MACAddr
}

// NeighborTable is an open-addressed, linear-probing IP->MAC map used
// for both ARP (IPv4) and NDP (IPv6) learning, selected by the
// version passed to NewNeighborTable. There is no deletion and no
// tombstones, so lookup may stop at the first empty slot.
//
// Writers (control-packet learning) take the exclusive lock; readers
// (the forwarding hot path) take the shared lock. Workers should
// consult their own L1Cache before locking at all.
type NeighborTable struct {
	mu       sync.RWMutex
	entries  []neighborEntry
	capacity uint32
	ipVer    uint8
}

// NewNeighborTable creates a table sized for capacity entries, for
// the given IP version (4 or 6).
func NewNeighborTable(ipVer uint8, capacity int) *NeighborTable {
	if capacity < 1 {
		panic("upe: neighbor table capacity must be >= 1")
	}
	return &NeighborTable{
		entries:  make([]neighborEntry, capacity),
		capacity: uint32(capacity),
		ipVer:    ipVer,
	}
}

func (t *NeighborTable) bucket(ip IPAddr) uint32 {
	if t.ipVer == 6 {
		return xorFoldV6(ip.V6) % t.capacity
	}
	return ip.V4 % t.capacity
}

func ipEqual(ipVer uint8, a, b IPAddr) bool {
	if ipVer == 6 {
		return a.V6 == b.V6
	}
	return a.V4 == b.V4
}

// Update learns or refreshes the MAC for ip. Takes the exclusive
// lock.
func (t *NeighborTable) Update(ip IPAddr, mac MACAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucket(ip)
	for i := uint32(0); i < t.capacity; i++ {
		slot := &t.entries[(idx+i)%t.capacity]
		if !slot.valid {
			slot.valid = true
			slot.ip = ip
			slot.mac = mac
			return
		}
		if ipEqual(t.ipVer, slot.ip, ip) {
			slot.mac = mac
			return
		}
	}
	// Table full with no match: spec defines no eviction policy: drop
	// the update silently rather than corrupt another entry's chain.
}

// Get looks up the MAC for ip. Takes the shared lock. ok is false on
// a miss.
func (t *NeighborTable) Get(ip IPAddr) (mac MACAddr, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := t.bucket(ip)
	for i := uint32(0); i < t.capacity; i++ {
		slot := &t.entries[(idx+i)%t.capacity]
		if !slot.valid {
			return MACAddr{}, false
		}
		if ipEqual(t.ipVer, slot.ip, ip) {
			return slot.mac, true
		}
	}
	return MACAddr{}, false
}

// L1Cache is a per-worker, single-entry IP->MAC shortcut that bypasses
// a NeighborTable's lock entirely on repeated destinations. Not safe
// for concurrent use; each worker owns one per address family.
type L1Cache struct {
	valid   bool
	lastIP  IPAddr
	lastMAC MACAddr
}

// Lookup checks the L1 entry first; on miss it falls through to
// table.Get and, on a table hit, refreshes the L1 entry.
func (c *L1Cache) Lookup(table *NeighborTable, ipVer uint8, ip IPAddr) (mac MACAddr, ok bool) {
	if c.valid && ipEqual(ipVer, c.lastIP, ip) {
		return c.lastMAC, true
	}
	mac, ok = table.Get(ip)
	if ok {
		c.valid = true
		c.lastIP = ip
		c.lastMAC = mac
	}
	return mac, ok
}

// IPv4Addr packs a 4-byte network-order address into an IPAddr's V4
// field in host order, mirroring the parser's byte-order convention.
func IPv4Addr(b []byte) IPAddr {
	return IPAddr{V4: binary.BigEndian.Uint32(b)}
}

// IPv6Addr copies a 16-byte address into an IPAddr's V6 field.
func IPv6Addr(b []byte) IPAddr {
	var a IPAddr
	copy(a.V6[:], b)
	return a
}
