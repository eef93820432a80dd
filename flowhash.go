// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "encoding/binary"

// HashFlowKey computes a symmetric 32-bit hash of key, invariant
// under swapping (src_ip, src_port) with (dst_ip, dst_port): both
// directions of a bidirectional flow hash identically, so they land
// on the same RSS worker. XOR-folding both endpoints together before
// mixing in ports/protocol is what makes the swap cancel out.
func HashFlowKey(key FlowKey) uint32 {
	var h uint32
	if key.IPVer == 6 {
		h ^= xorFoldV6(key.SrcIP.V6)
		h ^= xorFoldV6(key.DstIP.V6)
	} else {
		h ^= key.SrcIP.V4
		h ^= key.DstIP.V4
	}
	h ^= uint32(key.SrcPort)
	h ^= uint32(key.DstPort)
	h ^= uint32(key.Protocol)
	return h
}

// xorFoldV6 XORs the four 32-bit words of a 16-byte IPv6 address.
func xorFoldV6(addr [16]byte) uint32 {
	var h uint32
	for i := 0; i < 16; i += 4 {
		h ^= binary.BigEndian.Uint32(addr[i : i+4])
	}
	return h
}
