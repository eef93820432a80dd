// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "encoding/binary"

// ParseFlowKey extracts a FlowKey from a candidate Ethernet frame. It
// performs zero-copy, bounds-checked parsing of Ethernet/IPv4/IPv6/
// TCP/UDP/ICMP headers and fails fast (ok=false) on any short or
// malformed header rather than reading past frame.
//
// The returned FlowKey is a plain value; it does not retain frame, so
// it safely outlives the buffer that frame is a view of.
func ParseFlowKey(frame []byte) (key FlowKey, ok bool) {
	if len(frame) < ethHeaderLen {
		return FlowKey{}, false
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	l3 := frame[ethHeaderLen:]

	var proto uint8
	var l4 []byte

	switch etherType {
	case EtherTypeIPv4:
		if len(l3) < 20 {
			return FlowKey{}, false
		}
		version := l3[0] >> 4
		if version != 4 {
			return FlowKey{}, false
		}
		ihl := int(l3[0]&0x0F) * 4
		if ihl < 20 || ihl > len(l3) {
			return FlowKey{}, false
		}
		key.IPVer = 4
		key.SrcIP.V4 = binary.BigEndian.Uint32(l3[12:16])
		key.DstIP.V4 = binary.BigEndian.Uint32(l3[16:20])
		proto = l3[9]
		l4 = l3[ihl:]

	case EtherTypeIPv6:
		if len(l3) < 40 {
			return FlowKey{}, false
		}
		version := l3[0] >> 4
		if version != 6 {
			return FlowKey{}, false
		}
		key.IPVer = 6
		copy(key.SrcIP.V6[:], l3[8:24])
		copy(key.DstIP.V6[:], l3[24:40])
		proto = l3[6]
		l4 = l3[40:]

	default:
		return FlowKey{}, false
	}

	key.Protocol = proto

	switch proto {
	case ProtoUDP:
		if len(l4) < 8 {
			return FlowKey{}, false
		}
		key.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		key.DstPort = binary.BigEndian.Uint16(l4[2:4])

	case ProtoTCP:
		if len(l4) < 20 {
			return FlowKey{}, false
		}
		dataOffset := int(l4[12]>>4) * 4
		if dataOffset < 20 || dataOffset > len(l4) {
			return FlowKey{}, false
		}
		key.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		key.DstPort = binary.BigEndian.Uint16(l4[2:4])

	case ProtoICMP, ProtoICMPv6:
		if len(l4) < 8 {
			return FlowKey{}, false
		}
		// Identifier occupies bytes [4:6] in both ICMP echo and
		// ICMPv6 formats; type/code are the first two bytes.
		key.SrcPort = binary.BigEndian.Uint16(l4[4:6])
		key.DstPort = uint16(l4[0])<<8 | uint16(l4[1])

	default:
		return FlowKey{}, false
	}

	return key, true
}
