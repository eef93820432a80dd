// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

// FlowKey is the 5-tuple used for classification and RSS dispatch.
// Addresses and ports are held in host byte order after parsing. For
// ICMP/ICMPv6, SrcPort holds the identifier and DstPort holds
// (type<<8)|code.
type FlowKey struct {
	IPVer    uint8 // 4 or 6
	Protocol uint8
	SrcPort  uint16
	DstPort  uint16
	SrcIP    IPAddr
	DstIP    IPAddr
}

// IPAddr holds either a 32-bit IPv4 address (in V4, host order) or a
// 128-bit IPv6 address (in V6, as raw network-order octets). Which form is valid is determined by the owning FlowKey's
// IPVer / the owning Rule's IPVersion.
type IPAddr struct {
	V4   uint32
	V6   [16]byte
}

// EtherType values consumed by the parser and control-plane dispatch.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeIPv6 = 0x86DD
	EtherTypeARP  = 0x0806
)

// IP protocol numbers.
const (
	ProtoICMP   = 1
	ProtoTCP    = 6
	ProtoUDP    = 17
	ProtoICMPv6 = 58
)

const ethHeaderLen = 14

// swapEndpoints returns k with (SrcIP, SrcPort) and (DstIP, DstPort)
// swapped; used only to validate flow-hash symmetry in tests.
func (k FlowKey) swapEndpoints() FlowKey {
	k.SrcIP, k.DstIP = k.DstIP, k.SrcIP
	k.SrcPort, k.DstPort = k.DstPort, k.SrcPort
	return k
}
