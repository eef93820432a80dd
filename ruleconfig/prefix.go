// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ruleconfig

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"code.hybscloud.com/upe"
)

// parsePrefix parses "addr" or "addr/prefix" the way the original
// engine's rule loader does: try IPv4 first, then IPv6; an address
// with no "/prefix" defaults to a full-length prefix (/32 or /128).
func parsePrefix(s string) (ver uint8, ip, mask upe.IPAddr, err error) {
	addrPart, prefixPart, hasSlash := strings.Cut(s, "/")

	addr, parseErr := netip.ParseAddr(addrPart)
	if parseErr != nil {
		return 0, ip, mask, fmt.Errorf("invalid address %q", addrPart)
	}

	var bits int
	if hasSlash {
		bits, parseErr = strconv.Atoi(prefixPart)
		if parseErr != nil || bits < 0 {
			return 0, ip, mask, fmt.Errorf("invalid prefix length %q", prefixPart)
		}
	} else if addr.Is4() {
		bits = 32
	} else {
		bits = 128
	}

	if addr.Is4() {
		b := addr.As4()
		ip = upe.IPv4Addr(b[:])
		mask = upe.IPAddr{V4: upe.IPv4PrefixMask(bits)}
		return 4, ip, mask, nil
	}

	b := addr.As16()
	ip = upe.IPv6Addr(b[:])
	maskBytes := upe.IPv6PrefixMask(bits)
	mask = upe.IPAddr{V6: maskBytes}
	return 6, ip, mask, nil
}
