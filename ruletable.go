// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "sort"

// Action is what a matching Rule does with a packet.
type Action struct {
	Type     ActionType
	OutIface int // valid when Type == ActionFwd
}

// ActionType enumerates the two terminal rule actions.
type ActionType uint8

const (
	ActionDrop ActionType = iota
	ActionFwd
)

// Rule is one entry of a RuleTable. A zero IPVersion, Protocol,
// SrcPort, or DstPort is a wildcard for that field. A zero mask is a
// wildcard address match (the address is normalized to zero when its
// mask is zero).
type Rule struct {
	Priority uint32
	RuleID   uint32 // assigned by RuleTable.Add, equals insertion order

	IPVersion uint8 // 0 = wildcard, else 4 or 6
	Protocol  uint8 // 0 = wildcard
	SrcPort   uint16
	DstPort   uint16

	SrcIP, SrcMask IPAddr
	DstIP, DstMask IPAddr

	Action Action
}

// Matches reports whether key satisfies every predicate of r, in the
// cheap-to-expensive short-circuit order from spec §4.5.
func (r *Rule) Matches(key *FlowKey) bool {
	if r.IPVersion != 0 && r.IPVersion != key.IPVer {
		return false
	}
	if r.Protocol != 0 && r.Protocol != key.Protocol {
		return false
	}
	if r.SrcPort != 0 && r.SrcPort != key.SrcPort {
		return false
	}
	if r.DstPort != 0 && r.DstPort != key.DstPort {
		return false
	}
	if key.IPVer == 6 {
		if !maskedEqualV6(key.SrcIP.V6, r.SrcIP.V6, r.SrcMask.V6) {
			return false
		}
		if !maskedEqualV6(key.DstIP.V6, r.DstIP.V6, r.DstMask.V6) {
			return false
		}
		return true
	}
	if key.SrcIP.V4&r.SrcMask.V4 != r.SrcIP.V4&r.SrcMask.V4 {
		return false
	}
	if key.DstIP.V4&r.DstMask.V4 != r.DstIP.V4&r.DstMask.V4 {
		return false
	}
	return true
}

func maskedEqualV6(ip, ruleIP, mask [16]byte) bool {
	for i := 0; i < 16; i++ {
		if ip[i]&mask[i] != ruleIP[i]&mask[i] {
			return false
		}
	}
	return true
}

// IPv4PrefixMask returns the bit pattern for an IPv4 prefix length p
// in [0,32], per spec §4.5: (0xFFFFFFFF << (32-p)) for p>0, else 0.
func IPv4PrefixMask(p int) uint32 {
	if p <= 0 {
		return 0
	}
	if p >= 32 {
		return 0xFFFFFFFF
	}
	return 0xFFFFFFFF << uint(32-p)
}

// IPv6PrefixMask returns the 16-byte mask for an IPv6 prefix length p
// in [0,128]: the first p/8 bytes are 0xFF, the next byte (if p%8>0)
// is 0xFF<<(8-p%8), the rest are zero.
func IPv6PrefixMask(p int) (mask [16]byte) {
	if p <= 0 {
		return mask
	}
	if p > 128 {
		p = 128
	}
	full := p / 8
	for i := 0; i < full; i++ {
		mask[i] = 0xFF
	}
	if rem := p % 8; rem > 0 && full < 16 {
		mask[full] = 0xFF << uint(8-rem)
	}
	return mask
}

// RuleTable is a priority-ordered linear classifier. Rules are added
// during initialization via Add; Freeze sorts the table by
// (priority asc, rule_id asc) and makes further Add calls panic,
// enforcing the "mutated at startup only" invariant from spec §3.
type RuleTable struct {
	rules  []Rule
	frozen bool
}

// NewRuleTable returns an empty RuleTable.
func NewRuleTable() *RuleTable {
	return &RuleTable{}
}

// Add appends rule to the table, assigning RuleID as its insertion
// index and zeroing any address whose mask is zero. Panics if the
// table has been frozen.
func (t *RuleTable) Add(rule Rule) uint32 {
	if t.frozen {
		panic("upe: RuleTable.Add called after Freeze")
	}
	rule.RuleID = uint32(len(t.rules))
	if rule.SrcMask.V4 == 0 {
		rule.SrcIP.V4 = 0
	}
	if rule.SrcMask.V6 == ([16]byte{}) {
		rule.SrcIP.V6 = [16]byte{}
	}
	if rule.DstMask.V4 == 0 {
		rule.DstIP.V4 = 0
	}
	if rule.DstMask.V6 == ([16]byte{}) {
		rule.DstIP.V6 = [16]byte{}
	}
	t.rules = append(t.rules, rule)
	return rule.RuleID
}

// Freeze sorts the table by (priority asc, rule_id asc) and forbids
// further mutation. Must be called before any worker starts matching.
func (t *RuleTable) Freeze() {
	sort.SliceStable(t.rules, func(i, j int) bool {
		a, b := t.rules[i], t.rules[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.RuleID < b.RuleID
	})
	t.frozen = true
}

// Len returns the number of rules in the table.
func (t *RuleTable) Len() int { return len(t.rules) }

// Match returns the highest-priority rule whose predicate holds for
// key, i.e. the first rule in (priority, rule_id) order with
// Matches(key) == true, or nil on a miss. Read-only; safe for
// concurrent use by any number of workers once Frozen.
func (t *RuleTable) Match(key *FlowKey) *Rule {
	for i := range t.rules {
		if t.rules[i].Matches(key) {
			return &t.rules[i]
		}
	}
	return nil
}
