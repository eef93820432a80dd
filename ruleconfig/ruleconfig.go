// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ruleconfig loads a RuleTable from the INI rule file format
// described in the engine's documentation: repeated [rule] sections,
// one rule per section, keys priority/ip_version/protocol/src/dst/
// src_port/dst_port/action/out_iface. Lines starting with # or ; are
// comments; blank lines are ignored.
package ruleconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"code.hybscloud.com/upe"
)

// Load parses r as an INI rule file and returns a RuleTable, already
// Frozen. Each [rule] section becomes one Rule via upe.RuleTable.Add.
func Load(r io.Reader) (*upe.RuleTable, error) {
	sections, err := scan(r)
	if err != nil {
		return nil, err
	}

	table := upe.NewRuleTable()
	for i, sec := range sections {
		rule, err := parseRule(sec)
		if err != nil {
			return nil, fmt.Errorf("ruleconfig: rule %d: %w", i, err)
		}
		table.Add(rule)
	}
	table.Freeze()
	return table, nil
}

// section is the raw key/value pairs of one [rule] block (last
// occurrence of a duplicate key wins, matching a plain key=value
// overwrite semantics).
type section map[string]string

func scan(r io.Reader) ([]section, error) {
	var sections []section
	var cur section

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			name, ok := strings.CutSuffix(line, "]")
			if !ok {
				return nil, fmt.Errorf("ruleconfig: line %d: unterminated section header", lineNo)
			}
			name = strings.TrimSpace(strings.TrimPrefix(name, "["))
			if name != "rule" {
				return nil, fmt.Errorf("ruleconfig: line %d: unknown section %q", lineNo, name)
			}
			cur = section{}
			sections = append(sections, cur)
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("ruleconfig: line %d: key outside any [rule] section", lineNo)
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("ruleconfig: line %d: expected key=value", lineNo)
		}
		cur[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ruleconfig: %w", err)
	}
	return sections, nil
}

func parseRule(sec section) (upe.Rule, error) {
	var rule upe.Rule

	priority, err := parseUint(sec, "priority", 0)
	if err != nil {
		return rule, err
	}
	rule.Priority = uint32(priority)

	if v, ok := sec["ip_version"]; ok {
		ver, err := strconv.Atoi(v)
		if err != nil || (ver != 4 && ver != 6) {
			return rule, fmt.Errorf("ip_version: invalid value %q", v)
		}
		rule.IPVersion = uint8(ver)
	}

	if v, ok := sec["protocol"]; ok {
		proto, err := parseProtocol(v)
		if err != nil {
			return rule, err
		}
		rule.Protocol = proto
	}

	if _, ok := sec["src_port"]; ok {
		port, err := parseUint(sec, "src_port", 0)
		if err != nil {
			return rule, err
		}
		rule.SrcPort = uint16(port)
	}
	if _, ok := sec["dst_port"]; ok {
		port, err := parseUint(sec, "dst_port", 0)
		if err != nil {
			return rule, err
		}
		rule.DstPort = uint16(port)
	}

	if v, ok := sec["src"]; ok {
		ver, ip, mask, err := parsePrefix(v)
		if err != nil {
			return rule, fmt.Errorf("src: %w", err)
		}
		if rule.IPVersion != 0 && rule.IPVersion != ver {
			return rule, fmt.Errorf("src: address family %d conflicts with ip_version %d", ver, rule.IPVersion)
		}
		rule.IPVersion = ver
		rule.SrcIP, rule.SrcMask = ip, mask
	}
	if v, ok := sec["dst"]; ok {
		ver, ip, mask, err := parsePrefix(v)
		if err != nil {
			return rule, fmt.Errorf("dst: %w", err)
		}
		if rule.IPVersion != 0 && rule.IPVersion != ver {
			return rule, fmt.Errorf("dst: address family %d conflicts with ip_version %d", ver, rule.IPVersion)
		}
		rule.IPVersion = ver
		rule.DstIP, rule.DstMask = ip, mask
	}

	action, ok := sec["action"]
	if !ok {
		return rule, fmt.Errorf("missing required key action")
	}
	switch action {
	case "drop":
		rule.Action = upe.Action{Type: upe.ActionDrop}
	case "fwd":
		iface, ok := sec["out_iface"]
		if !ok {
			return rule, fmt.Errorf("action=fwd requires out_iface")
		}
		n, err := strconv.Atoi(iface)
		if err != nil {
			return rule, fmt.Errorf("out_iface: invalid value %q", iface)
		}
		rule.Action = upe.Action{Type: upe.ActionFwd, OutIface: n}
	default:
		return rule, fmt.Errorf("action: invalid value %q, want drop|fwd", action)
	}

	return rule, nil
}

func parseUint(sec section, key string, def uint64) (uint64, error) {
	v, ok := sec[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", key, v)
	}
	return n, nil
}

// parseProtocol maps a protocol keyword or numeric string to its IP
// protocol number, mirroring the original parse_protocol semantics:
// unrecognized input yields 0 (wildcard) rather than an error.
func parseProtocol(val string) (uint8, error) {
	switch val {
	case "tcp":
		return upe.ProtoTCP, nil
	case "udp":
		return upe.ProtoUDP, nil
	case "icmp":
		return upe.ProtoICMP, nil
	case "icmpv6":
		return upe.ProtoICMPv6, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 || n > 255 {
		return 0, nil
	}
	return uint8(n), nil
}
