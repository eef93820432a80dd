// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pcapio implements upe.Capture over libpcap (live interfaces
// and offline recordings) and upe.FrameSender over an AF_PACKET raw
// socket, the concrete collaborators the core datapath is deliberately
// decoupled from.
package pcapio

import (
	"sync/atomic"
	"time"

	"github.com/google/gopacket/pcap"
)

const snaplen = 65536

// LiveCapture reads frames from a live network interface.
type LiveCapture struct {
	handle *pcap.Handle
}

// NewLiveCapture opens iface in promiscuous mode, pinned to inbound
// traffic so the engine never re-ingests its own forwarded frames.
func NewLiveCapture(iface string) (*LiveCapture, error) {
	handle, err := pcap.OpenLive(iface, snaplen, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	if err := handle.SetDirection(pcap.DirectionIn); err != nil {
		handle.Close()
		return nil, err
	}
	return &LiveCapture{handle: handle}, nil
}

// ReadPacket implements upe.Capture.
func (c *LiveCapture) ReadPacket(timeout time.Duration) (data []byte, rxCycles uint64, ok bool) {
	if err := c.handle.SetTimeout(timeout); err != nil {
		return nil, 0, false
	}
	data, ci, err := c.handle.ZeroCopyReadPacketData()
	if err != nil {
		return nil, 0, false
	}
	return data, uint64(ci.Timestamp.UnixNano()), true
}

// Close implements upe.Capture.
func (c *LiveCapture) Close() error {
	c.handle.Close()
	return nil
}

// OfflineCapture replays frames from a pcap file, for deterministic
// testing and benchmarking against recorded traffic.
type OfflineCapture struct {
	handle *pcap.Handle
	eof    atomic.Bool
}

// NewOfflineCapture opens an existing pcap recording at path.
func NewOfflineCapture(path string) (*OfflineCapture, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, err
	}
	return &OfflineCapture{handle: handle}, nil
}

// ReadPacket implements upe.Capture. ok is false at end of file,
// matching the live capture's timeout semantics from the dispatcher's
// point of view. Once the file is exhausted, ReadPacket keeps
// returning ok=false on every subsequent call; callers that need to
// stop driving the loop at that point should watch AtEOF.
func (c *OfflineCapture) ReadPacket(time.Duration) (data []byte, rxCycles uint64, ok bool) {
	data, ci, err := c.handle.ZeroCopyReadPacketData()
	if err != nil {
		c.eof.Store(true)
		return nil, 0, false
	}
	return data, uint64(ci.Timestamp.UnixNano()), true
}

// AtEOF reports whether the pcap file has been fully replayed. Safe
// to call concurrently with ReadPacket.
func (c *OfflineCapture) AtEOF() bool {
	return c.eof.Load()
}

// Close implements upe.Capture.
func (c *OfflineCapture) Close() error {
	c.handle.Close()
	return nil
}
