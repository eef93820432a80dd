// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pcapio

import (
	"net"
	"unsafe"

	"golang.org/x/sys/unix"
)

// txSendCap mirrors upe.TxSendCap: the implementation cap on frames
// transmitted in a single sendmmsg call, independent of the caller's
// own batch size.
const txSendCap = 64

// AFPacketSender transmits raw Ethernet frames out a named interface
// through an AF_PACKET/SOCK_RAW socket.
type AFPacketSender struct {
	fd   int
	addr unix.RawSockaddrLinklayer
}

// NewAFPacketSender opens a raw socket bound for transmit on iface.
func NewAFPacketSender(iface string) (*AFPacketSender, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ALL))
	if err != nil {
		return nil, err
	}
	return &AFPacketSender{
		fd: fd,
		addr: unix.RawSockaddrLinklayer{
			Family:  unix.AF_PACKET,
			Ifindex: int32(ifi.Index),
			Halen:   6,
		},
	}, nil
}

func htons(v int) int {
	return int(uint16(v)<<8 | uint16(v)>>8)
}

// truncateBatch caps frames/lengths at txSendCap, the sender's own
// per-syscall limit, independent of whatever batch size the caller
// assembled.
func truncateBatch(frames [][]byte, lengths []int) ([][]byte, []int) {
	if len(frames) > txSendCap {
		return frames[:txSendCap], lengths[:txSendCap]
	}
	return frames, lengths
}

// SendBatch implements upe.FrameSender: it transmits the whole batch
// in a single sendmmsg call and returns the count sent before the
// first error, matching the original single-frame tx_send's
// all-or-nothing per-call semantics extended across a batch.
func (s *AFPacketSender) SendBatch(frames [][]byte, lengths []int) int {
	frames, lengths = truncateBatch(frames, lengths)
	if len(frames) == 0 {
		return 0
	}

	iovecs := make([]unix.Iovec, len(frames))
	msgs := make([]unix.Mmsghdr, len(frames))
	for i, frame := range frames {
		data := frame[:lengths[i]]
		iovecs[i].Base = &data[0]
		iovecs[i].SetLen(len(data))

		msgs[i].Hdr.Name = (*byte)(unsafe.Pointer(&s.addr))
		msgs[i].Hdr.Namelen = unix.SizeofSockaddrLinklayer
		msgs[i].Hdr.Iov = &iovecs[i]
		msgs[i].Hdr.SetIovlen(1)
	}

	n, err := unix.Sendmmsg(s.fd, msgs, 0)
	if err != nil && n == 0 {
		return 0
	}
	return n
}

// Close implements upe.FrameSender.
func (s *AFPacketSender) Close() error {
	return unix.Close(s.fd)
}
