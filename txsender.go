// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

// FrameSender is the interface the core consumes for batched raw
// egress; its concrete implementation (AF_PACKET, ...) lives outside
// the core per spec §1/§6. A Worker's drainTX is the sole caller.
type FrameSender interface {
	// SendBatch transmits frames[i][:lengths[i]] and returns the
	// count accepted, in order: a short count means frames[n:] were
	// not sent and should be counted as dropped by the caller.
	SendBatch(frames [][]byte, lengths []int) int
	Close() error
}
