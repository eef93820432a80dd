// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

const (
	// BufferSize is the fixed MTU-sized capacity of every pool buffer.
	BufferSize = 2048

	// ThreadCacheSize bounds each thread-local buffer cache.
	ThreadCacheSize = 64

	// BulkSize is the number of handles moved between a thread cache
	// and the pool's global stack on refill/flush.
	BulkSize = 32

	// BurstSize bounds ring push/pop bursts and worker TX batches.
	BurstSize = 32

	// TxSendCap is the implementation cap on frames per TX syscall.
	TxSendCap = 64

	// HugePageSize is the huge-page granularity requested for the pool region.
	HugePageSize = 2 << 20
)

// noCopy is a sentinel used to prevent copying of synchronization primitives.
// Embed by value; go vet's copylocks check treats it like sync.Mutex.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
