// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pcapio

import "testing"

func TestHtons(t *testing.T) {
	cases := map[int]int{
		0x0003: 0x0300, // ETH_P_ALL
		0x0800: 0x0008, // ETH_P_IP
		0x86DD: 0xDD86, // ETH_P_IPV6
	}
	for in, want := range cases {
		if got := htons(in); got != want {
			t.Errorf("htons(%#04x): got %#04x, want %#04x", in, got, want)
		}
	}
}

func TestNewAFPacketSenderRejectsUnknownInterface(t *testing.T) {
	if _, err := NewAFPacketSender("upe-test-nonexistent-iface-0"); err == nil {
		t.Fatal("want error for a nonexistent interface")
	}
}

func makeBatch(n int) ([][]byte, []int) {
	frames := make([][]byte, n)
	lengths := make([]int, n)
	for i := range frames {
		frames[i] = []byte{byte(i)}
		lengths[i] = 1
	}
	return frames, lengths
}

func TestTruncateBatchCapsAtTxSendCap(t *testing.T) {
	frames, lengths := makeBatch(txSendCap + 10)

	gotFrames, gotLengths := truncateBatch(frames, lengths)

	if len(gotFrames) != txSendCap {
		t.Fatalf("len(frames): got %d, want %d", len(gotFrames), txSendCap)
	}
	if len(gotLengths) != txSendCap {
		t.Fatalf("len(lengths): got %d, want %d", len(gotLengths), txSendCap)
	}
}

func TestTruncateBatchPassesThroughSmallerBatch(t *testing.T) {
	frames, lengths := makeBatch(3)

	gotFrames, gotLengths := truncateBatch(frames, lengths)

	if len(gotFrames) != 3 || len(gotLengths) != 3 {
		t.Fatalf("got %d frames / %d lengths, want passthrough of 3", len(gotFrames), len(gotLengths))
	}
}

func TestTruncateBatchExactlyAtCapIsUnchanged(t *testing.T) {
	frames, lengths := makeBatch(txSendCap)

	gotFrames, gotLengths := truncateBatch(frames, lengths)

	if len(gotFrames) != txSendCap || len(gotLengths) != txSendCap {
		t.Fatalf("got %d frames / %d lengths, want %d (no truncation at exactly the cap)", len(gotFrames), len(gotLengths), txSendCap)
	}
}
