// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "testing"

// TestIPv4ChecksumAndTTLDecrement is seed scenario S7.
func TestIPv4ChecksumAndTTLDecrement(t *testing.T) {
	header := make([]byte, 20)
	header[0] = 0x45
	header[8] = 64 // TTL

	header[10], header[11] = 0, 0
	sum1 := IPv4Checksum(header)
	header[10] = byte(sum1 >> 8)
	header[11] = byte(sum1)
	if !VerifyIPv4Checksum(header) {
		t.Fatal("initial checksum does not verify")
	}

	header[8]-- // TTL 64 -> 63
	header[10], header[11] = 0, 0
	sum2 := IPv4Checksum(header)
	header[10] = byte(sum2 >> 8)
	header[11] = byte(sum2)
	if !VerifyIPv4Checksum(header) {
		t.Fatal("post-decrement checksum does not verify")
	}

	if sum1 == sum2 {
		t.Fatal("checksum did not change after TTL decrement")
	}
}

func TestVerifyIPv4ChecksumRejectsCorruption(t *testing.T) {
	header := make([]byte, 20)
	header[0] = 0x45
	header[8] = 64
	sum := IPv4Checksum(header)
	header[10], header[11] = byte(sum>>8), byte(sum)
	if !VerifyIPv4Checksum(header) {
		t.Fatal("want verify ok before corruption")
	}
	header[9] ^= 0xFF
	if VerifyIPv4Checksum(header) {
		t.Fatal("want verify to fail after corrupting the header")
	}
}
