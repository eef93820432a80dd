// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package enginelog

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
)

func TestVerboseMapping(t *testing.T) {
	cases := []struct {
		in   int
		want logiface.Level
	}{
		{-1, logiface.LevelWarning},
		{0, logiface.LevelWarning},
		{1, logiface.LevelInformational},
		{2, logiface.LevelDebug},
		{5, logiface.LevelDebug},
	}
	for _, c := range cases {
		if got := Verbose(c.in); got != c.want {
			t.Errorf("Verbose(%d): got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNewWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logiface.LevelInformational)
	log.Info().Str("iface", "eth0").Log("engine started")

	if buf.Len() == 0 {
		t.Fatal("expected at least one log line to be written")
	}
}
