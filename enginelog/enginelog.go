// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package enginelog wires the engine's structured logging: a
// logiface.Logger[*stumpy.Event] writing JSON lines, optionally
// through a lethe rotating file writer, matching the four-level
// taxonomy (error/warn/info/debug) of the original engine's log.c.
package enginelog

import (
	"io"
	"os"

	"github.com/agilira/lethe"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type the engine passes around.
type Logger = logiface.Logger[*stumpy.Event]

// Verbose maps the engine's --verbose flag, {0,1,2}, to
// {WARN,INFO,DEBUG}, mirroring the original engine's LOG_WARN/
// LOG_INFO/LOG_DEBUG verbosity steps (LOG_ERROR is always enabled).
func Verbose(v int) logiface.Level {
	switch {
	case v <= 0:
		return logiface.LevelWarning
	case v == 1:
		return logiface.LevelInformational
	default:
		return logiface.LevelDebug
	}
}

// New builds a Logger writing to w at the given level.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		logiface.WithLevel[*stumpy.Event](level),
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
		),
	)
}

// NewStderr is New with w = os.Stderr, the engine's default sink.
func NewStderr(level logiface.Level) *Logger {
	return New(os.Stderr, level)
}

// OpenRotatingFile opens path as a lethe-backed rotating io.WriteCloser
// under production defaults (100MB/7d/10 backups, compressed), for use
// as New's writer when file-based logging is requested.
func OpenRotatingFile(path string) (io.WriteCloser, error) {
	return lethe.NewWithDefaults(path)
}
