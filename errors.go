// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package upe

import "fmt"

// ConfigError wraps a startup-time configuration failure: a bad rule
// file, a missing interface, or bad CLI arguments. cmd/upe-engine maps
// ConfigError to exit code 2.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("upe: config: %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// FatalError wraps a startup-time resource failure: pool init, ring
// init, or a huge-page fallback cascade that failed entirely.
// cmd/upe-engine maps FatalError to exit code 1.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("upe: fatal: %s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }
