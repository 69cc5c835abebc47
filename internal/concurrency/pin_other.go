//go:build !linux

// File: internal/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "errors"

func platformPin(cpu int) error {
	return errors.New("pin: not supported on this platform")
}
