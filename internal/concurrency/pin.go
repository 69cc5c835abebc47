// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning dispatcher. The platform file decides whether pinning is real.

package concurrency

import "runtime"

// PinCurrentThread binds the calling OS thread to logical CPU slot % NumCPU.
// The caller must hold runtime.LockOSThread, otherwise the goroutine may
// migrate away from the pinned thread.
func PinCurrentThread(slot int) error {
	if slot < 0 {
		slot = -slot
	}
	return platformPin(slot % NumCPUs())
}

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}
