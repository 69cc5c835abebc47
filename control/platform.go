// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Runtime probes that show what a poll strategy costs the process.

package control

import (
	"runtime"
	"runtime/pprof"
)

// RegisterPlatformProbes adds CPU, goroutine and OS thread counts.
// Thread creation is the figure that separates the thread-recreate poller
// from the long-lived ones.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.gomaxprocs", func() any {
		return runtime.GOMAXPROCS(0)
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
	dp.RegisterProbe("platform.threads_created", func() any {
		return pprof.Lookup("threadcreate").Count()
	})
}
