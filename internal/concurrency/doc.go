// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency plumbing for the benchmark: the bounded executor that timer
// pollers hand their ticks to, and CPU pinning for thread-backed pollers.
package concurrency
