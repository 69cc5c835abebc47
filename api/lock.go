// Package api
// Author: momentics <momentics@gmail.com>
//
// Lock primitive contract benchmarked by the harness.

package api

// Lock is an enter/exit bracket admitting one holder at a time.
type Lock interface {
	// Enter blocks until the caller owns the lock.
	Enter()

	// Exit releases ownership taken by the matching Enter.
	Exit()

	// Kind reports the primitive behind this lock.
	Kind() LockKind

	// Close releases kernel resources held by the lock, if any.
	Close() error
}
