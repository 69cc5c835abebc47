// Package control
// Author: momentics <momentics@gmail.com>
//
// Run configuration, runtime metrics and debug introspection for pollsync.
//
// Provides concurrent-safe state handling primitives including:
//   - RunConfig with validation and defaults
//   - Metrics registry mirrored from the running average
//   - Debug probe registration and state dump
package control
