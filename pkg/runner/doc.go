// Package runner ties loading, resolution, planning and execution together
// behind the operations the CLI and the round-trip harness call.
//
// Migration units are loaded and resolved before the lease is requested, so
// malformed units and broken chains fail with no effect on the target. The
// applied state is read under the lease, which makes the computed plan stable
// for the whole execution. The lease is released on every exit path.
package runner
