// Package worker implements the worker-side command dispatcher (spec
// §4.7): a fixed table mapping uppercase wire command names to
// handlers for the commands a master sends. While a job runs, the
// dispatcher also originates the archive-byte and index-mutation
// commands named in spec §6 (direction W→M) back to the master over
// the same connection; those are serviced by the master's own
// dispatch loop in pkg/connector, not locally.
package worker
