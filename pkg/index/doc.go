// Package index defines the index-entry row types, the archive/index
// wire enumerations, and the IndexHandle contract serviced by the
// master's connector dispatch loop against INDEX_* commands (spec §6
// direction W→M). The concrete bbolt-backed implementation lives in
// pkg/index/boltindex.
package index
