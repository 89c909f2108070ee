// Package prefetch provides the decision engine that warms materialized views
// ahead of the queries that read them.
//
// # Reading Guide
//
// Start with these three files to understand the engine:
//   - transition.go: first-order model of which operation follows which
//   - orchestrator.go: timed rebuilds, the cost cache and in-flight coalescing
//   - policy.go: the prefetch decision (predicted cost vs. time-to-next)
//
// # Architecture
//
// The prefetch package defines interfaces and bridge types; implementations of
// the external collaborators live in sub-packages:
//   - prefetch/store/: artifact stores (Postgres materialized views, in-memory)
//   - prefetch/costdb/: SQLite persistence of measured rebuild costs
//   - prefetch/workload/: query log loading and the replay harness
//   - prefetch/trace/: decision trace recording
//
// # Key Interfaces
//
//   - ArtifactStore: refresh an artifact, execute an operation
//   - CostEstimator: rebuild cost lookup, satisfied by Orchestrator
//   - CostStore: durable copy of the cost cache
//   - PrefetchPolicy: decide whether to rebuild ahead of the next operation
package prefetch
