// Package queue implements the durable job store backing the enrichment
// pipeline.
//
// The store is the single source of truth for job ownership. Claims happen in
// one atomic UPDATE so no two workers ever receive the same job; leases are
// renewed by heartbeats and reclaimed by the stale sweep when a worker dies.
// Heartbeat columns are advisory telemetry only and are never consulted for
// correctness decisions.
package queue
