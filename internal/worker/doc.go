// Package worker runs the claim-and-execute loop: it leases jobs from the
// queue under a bounded concurrency budget, drives each one through the
// pipeline with heartbeat renewal and a hard wall-clock timeout, and reports
// the outcome back to the store. A periodic sweep releases jobs whose workers
// died without unlocking them.
package worker
