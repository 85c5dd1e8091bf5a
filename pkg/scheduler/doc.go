// Package scheduler runs the orchestration loop that evaluates active
// policies.
//
// On every tick the Scheduler snapshots the ACTIVE policies, picks a batch
// of them round-robin from a persistent cursor, and evaluates each one whose
// execution token is free. Evaluations inside a tick run concurrently up to
// a parallelism limit. Every finished evaluation becomes an Execution that
// is appended to the audit ledger, sampled into the rolling metrics,
// forwarded to the compliance monitor when non-compliant, and published on
// the event bus.
//
// Ticks are driven by robfig/cron on a constant interval. A tick never
// starts while the previous one is still running. Stop waits for an
// in-flight tick to finish but does not abort evaluator calls.
//
// Execute runs the same pipeline on demand. It fails with
// ConcurrencyConflict when the policy already has an execution in flight.
//
// Failures inside a tick never stop the loop: evaluator errors, timeouts
// and panics become FAILURE executions, and a panic in the tick itself is
// recorded in the audit ledger.
package scheduler
