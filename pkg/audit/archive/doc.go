// Package archive keeps audit records evicted from the in-memory ledger.
//
// A Recorder implements audit.Archiver: evicted records are queued on a
// bounded channel and written to a Store by a single worker, so the append
// path never waits on disk. When the queue is full the record is dropped
// and counted.
//
// Two stores are provided: MemoryStore for tests and short-lived processes,
// and SQLiteStore (github.com/mattn/go-sqlite3) for durable archives that the
// CLI can query after the engine has stopped.
//
// A Pruner enforces retention by age and by record count; a Scheduler runs it
// on a cron expression (default "0 3 * * *").
package archive
