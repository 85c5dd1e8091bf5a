// Package audit implements the append-only audit ledger.
//
// The ledger keeps the most recent records in a fixed-capacity ring. Each
// append assigns the next monotonic id and a timestamp that never goes
// backwards, so the ring is always in (timestamp, id) order and queries walk
// it newest first without sorting.
//
// When the ring is full the oldest record is evicted and handed to the
// configured Archiver (see package archive). Records are never modified once
// appended; every read returns copies.
package audit
