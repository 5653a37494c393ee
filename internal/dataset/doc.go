// Package dataset provides a concurrency-safe, CSV-backed table store.
//
// # Overview
//
// A [Dataset] is an ordered list of [Record] values sharing one header. It is
// never cached: every operation goes through [Store.View] or [Store.Update],
// which load a fresh snapshot from the backing file under the access guard.
//
// # Concurrency: Pessimistic Locking
//
// [Store.Update] holds the guard for the entire read-modify-write cycle, so
// concurrent updates never lose each other's changes. Reads take the same
// guard. Acquisition is bounded by [Store.LockTimeout]; a caller that cannot
// get the guard in time gets [ErrLockTimeout] instead of waiting forever.
//
// The default [Locker] is [FileLocker], which combines an in-process
// semaphore with an advisory flock(2) on "<file>.lock", so that separate
// processes on the same host serialize as well.
//
// # File Format
//
// RFC 4180 CSV with a header row. Column names are trimmed. Every value is
// text; nothing is coerced. Saves are atomic: the new content is written to a
// temporary file in the same directory then renamed over the target.
//
// Load then save preserves every value except one: "\r\n" inside a quoted
// value is read back as "\n", so the first save rewrites it. Rows are always
// written with "\n" line endings and the quoting [encoding/csv] emits.
//
// # Normalization
//
// On load, blank ids are replaced with fresh UUIDs and rows repeating an
// earlier id are dropped. A file without an id column gets one.
package dataset
