// Package repositories implements the persisted key/value stores behind [models.Store].
//
// Tokens and the user id are the only persisted state. Stores are deliberately dumb: values are
// opaque strings with no expiry or namespacing, and callers own the key layout.
//
// Key Implementations:
//   - [MemoryStore] : Process-local map, lost on exit
//   - [SQLiteStore] : kv_store table managed by the embedded migrations
//   - [FileStore] : Single JSON document replaced atomically on every write
//
// [Open] selects an implementation from [shared.StorageConfig].
package repositories
