// Package memkv is a concurrency-safe sharded in-memory key/value store.
// Slabs keep their received memos in it.
//
// Properties:
//   - sharded map guarded by per-shard RW mutexes (256 shards by default)
//   - values are copied on Set and Get
//   - optional cap on the total size of stored values (Options.MaxBytes)
//   - cheap atomic counters exposed through Metrics
//   - operations on a closed store fail instead of panicking
package memkv
