// Package cache implements the memory-mapped file cache that sits behind the
// HTTP handlers. An Entry owns one mapping (a source file mapped read-only, or
// an in-memory upload spooled to an unlinked temp file and mapped), the body
// partitioned into fixed-capacity chunks and the pre-rendered response headers.
//
// A Manager owns one Table and is driven by a single goroutine: lookups,
// creation, invalidation, the idle sweep and reference counting never run
// concurrently for the same Manager, so nothing here takes a lock. Consumers
// bracket every read with Acquire/Release; an entry that is invalidated while
// referenced becomes a zombie and is destroyed by the last Release.
package cache
