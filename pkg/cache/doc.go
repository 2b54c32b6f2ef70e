// Package cache keeps a Redis copy of the identity keys of persisted
// connection collections.
//
// Existence checks against a large collection otherwise re-read and re-parse
// the whole JSON document for every fetched item. The index stores the keys of
// one collection as a Redis set together with a fingerprint (size and
// modification time) of the document it was built from:
//
//   - connsync:index:<tenant>:<subject>:<platform>              (set of keys)
//   - connsync:index:<tenant>:<subject>:<platform>:fingerprint  (JSON Fingerprint)
//
// A fingerprint mismatch means the document changed and the set must be
// rebuilt. The document stays the source of truth: callers fall back to it
// on any Redis error.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, time.Hour)
//	key := cache.IndexKey{Tenant: "acme", Subject: "jdoe", Platform: "linkedin"}
//
//	fp, err := manager.Fingerprint(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) || !fp.Equal(current) {
//		err = manager.Rebuild(ctx, key, current, members)
//	}
//	found, err := manager.Contains(ctx, key, member)
//
// # Metrics
//
//   - connsync_index_hits_total - membership answered from the index
//   - connsync_index_misses_total - fingerprint absent or stale
//   - connsync_index_rebuilds_total - sets rebuilt from a document
//   - connsync_index_errors_total{operation} - Redis failures
package cache
