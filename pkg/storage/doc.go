/*
Package storage provides the persistent key-value cache behind the console's
entity snapshot.

After every refresh cycle the reconciler writes each successfully fetched
kind's canonical collection as JSON under a namespaced key, and on start-up it
reads those keys back so the console can show the last known state before the
first fetch completes. The store is a write-through mirror, never the source
of truth: a failed write is logged and reported, the in-memory snapshot is
kept, and the next cycle simply writes again.

# Keys

	conduit/cache/routes        canonical []Route JSON
	conduit/cache/services      canonical []Service JSON
	conduit/cache/upstreams     canonical []Upstream JSON
	conduit/cache/consumers     canonical []Consumer JSON
	conduit/meta/last_refresh   RFC 3339 time of the last successful cycle

Use KindKey and LastRefreshKey rather than literal strings.

# Backends

	┌──────────── Store ────────────┐
	│ Get(ctx, key) ([]byte, error) │
	│ Set(ctx, key, value) error    │
	│ Close() error                 │
	└──────┬──────────┬──────────┬──┘
	       │          │          │
	  BoltStore   RedisStore  MemoryStore
	  conduit.db  shared      tests and
	  bucket      across      throwaway
	  "cache"     replicas    sessions

BoltStore is the default. It keeps one bucket named "cache" in
<data_dir>/conduit.db and waits at most two seconds for the file lock, so a
second console pointed at the same directory fails fast instead of hanging.
Values are copied out of the read transaction because bolt only guarantees
them while the transaction is open.

RedisStore pings the server when opened and maps redis.Nil to an absent key.

MemoryStore copies on both Set and Get so callers can reuse their buffers.

# Absent Keys

Get returns (nil, nil) for a key that was never written. Callers treat that
the same as an empty cache: nothing to warm-start from.

# Usage

	store, err := storage.Open(ctx, storage.Options{
		Backend: storage.BackendBolt,
		DataDir: "/var/lib/conduit",
	})
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.Get(ctx, storage.KindKey(types.KindRoute))
*/
package storage
