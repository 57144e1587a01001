package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/normalize"
	"github.com/cuemby/conduit/pkg/storage"
	"github.com/cuemby/conduit/pkg/types"
)

// Load warm-starts the snapshot from the cache store so the last known state
// is available before the first fetch completes. Persisted entities are in
// canonical form and go through the normalizer again. A kind that is absent
// or unreadable is skipped; only a store read error is returned.
//
// Call Load before Start.
func (r *Reconciler) Load(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	var refreshedAt time.Time
	raw, err := r.store.Get(ctx, storage.LastRefreshKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", storage.LastRefreshKey, err)
	}
	if raw != nil {
		if t, err := time.Parse(time.RFC3339, string(raw)); err == nil {
			refreshedAt = t.UTC()
		} else {
			r.logger.Warn().Err(err).Msg("Ignoring unreadable last refresh time")
		}
	}

	clock := refreshedAt
	if clock.IsZero() {
		clock = r.now().UTC().Truncate(time.Second)
	}
	n := normalize.New(r.keyPrefix, func() time.Time { return clock })

	var set types.EntitySet
	loaded := 0
	for _, kind := range types.AllKinds {
		logger := log.WithKind(r.logger, kind)

		data, err := r.store.Get(ctx, storage.KindKey(kind))
		if err != nil {
			return 0, fmt.Errorf("failed to read cached %s: %w", kind, err)
		}
		if data == nil {
			continue
		}

		src, err := normalize.Decode(data)
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring unreadable cache entry")
			continue
		}
		batch := n.NormalizeSource(kind, src)
		batch.ApplyTo(&set)
		loaded += batch.Len()

		r.mu.Lock()
		st := r.statuses[kind]
		st.Count = batch.Len()
		r.statuses[kind] = st
		r.mu.Unlock()

		logger.Debug().Int("count", batch.Len()).Msg("Loaded from cache")
	}

	if loaded == 0 && refreshedAt.IsZero() {
		return 0, nil
	}

	r.swap(r.build(set, refreshedAt), false)
	r.logger.Info().
		Int("entities", loaded).
		Time("refreshed_at", refreshedAt).
		Msg("Snapshot loaded from cache")
	return loaded, nil
}
