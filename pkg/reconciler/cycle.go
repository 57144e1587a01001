package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/conduit/pkg/chain"
	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/normalize"
	"github.com/cuemby/conduit/pkg/relations"
	"github.com/cuemby/conduit/pkg/storage"
	"github.com/cuemby/conduit/pkg/types"
)

type fetchResult struct {
	body []byte
	err  error
}

// cycle performs one refresh: fetch, normalize, persist, rebuild, publish
func (r *Reconciler) cycle(ctx context.Context, source TriggerSource, coalesced int) Report {
	// Start timing the refresh cycle
	timer := metrics.NewTimer()
	started := r.now().UTC()
	defer func() {
		timer.ObserveDuration(metrics.RefreshDuration)
		metrics.RefreshCyclesTotal.WithLabelValues(string(source)).Inc()
	}()

	report := Report{Trigger: source, Coalesced: coalesced, StartedAt: started}

	r.logger.Debug().
		Str("trigger", string(source)).
		Int("coalesced", coalesced).
		Msg("Refresh started")
	startEv := events.NewEvent(events.EventRefreshStarted, "", "refresh started")
	startEv.Metadata = map[string]string{"trigger": string(source)}
	r.publish(startEv)

	r.setState(StateFetching)
	results := r.fetch(ctx)

	r.setState(StateNormalizing)
	set := r.Snapshot().EntitySet
	n := normalize.New(r.keyPrefix, func() time.Time { return started })
	var fresh []*normalize.Batch

	for i, kind := range types.AllKinds {
		kr := KindReport{Kind: kind}
		res := results[i]

		var batch *normalize.Batch
		err := res.err
		if err == nil {
			var src normalize.Source
			src, err = normalize.Decode(res.body)
			if err == nil {
				batch = n.NormalizeSource(kind, src)
			}
		}

		if err != nil {
			kr.Err = err
			r.kindFailed(kind, err, started)
			report.Kinds = append(report.Kinds, kr)
			continue
		}

		batch.ApplyTo(&set)
		fresh = append(fresh, batch)

		kr.Count = batch.Len()
		kr.Dropped = batch.Dropped
		kr.Duplicates = batch.Duplicates
		r.kindSucceeded(kind, kr, started)
		report.Kinds = append(report.Kinds, kr)
	}

	if len(fresh) > 0 {
		r.setState(StatePersisting)
		persistErrs := r.persist(ctx, fresh, started)
		for i := range report.Kinds {
			if err, ok := persistErrs[report.Kinds[i].Kind]; ok {
				report.Kinds[i].PersistErr = err
			}
		}
	}

	r.setState(StateRebuilding)
	refreshedAt := r.LastRefresh()
	if len(fresh) > 0 {
		refreshedAt = started
	}
	snap := r.build(set, refreshedAt)
	r.swap(snap, true)

	for _, ref := range relations.Dangling(snap.EntitySet) {
		r.logger.Debug().
			Str("from", ref.FromKind.Singular()+"/"+ref.FromID).
			Str("to", ref.ToKind.Singular()+"/"+ref.ToID).
			Msg("Dangling reference")
	}

	report.Duration = timer.Duration()
	if len(fresh) > 0 {
		metrics.LastRefreshTimestamp.Set(float64(refreshedAt.Unix()))
	}

	r.logger.Info().
		Str("trigger", string(source)).
		Int("routes", len(snap.Routes)).
		Int("services", len(snap.Services)).
		Int("upstreams", len(snap.Upstreams)).
		Int("consumers", len(snap.Consumers)).
		Int("failed_kinds", len(report.Failed())).
		Dur("duration", report.Duration).
		Msg("Refresh completed")

	done := events.NewEvent(events.EventRefreshCompleted, "", "refresh completed")
	done.Metadata = map[string]string{
		"trigger":     string(source),
		"failed":      strconv.Itoa(len(report.Failed())),
		"duration_ms": strconv.FormatInt(report.Duration.Milliseconds(), 10),
	}
	for _, kind := range types.AllKinds {
		done.Metadata[string(kind)] = strconv.Itoa(snap.Len(kind))
	}
	r.publish(done)

	return report
}

// fetch lists every kind concurrently. Each kind settles on its own; a
// failure never cancels the others.
func (r *Reconciler) fetch(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(types.AllKinds))

	var g errgroup.Group
	for i, kind := range types.AllKinds {
		i, kind := i, kind
		g.Go(func() error {
			body, err := r.api.List(ctx, kind)
			if err != nil {
				err = fmt.Errorf("failed to list %s: %w", kind, err)
			}
			results[i] = fetchResult{body: body, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Reconciler) kindFailed(kind types.Kind, err error, at time.Time) {
	logger := log.WithKind(r.logger, kind)
	logger.Warn().Err(err).Msg("Fetch failed, keeping previous data")
	metrics.FetchFailuresTotal.WithLabelValues(string(kind)).Inc()
	metrics.UpdateComponent(metrics.KindComponent(kind), false, err.Error())

	r.mu.Lock()
	st := r.statuses[kind]
	st.Failed = true
	st.LastError = err.Error()
	st.LastFailure = at
	r.statuses[kind] = st
	r.mu.Unlock()

	r.publish(events.NewEvent(events.EventFetchFailed, kind, err.Error()))
}

func (r *Reconciler) kindSucceeded(kind types.Kind, kr KindReport, at time.Time) {
	if discarded := kr.Dropped + kr.Duplicates; discarded > 0 {
		logger := log.WithKind(r.logger, kind)
		logger.Warn().
			Int("dropped", kr.Dropped).
			Int("duplicates", kr.Duplicates).
			Msg("Records discarded during normalization")
		metrics.RecordsDroppedTotal.WithLabelValues(string(kind)).Add(float64(discarded))

		ev := events.NewEvent(events.EventRecordsDropped, kind,
			fmt.Sprintf("%d records dropped, %d duplicates", kr.Dropped, kr.Duplicates))
		ev.Metadata = map[string]string{
			"dropped":    strconv.Itoa(kr.Dropped),
			"duplicates": strconv.Itoa(kr.Duplicates),
		}
		r.publish(ev)
	}
	metrics.UpdateComponent(metrics.KindComponent(kind), true, "")

	r.mu.Lock()
	r.statuses[kind] = KindStatus{
		Kind:        kind,
		LastSuccess: at,
		LastFailure: r.statuses[kind].LastFailure,
		Count:       kr.Count,
	}
	r.mu.Unlock()
}

// persist writes each fresh kind to the cache store. Failures are reported
// and left for the next cycle; the in-memory snapshot is never rolled back.
func (r *Reconciler) persist(ctx context.Context, batches []*normalize.Batch, at time.Time) map[types.Kind]error {
	errs := make(map[types.Kind]error)
	if r.store == nil {
		return errs
	}

	for _, batch := range batches {
		data, err := json.Marshal(batch)
		if err == nil {
			err = r.store.Set(ctx, storage.KindKey(batch.Kind), data)
		}
		if err != nil {
			err = fmt.Errorf("failed to persist %s: %w", batch.Kind, err)
			errs[batch.Kind] = err
			r.persistFailed(batch.Kind, err)
		}
	}

	if err := r.store.Set(ctx, storage.LastRefreshKey, []byte(at.Format(time.RFC3339))); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to persist last refresh time")
	}
	return errs
}

func (r *Reconciler) persistFailed(kind types.Kind, err error) {
	logger := log.WithKind(r.logger, kind)
	logger.Error().Err(err).Msg("Cache write failed")
	metrics.PersistFailuresTotal.WithLabelValues(string(kind)).Inc()
	r.publish(events.NewEvent(events.EventPersistFailed, kind, err.Error()))
}

// build derives relationships, and chains when demanded, over a merged set
func (r *Reconciler) build(set types.EntitySet, refreshedAt time.Time) types.Snapshot {
	snap := types.Snapshot{
		EntitySet:   relations.Rebuild(set),
		RefreshedAt: refreshedAt,
	}

	if r.ChainDemand() {
		chains := chain.Build(snap.Routes, snap.Services, snap.Upstreams, snap.Consumers)
		snap.Consumers = chain.AssignConsumerRoutes(snap.Consumers, chains)
		snap.Chains = chains
		return snap
	}

	// without chains consumer routes are unknown, not empty
	consumers := make([]types.Consumer, len(snap.Consumers))
	for i, c := range snap.Consumers {
		c.Routes = nil
		consumers[i] = c
	}
	snap.Consumers = consumers
	return snap
}

// swap publishes snap and records the end of a cycle when counted is set
func (r *Reconciler) swap(snap types.Snapshot, counted bool) {
	r.mu.Lock()
	r.snapshot = snap
	r.state = StateIdle
	if counted {
		r.cycles++
	}
	r.mu.Unlock()

	for _, kind := range types.AllKinds {
		metrics.EntitiesTotal.WithLabelValues(string(kind)).Set(float64(snap.Len(kind)))
	}
	if !snap.RefreshedAt.IsZero() {
		metrics.UpdateComponent(metrics.ComponentReconciler, true, "")
	}
}
