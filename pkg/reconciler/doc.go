/*
Package reconciler keeps the console's local snapshot of the gateway control
plane in step with the server.

The reconciler decides when a refresh runs and how its phases are ordered. It
owns one run loop goroutine; everything that mutates the snapshot happens
there, so two cycles can never interleave.

# Cycle

	trigger ─▶ Fetching ─▶ Normalizing ─▶ Persisting ─▶ Rebuilding ─▶ Idle
	            4× List      per kind       per kind      relations
	           (errgroup)    Decode +       cache Set     (+ chains)
	                         Normalize                    swap snapshot

Fetching lists all four kinds concurrently and waits for every one to settle.
A failed kind (transport error or an undecodable body) is marked Failed in its
KindStatus and keeps the entities of its last successful fetch; the other
kinds proceed. Only a successful fetch evicts entities.

Normalizing runs each fresh kind through package normalize with the cycle
start time as the clock, so entities without a creation time get the same
timestamp across the whole cycle.

Persisting writes each fresh kind's canonical JSON under storage.KindKey and
the cycle time under storage.LastRefreshKey. A failed write is logged,
counted and published as persist.failed; the snapshot is not rolled back and
the next cycle writes again.

Rebuilding recomputes Service.Routes and Upstream.Services over the merged
set and, when chain demand is on, the access chains and Consumer.Routes. The
result is swapped in under the lock as one immutable Snapshot.

# Triggers and Coalescing

	initial      first refresh after start-up
	manual       explicit refresh request
	visibility   the console became visible
	focus        the console regained focus
	navigation   the user moved to another view
	write        an Apply or Remove succeeded
	interval     Config.Interval elapsed

Trigger enqueues and returns. Refresh enqueues and waits for the report of a
cycle that started after the call. Requests that arrive while a cycle is
running wait in a pending list behind a one-slot wake channel; when the cycle
ends the loop takes the whole list and runs exactly one follow-up cycle for
all of them. Every waiter in that list gets the same Report.

# Reading

Snapshot, Routes, Services, Upstreams, Consumers and LastRefresh read the
published snapshot under a read lock and never block on a running cycle.
AccessChains returns the cached chains when the last cycle computed them and
otherwise builds them from the snapshot on the spot.

# Warm Start

Load reads the persisted kinds back before the first fetch, re-normalizes
them and publishes the result, so the console has data to show immediately.
Loading is not counted as a cycle.

# Writes

Apply and Remove go straight to the control plane through the client and
then fire a write trigger. The snapshot changes only through that refresh,
so it always reflects what the server accepted.

# Usage

	r := reconciler.NewReconciler(reconciler.Config{
		API:      adminClient,
		Store:    store,
		Broker:   broker,
		Interval: 30 * time.Second,
	})
	if _, err := r.Load(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("Cache load failed")
	}
	r.Start()
	defer r.Stop()

	report, err := r.Refresh(ctx, reconciler.TriggerInitial)
*/
package reconciler
