/*
Package metrics provides Prometheus metrics and health reporting for the
console.

All collectors live in the default registry and are registered in init, so
any package can record on them without wiring. Handler exposes them for
scraping.

# Metrics

Refresh cycles:

	conduit_refresh_cycles_total{trigger}        cycles by trigger source
	conduit_refresh_duration_seconds             cycle duration histogram
	conduit_refresh_coalesced_total              triggers folded into a pending cycle
	conduit_last_refresh_timestamp_seconds       unix time of the last cycle

Per kind:

	conduit_fetch_failures_total{kind}           failed List calls
	conduit_records_dropped_total{kind}          records discarded by the normalizer
	conduit_persist_failures_total{kind}         failed cache writes
	conduit_entities{kind}                       entities in the snapshot

Other:

	conduit_snapshot_age_seconds                 sampled by Collector
	conduit_writes_total{kind,op,status}         Apply and Remove outcomes
	conduit_api_requests_total{route,status}     presentation API requests
	conduit_api_request_duration_seconds{route}

A high conduit_refresh_coalesced_total relative to cycles means triggers
arrive faster than cycles finish, which is expected while a user is clicking
around. A rising conduit_snapshot_age_seconds with fetch failures means the
console is showing stale data.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RefreshDuration)

# Health

The health checker tracks named components. Three are critical:

	reconciler   healthy once a snapshot has been published
	cache        the persisted cache store opened
	api          the presentation API is listening

Each kind also has a component (KindComponent) that turns unhealthy while its
last fetch failed. A stale kind only makes overall health "degraded": the
console keeps serving the previous data. A failed critical component makes it
"unhealthy". Readiness only looks at the critical components.

	/health   200 healthy or degraded, 503 unhealthy
	/ready    200 ready, 503 not_ready
	/live     always 200 while the process runs
*/
package metrics
