/*
Package health probes the console's external dependencies.

The reconciler already reports each kind's fetch outcome, but only when a
cycle runs. With periodic refresh disabled the console may sit idle for a
long time, so a Monitor checks the admin API and the redis cache on its own
interval and publishes the result as health components.

# Architecture

	┌──────────────────────────── Monitor ──────────────────────────┐
	│  one goroutine per probe, Interval ticker, Timeout per check   │
	└────────┬──────────────────────────────┬───────────────────────┘
	         │                              │
	   ┌─────▼──────┐                 ┌─────▼──────┐
	   │HTTPChecker │                 │ TCPChecker │
	   │ GET admin  │                 │ dial redis │
	   │ +X-API-KEY │                 │            │
	   └─────┬──────┘                 └─────┬──────┘
	         └──────────────┬───────────────┘
	                        ▼
	          Status.Update (Retries threshold)
	                        ▼
	      metrics.UpdateComponent("probe/<name>")

# Thresholds

A probe turns unhealthy after Retries consecutive failures and recovers on
the first success. Probe components are not critical, so an unreachable
admin API makes /health report "degraded" while the console keeps serving
its last snapshot, and /ready is unaffected.

Transitions are logged at info (recovered) and warn (unhealthy). Individual
failures below the threshold are logged at debug.

# Usage

	m := health.NewMonitor(health.Config{Interval: 30 * time.Second, Retries: 3})
	m.Add("admin", health.NewHTTPChecker(adminURL+"/apisix/admin/routes").
		WithHeader("X-API-KEY", apiKey))
	m.Add("cache", health.NewTCPChecker("localhost:6379"))
	m.Start()
	defer m.Stop()
*/
package health
