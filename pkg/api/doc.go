/*
Package api implements the console's HTTP presentation API.

The server is a thin layer over the reconciler. Reads come from the published
snapshot and never wait for a running cycle; writes go through the
reconciler to the control plane and return once the server has accepted
them, before the follow-up refresh has finished.

# Architecture

	┌──────────────── CONSOLE (browser / conduit CLI) ──────────────┐
	│   GET lists       PUT/DELETE       triggers      websocket     │
	└──────┬──────────────┬───────────────┬──────────────┬──────────┘
	       │              │               │              │
	┌──────▼──────────────▼───────────────▼──────────────▼──────────┐
	│                    api.Server (gorilla/mux)                     │
	│   instrument ─▶ readOnlyGuard ─▶ handler                        │
	└──────┬──────────────┬───────────────┬──────────────┬──────────┘
	       │ Snapshot     │ Apply/Remove  │ Trigger      │ Subscribe
	┌──────▼──────────────▼───────────────▼────┐  ┌──────▼──────────┐
	│            reconciler.Reconciler          │─▶│  events.Broker  │
	└───────────────────────────────────────────┘  └─────────────────┘

# Endpoints

	GET    /api/v1/{kind}              list one kind in server order
	GET    /api/v1/{kind}/{id}         one entity, 404 when absent
	PUT    /api/v1/{kind}/{id}         create or replace, 202
	DELETE /api/v1/{kind}/{id}         delete, 202
	GET    /api/v1/chains              access chains; turns chain demand on
	GET    /api/v1/relations/dangling  references to missing entities
	POST   /api/v1/refresh             run a manual cycle and return its report
	POST   /api/v1/triggers/{source}   visibility, focus or navigation, 202
	GET    /api/v1/status              reconciler state and per-kind status
	GET    /api/v1/events              websocket stream of lifecycle notices

	GET    /health /ready /live        probes backed by package metrics
	GET    /metrics                    Prometheus exposition

{kind} accepts the plural or singular name (routes or route). Unknown kinds
answer 404. Every error body is {"error": "..."}.

# Write Errors

	control plane 404              404
	control plane 400              400
	other status or unreachable    502
	server started read-only       403

PUT bodies must be a JSON object of at most 1 MiB and are forwarded to the
control plane unchanged.

# Metrics

Every matched request is counted in conduit_api_requests_total and timed in
conduit_api_request_duration_seconds, labelled by route template so ids do
not create new series.

# Usage

	srv := api.NewServer(api.Config{Engine: rec, Broker: broker})
	go func() {
		if err := srv.Start("127.0.0.1:9990"); err != nil {
			log.Logger.Error().Err(err).Msg("API server failed")
		}
	}()
	defer srv.Shutdown(ctx)
*/
package api
