/*
Package chain resolves access chains: for every route, the consumer that most
plausibly uses it, plus the service and upstream behind it.

	Consumer ──▶ Route ──▶ Service ──▶ Upstream
	 (heuristic)   (1:1)   (service_id) (upstream_id)

The control plane never stores "which consumer calls which route". Build
infers it with an ordered rule list; the order is part of the contract and
is covered by tests. See Build for the rules and their known imprecision.

AssignConsumerRoutes turns the chains back into the derived Consumer.Routes
field, fully recomputed each time like the other derived fields.
*/
package chain
