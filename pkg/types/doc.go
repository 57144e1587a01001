/*
Package types defines the canonical entities conduit mirrors from a gateway
control plane.

# Entities

Four kinds are mirrored, always handled in the order given by AllKinds:

  - Route: request matching rule (uri, methods) with an optional ServiceID
  - Service: plugin bundle with an optional UpstreamID
  - Upstream: backend node pool with a load balancing algorithm
  - Consumer: identity with authentication plugin configuration

Foreign keys (Route.ServiceID, Service.UpstreamID, Route.ConsumerID) are
plain strings. An empty string means "no reference" and is a legal terminal
state.

# Derived Fields

Service.Routes, Upstream.Services and Consumer.Routes are never written by
the normalizer. They are recomputed in full every refresh cycle:

	Service.Routes    = { r.ID | r.ServiceID == s.ID }
	Upstream.Services = { s.ID | s.UpstreamID == u.ID }
	Consumer.Routes   = { chain.Route | chain.Consumer == c.ID }

# Access Chains

AccessChain joins Consumer -> Route -> Service -> Upstream for reporting.
One chain exists per route; when there are no routes, a single chain with
Placeholder set signals an explicitly empty state. Rule records which
heuristic picked the consumer.

# JSON Shape

The JSON encoding of every entity is its canonical wire form. Feeding it back
through the normalizer yields the same entity, which is how the persisted
cache is reloaded at start-up.
*/
package types
