package chain

import (
	"strings"

	"github.com/cuemby/conduit/pkg/types"
)

// RestrictionPlugin is the plugin whose allow-list names consumers
const RestrictionPlugin = "consumer-restriction"

// AuthPlugins is the fixed set of plugin names that make a route
// "authenticated" for rule 3
var AuthPlugins = []string{"key-auth", "basic-auth", "jwt-auth", "oauth2"}

// Build returns one access chain per route, in route order. With no routes
// it returns a single Placeholder chain so callers can tell "nothing
// configured" from "not computed".
//
// The consumer of each chain is chosen by the first matching rule:
//
//  1. explicit: Route.ConsumerID names a known consumer
//  2. restriction: the first consumer-restriction allow-list entry naming a
//     known consumer
//  3. auth-plugin: the route has key-auth, basic-auth, jwt-auth or oauth2 and
//     at least one consumer exists; the first consumer is used
//  4. name-match: the route name contains a consumer username or id,
//     case-insensitively; first consumer in collection order
//  5. fallback: the first consumer, if any
//  6. none
//
// Rules 3 and 5 are guesses. They do not check that the chosen consumer is
// the one the plugin actually authenticates, and they always pick the first
// consumer of the collection. Consumers rely on this association in the
// console today, so the behavior is kept as is; Rule on each chain marks
// which rule produced it so callers can filter out the guesses.
//
// The upstream segment is the found service's UpstreamID as written, even
// when upstreams does not contain it; relations.Dangling reports those.
//
// Build is a pure function of its inputs and their order.
func Build(routes []types.Route, services []types.Service, upstreams []types.Upstream, consumers []types.Consumer) []types.AccessChain {
	if len(routes) == 0 {
		return []types.AccessChain{{Placeholder: true}}
	}

	serviceByID := make(map[string]types.Service, len(services))
	for _, s := range services {
		serviceByID[s.ID] = s
	}
	r := newResolver(consumers)

	chains := make([]types.AccessChain, 0, len(routes))
	for _, route := range routes {
		consumer, rule := r.resolve(route)
		ch := types.AccessChain{
			Consumer: consumer,
			Route:    route.ID,
			Service:  route.ServiceID,
			Rule:     rule,
		}
		if svc, ok := serviceByID[route.ServiceID]; ok && route.ServiceID != "" {
			ch.Upstream = svc.UpstreamID
		}
		chains = append(chains, ch)
	}
	return chains
}

// AssignConsumerRoutes returns copies of consumers with Routes recomputed
// from chains. Placeholder chains contribute nothing.
func AssignConsumerRoutes(consumers []types.Consumer, chains []types.AccessChain) []types.Consumer {
	byConsumer := make(map[string][]string, len(consumers))
	for _, ch := range chains {
		if ch.Placeholder || ch.Consumer == "" || ch.Route == "" {
			continue
		}
		byConsumer[ch.Consumer] = append(byConsumer[ch.Consumer], ch.Route)
	}

	out := make([]types.Consumer, len(consumers))
	for i, c := range consumers {
		c.Routes = byConsumer[c.ID]
		if c.Routes == nil {
			c.Routes = []string{}
		}
		out[i] = c
	}
	return out
}

type resolver struct {
	consumers []types.Consumer
	known     map[string]string
}

func newResolver(consumers []types.Consumer) *resolver {
	known := make(map[string]string, len(consumers)*2)
	for _, c := range consumers {
		if _, ok := known[c.ID]; !ok && c.ID != "" {
			known[c.ID] = c.ID
		}
		if _, ok := known[c.Username]; !ok && c.Username != "" {
			known[c.Username] = c.ID
		}
	}
	return &resolver{consumers: consumers, known: known}
}

func (r *resolver) resolve(route types.Route) (string, types.Rule) {
	if id, ok := r.known[route.ConsumerID]; ok && route.ConsumerID != "" {
		return id, types.RuleExplicit
	}

	for _, name := range allowList(route.Plugins[RestrictionPlugin]) {
		if id, ok := r.known[name]; ok {
			return id, types.RuleRestriction
		}
	}

	if len(r.consumers) == 0 {
		return "", types.RuleNone
	}

	for _, p := range AuthPlugins {
		if route.Plugins.Has(p) {
			return r.consumers[0].ID, types.RuleAuthPlugin
		}
	}

	routeName := strings.ToLower(route.Name)
	for _, c := range r.consumers {
		if contains(routeName, c.Username) || contains(routeName, c.ID) {
			return c.ID, types.RuleNameMatch
		}
	}

	return r.consumers[0].ID, types.RuleFallback
}

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, strings.ToLower(needle))
}

// allowList extracts the consumer names of a consumer-restriction config.
// Both the whitelist and allowlist spellings are read, whitelist first.
func allowList(conf any) []string {
	m, ok := conf.(map[string]any)
	if !ok {
		return nil
	}
	var names []string
	for _, key := range []string{"whitelist", "allowlist"} {
		switch list := m[key].(type) {
		case []any:
			for _, v := range list {
				if s, ok := v.(string); ok && s != "" {
					names = append(names, s)
				}
			}
		case []string:
			names = append(names, list...)
		}
	}
	return names
}
