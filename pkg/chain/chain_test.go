package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/conduit/pkg/types"
)

func consumers(names ...string) []types.Consumer {
	out := make([]types.Consumer, 0, len(names))
	for _, n := range names {
		out = append(out, types.Consumer{ID: n, Username: n})
	}
	return out
}

func restriction(names ...any) types.Plugins {
	return types.Plugins{RestrictionPlugin: map[string]any{"whitelist": names}}
}

func TestBuildExampleScenario(t *testing.T) {
	chains := Build(
		[]types.Route{{ID: "r1", ServiceID: "s1"}},
		[]types.Service{{ID: "s1", UpstreamID: "u1"}},
		[]types.Upstream{{ID: "u1"}},
		nil,
	)

	assert.Equal(t, []types.AccessChain{
		{Route: "r1", Service: "s1", Upstream: "u1", Rule: types.RuleNone},
	}, chains)
	assert.Empty(t, chains[0].Consumer)
}

func TestBuildPlaceholderWhenNoRoutes(t *testing.T) {
	chains := Build(nil, nil, nil, consumers("jack"))
	require.Len(t, chains, 1)
	assert.True(t, chains[0].Placeholder)
	assert.Empty(t, chains[0].Route)
	assert.Empty(t, chains[0].Consumer)
}

func TestBuildCardinality(t *testing.T) {
	for _, n := range []int{1, 2, 7} {
		routes := make([]types.Route, n)
		for i := range routes {
			routes[i] = types.Route{ID: string(rune('a' + i))}
		}
		chains := Build(routes, nil, nil, consumers("jack"))
		require.Len(t, chains, n)
		for i, ch := range chains {
			assert.Equal(t, routes[i].ID, ch.Route)
			assert.False(t, ch.Placeholder)
		}
	}
}

func TestResolutionRules(t *testing.T) {
	tests := []struct {
		name      string
		route     types.Route
		consumers []types.Consumer
		consumer  string
		rule      types.Rule
	}{
		{
			name:      "explicit beats restriction",
			route:     types.Route{ID: "r", ConsumerID: "rose", Plugins: restriction("jack")},
			consumers: consumers("jack", "rose"),
			consumer:  "rose",
			rule:      types.RuleExplicit,
		},
		{
			name:      "unknown explicit falls through to restriction",
			route:     types.Route{ID: "r", ConsumerID: "ghost", Plugins: restriction("ghost", "rose")},
			consumers: consumers("jack", "rose"),
			consumer:  "rose",
			rule:      types.RuleRestriction,
		},
		{
			name: "allowlist spelling",
			route: types.Route{ID: "r", Plugins: types.Plugins{
				RestrictionPlugin: map[string]any{"allowlist": []any{"rose"}},
			}},
			consumers: consumers("jack", "rose"),
			consumer:  "rose",
			rule:      types.RuleRestriction,
		},
		{
			name: "restriction beats auth plugin",
			route: types.Route{ID: "r", Plugins: types.Plugins{
				RestrictionPlugin: map[string]any{"whitelist": []any{"rose"}},
				"key-auth":        map[string]any{},
			}},
			consumers: consumers("jack", "rose"),
			consumer:  "rose",
			rule:      types.RuleRestriction,
		},
		{
			name:      "auth plugin picks first consumer even when name matches another",
			route:     types.Route{ID: "r", Name: "rose-api", Plugins: types.Plugins{"jwt-auth": map[string]any{}}},
			consumers: consumers("jack", "rose"),
			consumer:  "jack",
			rule:      types.RuleAuthPlugin,
		},
		{
			name:      "name match is case-insensitive",
			route:     types.Route{ID: "r", Name: "ROSE-Orders"},
			consumers: consumers("jack", "rose"),
			consumer:  "rose",
			rule:      types.RuleNameMatch,
		},
		{
			name:      "name match uses consumer order",
			route:     types.Route{ID: "r", Name: "jack-and-rose"},
			consumers: consumers("rose", "jack"),
			consumer:  "rose",
			rule:      types.RuleNameMatch,
		},
		{
			name:      "fallback to first consumer",
			route:     types.Route{ID: "r", Name: "public"},
			consumers: consumers("jack", "rose"),
			consumer:  "jack",
			rule:      types.RuleFallback,
		},
		{
			name:      "auth plugin without consumers",
			route:     types.Route{ID: "r", Plugins: types.Plugins{"basic-auth": map[string]any{}}},
			consumers: nil,
			consumer:  "",
			rule:      types.RuleNone,
		},
		{
			name:      "non-auth plugin does not trigger rule 3",
			route:     types.Route{ID: "r", Name: "rose", Plugins: types.Plugins{"limit-count": map[string]any{}}},
			consumers: consumers("jack", "rose"),
			consumer:  "rose",
			rule:      types.RuleNameMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chains := Build([]types.Route{tt.route}, nil, nil, tt.consumers)
			require.Len(t, chains, 1)
			assert.Equal(t, tt.consumer, chains[0].Consumer)
			assert.Equal(t, tt.rule, chains[0].Rule)
		})
	}
}

func TestBuildSegmentsIndependentlyOptional(t *testing.T) {
	routes := []types.Route{
		{ID: "r1"},
		{ID: "r2", ServiceID: "s-missing"},
		{ID: "r3", ServiceID: "s2"},
		{ID: "r4", ServiceID: "s1"},
	}
	services := []types.Service{{ID: "s1", UpstreamID: "u1"}, {ID: "s2"}}

	chains := Build(routes, services, []types.Upstream{{ID: "u1"}}, nil)
	require.Len(t, chains, 4)

	assert.Equal(t, types.AccessChain{Route: "r1", Rule: types.RuleNone}, chains[0])
	assert.Equal(t, types.AccessChain{Route: "r2", Service: "s-missing", Rule: types.RuleNone}, chains[1])
	assert.Equal(t, types.AccessChain{Route: "r3", Service: "s2", Rule: types.RuleNone}, chains[2])
	assert.Equal(t, types.AccessChain{Route: "r4", Service: "s1", Upstream: "u1", Rule: types.RuleNone}, chains[3])
}

func TestBuildDeterministic(t *testing.T) {
	routes := []types.Route{
		{ID: "r1", Name: "rose-api"},
		{ID: "r2", Plugins: types.Plugins{"key-auth": map[string]any{}}},
		{ID: "r3", Plugins: restriction("rose")},
	}
	cs := consumers("jack", "rose")

	first := Build(routes, nil, nil, cs)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Build(routes, nil, nil, cs))
	}
}

func TestAssignConsumerRoutes(t *testing.T) {
	cs := consumers("jack", "rose", "lily")
	chains := []types.AccessChain{
		{Consumer: "jack", Route: "r1"},
		{Consumer: "rose", Route: "r2"},
		{Consumer: "jack", Route: "r3"},
		{Route: "r4"},
	}

	out := AssignConsumerRoutes(cs, chains)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"r1", "r3"}, out[0].Routes)
	assert.Equal(t, []string{"r2"}, out[1].Routes)
	assert.Equal(t, []string{}, out[2].Routes)

	// input untouched and previous derived values are not merged
	assert.Nil(t, cs[0].Routes)
	again := AssignConsumerRoutes(out, []types.AccessChain{{Consumer: "rose", Route: "r9"}})
	assert.Equal(t, []string{}, again[0].Routes)
	assert.Equal(t, []string{"r9"}, again[1].Routes)

	placeholder := AssignConsumerRoutes(cs, []types.AccessChain{{Placeholder: true}})
	assert.Equal(t, []string{}, placeholder[0].Routes)
}
