package types

import (
	"time"
)

// Kind identifies one of the entity collections mirrored from the control plane
type Kind string

const (
	KindRoute    Kind = "routes"
	KindService  Kind = "services"
	KindUpstream Kind = "upstreams"
	KindConsumer Kind = "consumers"
)

// AllKinds is the fixed order in which kinds are fetched, persisted and reported
var AllKinds = []Kind{KindRoute, KindService, KindUpstream, KindConsumer}

// Singular returns the singular noun for the kind ("route", "service", ...)
func (k Kind) Singular() string {
	switch k {
	case KindRoute:
		return "route"
	case KindService:
		return "service"
	case KindUpstream:
		return "upstream"
	case KindConsumer:
		return "consumer"
	default:
		return string(k)
	}
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind accepts plural or singular kind names
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds {
		if s == string(k) || s == k.Singular() {
			return k, true
		}
	}
	return "", false
}

// Status is the enable switch of routes, services and upstreams
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// ConsumerStatus is the activation state of a consumer
type ConsumerStatus string

const (
	ConsumerActive   ConsumerStatus = "active"
	ConsumerInactive ConsumerStatus = "inactive"
)

// Algorithm is an upstream load balancing algorithm
type Algorithm string

const (
	AlgorithmRoundRobin Algorithm = "roundrobin"
	AlgorithmCHash      Algorithm = "chash"
	AlgorithmEWMA       Algorithm = "ewma"
	AlgorithmLeastConn  Algorithm = "least_conn"
)

// Plugins maps a plugin name to its opaque configuration object
type Plugins map[string]any

// Has reports whether the named plugin is configured
func (p Plugins) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Route matches requests by path and method and forwards them,
// optionally through a Service
type Route struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	URI         string    `json:"uri" yaml:"uri"`
	Methods     []string  `json:"methods" yaml:"methods"`
	ServiceID   string    `json:"service_id,omitempty" yaml:"service_id,omitempty"`
	ConsumerID  string    `json:"consumer_id,omitempty" yaml:"consumer_id,omitempty"`
	Plugins     Plugins   `json:"plugins" yaml:"plugins"`
	Status      Status    `json:"status" yaml:"status"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Service bundles an upstream reference with plugin configuration
type Service struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	UpstreamID  string    `json:"upstream_id,omitempty" yaml:"upstream_id,omitempty"`
	Plugins     Plugins   `json:"plugins" yaml:"plugins"`
	Status      Status    `json:"status" yaml:"status"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`

	// Derived each cycle from the full route set
	Routes []string `json:"routes" yaml:"routes"`
}

// Node is one backend target of an upstream
type Node struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port" yaml:"port"`
	Weight int    `json:"weight" yaml:"weight"`
}

// Upstream is a named backend node pool
type Upstream struct {
	ID                 string    `json:"id" yaml:"id"`
	Name               string    `json:"name" yaml:"name"`
	Algorithm          Algorithm `json:"algorithm" yaml:"algorithm"`
	Nodes              []Node    `json:"nodes" yaml:"nodes"`
	HealthCheckEnabled bool      `json:"health_check_enabled" yaml:"health_check_enabled"`
	Status             Status    `json:"status" yaml:"status"`
	Description        string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt          time.Time `json:"created_at" yaml:"created_at"`

	// Derived each cycle from the full service set
	Services []string `json:"services" yaml:"services"`
}

// Consumer is an identity carrying authentication plugin configuration.
// ID always equals Username.
type Consumer struct {
	ID          string         `json:"id" yaml:"id"`
	Username    string         `json:"username" yaml:"username"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	AuthPlugins Plugins        `json:"auth_plugins" yaml:"auth_plugins"`
	Status      ConsumerStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`

	// Heuristically derived from access chains
	Routes []string `json:"routes" yaml:"routes"`
}

// Entity is implemented by the four canonical entity types
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

func (r Route) EntityKind() Kind    { return KindRoute }
func (r Route) EntityID() string    { return r.ID }
func (s Service) EntityKind() Kind  { return KindService }
func (s Service) EntityID() string  { return s.ID }
func (u Upstream) EntityKind() Kind { return KindUpstream }
func (u Upstream) EntityID() string { return u.ID }
func (c Consumer) EntityKind() Kind { return KindConsumer }
func (c Consumer) EntityID() string { return c.ID }

// Rule names the access-chain heuristic that produced a consumer association
type Rule string

const (
	RuleExplicit    Rule = "explicit"
	RuleRestriction Rule = "restriction"
	RuleAuthPlugin  Rule = "auth-plugin"
	RuleNameMatch   Rule = "name-match"
	RuleFallback    Rule = "fallback"
	RuleNone        Rule = "none"
)

// AccessChain is a read-only join of consumer, route, service and upstream.
// Every segment is optional. It is never persisted.
type AccessChain struct {
	Consumer    string `json:"consumer,omitempty" yaml:"consumer,omitempty"`
	Route       string `json:"route,omitempty" yaml:"route,omitempty"`
	Service     string `json:"service,omitempty" yaml:"service,omitempty"`
	Upstream    string `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Rule        Rule   `json:"rule,omitempty" yaml:"rule,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// EntitySet holds the four canonical collections in server order
type EntitySet struct {
	Routes    []Route
	Services  []Service
	Upstreams []Upstream
	Consumers []Consumer
}

// Len returns the number of entities of the given kind
func (s EntitySet) Len(kind Kind) int {
	switch kind {
	case KindRoute:
		return len(s.Routes)
	case KindService:
		return len(s.Services)
	case KindUpstream:
		return len(s.Upstreams)
	case KindConsumer:
		return len(s.Consumers)
	default:
		return 0
	}
}

// Snapshot is the published view of the engine. It is immutable once published.
type Snapshot struct {
	EntitySet
	Chains      []AccessChain
	RefreshedAt time.Time
}
