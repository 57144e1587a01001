package normalize

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/conduit/pkg/types"
)

// DefaultKeyPrefix is the storage path prefix of the control plane's keys
const DefaultKeyPrefix = "/apisix"

// defaultNodePort is used when an upstream node carries no port
const defaultNodePort = 80

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
	"HEAD": true, "OPTIONS": true, "CONNECT": true, "TRACE": true, "PURGE": true,
}

var algorithms = map[types.Algorithm]bool{
	types.AlgorithmRoundRobin: true,
	types.AlgorithmCHash:      true,
	types.AlgorithmEWMA:       true,
	types.AlgorithmLeastConn:  true,
}

// IsAuthPlugin reports whether a plugin carries consumer identity
// configuration (key-auth, basic-auth, jwt-auth, hmac-auth, ..., oauth2)
func IsAuthPlugin(name string) bool {
	return strings.HasSuffix(name, "-auth") || name == "oauth2"
}

// Normalizer converts raw records into canonical entities. It performs no
// I/O; the only input besides the record is the clock used when a record
// carries no creation time.
type Normalizer struct {
	keyPrefix string
	now       func() time.Time
}

// New creates a normalizer. An empty prefix selects DefaultKeyPrefix and a
// nil clock selects time.Now.
func New(keyPrefix string, now func() time.Time) *Normalizer {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		keyPrefix: strings.TrimSuffix(keyPrefix, "/"),
		now:       now,
	}
}

// Normalize converts one record with a default normalizer
func Normalize(kind types.Kind, rec Record) (types.Entity, bool) {
	return New("", nil).Normalize(kind, rec)
}

// Normalize converts one record of the given kind. It returns false when the
// record has no identifier or the kind is unknown; it never panics on
// malformed input.
func (n *Normalizer) Normalize(kind types.Kind, rec Record) (types.Entity, bool) {
	fields := n.unwrap(kind, rec)
	if fields == nil {
		return nil, false
	}

	switch kind {
	case types.KindRoute:
		return n.route(fields)
	case types.KindService:
		return n.service(fields)
	case types.KindUpstream:
		return n.upstream(fields)
	case types.KindConsumer:
		return n.consumer(fields)
	default:
		return nil, false
	}
}

// unwrap merges a {key, value} wrapper into a flat field map. The id is
// derived from the key only when value carries none.
func (n *Normalizer) unwrap(kind types.Kind, rec Record) map[string]any {
	if rec == nil {
		return nil
	}
	value, wrapped := rec["value"].(map[string]any)
	if !wrapped {
		return rec
	}

	fields := make(map[string]any, len(value)+1)
	for k, v := range value {
		fields[k] = v
	}
	if id(fields, "id") == "" {
		if key, ok := rec["key"].(string); ok {
			if derived := n.idFromKey(kind, key); derived != "" {
				fields["id"] = derived
			}
		}
	}
	return fields
}

func (n *Normalizer) idFromKey(kind types.Kind, key string) string {
	prefix := n.keyPrefix + "/" + string(kind) + "/"
	if strings.HasPrefix(key, prefix) {
		return strings.Trim(strings.TrimPrefix(key, prefix), "/")
	}
	key = strings.TrimRight(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func (n *Normalizer) route(f map[string]any) (types.Entity, bool) {
	routeID := id(f, "id")
	if routeID == "" {
		return nil, false
	}

	uri, _ := str(f, "uri")
	if uri == "" {
		if uris := stringList(f["uris"]); len(uris) > 0 {
			uri = uris[0]
		}
	}

	return types.Route{
		ID:          routeID,
		Name:        name(f, types.KindRoute, routeID),
		URI:         uri,
		Methods:     methods(f["methods"]),
		ServiceID:   id(f, "service_id", "serviceId"),
		ConsumerID:  id(f, "consumer_id", "consumer_name", "consumer"),
		Plugins:     plugins(f),
		Status:      status(f),
		Description: description(f),
		CreatedAt:   timestamp(f, n.now),
	}, true
}

func (n *Normalizer) service(f map[string]any) (types.Entity, bool) {
	serviceID := id(f, "id")
	if serviceID == "" {
		return nil, false
	}

	upstreamID := id(f, "upstream_id", "upstreamId")
	if upstreamID == "" {
		if inline, ok := object(f, "upstream"); ok {
			upstreamID = id(inline, "id")
		}
	}

	return types.Service{
		ID:          serviceID,
		Name:        name(f, types.KindService, serviceID),
		UpstreamID:  upstreamID,
		Plugins:     plugins(f),
		Status:      status(f),
		Description: description(f),
		CreatedAt:   timestamp(f, n.now),
	}, true
}

func (n *Normalizer) upstream(f map[string]any) (types.Entity, bool) {
	upstreamID := id(f, "id")
	if upstreamID == "" {
		return nil, false
	}

	algorithm := types.AlgorithmRoundRobin
	if s, ok := firstString(f, "algorithm", "type"); ok && algorithms[types.Algorithm(s)] {
		algorithm = types.Algorithm(s)
	}

	healthCheck := false
	if b, ok := f["health_check_enabled"].(bool); ok {
		healthCheck = b
	} else if checks, ok := object(f, "checks"); ok && len(checks) > 0 {
		healthCheck = true
	}

	return types.Upstream{
		ID:                 upstreamID,
		Name:               name(f, types.KindUpstream, upstreamID),
		Algorithm:          algorithm,
		Nodes:              nodes(f["nodes"]),
		HealthCheckEnabled: healthCheck,
		Status:             status(f),
		Description:        description(f),
		CreatedAt:          timestamp(f, n.now),
	}, true
}

func (n *Normalizer) consumer(f map[string]any) (types.Entity, bool) {
	username := id(f, "username", "id")
	if username == "" {
		return nil, false
	}

	auth := make(types.Plugins)
	if all, ok := object(f, "plugins"); ok {
		for k, v := range all {
			if IsAuthPlugin(k) {
				auth[k] = v
			}
		}
	}
	if explicit, ok := object(f, "auth_plugins"); ok {
		for k, v := range explicit {
			auth[k] = v
		}
	}

	consumerStatus := types.ConsumerActive
	if on, ok := enabled(f["status"]); ok && !on {
		consumerStatus = types.ConsumerInactive
	}

	return types.Consumer{
		ID:          username,
		Username:    username,
		Description: description(f),
		AuthPlugins: auth,
		Status:      consumerStatus,
		CreatedAt:   timestamp(f, n.now),
	}, true
}

func name(f map[string]any, kind types.Kind, entityID string) string {
	if s, ok := str(f, "name"); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return kind.Singular() + "-" + entityID
}

func description(f map[string]any) string {
	s, _ := firstString(f, "description", "desc")
	return s
}

func status(f map[string]any) types.Status {
	if on, ok := enabled(f["status"]); ok && !on {
		return types.StatusDisabled
	}
	return types.StatusEnabled
}

func plugins(f map[string]any) types.Plugins {
	if m, ok := object(f, "plugins"); ok {
		return types.Plugins(copyPlugins(m))
	}
	return types.Plugins{}
}

// methods returns a sorted, de-duplicated set of known method tokens,
// defaulting to GET
func methods(v any) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range stringList(v) {
		m = strings.ToUpper(strings.TrimSpace(m))
		if !httpMethods[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	if len(out) == 0 {
		return []string{"GET"}
	}
	sort.Strings(out)
	return out
}

// nodes accepts both the list form [{host, port, weight}] and the map form
// {"host:port": weight}. Map keys are visited in sorted order.
func nodes(v any) []types.Node {
	out := []types.Node{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			host, _ := str(m, "host")
			port, hasPort := integer(m, "port")
			weight, hasWeight := integer(m, "weight")
			if node, ok := buildNode(host, port, hasPort, weight, hasWeight); ok {
				out = append(out, node)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			weight, hasWeight := integer(t, k)
			if node, ok := buildNode(k, 0, false, weight, hasWeight); ok {
				out = append(out, node)
			}
		}
	}
	return out
}

func buildNode(host string, port int, hasPort bool, weight int, hasWeight bool) (types.Node, bool) {
	host = strings.TrimSpace(host)
	if !hasPort {
		if h, p, err := net.SplitHostPort(host); err == nil {
			if parsed, err := strconv.Atoi(p); err == nil {
				host, port, hasPort = h, parsed, true
			}
		}
	}
	if host == "" {
		return types.Node{}, false
	}
	if !hasPort {
		port = defaultNodePort
	}
	if port <= 0 || port > 65535 {
		return types.Node{}, false
	}
	if !hasWeight {
		weight = 1
	}
	if weight <= 0 {
		return types.Node{}, false
	}
	return types.Node{Host: host, Port: port, Weight: weight}, true
}
