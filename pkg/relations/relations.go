package relations

import (
	"github.com/cuemby/conduit/pkg/types"
)

// Reference is a foreign key that points at an entity missing from the set
type Reference struct {
	FromKind types.Kind `json:"from_kind"`
	FromID   string     `json:"from_id"`
	ToKind   types.Kind `json:"to_kind"`
	ToID     string     `json:"to_id"`
}

// Rebuild recomputes Service.Routes and Upstream.Services from the full
// entity set. Derived fields are replaced, never merged, so edges to
// removed entities disappear in the same call. The input slices are not
// modified; services and upstreams are copied before assignment.
func Rebuild(set types.EntitySet) types.EntitySet {
	routesByService := make(map[string][]string, len(set.Services))
	for _, r := range set.Routes {
		if r.ServiceID == "" {
			continue
		}
		routesByService[r.ServiceID] = append(routesByService[r.ServiceID], r.ID)
	}

	servicesByUpstream := make(map[string][]string, len(set.Upstreams))
	for _, s := range set.Services {
		if s.UpstreamID == "" {
			continue
		}
		servicesByUpstream[s.UpstreamID] = append(servicesByUpstream[s.UpstreamID], s.ID)
	}

	services := make([]types.Service, len(set.Services))
	for i, s := range set.Services {
		s.Routes = nonNil(routesByService[s.ID])
		services[i] = s
	}

	upstreams := make([]types.Upstream, len(set.Upstreams))
	for i, u := range set.Upstreams {
		u.Services = nonNil(servicesByUpstream[u.ID])
		upstreams[i] = u
	}

	return types.EntitySet{
		Routes:    set.Routes,
		Services:  services,
		Upstreams: upstreams,
		Consumers: set.Consumers,
	}
}

// Dangling lists route->service and service->upstream references whose
// target is not in the set. Dangling references are legal; they are only
// reported.
func Dangling(set types.EntitySet) []Reference {
	serviceIDs := make(map[string]bool, len(set.Services))
	for _, s := range set.Services {
		serviceIDs[s.ID] = true
	}
	upstreamIDs := make(map[string]bool, len(set.Upstreams))
	for _, u := range set.Upstreams {
		upstreamIDs[u.ID] = true
	}

	refs := []Reference{}
	for _, r := range set.Routes {
		if r.ServiceID != "" && !serviceIDs[r.ServiceID] {
			refs = append(refs, Reference{
				FromKind: types.KindRoute, FromID: r.ID,
				ToKind: types.KindService, ToID: r.ServiceID,
			})
		}
	}
	for _, s := range set.Services {
		if s.UpstreamID != "" && !upstreamIDs[s.UpstreamID] {
			refs = append(refs, Reference{
				FromKind: types.KindService, FromID: s.ID,
				ToKind: types.KindUpstream, ToID: s.UpstreamID,
			})
		}
	}
	return refs
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
