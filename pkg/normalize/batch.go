package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/conduit/pkg/types"
)

// Batch is the normalized content of one kind from one fetch
type Batch struct {
	Kind      types.Kind
	Routes    []types.Route
	Services  []types.Service
	Upstreams []types.Upstream
	Consumers []types.Consumer

	// Dropped counts records without an identifier (plus non-object list
	// elements); Duplicates counts repeated identifiers, first one wins
	Dropped    int
	Duplicates int
}

// Len returns the number of normalized entities in the batch
func (b *Batch) Len() int {
	switch b.Kind {
	case types.KindRoute:
		return len(b.Routes)
	case types.KindService:
		return len(b.Services)
	case types.KindUpstream:
		return len(b.Upstreams)
	case types.KindConsumer:
		return len(b.Consumers)
	default:
		return 0
	}
}

// ApplyTo replaces the batch's kind in set wholesale
func (b *Batch) ApplyTo(set *types.EntitySet) {
	switch b.Kind {
	case types.KindRoute:
		set.Routes = b.Routes
	case types.KindService:
		set.Services = b.Services
	case types.KindUpstream:
		set.Upstreams = b.Upstreams
	case types.KindConsumer:
		set.Consumers = b.Consumers
	}
}

// MarshalJSON encodes the batch as a JSON array of canonical entities, the
// form written to the cache store
func (b *Batch) MarshalJSON() ([]byte, error) {
	if b.Kind.Valid() && b.Len() == 0 {
		return []byte("[]"), nil
	}
	switch b.Kind {
	case types.KindRoute:
		return json.Marshal(b.Routes)
	case types.KindService:
		return json.Marshal(b.Services)
	case types.KindUpstream:
		return json.Marshal(b.Upstreams)
	case types.KindConsumer:
		return json.Marshal(b.Consumers)
	default:
		return nil, fmt.Errorf("unknown kind: %s", b.Kind)
	}
}

// NormalizeSource normalizes every record of a decoded list response
func (n *Normalizer) NormalizeSource(kind types.Kind, src Source) *Batch {
	batch := n.NormalizeAll(kind, src.Records())
	batch.Dropped += src.Skipped
	return batch
}

// NormalizeAll normalizes records in order. Records without an identifier
// are dropped; for repeated identifiers the first occurrence is kept.
func (n *Normalizer) NormalizeAll(kind types.Kind, records []Record) *Batch {
	batch := &Batch{Kind: kind}
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		entity, ok := n.Normalize(kind, rec)
		if !ok {
			batch.Dropped++
			continue
		}
		if seen[entity.EntityID()] {
			batch.Duplicates++
			continue
		}
		seen[entity.EntityID()] = true

		switch e := entity.(type) {
		case types.Route:
			batch.Routes = append(batch.Routes, e)
		case types.Service:
			batch.Services = append(batch.Services, e)
		case types.Upstream:
			batch.Upstreams = append(batch.Upstreams, e)
		case types.Consumer:
			batch.Consumers = append(batch.Consumers, e)
		}
	}

	return batch
}
