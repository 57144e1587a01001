/*
Package normalize turns raw control-plane records into canonical entities.

# Raw Records

The admin API answers list requests in more than one shape. Decode hides
that behind a tagged Source:

	[ {...}, {...} ]                               -> ShapeArray
	{"list": [ {"key": k, "value": {...}}, ... ]}  -> ShapeWrapped
	{"node": {"nodes": [ ... ]}}                   -> ShapeWrapped (legacy)

A wrapped record keeps its storage path in key. When value has no id, the id
is the key with "<prefix>/<kind>/" stripped (the last path segment when the
prefix does not match).

# Normalization

Normalizer.Normalize applies, per kind:

  - aliases: desc, serviceId, upstreamId, inline upstream.id, uris[0],
    type (upstream algorithm), checks (health check), consumer_name
  - status encodings: 1/0, true/false and the enum strings
  - defaults: methods [GET], empty plugins, name "<kind>-<id>",
    algorithm roundrobin, node weight 1, node port 80
  - creation time: create_time (epoch seconds or milliseconds), then
    created_at (RFC 3339), then the normalizer clock

Records without an identifier are dropped, never propagated with an empty
id. Normalization has no side effects: the same record and clock always
produce the same entity, and the JSON encoding of an entity normalizes back
to itself.

# Batches

NormalizeSource and NormalizeAll produce a Batch for one kind, keeping
server order and the first occurrence of repeated ids. A Batch marshals to
the JSON array that the reconciler writes to the cache store.
*/
package normalize
