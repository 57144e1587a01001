/*
Package client implements the HTTP client for the gateway admin API.

The reconciler only needs three calls, captured by the API interface:

	List(ctx, kind)             GET    <base>/apisix/admin/<kind>
	Put(ctx, kind, id, body)    PUT    <base>/apisix/admin/<kind>/<id>
	Delete(ctx, kind, id)       DELETE <base>/apisix/admin/<kind>/<id>

List returns the response body untouched. Decoding the several shapes the
admin API has used over the years (bare arrays, {"list": [...]}, the legacy
{"node": {"nodes": [...]}}) is the job of package normalize.

# Authentication

Every request carries the admin key in the X-API-KEY header when one is
configured.

# Throttling

When Config.RateLimit is set, requests wait on a token bucket
(golang.org/x/time/rate) before they are sent. A refresh cycle issues one
List per kind at once, so a burst of at least four keeps a cycle from being
serialized. Waiting honours the request context.

# Errors

	404              wraps ErrNotFound, test with errors.Is
	other non-2xx    *StatusError with the code and a truncated body
	transport        wrapped net/http error

# Usage

	c, err := client.NewClient(client.Config{
		BaseURL:   "http://127.0.0.1:9180",
		APIKey:    os.Getenv("CONDUIT_API_KEY"),
		RateLimit: 20,
		Burst:     4,
	})
	if err != nil {
		return err
	}

	body, err := c.List(ctx, types.KindRoute)
*/
package client
