package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/conduit/pkg/client"
	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/relations"
	"github.com/cuemby/conduit/pkg/storage"
	"github.com/cuemby/conduit/pkg/types"
)

// fakeEngine serves a fixed snapshot and records what the API asked of it
type fakeEngine struct {
	mu         sync.Mutex
	snap       types.Snapshot
	chains     []types.AccessChain
	demand     bool
	triggers   []reconciler.TriggerSource
	writeErr   error
	applied    []string
	removed    []string
	report     reconciler.Report
	refreshErr error
}

func (f *fakeEngine) Snapshot() types.Snapshot { return f.snap }

func (f *fakeEngine) AccessChains() []types.AccessChain { return f.chains }

func (f *fakeEngine) SetChainDemand(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.demand = on
}

func (f *fakeEngine) ChainDemand() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.demand
}

func (f *fakeEngine) Refresh(ctx context.Context, source reconciler.TriggerSource) (reconciler.Report, error) {
	report := f.report
	report.Trigger = source
	return report, f.refreshErr
}

func (f *fakeEngine) Trigger(source reconciler.TriggerSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, source)
}

func (f *fakeEngine) Apply(ctx context.Context, kind types.Kind, id string, payload []byte) error {
	if f.writeErr != nil {
		return fmt.Errorf("failed to apply %s %s: %w", kind.Singular(), id, f.writeErr)
	}
	f.applied = append(f.applied, string(kind)+"/"+id)
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, kind types.Kind, id string) error {
	if f.writeErr != nil {
		return fmt.Errorf("failed to remove %s %s: %w", kind.Singular(), id, f.writeErr)
	}
	f.removed = append(f.removed, string(kind)+"/"+id)
	return nil
}

func (f *fakeEngine) State() reconciler.State { return reconciler.StateIdle }

func (f *fakeEngine) KindStatuses() []reconciler.KindStatus {
	out := make([]reconciler.KindStatus, 0, len(types.AllKinds))
	for _, kind := range types.AllKinds {
		out = append(out, reconciler.KindStatus{Kind: kind, Count: f.snap.Len(kind)})
	}
	return out
}

func (f *fakeEngine) Cycles() uint64 { return 3 }

func sampleSnapshot() types.Snapshot {
	return types.Snapshot{
		EntitySet: types.EntitySet{
			Routes: []types.Route{
				{ID: "r1", Name: "orders", URI: "/orders/*", ServiceID: "s1", Status: types.StatusEnabled},
				{ID: "r2", Name: "legacy", URI: "/legacy", ServiceID: "s9", Status: types.StatusDisabled},
			},
			Services: []types.Service{
				{ID: "s1", Name: "orders", UpstreamID: "u1", Status: types.StatusEnabled, Routes: []string{"r1"}},
			},
			Upstreams: []types.Upstream{
				{ID: "u1", Name: "orders", Algorithm: types.AlgorithmRoundRobin, Services: []string{"s1"}},
			},
		},
		RefreshedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func TestListAndGet(t *testing.T) {
	srv := NewServer(Config{Engine: &fakeEngine{snap: sampleSnapshot()}})
	h := srv.Handler()

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedBody   string
	}{
		{name: "list routes", path: "/api/v1/routes", expectedStatus: http.StatusOK, expectedBody: `"id":"r2"`},
		{name: "singular kind", path: "/api/v1/route", expectedStatus: http.StatusOK, expectedBody: `"id":"r1"`},
		{name: "empty kind is an array", path: "/api/v1/consumers", expectedStatus: http.StatusOK, expectedBody: "[]"},
		{name: "get service", path: "/api/v1/services/s1", expectedStatus: http.StatusOK, expectedBody: `"routes":["r1"]`},
		{name: "get upstream", path: "/api/v1/upstream/u1", expectedStatus: http.StatusOK, expectedBody: `"services":["s1"]`},
		{name: "missing id", path: "/api/v1/routes/nope", expectedStatus: http.StatusNotFound, expectedBody: "route not found: nope"},
		{name: "unknown kind", path: "/api/v1/plugins", expectedStatus: http.StatusNotFound, expectedBody: "unknown kind: plugins"},
		{name: "unknown kind with id", path: "/api/v1/ssl/1", expectedStatus: http.StatusNotFound, expectedBody: "unknown kind: ssl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}

func TestPut(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		body           string
		writeErr       error
		expectedStatus int
	}{
		{name: "accepted", path: "/api/v1/routes/r3", body: `{"uri":"/new"}`, expectedStatus: http.StatusAccepted},
		{name: "array body", path: "/api/v1/routes/r3", body: `[1,2]`, expectedStatus: http.StatusBadRequest},
		{name: "null body", path: "/api/v1/routes/r3", body: `null`, expectedStatus: http.StatusBadRequest},
		{name: "broken json", path: "/api/v1/routes/r3", body: `{"uri":`, expectedStatus: http.StatusBadRequest},
		{name: "too large", path: "/api/v1/routes/r3", body: `{"desc":"` + strings.Repeat("x", maxPayload) + `"}`, expectedStatus: http.StatusRequestEntityTooLarge},
		{name: "unknown kind", path: "/api/v1/widgets/w1", body: `{}`, expectedStatus: http.StatusNotFound},
		{
			name: "server rejects payload", path: "/api/v1/routes/r3", body: `{}`,
			writeErr:       &client.StatusError{Method: http.MethodPut, Code: http.StatusBadRequest, Body: "invalid uri"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "server error", path: "/api/v1/routes/r3", body: `{}`,
			writeErr:       &client.StatusError{Method: http.MethodPut, Code: http.StatusInternalServerError},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "not found upstream", path: "/api/v1/routes/r3", body: `{}`,
			writeErr:       fmt.Errorf("PUT: %w", client.ErrNotFound),
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "unreachable", path: "/api/v1/routes/r3", body: `{}`,
			writeErr:       errors.New("connection refused"),
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{writeErr: tt.writeErr}
			srv := NewServer(Config{Engine: engine})

			w := serve(t, srv.Handler(), http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			if tt.expectedStatus == http.StatusAccepted {
				assert.Equal(t, []string{"routes/r3"}, engine.applied)
			} else {
				assert.Empty(t, engine.applied)
				assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	engine := &fakeEngine{}
	srv := NewServer(Config{Engine: engine})

	w := serve(t, srv.Handler(), http.MethodDelete, "/api/v1/consumer/alice", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"consumers/alice"}, engine.removed)

	engine.writeErr = client.ErrNotFound
	w = serve(t, srv.Handler(), http.MethodDelete, "/api/v1/consumers/bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadOnly(t *testing.T) {
	engine := &fakeEngine{snap: sampleSnapshot()}
	srv := NewServer(Config{Engine: engine, ReadOnly: true})
	h := srv.Handler()

	assert.Equal(t, http.StatusForbidden, serve(t, h, http.MethodPut, "/api/v1/routes/r1", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, h, http.MethodDelete, "/api/v1/routes/r1", "").Code)
	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/api/v1/routes/r1", "").Code)
	assert.Empty(t, engine.applied)
	assert.Empty(t, engine.removed)
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		source         string
		expectedStatus int
	}{
		{source: "visibility", expectedStatus: http.StatusAccepted},
		{source: "focus", expectedStatus: http.StatusAccepted},
		{source: "navigation", expectedStatus: http.StatusAccepted},
		{source: "manual", expectedStatus: http.StatusBadRequest},
		{source: "write", expectedStatus: http.StatusBadRequest},
		{source: "hover", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			engine := &fakeEngine{}
			srv := NewServer(Config{Engine: engine})

			w := serve(t, srv.Handler(), http.MethodPost, "/api/v1/triggers/"+tt.source, "")
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusAccepted {
				assert.Equal(t, []reconciler.TriggerSource{reconciler.TriggerSource(tt.source)}, engine.triggers)
			} else {
				assert.Empty(t, engine.triggers)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	engine := &fakeEngine{report: reconciler.Report{
		Coalesced: 2,
		Duration:  1500 * time.Millisecond,
		Kinds: []reconciler.KindReport{
			{Kind: types.KindRoute, Count: 2, Dropped: 1},
			{Kind: types.KindService, Err: errors.New("connection refused")},
		},
	}}
	srv := NewServer(Config{Engine: engine})

	w := serve(t, srv.Handler(), http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[RefreshResponse](t, w)
	assert.Equal(t, reconciler.TriggerManual, resp.Trigger)
	assert.Equal(t, 2, resp.Coalesced)
	assert.Equal(t, int64(1500), resp.DurationMs)
	require.Len(t, resp.Kinds, 2)
	assert.Equal(t, 1, resp.Kinds[0].Dropped)
	assert.Empty(t, resp.Kinds[0].Error)
	assert.Equal(t, "connection refused", resp.Kinds[1].Error)

	engine.refreshErr = reconciler.ErrStopped
	w = serve(t, srv.Handler(), http.MethodPost, "/api/v1/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(t, srv.Handler(), http.MethodDelete, "/api/v1/refresh", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "method not allowed")
}

func TestChainsTurnDemandOn(t *testing.T) {
	engine := &fakeEngine{chains: []types.AccessChain{
		{Consumer: "alice", Route: "r1", Service: "s1", Upstream: "u1", Rule: types.RuleExplicit},
	}}
	srv := NewServer(Config{Engine: engine})
	require.False(t, engine.ChainDemand())

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/chains", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, engine.ChainDemand())

	chains := decode[[]types.AccessChain](t, w)
	require.Len(t, chains, 1)
	assert.Equal(t, types.RuleExplicit, chains[0].Rule)

	engine.chains = nil
	w = serve(t, srv.Handler(), http.MethodGet, "/api/v1/chains", "")
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestDangling(t *testing.T) {
	srv := NewServer(Config{Engine: &fakeEngine{snap: sampleSnapshot()}})

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/relations/dangling", "")
	require.Equal(t, http.StatusOK, w.Code)

	refs := decode[[]relations.Reference](t, w)
	assert.Equal(t, []relations.Reference{
		{FromKind: types.KindRoute, FromID: "r2", ToKind: types.KindService, ToID: "s9"},
	}, refs)
}

func TestStatus(t *testing.T) {
	srv := NewServer(Config{Engine: &fakeEngine{snap: sampleSnapshot()}})

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[StatusResponse](t, w)
	assert.Equal(t, reconciler.StateIdle, status.State)
	assert.Equal(t, uint64(3), status.Cycles)
	require.NotNil(t, status.LastRefresh)
	assert.True(t, status.LastRefresh.Equal(sampleSnapshot().RefreshedAt))
	require.Len(t, status.Kinds, 4)
	assert.Equal(t, 2, status.Kinds[0].Count)

	srv = NewServer(Config{Engine: &fakeEngine{}})
	w = serve(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	assert.NotContains(t, w.Body.String(), "last_refresh")
}

func counterValue(t *testing.T, route, code string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.APIRequestsTotal.WithLabelValues(route, code).Write(&m))
	return m.GetCounter().GetValue()
}

func TestInstrumentUsesRouteTemplate(t *testing.T) {
	srv := NewServer(Config{Engine: &fakeEngine{snap: sampleSnapshot()}})
	before := counterValue(t, "/api/v1/{kind}/{id}", "200")
	missing := counterValue(t, "/api/v1/{kind}/{id}", "404")

	serve(t, srv.Handler(), http.MethodGet, "/api/v1/routes/r1", "")
	serve(t, srv.Handler(), http.MethodGet, "/api/v1/routes/r2", "")
	serve(t, srv.Handler(), http.MethodGet, "/api/v1/routes/r9", "")

	assert.Equal(t, before+2, counterValue(t, "/api/v1/{kind}/{id}", "200"))
	assert.Equal(t, missing+1, counterValue(t, "/api/v1/{kind}/{id}", "404"))
}

func TestEventStream(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	srv := NewServer(Config{Engine: &fakeEngine{}, Broker: broker})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	broker.Publish(events.NewEvent(events.EventFetchFailed, types.KindUpstream, "connection refused"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventFetchFailed, ev.Type)
	assert.Equal(t, types.KindUpstream, ev.Kind)
	assert.NotEmpty(t, ev.ID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsDisabledWithoutBroker(t *testing.T) {
	srv := NewServer(Config{Engine: &fakeEngine{}})

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// stubAPI is a control plane that serves fixed collections and accepts writes
type stubAPI struct {
	mu     sync.Mutex
	bodies map[types.Kind]string
	puts   map[string][]byte
}

func (s *stubAPI) List(ctx context.Context, kind types.Kind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []byte(s.bodies[kind]), nil
}

func (s *stubAPI) Put(ctx context.Context, kind types.Kind, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[string(kind)+"/"+id] = payload
	return nil
}

func (s *stubAPI) Delete(ctx context.Context, kind types.Kind, id string) error {
	return client.ErrNotFound
}

func TestServerWithReconciler(t *testing.T) {
	api := &stubAPI{
		bodies: map[types.Kind]string{
			types.KindRoute:    `{"total":1,"list":[{"key":"/apisix/routes/r1","value":{"uri":"/a","service_id":"s1"}}]}`,
			types.KindService:  `[{"id":"s1","upstream_id":"u1"}]`,
			types.KindUpstream: `[{"id":"u1","type":"roundrobin","nodes":{"10.0.0.1:8080":1}}]`,
			types.KindConsumer: `[{"username":"alice","plugins":{"key-auth":{"key":"k"}}}]`,
		},
		puts: make(map[string][]byte),
	}
	rec := reconciler.NewReconciler(reconciler.Config{API: api, Store: storage.NewMemoryStore()})
	rec.Start()
	defer rec.Stop()

	srv := NewServer(Config{Engine: rec})
	h := srv.Handler()

	w := serve(t, h, http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[RefreshResponse](t, w)
	require.Len(t, resp.Kinds, 4)
	for _, k := range resp.Kinds {
		assert.Empty(t, k.Error, k.Kind)
		assert.Equal(t, 1, k.Count, k.Kind)
	}

	w = serve(t, h, http.MethodGet, "/api/v1/services/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	svc := decode[types.Service](t, w)
	assert.Equal(t, []string{"r1"}, svc.Routes)

	w = serve(t, h, http.MethodPut, "/api/v1/upstreams/u2", `{"type":"chash","nodes":{"10.0.0.2:80":1}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	api.mu.Lock()
	assert.True(t, bytes.Contains(api.puts["upstreams/u2"], []byte("chash")))
	api.mu.Unlock()

	w = serve(t, h, http.MethodDelete, "/api/v1/routes/r1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, http.MethodGet, "/api/v1/chains", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, rec.ChainDemand())
	assert.NotEmpty(t, decode[[]types.AccessChain](t, w))
}
