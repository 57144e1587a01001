package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cuemby/conduit/pkg/client"
	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/relations"
	"github.com/cuemby/conduit/pkg/types"
)

// maxPayload bounds PUT bodies
const maxPayload = 1 << 20

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	State       reconciler.State        `json:"state"`
	LastRefresh *time.Time              `json:"last_refresh,omitempty"`
	Cycles      uint64                  `json:"cycles"`
	ChainDemand bool                    `json:"chain_demand"`
	Kinds       []reconciler.KindStatus `json:"kinds"`
}

// KindResult is one kind of a RefreshResponse
type KindResult struct {
	Kind         types.Kind `json:"kind"`
	Count        int        `json:"count"`
	Dropped      int        `json:"dropped"`
	Duplicates   int        `json:"duplicates"`
	Error        string     `json:"error,omitempty"`
	PersistError string     `json:"persist_error,omitempty"`
}

// RefreshResponse is the body of POST /api/v1/refresh
type RefreshResponse struct {
	Trigger    reconciler.TriggerSource `json:"trigger"`
	Coalesced  int                      `json:"coalesced"`
	StartedAt  time.Time                `json:"started_at"`
	DurationMs int64                    `json:"duration_ms"`
	Kinds      []KindResult             `json:"kinds"`
}

func newRefreshResponse(report reconciler.Report) RefreshResponse {
	resp := RefreshResponse{
		Trigger:    report.Trigger,
		Coalesced:  report.Coalesced,
		StartedAt:  report.StartedAt,
		DurationMs: report.Duration.Milliseconds(),
		Kinds:      make([]KindResult, 0, len(report.Kinds)),
	}
	for _, k := range report.Kinds {
		kr := KindResult{
			Kind:       k.Kind,
			Count:      k.Count,
			Dropped:    k.Dropped,
			Duplicates: k.Duplicates,
		}
		if k.Err != nil {
			kr.Error = k.Err.Error()
		}
		if k.PersistErr != nil {
			kr.PersistError = k.PersistErr.Error()
		}
		resp.Kinds = append(resp.Kinds, kr)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

// writeUpstreamError maps a control-plane failure onto a response
func writeUpstreamError(w http.ResponseWriter, err error) {
	var se *client.StatusError
	switch {
	case errors.Is(err, client.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &se) && se.Code == http.StatusBadRequest:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// kindVar resolves the {kind} path variable, answering 404 when unknown
func kindVar(w http.ResponseWriter, r *http.Request) (types.Kind, bool) {
	name := mux.Vars(r)["kind"]
	kind, ok := types.ParseKind(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown kind: "+name)
	}
	return kind, ok
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:       s.engine.State(),
		Cycles:      s.engine.Cycles(),
		ChainDemand: s.engine.ChainDemand(),
		Kinds:       s.engine.KindStatuses(),
	}
	if at := s.engine.Snapshot().RefreshedAt; !at.IsZero() {
		resp.LastRefresh = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Refresh(r.Context(), reconciler.TriggerManual)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newRefreshResponse(report))
}

// handleTrigger accepts the console's view-lifecycle triggers and returns
// without waiting for the cycle
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	source, ok := reconciler.ParseTrigger(mux.Vars(r)["source"])
	switch {
	case !ok:
		writeError(w, http.StatusBadRequest, "unknown trigger: "+mux.Vars(r)["source"])
		return
	case source != reconciler.TriggerVisibility &&
		source != reconciler.TriggerFocus &&
		source != reconciler.TriggerNavigation:
		writeError(w, http.StatusBadRequest, "trigger not accepted over the API: "+string(source))
		return
	}

	s.engine.Trigger(source)
	writeJSON(w, http.StatusAccepted, map[string]string{"trigger": string(source)})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	s.engine.SetChainDemand(true)
	chains := s.engine.AccessChains()
	if chains == nil {
		chains = []types.AccessChain{}
	}
	writeJSON(w, http.StatusOK, chains)
}

func (s *Server) handleDangling(w http.ResponseWriter, r *http.Request) {
	refs := relations.Dangling(s.engine.Snapshot().EntitySet)
	if refs == nil {
		refs = []relations.Reference{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(w, r)
	if !ok {
		return
	}

	snap := s.engine.Snapshot()
	var body any
	switch kind {
	case types.KindRoute:
		body = nonNilSlice(snap.Routes)
	case types.KindService:
		body = nonNilSlice(snap.Services)
	case types.KindUpstream:
		body = nonNilSlice(snap.Upstreams)
	case types.KindConsumer:
		body = nonNilSlice(snap.Consumers)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	entity, found := lookup(s.engine.Snapshot(), kind, id)
	if !found {
		writeError(w, http.StatusNotFound, kind.Singular()+" not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if len(payload) > maxPayload {
		writeError(w, http.StatusRequestEntityTooLarge, "body exceeds 1MiB")
		return
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	if err := s.engine.Apply(r.Context(), kind, id, payload); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"kind": string(kind), "id": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.engine.Remove(r.Context(), kind, id); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"kind": string(kind), "id": id})
}

func lookup(snap types.Snapshot, kind types.Kind, id string) (any, bool) {
	switch kind {
	case types.KindRoute:
		return find(snap.Routes, id)
	case types.KindService:
		return find(snap.Services, id)
	case types.KindUpstream:
		return find(snap.Upstreams, id)
	case types.KindConsumer:
		return find(snap.Consumers, id)
	}
	return nil, false
}

func find[E types.Entity](items []E, id string) (any, bool) {
	for _, item := range items {
		if item.EntityID() == id {
			return item, true
		}
	}
	return nil, false
}

// nonNilSlice makes empty collections encode as [] instead of null
func nonNilSlice[E any](items []E) []E {
	if items == nil {
		return []E{}
	}
	return items
}
