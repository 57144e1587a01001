package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/types"
)

// Engine is the part of the reconciler the API serves
type Engine interface {
	Snapshot() types.Snapshot
	AccessChains() []types.AccessChain
	SetChainDemand(on bool)
	ChainDemand() bool
	Refresh(ctx context.Context, source reconciler.TriggerSource) (reconciler.Report, error)
	Trigger(source reconciler.TriggerSource)
	Apply(ctx context.Context, kind types.Kind, id string, payload []byte) error
	Remove(ctx context.Context, kind types.Kind, id string) error
	State() reconciler.State
	KindStatuses() []reconciler.KindStatus
	Cycles() uint64
}

var _ Engine = (*reconciler.Reconciler)(nil)

// Config configures a Server
type Config struct {
	Engine Engine

	// Broker feeds the websocket notice stream; nil disables /api/v1/events
	Broker *events.Broker

	// ReadOnly rejects PUT and DELETE on entities
	ReadOnly bool
}

// Server is the HTTP presentation API
type Server struct {
	engine   Engine
	broker   *events.Broker
	readOnly bool
	router   *mux.Router
	http     *http.Server
	logger   zerolog.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(cfg Config) *Server {
	s := &Server{
		engine:   cfg.Engine,
		broker:   cfg.Broker,
		readOnly: cfg.ReadOnly,
		router:   mux.NewRouter(),
		logger:   log.WithComponent("api"),
	}
	s.routes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: /api/v1/events and /api/v1/refresh are long-lived
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)

	registerHealthRoutes(r)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	v1.HandleFunc("/triggers/{source}", s.handleTrigger).Methods(http.MethodPost)
	v1.HandleFunc("/chains", s.handleChains).Methods(http.MethodGet)
	v1.HandleFunc("/relations/dangling", s.handleDangling).Methods(http.MethodGet)
	if s.broker != nil {
		v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	}

	v1.HandleFunc("/{kind}", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/{kind}/{id}", s.handleGet).Methods(http.MethodGet)

	v1.Handle("/{kind}/{id}", s.readOnlyGuard(http.HandlerFunc(s.handlePut))).Methods(http.MethodPut)
	v1.Handle("/{kind}/{id}", s.readOnlyGuard(http.HandlerFunc(s.handleDelete))).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.RegisterComponent(metrics.ComponentAPI, false, err.Error())
		return fmt.Errorf("failed to listen: %w", err)
	}

	metrics.RegisterComponent(metrics.ComponentAPI, true, "")
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("API listening")

	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	return s.http.Shutdown(ctx)
}
