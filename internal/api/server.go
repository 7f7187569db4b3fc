// Package api implements the optional results-reporting surface of
// §4.17: a thin HTTP/websocket front onto a Store of validator run
// records. It is never on the hot path of a backtest or validator run
// — callers push progress and completion into Store/hub from outside,
// and this package only serves what has already been recorded.
//
// Narrowed from the base repository's internal/api.Server, which
// mounted a full REST surface (data, backtest lifecycle, blockchain
// signals) behind mux/cors/websocket: this package keeps the same
// router/upgrader/cors wiring shape but exposes only the two run routes
// SPEC_FULL.md §4.17 names (/runs/{id} and /runs/{id}/progress) plus
// /healthz and /metrics. phd_handlers.go/extended.go's
// blockchain-specific handlers are not carried forward.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mkc-quant/palvalidator/internal/telemetry"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the HTTP/websocket results-reporting surface.
type Server struct {
	logger     *zap.Logger
	host       string
	port       int
	store      *Store
	hub        *hub
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer builds a Server backed by store. It does not listen until
// Start is called.
func NewServer(logger *zap.Logger, host string, port int, store *Store) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger: logger,
		host:   host,
		port:   port,
		store:  store,
		hub:    newHub(logger),
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", telemetry.Handler().ServeHTTP).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}/progress", s.handleProgress).Methods(http.MethodGet)
}

// PublishProgress records done as runID's completed-permutation count
// in the store and fans the snapshot out to every websocket subscriber
// of runID. The executor and the validators do not call it; progress
// reaches the server only through a direct call.
func (s *Server) PublishProgress(runID string, done, total int) {
	s.store.Progress(runID, done)
	s.hub.publish(runID, progressMessage{
		RunID:             runID,
		PermutationsDone:  done,
		PermutationsTotal: total,
		Status:            string(StatusRunning),
	})
}

// PublishTerminal fans out a run's final status (completed or failed)
// to any subscriber still connected when the run finishes.
func (s *Server) PublishTerminal(runID string, status Status) {
	rec, _ := s.store.Get(runID)
	s.hub.publish(runID, progressMessage{
		RunID:             runID,
		PermutationsDone:  rec.PermutationsDone,
		PermutationsTotal: rec.PermutationsTotal,
		Status:            string(status),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		s.logger.Error("encode run record", zap.Error(err))
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.store.Get(id); !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan []byte, 16)}
	s.logger.Debug("progress subscriber connected", zap.String("client_id", c.id), zap.String("run_id", id))
	s.hub.subscribe(id, c)
	go c.writeLoop()
	go func() {
		defer s.hub.unsubscribe(id, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Start mounts the router behind cors and blocks serving HTTP until
// the listener errors or Stop is called, the same Start/Stop split the
// base repository's Server uses.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.logger.Info("starting results server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
