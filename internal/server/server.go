package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/uadirectory/internal/graphql"
	"github.com/tournevent/uadirectory/internal/lookup"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/internal/waybill"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP server for the directory service.
type Server struct {
	port     int
	resolver *graphql.Resolver
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	router   *mux.Router
}

// Config holds server configuration.
type Config struct {
	Port int
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// New creates a new server instance. metrics may be nil.
func New(cfg Config, resolver *graphql.Resolver, logger *otelzap.Logger, metrics *telemetry.Metrics) *Server {
	s := &Server{
		port:     cfg.Port,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/graphql", s.handleGraphQL).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/carriers", s.handleCarriers).Methods(http.MethodGet)
	api.HandleFunc("/carriers/{carrier}/cities", s.handleCities).Methods(http.MethodGet)
	api.HandleFunc("/carriers/{carrier}/warehouses", s.handleWarehouses).Methods(http.MethodGet)
	api.HandleFunc("/carriers/{carrier}/sync", s.handleTriggerSync).Methods(http.MethodPost)
	api.HandleFunc("/sync", s.handleSyncStatus).Methods(http.MethodGet)
	api.HandleFunc("/waybills", s.handleCreateWaybill).Methods(http.MethodPost)
	api.HandleFunc("/orders/{order}/waybill", s.handleGetWaybill).Methods(http.MethodGet)
	api.HandleFunc("/orders/{order}/waybill", s.handleSetWaybill).Methods(http.MethodPut)
	api.HandleFunc("/orders/{order}/waybill", s.handleClearWaybill).Methods(http.MethodDelete)

	s.router = r
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/graphql" {
		writeJSON(w, http.StatusMethodNotAllowed, graphql.Response{
			Errors: graphqlErrors("Method not allowed, use POST"),
		})
		return
	}
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, graphql.Response{
			Errors: graphqlErrors("Invalid JSON: " + err.Error()),
		})
		return
	}

	resp := s.resolver.Execute(r.Context(), req)
	status := http.StatusOK
	if resp.Data == nil && len(resp.Errors) > 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCarriers(w http.ResponseWriter, r *http.Request) {
	carriers, err := s.resolver.Query().Carriers(r.Context())
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, carriers)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cities, err := s.resolver.Query().Cities(r.Context(), mux.Vars(r)["carrier"], q.Get("term"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleWarehouses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouses, err := s.resolver.Query().Warehouses(r.Context(), mux.Vars(r)["carrier"], q.Get("city_ref"), q.Get("term"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, warehouses)
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	job, err := s.resolver.Mutation().TriggerSync(r.Context(), mux.Vars(r)["carrier"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.resolver.Query().SyncStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateWaybill(w http.ResponseWriter, r *http.Request) {
	var req waybill.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	result, err := s.resolver.Mutation().CreateWaybill(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: graphql.ErrTransient.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetWaybill(w http.ResponseWriter, r *http.Request) {
	wb, err := s.resolver.Query().Waybill(r.Context(), mux.Vars(r)["order"])
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if wb == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no waybill for this order"})
		return
	}
	writeJSON(w, http.StatusOK, wb)
}

type setWaybillRequest struct {
	Carrier string `json:"carrier"`
	Number  string `json:"number"`
}

func (s *Server) handleSetWaybill(w http.ResponseWriter, r *http.Request) {
	var req setWaybillRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := s.resolver.Waybills.Set(r.Context(), mux.Vars(r)["order"], req.Carrier, req.Number); err != nil {
		s.logger.Ctx(r.Context()).Error("Failed to set waybill", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: graphql.ErrTransient.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearWaybill(w http.ResponseWriter, r *http.Request) {
	if err := s.resolver.Waybills.Clear(r.Context(), mux.Vars(r)["order"]); err != nil {
		s.logger.Ctx(r.Context()).Error("Failed to clear waybill", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: graphql.ErrTransient.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeLookupError distinguishes bad input from transient failures and
// never exposes internal detail.
func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, lookup.ErrInvalidCarrier) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: lookup.ErrInvalidCarrier.Error()})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: lookup.ErrUnavailable.Error()})
}

// instrument records request metrics per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics == nil {
			return
		}
		operation := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				operation = tpl
			}
		}
		carrierID := mux.Vars(r)["carrier"]
		if carrierID == "" {
			carrierID = "all"
		}
		s.metrics.RecordRequest(r.Method+" "+operation, carrierID, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func graphqlErrors(msg string) gqlerror.List {
	return gqlerror.List{{Message: msg}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
