//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/export"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/repository"
)

const (
	routeHealth      = "health"
	routeMetrics     = "metrics"
	routeGetOrder    = "get-order"
	routeOrder       = "order"
	routeExport      = "export-northline"
	routeOrderExport = "order-export"
	routeExports     = "exports"

	exportIDHeader = "X-Export-ID"
)

type Exporter interface {
	GetOrder(ctx context.Context, reference string) (*export.OrderRecord, error)
	ExportOrder(ctx context.Context, reference string) (*export.Export, error)
}

type HistoryRepo interface {
	Create(ctx context.Context, rec *repository.ExportRecord) error
	List(ctx context.Context, reference string, limit int) ([]*repository.ExportRecord, error)
}

type UserRepo interface {
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}

type AuditSink interface {
	Publish(ctx context.Context, batch []AuditLogEntry) error
}

type Options struct {
	// RequestTimeout is the upstream timeout. The write timeout is 10s above it.
	RequestTimeout time.Duration
}

type Server struct {
	exporter     Exporter
	history      HistoryRepo
	userRepo     UserRepo
	logger       *zap.Logger
	mu           sync.Mutex
	server       *http.Server
	writeTimeout time.Duration
	AuditManager *AuditManager

	timeNow func() time.Time
}

// New wires the HTTP surface. history and userRepo may be nil: without
// history /exports answers 501, without a user repo auth is disabled.
func New(exporter Exporter, history HistoryRepo, userRepo UserRepo, sink AuditSink, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Server{
		exporter:     exporter,
		history:      history,
		userRepo:     userRepo,
		logger:       logger,
		writeTimeout: 10*time.Second + opts.RequestTimeout,
		AuditManager: NewAuditManager(2, 5, 500*time.Millisecond, sink, logger),
		timeNow:      time.Now,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.writeTimeout,
	}
	s.mu.Lock()
	s.server = httpServer
	s.mu.Unlock()

	// Audit publishing stops in Shutdown, not on ctx.
	s.AuditManager.Start(context.WithoutCancel(ctx))

	s.logger.Info("server starting", zap.String("port", port))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.mu.Lock()
	httpServer := s.server
	s.mu.Unlock()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("http server shutdown completed")

	s.AuditManager.Shutdown(ctx)
	s.logger.Info("server shutdown completed")

	return nil
}

// Handler returns the routed handler with all middlewares applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name(routeHealth)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name(routeMetrics)

	r.HandleFunc("/get-order", s.handleGetOrder).Methods(http.MethodGet, http.MethodOptions).Name(routeGetOrder)
	r.HandleFunc("/orders/{reference}", s.handleGetOrder).Methods(http.MethodGet, http.MethodOptions).Name(routeOrder)
	r.HandleFunc("/export-northline", s.handleExportOrder).Methods(http.MethodGet, http.MethodOptions).Name(routeExport)
	r.HandleFunc("/orders/{reference}/export", s.handleExportOrder).Methods(http.MethodGet, http.MethodOptions).Name(routeOrderExport)
	r.HandleFunc("/exports", s.handleListExports).Methods(http.MethodGet, http.MethodOptions).Name(routeExports)

	r.Use(mux.CORSMethodMiddleware(r))
	r.Use(s.corsMiddleware, s.auditLogMiddleware, s.basicAuthMiddleware)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	record, err := s.exporter.GetOrder(r.Context(), referenceFrom(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleExportOrder(w http.ResponseWriter, r *http.Request) {
	reference := referenceFrom(r)
	exportID := s.newExportID()
	w.Header().Set(exportIDHeader, exportID.String())

	exp, err := s.exporter.ExportOrder(r.Context(), reference)
	s.recordExport(r.Context(), exportID, reference, exp, err)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDisposition(exp.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(exp.Data); err != nil {
		s.logger.Warn("writing csv response", zap.String("reference", exp.Reference), zap.Error(err))
	}
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "export history is not configured")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "invalid value for 'limit' parameter")
			return
		}
	}

	records, err := s.history.List(r.Context(), r.URL.Query().Get("reference"), limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if records == nil {
		records = []*repository.ExportRecord{}
	}

	respondJSON(w, http.StatusOK, records)
}

func referenceFrom(r *http.Request) string {
	if reference, ok := mux.Vars(r)["reference"]; ok {
		return reference
	}
	return r.URL.Query().Get("reference")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
