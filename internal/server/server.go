package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"gigescrow/internal/catalog"
	"gigescrow/internal/config"
	"gigescrow/internal/escrow"
	"gigescrow/internal/hmacauth"
	"gigescrow/internal/idempotency"
	"gigescrow/internal/lifecycle"
	"gigescrow/internal/logger"
	"gigescrow/internal/purchase"
	"gigescrow/internal/store"
)

type Server struct {
	cfg          *config.Config
	ledger       escrow.Ledger
	store        store.Store
	tracker      *lifecycle.Tracker
	items        *catalog.Repository
	orchestrator *purchase.Orchestrator
	hmac         *hmacauth.Verifier
	idempotency  *idempotency.Store
	httpServer   *http.Server
	metrics      *metricsRegistry
	log          *logrus.Entry
	dbHealthFn   func(context.Context) error
	rpcHealthFn  func(context.Context) error
}

func NewServer(cfg *config.Config, ledger escrow.Ledger, signer escrow.Signer, st store.Store) *Server {
	metrics := newMetricsRegistry()

	tracker := lifecycle.NewTracker(st)
	tracker.OnTransition(metrics.incTransition)
	items := catalog.NewRepository(st)

	s := &Server{
		cfg:     cfg,
		ledger:  ledger,
		store:   st,
		tracker: tracker,
		items:   items,
		orchestrator: purchase.New(ledger, signer, tracker, items, purchase.Options{
			Confirmation:         cfg.ConfirmationPolicy(),
			FeeReserve:           cfg.Chain.MaxLegFee,
			ConfirmationObserver: metrics.observeConfirmation,
		}),
		hmac:        hmacauth.NewVerifier(cfg.Auth.HMACSecret, cfg.Auth.ClockSkew),
		idempotency: idempotency.NewStore(st, cfg.HTTP.IdempotencyWindow),
		metrics:     metrics,
		log:         logger.NewSublogger("server"),
		dbHealthFn:  st.Ping,
	}
	if checker, ok := ledger.(escrow.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	s.httpServer = &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Method(http.MethodGet, "/metrics", s.metrics.handler())

		api.Get("/items/{id}", s.handleGetItem)
		api.Post("/escrows/preview", s.handlePreview)
		api.Get("/escrows", s.handleListEscrows)
		api.Get("/escrows/{id}", s.handleGetEscrow)

		api.Group(func(signed chi.Router) {
			signed.Use(s.hmac.Middleware)
			signed.Post("/items", s.handleCreateItem)
			signed.With(s.idempotent).Post("/purchases", s.handlePurchase)
			signed.With(s.idempotent).Post("/escrows/{id}/retry", s.handleRetry)
			signed.Post("/escrows/{id}/reconcile", s.handleReconcile)
		})
	})
	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	if s.cfg.Auth.HMACSecret == "" {
		return errors.New("auth.hmac_secret is required to serve")
	}
	s.log.WithField("address", s.httpServer.Addr).Info("API listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"request_id": chimw.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Debug("Request served")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	ledgerInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			ledgerInfo.Connected = false
			ledgerInfo.Error = err.Error()
			overallHealthy = false
		} else {
			ledgerInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, struct {
		Status   string      `json:"status"`
		Ledger   interface{} `json:"ledger"`
		Database interface{} `json:"database"`
	}{
		Status:   status,
		Ledger:   ledgerInfo,
		Database: dbInfo,
	})
}
