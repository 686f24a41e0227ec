package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/hydration"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/preload"
)

// HealthChecker is implemented by components reported on /health
type HealthChecker interface {
	Healthy() bool
}

// HealthFunc adapts a function to HealthChecker
type HealthFunc func() bool

func (f HealthFunc) Healthy() bool {
	return f()
}

// Deps are the components the HTTP edge drives
type Deps struct {
	Controller  *hydration.Controller
	Coordinator *preload.Coordinator
	Cache       *cache.Service
	Health      map[string]HealthChecker
}

type Server struct {
	port        string
	retryAfter  string
	supported   []models.Currency
	controller  *hydration.Controller
	coordinator *preload.Coordinator
	cache       *cache.Service
	health      map[string]HealthChecker
	logger      *logrus.Entry
	server      *http.Server
}

func New(cfg config.ServerConfig, supported []models.Currency, deps Deps, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		port:        cfg.GetPort(),
		retryAfter:  retryAfter(cfg.GetRetryAfter()),
		supported:   supported,
		controller:  deps.Controller,
		coordinator: deps.Coordinator,
		cache:       deps.Cache,
		health:      deps.Health,
		logger:      logger.WithField("component", "api"),
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.clientState)
	v1.HandleFunc("/coins/popular", s.handlePopularCoins).Methods(http.MethodGet)
	v1.HandleFunc("/coins/{id}", s.handleCoin).Methods(http.MethodGet)
	v1.HandleFunc("/coins/{id}/preload", s.handlePreload).Methods(http.MethodPost)
	v1.HandleFunc("/currency/{currency}", s.handleCurrency).Methods(http.MethodPut)
	v1.HandleFunc("/hydration", s.handleHydration).Methods(http.MethodGet)

	router.HandleFunc("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	return router
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Router(),
	}

	s.logger.Infof("Server starting at http://localhost:%s", s.port)
	s.logger.Info("Prometheus metrics available at /metrics endpoint")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Server error")
		}
	}()

	return nil
}
