package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/status-im/market-hydrator/api"
	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/coingecko"
	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/events"
	"github.com/status-im/market-hydrator/hydration"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/preload"
	"github.com/status-im/market-hydrator/store"
	"github.com/status-im/market-hydrator/transform"
	"github.com/status-im/market-hydrator/validator"
)

// App holds the wired components
type App struct {
	*Registry

	Config      *config.Config
	Cache       *cache.Service
	Repo        *store.Repository
	Client      *coingecko.Client
	Coordinator *preload.Coordinator
	Controller  *hydration.Controller
	// Server is nil unless Setup was asked to serve HTTP
	Server *api.Server
}

// storeService opens and closes the persistent store with the other services
type storeService struct {
	store  store.Store
	logger *logrus.Entry
}

func (s *storeService) Start(ctx context.Context) error {
	return s.store.Open(ctx)
}

func (s *storeService) Stop() {
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close store")
	}
}

// Setup creates and registers all services
func Setup(cfg *config.Config, logger *logrus.Logger, serve bool) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	supported := cfg.GetSupportedCurrencies()
	currency, err := models.ParseCurrency(cfg.GetCurrency(), supported)
	if err != nil {
		return nil, fmt.Errorf("currency: %w", err)
	}

	registry := NewRegistry(logger)

	backend, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	registry.Register("store", &storeService{store: backend, logger: logger.WithField("component", "store")})
	repo := store.NewRepository(backend)

	cacheService := cache.NewService(cfg.Cache, currency)
	registry.Register("cache", cacheService)

	worker := transform.NewWorker(cfg.Transform, supported, logger)
	registry.Register("transform", worker)

	client := coingecko.NewClient(cfg, logger)
	v := validator.New(repo, cfg.Validator, logger)
	sm := events.NewSubscriptionManager()

	coordinator := preload.NewCoordinator(cfg.Preload, preload.Deps{
		Cache:       cacheService,
		Repo:        repo,
		Validator:   v,
		Fetcher:     client,
		Transformer: worker,
		Events:      sm,
	}, logger)
	registry.Register("preload", coordinator)

	controller := hydration.NewController(cfg.Hydration, supported, hydration.Deps{
		Cache:       cacheService,
		Repo:        repo,
		Validator:   v,
		Fetcher:     client,
		Coordinator: coordinator,
		Events:      sm,
	}, logger)
	controller.SetServerVersion(cfg.GetGlobalCacheVersion())
	coordinator.SetNavigator(controller)
	registry.Register("hydration", controller)

	app := &App{
		Registry:    registry,
		Config:      cfg,
		Cache:       cacheService,
		Repo:        repo,
		Client:      client,
		Coordinator: coordinator,
		Controller:  controller,
	}

	if serve {
		app.Server = api.New(cfg.Server, supported, api.Deps{
			Controller:  controller,
			Coordinator: coordinator,
			Cache:       cacheService,
			Health: map[string]api.HealthChecker{
				"coingecko": client,
				"store":     api.HealthFunc(backend.Ready),
			},
		}, logger)
		registry.Register("api", app.Server)
	}
	return app, nil
}

// Hydrate runs the start-up hydration for the first popular coins page
func (a *App) Hydrate(ctx context.Context) error {
	return a.Controller.Hydrate(ctx, hydration.InitialPayload{
		CacheVersion: a.Config.GetGlobalCacheVersion(),
		Route:        models.PopularCoins{Page: 1},
		UsePreloaded: true,
	})
}
