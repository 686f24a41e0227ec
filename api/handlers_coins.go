package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/status-im/market-hydrator/interfaces"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/preload"
)

type popularResponse struct {
	Currency models.Currency       `json:"currency"`
	Page     int                   `json:"page"`
	Coins    []models.CoinOverview `json:"coins"`
}

type preloadResponse struct {
	ID      string          `json:"id"`
	Outcome preload.Outcome `json:"outcome"`
}

// handlePopularCoins responds with a page of popular coins in the client's currency
func (s *Server) handlePopularCoins(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	state := stateFrom(ctx)
	s.syncCurrency(ctx, state)
	currency := s.cache.Currency()

	if state.CacheVersion != "" {
		route := models.PopularCoins{Currency: currency, Page: page}
		if err := s.controller.ChangeRoute(ctx, route, state.CacheVersion); err != nil {
			s.logger.WithError(err).Warn("Route revalidation failed")
		}
	}

	coins, status, err := s.popularCoins(ctx, currency, page, state.UsePreloaded)
	if err != nil {
		s.sendError(w, http.StatusBadGateway, err)
		return
	}

	s.setCacheStatusHeader(w, status.String())
	s.sendJSONResponse(w, popularResponse{Currency: currency, Page: page, Coins: coins})
}

func (s *Server) popularCoins(ctx context.Context, currency models.Currency, page int, usePreloaded bool) ([]models.CoinOverview, interfaces.CacheStatus, error) {
	if usePreloaded {
		return s.coordinator.RequestPage(ctx, currency, page)
	}
	if coins, ok := s.cache.PopularCoins(currency, page); ok {
		return coins, interfaces.CacheStatusHit, nil
	}
	coins, err := s.coordinator.FetchPage(ctx, currency, page)
	return coins, interfaces.CacheStatusMiss, err
}

// handleCoin navigates to a coin and responds with its details once available
func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	id := strings.ToLower(mux.Vars(r)["id"])
	ctx := r.Context()
	state := stateFrom(ctx)
	s.syncCurrency(ctx, state)

	if state.CacheVersion != "" && state.CacheVersion != s.controller.ServerVersion() {
		route := models.CoinDetailsOf{ID: id, Currency: s.cache.Currency()}
		if err := s.controller.ChangeRoute(ctx, route, state.CacheVersion); err != nil {
			s.logger.WithError(err).Debug("Route revalidation failed, navigating anyway")
		}
	}

	status := interfaces.CacheStatusMiss
	if s.cache.HasCoinDetails(id) {
		status = interfaces.CacheStatusHit
	}

	details, err := s.coordinator.RequestNavigation(ctx, id)
	var navErr *preload.NavigationError
	switch {
	case errors.As(err, &navErr):
		if navErr.Retryable() {
			w.Header().Set("Retry-After", s.retryAfter)
		}
		s.sendError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}

	s.setCacheStatusHeader(w, status.String())
	s.sendJSONResponse(w, details)
}

// handlePreload starts loading a coin's details ahead of a navigation
func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	id := strings.ToLower(mux.Vars(r)["id"])
	ctx := r.Context()
	s.syncCurrency(ctx, stateFrom(ctx))

	outcome, err := s.coordinator.RequestPreload(ctx, id)
	switch {
	case errors.Is(err, preload.ErrCapacity):
		w.Header().Set("Retry-After", s.retryAfter)
		s.sendError(w, http.StatusTooManyRequests, err)
		return
	case err != nil:
		s.sendError(w, http.StatusBadRequest, err)
		return
	}

	status := http.StatusOK
	if outcome == preload.OutcomeDispatched {
		status = http.StatusAccepted
	}
	s.sendJSONStatus(w, status, preloadResponse{ID: id, Outcome: outcome})
}
